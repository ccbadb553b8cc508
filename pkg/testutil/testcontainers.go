package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/grigta/simgate/pkg/database"
)

type ContainerConfig struct {
	MongoDBVersion  string
	RabbitMQVersion string
}

func DefaultContainerConfig() ContainerConfig {
	return ContainerConfig{
		MongoDBVersion:  "6.0",
		RabbitMQVersion: "3.12-management",
	}
}

type MongoDBContainer struct {
	Container    testcontainers.Container
	URI          string
	DatabaseName string
}

// StartMongoContainer runs a standalone mongod without auth.
func StartMongoContainer(ctx context.Context, config ContainerConfig) (*MongoDBContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("mongo:%s", config.MongoDBVersion),
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Waiting for connections"),
			wait.ForListeningPort("27017/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start MongoDB container: %w", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get MongoDB endpoint: %w", err)
	}

	return &MongoDBContainer{
		Container:    container,
		URI:          endpoint,
		DatabaseName: "simgate_test",
	}, nil
}

func (m *MongoDBContainer) Close(ctx context.Context) error {
	if m.Container != nil {
		return m.Container.Terminate(ctx)
	}
	return nil
}

type RabbitMQContainer struct {
	Container testcontainers.Container
	URI       string
}

func StartRabbitMQContainer(ctx context.Context, config ContainerConfig) (*RabbitMQContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("rabbitmq:%s", config.RabbitMQVersion),
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "test",
			"RABBITMQ_DEFAULT_PASS": "test",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start RabbitMQ container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get RabbitMQ container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get RabbitMQ AMQP port: %w", err)
	}

	return &RabbitMQContainer{
		Container: container,
		URI:       fmt.Sprintf("amqp://test:test@%s:%s/", host, port.Port()),
	}, nil
}

func (r *RabbitMQContainer) Close(ctx context.Context) error {
	if r.Container != nil {
		return r.Container.Terminate(ctx)
	}
	return nil
}

// MongoDB starts a throwaway MongoDB for an integration test, or skips the test
// under -short or when Docker is not reachable.
func MongoDB(t *testing.T) *database.MongoDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx := context.Background()
	container, err := StartMongoContainer(ctx, DefaultContainerConfig())
	if err != nil {
		skipWithoutDocker(t, err)
		t.Fatalf("start mongo: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	db, err := database.NewMongoDB(container.URI, container.DatabaseName, 30*time.Second)
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// RabbitMQURI starts a throwaway broker, skipping like MongoDB does.
func RabbitMQURI(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping RabbitMQ integration test in short mode")
	}

	ctx := context.Background()
	container, err := StartRabbitMQContainer(ctx, DefaultContainerConfig())
	if err != nil {
		skipWithoutDocker(t, err)
		t.Fatalf("start rabbitmq: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	return container.URI
}

func skipWithoutDocker(t *testing.T, err error) {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "docker") || strings.Contains(msg, "daemon") || strings.Contains(msg, "provider") {
		t.Skipf("docker not available: %v", err)
	}
}
