package handlers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const ServiceName = "ussd-service"

// NewGRPCServer exposes the standard health service and reflection. The returned health
// server is kept current by WatchHealth.
func NewGRPCServer(logger *logrus.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(logger)))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	return server, healthServer
}

func loggingInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		entry := logger.WithFields(logrus.Fields{
			"method":  info.FullMethod,
			"code":    status.Code(err).String(),
			"latency": time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Warn("gRPC call failed")
		} else {
			entry.Debug("gRPC call completed")
		}
		return resp, err
	}
}

// UpdateHealth runs every check once and publishes the aggregate serving status.
func UpdateHealth(ctx context.Context, hs *health.Server, checks map[string]HealthCheck, logger *logrus.Logger) healthpb.HealthCheckResponse_ServingStatus {
	serving := healthpb.HealthCheckResponse_SERVING
	for name, check := range checks {
		if err := check(ctx); err != nil {
			logger.WithError(err).WithField("dependency", name).Warn("Dependency unhealthy")
			serving = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	hs.SetServingStatus("", serving)
	hs.SetServingStatus(ServiceName, serving)
	return serving
}

// WatchHealth refreshes the gRPC health status every interval until ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, checks map[string]HealthCheck, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		UpdateHealth(checkCtx, hs, checks, logger)
		cancel()

		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

// Checks returns the registered dependency checks, shared with the gRPC health watcher.
func (h *HTTPHandler) Checks() map[string]HealthCheck {
	return h.checks
}
