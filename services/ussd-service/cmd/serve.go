package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/grigta/simgate/pkg/middleware"
	"github.com/grigta/simgate/services/ussd-service/internal/handlers"
	"github.com/grigta/simgate/services/ussd-service/internal/pool"
	"github.com/grigta/simgate/services/ussd-service/internal/service"
)

const (
	healthInterval  = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, the gRPC health endpoint and the background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer() error {
	log.Info("Initializing USSD gateway...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ensureIndexes(ctx); err != nil {
		log.WithError(err).Error("Failed to ensure indexes")
	}

	counters := pool.NewCounterResetWorker(a.repos.sims, cfg.Gateway.CounterResetCheck, log)
	counters.Start(ctx)
	defer counters.Stop()

	if a.rabbit != nil {
		if err := a.rabbit.SetQos(10); err != nil {
			log.WithError(err).Warn("Failed to set prefetch")
		}
		consumer := service.NewResponseConsumer(a.rabbit, a.services.Gateway, log)
		if err := consumer.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start executor response consumer")
		}
	}

	handler := handlers.NewHTTPHandler(a.services, a.auth, log).
		WithHealthCheck("mongodb", a.db.Ping)
	if a.redis != nil {
		handler.WithHealthCheck("redis", a.redis.Ping)
		if cfg.RateLimit.Enabled {
			handler.WithRateLimit(middleware.NewRateLimiter(a.redis, cfg.RateLimit.Requests, cfg.RateLimit.Window, log))
		}
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(log, "/health", "/metrics"),
		gin.Recovery(),
		middleware.CORS(middleware.DefaultCORSConfig()),
	)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	grpcServer, healthServer := handlers.NewGRPCServer(log)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.App.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}
	go handlers.WatchHealth(ctx, healthServer, handler.Checks(), healthInterval, log)

	errCh := make(chan error, 2)
	go func() {
		log.WithField("port", cfg.App.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.WithField("port", cfg.App.GRPCPort).Info("Starting gRPC server")
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Warn("Shutdown signal received, initiating graceful shutdown...")
	case serveErr = <-errCh:
		log.WithError(serveErr).Error("Server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()

	log.Info("USSD gateway stopped")
	return serveErr
}
