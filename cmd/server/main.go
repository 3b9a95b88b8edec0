package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-feed/internal/telemetry"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	"github.com/tendant/simple-feed/pkg/simplefeed/config"
)

func main() {
	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(serverConfig.Environment)
	slog.SetDefault(logger)

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, "simple-feed", serverConfig.OTELEndpoint)
	if err != nil {
		logger.Error("Failed to set up tracing", "err", err)
		os.Exit(1)
	}

	svc, closeStores, err := serverConfig.BuildService(ctx, simplefeed.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer closeStores()

	handler, err := routes(ctx, svc, serverConfig, logger)
	if err != nil {
		logger.Error("Failed to set up routes", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Simple Feed Server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"media", serverConfig.MediaBackend)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn("Failed to flush spans", "err", err)
	}

	logger.Info("Server exiting")
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
