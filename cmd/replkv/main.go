package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"replkv/internal/configuration"
	"replkv/internal/configuration/properties"
	"replkv/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	cfg, err := configuration.Load(configuration.Dir())
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Init(cfg.Application.LogLevel)
	slog.Info("Starting replkv...", "profile", cfg.Application.Profile)

	services, err := NewServices(properties.NewProvider(cfg))
	if err != nil {
		slog.Error("Failed to start services", "error", err)
		os.Exit(1)
	}

	slog.Info("replkv ready", "grpc_addr", services.Transport.Addr(), "metrics_addr", services.Metrics.Addr())
	<-ctx.Done()

	slog.Info("Shutting down replkv...")
	services.Stop()
}
