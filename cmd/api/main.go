package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/acme/campaign-dispatch/internal/api"
	"github.com/acme/campaign-dispatch/internal/api/handlers"
	"github.com/acme/campaign-dispatch/internal/app"
	"github.com/acme/campaign-dispatch/internal/scheduler"
	"github.com/acme/campaign-dispatch/internal/telemetry"
)

func main() {
	log.Println("Starting API server...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	log.Printf("Using config file: %s", *configPath)

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App.Name+"-api")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	svc := container.Services()
	logger := container.Logger.Named("api").Logger

	// On-demand ticks return their batches to the caller; only the scheduler publishes.
	ticks := scheduler.NewRunner(svc.Orchestrator, nil, container.Repositories().Summaries, container.Metrics, logger)

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Ticks:        ticks,
		Summaries:    container.Repositories().Summaries,
		Availability: svc.Availability,
		Tokens:       svc.Verifier,
		Health: []handlers.HealthCheck{
			{Name: "postgres", Check: container.Postgres.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return container.Redis.Inner().Ping(ctx).Err() }},
			{Name: "scylla", Check: func(context.Context) error { return container.Scylla.Ping() }},
		},
		Metrics:         container.Metrics,
		Logger:          logger,
		DefaultDuration: container.Config.Availability.DefaultDuration,
	})

	server := api.NewServer(container.Config, container.Metrics, handlerSet)

	log.Printf("Starting server on port %d...", container.Config.HTTP.Port)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("server terminated: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
