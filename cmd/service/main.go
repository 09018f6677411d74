// Command service runs the devflow-identity HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/events"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/http"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/handlers"
	"github.com/jsamuelsen/devflow-identity/internal/app"
	"github.com/jsamuelsen/devflow-identity/internal/platform/config"
	"github.com/jsamuelsen/devflow-identity/internal/platform/logging"
	"github.com/jsamuelsen/devflow-identity/internal/platform/telemetry"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=... -X main.BuildTime=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the service and blocks until ctx is cancelled or the listener
// fails. The store and event bus are reachable before the listener opens.
func run(ctx context.Context) error {
	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	cfg, err := config.Load(profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg)
	logging.SetDefault(logger)

	logger.Info("starting devflow-identity",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("profile", profile),
		slog.String("storage", cfg.Storage.Driver),
		slog.Bool("events", cfg.Events.Enabled),
	)

	// Deferred cleanup runs after a signal has cancelled ctx.
	cleanupCtx := context.WithoutCancel(ctx)

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(cleanupCtx); err != nil {
			logger.Error("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	registry := ports.NewHealthRegistry()

	store, err := openStore(ctx, &cfg.Storage, logger)
	if err != nil {
		return err
	}

	defer closeStore(store, logger)

	if err := registry.Register(store); err != nil {
		return fmt.Errorf("registering store health check: %w", err)
	}

	publisher, closePublisher, err := openPublisher(cfg, registry, logger)
	if err != nil {
		return err
	}

	defer closePublisher()

	identity := app.NewIdentityService(app.IdentityServiceConfig{Store: store, Events: publisher, Logger: logger})
	directory := app.NewDirectoryService(app.DirectoryServiceConfig{Users: store, Accounts: store, Logger: logger})

	server := http.New(&cfg.Server, logger)
	http.SetupRouter(server.Engine(), http.RouterConfig{
		Logger:         logger,
		AppConfig:      &cfg.App,
		HealthHandler:  handlers.NewHealthHandler(registry, handlers.NewBuildInfo(Version, Commit, BuildTime)),
		AuthHandler:    handlers.NewAuthHandler(identity),
		UserHandler:    handlers.NewUserHandler(directory),
		AccountHandler: handlers.NewAccountHandler(directory),
	})

	return serveUntilDone(ctx, logger, server, cfg.Server.ShutdownTimeout)
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	return &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
}

// openPublisher returns the configured event publisher and a func releasing
// it. A connected publisher is registered as an optional readiness
// dependency.
func openPublisher(
	cfg *config.Config,
	registry ports.HealthRegistry,
	logger *slog.Logger,
) (ports.EventPublisher, func(), error) {
	if !cfg.Events.Enabled {
		return events.Noop{}, func() {}, nil
	}

	publisher, err := events.Connect(cfg.Events.NATSURL, cfg.App.Name, cfg.Events.SubjectPrefix, logger)
	if err != nil {
		return nil, nil, err
	}

	if err := registry.Register(publisher, ports.AsOptional()); err != nil {
		_ = publisher.Close()
		return nil, nil, fmt.Errorf("registering nats health check: %w", err)
	}

	release := func() {
		if err := publisher.Close(); err != nil {
			logger.Error("nats drain error", slog.Any("error", err))
		}
	}

	return publisher, release, nil
}

// serveUntilDone starts the listener and, once ctx is cancelled, drains
// in-flight requests for at most drain.
func serveUntilDone(ctx context.Context, logger *slog.Logger, server *http.Server, drain time.Duration) error {
	serverErr := server.Start()

	select {
	case err, failed := <-serverErr:
		if failed {
			return err
		}

		return nil
	case <-ctx.Done():
		logger.Info("shutdown requested", slog.Duration("drain_timeout", drain))
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drain)
	defer cancel()

	if err := server.Shutdown(drainCtx); err != nil {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}
