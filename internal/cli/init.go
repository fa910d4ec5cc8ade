// Package cli provides common CLI initialization utilities shared by
// cmd/paydays, cmd/paydays-server and cmd/schedule-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paydays/internal/backend"
	"paydays/internal/config"
	"paydays/internal/core"
	"paydays/internal/log"
	"paydays/internal/scheduler"
	"paydays/internal/services"

	"github.com/joho/godotenv"
)

// SetupLogger initializes structured logging on stderr at the given level.
// Unknown levels fall back to info. The logger becomes the slog default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	lvl, err := log.ParseLevel(level)
	cfg.Level = lvl
	logger := log.New(cfg)
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", log.FieldError, err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// NewPlanner builds the configured backend and a planner over it. Close the
// returned backend when done.
func NewPlanner(ctx context.Context, logger *log.Logger, cfg *config.Config) (*services.Planner, *backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("backend configuration: %w", err)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	engine, err := scheduler.NewEngine(cfg.EngineOptions())
	if err != nil {
		_ = res.Close()
		return nil, nil, fmt.Errorf("initialize scheduling engine: %w", err)
	}
	planner := services.NewPlanner(engine, res.Source, res.Writer, res.Runs, res.Publisher, services.PlannerConfig{
		Strategy:        cfg.StrategyName(),
		WritePriorities: cfg.WritePriorities,
	})
	return planner, res, nil
}

// OpenPlanner is NewPlanner for long-running commands: it exits the process
// on failure.
func OpenPlanner(ctx context.Context, logger *log.Logger, cfg *config.Config) (*services.Planner, *backend.BackendResult) {
	planner, res, err := NewPlanner(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize planner", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	return planner, res
}

// ResolveNow returns the instant a run should treat as now. An empty date
// means the host clock in loc; otherwise the date is midnight in loc.
func ResolveNow(date string, clock func() time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if date == "" {
		return clock().In(loc), nil
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date: %w", err)
	}
	return time.Date(d.Year(), time.Month(d.Month()), d.Day(), 0, 0, 0, 0, loc), nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup finished or timed out.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete", log.FieldOperation, log.OpShutdown)
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown)
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
