package main

import (
	"context"
	"time"

	"paydays/internal/cli"
	"paydays/internal/log"
	"paydays/internal/services"

	"github.com/robfig/cron/v3"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("info")
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentWorker)

	logger.Info("Starting schedule-worker",
		log.FieldOperation, log.OpStartup,
		log.FieldBackend, cfg.DataBackend,
		"cron", cfg.ScheduleCron,
		"timezone", cfg.ScheduleTimezone)

	planner, res := cli.OpenPlanner(context.Background(), logger, cfg)
	loc := cfg.Location()

	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	run := func() {
		runOnce(ctx, logger, planner, time.Now().In(loc))
	}

	if _, err := scheduler.AddFunc(cfg.ScheduleCron, run); err != nil {
		logger.Error("Invalid schedule", log.FieldError, err, "cron", cfg.ScheduleCron)
		_ = res.Close()
		return
	}

	logger.Info("Running initial schedule computation")
	run()
	scheduler.Start()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Schedule-worker stopped")
}

func runOnce(ctx context.Context, logger *log.Logger, planner *services.Planner, now time.Time) {
	if ctx.Err() != nil {
		return
	}
	res, err := planner.RunScheduled(ctx, now)
	if err != nil {
		logger.Error("Scheduled run failed", log.FieldError, err, log.FieldRunID, res.RunID)
		return
	}
	logger.Info("Scheduled run stored",
		log.FieldRunID, res.RunID,
		"priorities_updated", res.Updated,
		"total", res.Plan.Total().StringFixed(2))
}
