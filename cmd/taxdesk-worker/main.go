package main

import (
	"context"
	"os"

	"taxdesk/internal/cli"
	"taxdesk/internal/log"
	"taxdesk/internal/worker"
)

func main() {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal("Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting taxdesk-worker")

	b, err := cli.BuildBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to build backend", log.FieldError, err)
		os.Exit(1)
	}

	// Leave the interface nil without AMQP so the worker runs reconcile
	// passes only.
	var consumer worker.EventConsumer
	if b.Events != nil {
		consumer = b.Events
	} else {
		logger.Warn("AMQP_URL not set, summaries are rebuilt on the reconcile schedule only",
			"schedule", cfg.ReconcileSchedule)
	}

	w := worker.NewSummaryWorker(b.Summary, b.Repo, consumer, worker.Options{
		Schedule:  cfg.ReconcileSchedule,
		BatchSize: cfg.ReconcileBatchSize,
		Metrics:   b.Metrics,
		Logger:    logger,
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		if cerr := b.Cleanup(); cerr != nil {
			logger.Error("Backend cleanup failed", log.FieldError, cerr)
		}
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	if err := b.Cleanup(); err != nil {
		logger.Error("Backend cleanup failed", log.FieldError, err)
	}
	logger.Info("Worker stopped gracefully")
}
