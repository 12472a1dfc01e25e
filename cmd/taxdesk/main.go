package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"taxdesk/internal/auth"
	"taxdesk/internal/cli"
	apphttp "taxdesk/internal/http"
	"taxdesk/internal/log"
	"taxdesk/internal/middleware/ratelimit"
)

func main() {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal("Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	b, err := cli.BuildBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to build backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := b.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(cfg.Addr(), apphttp.Deps{
		Income:  b.Income,
		Summary: b.Summary,
		Auth:    auth.NewPasswordAuthenticator(b.Repo),
		Tokens:  auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		Tax:     b.Tax,
		Metrics: b.Metrics,
		Logger:  logger,
		Ready:   b.Repo.Ping,
		RateLimit: ratelimit.Config{
			Requests: cfg.RateLimit,
			Window:   cfg.RateWindow,
		},
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, srv.Shutdown)

	go func() {
		logger.Info("Starting taxdesk server",
			"addr", cfg.Addr(),
			"db_path", cfg.SQLiteDBPath,
			"amqp_enabled", b.Events != nil,
			"summary_export", cfg.SummaryExport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "addr", cfg.Addr())
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
