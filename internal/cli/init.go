// Package cli holds the bootstrap shared by cmd/taxdesk, cmd/taxdesk-worker
// and cmd/taxdeskctl, and the taxdeskctl command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxdesk/internal/backend"
	"taxdesk/internal/config"
	"taxdesk/internal/log"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// makes it the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig reads .env (if present) and the environment, then
// validates the result.
func LoadAndValidateConfig() (*config.Config, error) {
	config.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Fatal logs err on a bootstrap logger and exits. Used before the
// configured logger exists.
func Fatal(msg string, err error) {
	log.New(log.DefaultConfig()).Error(msg, log.FieldError, err)
	os.Exit(1)
}

// BuildBackend wires storage, events, export and services for cfg.
func BuildBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.Backend, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend config: %w", err)
	}
	return backend.NewFactory(logger).Build(ctx, bcfg)
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. When
// the signal arrives cleanup runs with timeout as its deadline, and done is
// closed once it returns.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context) error) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		if cleanup == nil {
			return
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if err := cleanup(shutdownCtx); err != nil {
			logger.Error("Shutdown cleanup failed", log.FieldError, err)
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
