package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"clinic/internal/backend"
	"clinic/internal/cli"
	apphttp "clinic/internal/http"
	"clinic/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, nil)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldErrorType, log.ErrorTypeDatabase)
		os.Exit(1)
	}
	b := res.Backend

	serverCfg := apphttp.DefaultConfig()
	serverCfg.Addr = cfg.Addr()
	serverCfg.RateLimitPerMinute = cfg.RateLimitPerMinute
	srv := apphttp.NewServer(serverCfg, b.Records, b.Reports, b.Metrics, logger)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting clinic server",
		"addr", serverCfg.Addr,
		"amqp_enabled", cfg.AMQPEnabled(),
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "addr", serverCfg.Addr)
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
