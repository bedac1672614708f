package main

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"clinic/internal/backend"
	"clinic/internal/cli"
	"clinic/internal/config"
	"clinic/internal/ledger"
	gledger "clinic/internal/ledger/google"
	"clinic/internal/ledger/memory"
	"clinic/internal/log"
	"clinic/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateLedger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	backendCfg.RequireAMQP = true

	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		})
	}
	defer cleanup()
	b := res.Backend

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	writer, err := newLedger(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize ledger", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		cleanup()
		os.Exit(1)
	}

	w := worker.NewLedgerWorker(b.Store, writer, b.Metrics, logger)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           b.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := w.Serve(ctx, b.AMQP, metricsSrv, cfg.ShutdownTimeout); err != nil {
		logger.Error("Ledger worker failed", log.FieldError, err)
		cleanup()
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Ledger worker stopped gracefully")
}

// newLedger picks the Google Sheets ledger when a spreadsheet is configured
// and the in-memory one otherwise.
func newLedger(ctx context.Context, cfg *config.Config, logger *log.Logger) (ledger.Writer, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("No GOOGLE_SPREADSHEET_ID provided, payments are mirrored in memory only")
		return memory.New(), nil
	}

	client, err := gledger.New(ctx, gledger.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleLedgerSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	logger.Info("Google Sheets ledger initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleLedgerSheetName)
	return client, nil
}
