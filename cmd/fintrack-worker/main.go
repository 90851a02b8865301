package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err == nil {
		err = cfg.ValidateExport()
	}
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if cfg.DataBackend == "memory" {
		logger.Error("The export worker needs a shared backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	logger.Info("Starting fintrack-worker", "backend", cfg.DataBackend)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close backend", "error", err)
		}
	}()
	if app.Backend.AMQP == nil {
		logger.Error("AMQP broker unreachable", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		os.Exit(1)
	}

	creds, err := gsheet.LoadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		logger.Error("Failed to load Google credentials", "error", err)
		os.Exit(1)
	}
	exporter, err := gsheet.NewExporter(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, creds)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	w := worker.NewExportWorker(app.Reports, exporter, app.Backend.Store, cfg.ExportConcurrency)

	// Catch up on anything missed while the worker was down.
	if n, err := w.ExportAll(ctx); err != nil {
		logger.Error("Startup export finished with errors", "exported", n, "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Backend.AMQP.ConsumeLedgerEvents(gctx, w.HandleLedgerEvent)
	})
	g.Go(func() error {
		return w.RunPeriodic(gctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
