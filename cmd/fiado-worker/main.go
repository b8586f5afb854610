package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fiado/internal/amqp"
	"fiado/internal/config"
	applog "fiado/internal/log"
	"fiado/internal/sheets"
	"fiado/internal/storage"
	"fiado/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting fiado-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// The worker reads pending statements straight from the database,
	// so it always needs the SQLite backend.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var mirror worker.ClosedMirror
	if cfg.SheetsEnabled() {
		client, err := sheets.New(context.Background(), sheets.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsFile: cfg.GoogleCredentialsFile,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	exportWorker := worker.NewExportWorker(repo, mirror, cfg.ReportDir, cfg.ExportBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Periodic sweep catches statements whose close event never arrived.
	g.Go(func() error {
		return exportWorker.Run(ctx, cfg.ExportInterval)
	})

	if cfg.AMQPEnabled() {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			return amqpClient.ConsumeStatementClosed(ctx, func(msg *amqp.StatementClosedMessage) error {
				return exportWorker.HandleClosedMessage(ctx, msg)
			})
		})
		logger.Info("Consuming statement-closed events", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - relying on the periodic sweep only")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
