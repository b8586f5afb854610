package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fiado/internal/amqp"
	"fiado/internal/auth"
	"fiado/internal/config"
	apphttp "fiado/internal/http"
	applog "fiado/internal/log"
	"fiado/internal/services"
	"fiado/internal/store"
	"fiado/internal/store/memory"
	"fiado/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("Starting fiado server")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	var (
		statements store.StatementStore
		users      store.UserDirectory
		stores     store.StoreDirectory
		closer     interface{ Close() error }
	)

	switch cfg.DataBackend {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		statements, users, stores, closer = repo, repo, repo, repo
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	default:
		mem := memory.New()
		statements, users, stores = mem, mem, mem
		logger.Info("Initialized memory backend")
	}
	if closer != nil {
		defer closer.Close()
	}

	// AMQP feeds the export worker. Without it statements still close;
	// the worker's periodic sweep picks them up from the database.
	var publisher services.ClosePublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without event publishing", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized")
		}
	} else {
		logger.Info("AMQP disabled - closed statements are exported by the periodic sweep only")
	}

	tokens := auth.NewTokens([]byte(cfg.JWTSecret), cfg.TokenTTL)
	ledger := services.NewLedgerService(statements, publisher, nil)

	srv := apphttp.NewServer(":"+cfg.Port, ledger, users, stores, tokens)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB
	srv.Handler = applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(srv.Handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting fiado server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
