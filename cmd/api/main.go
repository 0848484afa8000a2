package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"dev/bravebird/wagroup/pkg/api"
	"dev/bravebird/wagroup/pkg/config"
	"dev/bravebird/wagroup/pkg/database"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/selectors"
)

func main() {
	_ = godotenv.Load()

	v, err := config.NewViper(os.Getenv("WAGROUP_CONFIG"))
	if err != nil {
		logging.Default().Error("Failed to read config", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(v)
	if err != nil {
		logging.Default().Error("Invalid config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	logger.Info("Starting WhatsApp group API server")

	store, closeStore, err := openStore(cfg.History, logger)
	if err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger.Logger),
	})
	if err != nil {
		logger.Error("Failed to create Temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	table, err := selectors.Resolve(cfg.Selectors.File, cfg.Selectors.Profile)
	if err != nil {
		logger.Error("Invalid selector table", "error", err)
		os.Exit(1)
	}

	handlers := api.NewHandlers(store, temporalClient, table, api.Config{
		TaskQueue:    cfg.Temporal.TaskQueue,
		UploadDir:    cfg.API.UploadDir,
		ArtifactPath: cfg.Debug.ArtifactPath,
		Column:       cfg.Contacts.Column,
		Sheet:        cfg.Contacts.Sheet,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      api.NewRouter(handlers, promhttp.Handler(), cfg.API.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("API server listening", "addr", server.Addr, "task_queue", cfg.Temporal.TaskQueue)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

// openStore connects the run history when it is enabled. A database that
// cannot be reached leaves the API running without history; a failed
// migration is an error.
func openStore(cfg config.HistoryConfig, logger *logging.Logger) (api.RunStore, func(), error) {
	noop := func() {}
	if !cfg.Enabled {
		logger.Info("Run history disabled")
		return nil, noop, nil
	}

	db, err := database.New(cfg.DSN)
	if err != nil {
		logger.Warn("Failed to connect to database, running without run history", "error", err)
		return nil, noop, nil
	}
	closeDB := func() { db.Close() }

	if cfg.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			closeDB()
			return nil, noop, err
		}
	}
	return db, closeDB, nil
}
