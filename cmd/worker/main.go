package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/wagroup/pkg/config"
	"dev/bravebird/wagroup/pkg/database"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/metrics"
	"dev/bravebird/wagroup/pkg/runner"
	"dev/bravebird/wagroup/pkg/temporal/activities"
	"dev/bravebird/wagroup/pkg/temporal/workflows"
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

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger.Logger),
	})
	if err != nil {
		logger.Error("Failed to create Temporal client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	// History is optional; the worker still runs groups without it
	var history runner.Recorder
	if cfg.History.Enabled {
		db, err := database.New(cfg.History.DSN)
		if err != nil {
			logger.Warn("Failed to connect to database, running without history", "error", err)
		} else {
			defer db.Close()
			if cfg.History.Migrate {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				err = db.Migrate(ctx)
				cancel()
				if err != nil {
					logger.Error("Failed to migrate database", "error", err)
					os.Exit(1)
				}
			}
			history = db
		}
	}

	var m *metrics.RunMetrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewRunMetrics(reg)

		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	r, err := runner.FromConfig(cfg, logger, history, m)
	if err != nil {
		logger.Error("Failed to build runner", "error", err)
		os.Exit(1)
	}
	acts := activities.NewActivities(r, logger)
	acts.Signaler = c

	// One browser per worker: WhatsApp Web allows a single active session
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     1,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(workflows.CreateGroupWorkflow)
	w.RegisterActivityWithOptions(acts.LoadContactsActivity, activity.RegisterOptions{Name: workflows.LoadContactsActivityName})
	w.RegisterActivityWithOptions(acts.CreateGroupActivity, activity.RegisterOptions{Name: workflows.CreateGroupActivityName})

	logger.Info("Starting Temporal worker",
		"task_queue", cfg.Temporal.TaskQueue,
		"host", cfg.Temporal.HostPort,
		"history", history != nil,
		"headless", cfg.Browser.Headless)

	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}
