package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"dev/bravebird/wagroup/pkg/database"
	"dev/bravebird/wagroup/pkg/metrics"
	"dev/bravebird/wagroup/pkg/runner"
)

func newCreateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group and add the contacts from a file",
		Example: `  wagroup create --contacts contacts.csv --name "Family"
  WAGROUP_GROUP_NAME=Team wagroup create --contacts export.xlsx --profile testid`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.create(cmd)
		},
	}

	cmd.Flags().String("contacts", "", "contacts file (.csv or .xlsx)")
	cmd.Flags().String("name", "", "group name")
	cmd.Flags().String("column", "", "phone number column header")
	cmd.Flags().String("sheet", "", "worksheet to read from .xlsx files")
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	cmd.Flags().String("browser-bin", "", "browser binary")
	cmd.Flags().String("user-data-dir", "", "browser profile directory; reuse it to stay logged in")
	cmd.Flags().Int("login-wait", 0, "seconds to wait for the QR code scan")
	cmd.Flags().String("artifact", "", "where to save the page markup when a run fails")
	cmd.Flags().Bool("history", false, "record the run in MySQL")
	cmd.Flags().Bool("metrics", false, "serve Prometheus metrics while the run is in progress")
	cmd.Flags().String("metrics-addr", "", "metrics listen address")

	return cmd
}

func (a *app) create(cmd *cobra.Command) error {
	cfg := a.cfg
	logger := a.logger

	if cfg.Contacts.File == "" {
		return usageError(errors.New("a contacts file is required (--contacts or contacts.file)"))
	}
	if cfg.Group.Name == "" {
		return usageError(errors.New("a group name is required (--name or group.name)"))
	}

	var history runner.Recorder
	if cfg.History.Enabled {
		db, err := database.New(cfg.History.DSN)
		if err != nil {
			return &ExitError{Code: ExitFailure, Err: err}
		}
		defer db.Close()
		if cfg.History.Migrate {
			if err := db.Migrate(cmd.Context()); err != nil {
				return &ExitError{Code: ExitFailure, Err: err}
			}
		}
		history = db
	}

	var m *metrics.RunMetrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m = metrics.NewRunMetrics(reg)
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("Metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("Serving metrics", "addr", cfg.Metrics.Addr)
	}

	r, err := a.newRunner(cfg, logger, history, m)
	if err != nil {
		return usageError(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := r.RunFile(ctx, cfg.Contacts.File, cfg.Group.Name)
	switch {
	case errors.Is(err, runner.ErrNoContacts):
		return &ExitError{Code: ExitNoContacts, Err: fmt.Errorf("%w in %s (column %q)", err, cfg.Contacts.File, cfg.Contacts.Column)}
	case errors.Is(err, context.Canceled):
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("interrupted: %w", err)}
	case err != nil:
		return &ExitError{Code: ExitFailure, Err: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Group %q created: %d added, %d skipped (run %s)\n",
		result.GroupName, result.Added(), result.Skipped(), result.RunID)
	for _, c := range result.Contacts {
		if c.Message != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s: %s\n", c.Contact, c.Message)
		}
	}
	return nil
}
