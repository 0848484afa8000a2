// Package cli implements the wagroup command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dev/bravebird/wagroup/pkg/config"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/metrics"
	"dev/bravebird/wagroup/pkg/runner"
)

// Process exit codes
const (
	ExitOK         = 0
	ExitFailure    = 1 // automation or runtime failure
	ExitNoContacts = 2 // the contact file yielded nothing
	ExitUsage      = 3 // invalid configuration or usage
)

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// RunnerFactory builds the runner used by the create command
type RunnerFactory func(cfg *config.Config, logger *logging.Logger, history runner.Recorder, m *metrics.RunMetrics) (*runner.Runner, error)

// app is the state shared by the commands of one invocation
type app struct {
	configFile string
	v          *viper.Viper
	cfg        *config.Config
	logger     *logging.Logger
	newRunner  RunnerFactory
}

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"profile":       "selectors.profile",
	"selectors":     "selectors.file",
	"contacts":      "contacts.file",
	"column":        "contacts.column",
	"sheet":         "contacts.sheet",
	"name":          "group.name",
	"headless":      "browser.headless",
	"browser-bin":   "browser.bin",
	"user-data-dir": "browser.user_data_dir",
	"login-wait":    "whatsapp.login_wait_seconds",
	"artifact":      "debug.artifact_path",
	"history":       "history.enabled",
	"metrics":       "metrics.enabled",
	"metrics-addr":  "metrics.addr",
}

// NewRootCommand builds the command tree. factory may be nil to launch a real browser.
func NewRootCommand(factory RunnerFactory) *cobra.Command {
	if factory == nil {
		factory = runner.FromConfig
	}
	a := &app{newRunner: factory}

	root := &cobra.Command{
		Use:   "wagroup",
		Short: "Create WhatsApp groups from a contacts export",
		Long: `wagroup drives WhatsApp Web in a real browser to create a group and
add every phone number found in a CSV or XLSX contacts export.

The browser opens on the WhatsApp Web login page; scan the QR code with
your phone before the login wait runs out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default is ./wagroup.yaml or $HOME/.config/wagroup/wagroup.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: text or json")
	root.PersistentFlags().String("profile", "", "selector profile")
	root.PersistentFlags().String("selectors", "", "selector table YAML file")

	root.AddCommand(newCreateCommand(a))
	root.AddCommand(newContactsCommand(a))
	root.AddCommand(newSelectorsCommand(a))

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return usageError(err)
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return usageError(err)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return usageError(err)
	}

	a.v = v
	a.cfg = cfg
	a.logger = logging.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	return run(NewRootCommand(nil), os.Args[1:], os.Stderr)
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return ExitOK
	}

	fmt.Fprintln(stderr, "Error:", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	// Unknown commands, bad flags and wrong argument counts
	return ExitUsage
}
