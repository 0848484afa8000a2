// Package config loads wagroup settings from defaults, an optional YAML
// file, WAGROUP_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dev/bravebird/wagroup/pkg/browser"
	"dev/bravebird/wagroup/pkg/contacts"
	"dev/bravebird/wagroup/pkg/selectors"
	"dev/bravebird/wagroup/pkg/whatsapp"
)

// EnvPrefix namespaces environment overrides, e.g. WAGROUP_GROUP_NAME
const EnvPrefix = "WAGROUP"

// Config represents the complete wagroup configuration
type Config struct {
	Contacts  ContactsConfig  `mapstructure:"contacts"`
	Group     GroupConfig     `mapstructure:"group"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
	Debug     DebugConfig     `mapstructure:"debug"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	History   HistoryConfig   `mapstructure:"history"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	API       APIConfig       `mapstructure:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ContactsConfig locates the contact list
type ContactsConfig struct {
	// File is a .csv or .xlsx export
	File string `mapstructure:"file"`
	// Column holds the phone numbers (default: "Phone 1 - Value")
	Column string `mapstructure:"column"`
	// Sheet selects the worksheet of an .xlsx file; empty means the first one
	Sheet string `mapstructure:"sheet"`
}

// GroupConfig describes the group to create
type GroupConfig struct {
	Name string `mapstructure:"name"`
}

// BrowserConfig controls the automated browser
type BrowserConfig struct {
	Headless bool `mapstructure:"headless"`
	// Bin is the browser binary; empty means $CHROME_BIN or a managed download
	Bin string `mapstructure:"bin"`
	// UserDataDir keeps the WhatsApp Web login between runs when set
	UserDataDir string   `mapstructure:"user_data_dir"`
	Flags       []string `mapstructure:"flags"`
}

// WhatsAppConfig holds the page URL and the waits of the automation
type WhatsAppConfig struct {
	URL string `mapstructure:"url"`
	// LoginWaitSeconds is the fixed QR-scan delay used without a login marker
	LoginWaitSeconds int `mapstructure:"login_wait_seconds"`
	// LoginTimeoutSeconds bounds the wait for the login marker
	LoginTimeoutSeconds   int `mapstructure:"login_timeout_seconds"`
	ElementTimeoutSeconds int `mapstructure:"element_timeout_seconds"`
	SearchSettleMs        int `mapstructure:"search_settle_ms"`
}

// SelectorsConfig chooses the selector profile
type SelectorsConfig struct {
	// File is an optional YAML table layered over the built-in profiles
	File    string `mapstructure:"file"`
	Profile string `mapstructure:"profile"`
}

// DebugConfig controls failure artifacts
type DebugConfig struct {
	ArtifactPath string `mapstructure:"artifact_path"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error" (default: "info")
	Level string `mapstructure:"level"`
	// Format is "text" or "json" (default: "text")
	Format string `mapstructure:"format"`
}

// HistoryConfig controls the MySQL run history
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
	// Migrate creates the history tables on startup
	Migrate bool `mapstructure:"migrate"`
}

// TemporalConfig locates the Temporal frontend
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// APIConfig controls the HTTP API server
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	UploadDir      string   `mapstructure:"upload_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MetricsConfig controls the Prometheus endpoint of the CLI and worker
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Contacts: ContactsConfig{
			Column: contacts.DefaultColumn,
		},
		Browser: BrowserConfig{
			Flags: browser.DefaultFlags(),
		},
		WhatsApp: WhatsAppConfig{
			URL:                   whatsapp.DefaultURL,
			LoginWaitSeconds:      30,
			LoginTimeoutSeconds:   30,
			ElementTimeoutSeconds: 20,
			SearchSettleMs:        2000,
		},
		Selectors: SelectorsConfig{
			Profile: selectors.ProfilePrimary,
		},
		Debug: DebugConfig{
			ArtifactPath: whatsapp.DefaultArtifactPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		History: HistoryConfig{
			DSN:     "wagroup:wagroup@tcp(localhost:3306)/wagroup?parseTime=true",
			Migrate: true,
		},
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "whatsapp-groups",
		},
		API: APIConfig{
			Port:           8080,
			UploadDir:      filepath.Join(os.TempDir(), "wagroup-uploads"),
			AllowedOrigins: []string{"*"},
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// LoginWait returns the fixed login delay
func (c *WhatsAppConfig) LoginWait() time.Duration {
	return time.Duration(c.LoginWaitSeconds) * time.Second
}

// LoginTimeout returns the login marker timeout
func (c *WhatsAppConfig) LoginTimeout() time.Duration {
	return time.Duration(c.LoginTimeoutSeconds) * time.Second
}

// Timings returns the sequencer waits
func (c *WhatsAppConfig) Timings() whatsapp.Timings {
	return whatsapp.Timings{
		ElementTimeout: time.Duration(c.ElementTimeoutSeconds) * time.Second,
		SearchSettle:   time.Duration(c.SearchSettleMs) * time.Millisecond,
	}
}

// BrowserOptions converts the browser section into launch options
func (c *BrowserConfig) BrowserOptions() browser.Options {
	return browser.Options{
		Headless:    c.Headless,
		Bin:         c.Bin,
		UserDataDir: c.UserDataDir,
		Flags:       c.Flags,
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("contacts.file", defaults.Contacts.File)
	v.SetDefault("contacts.column", defaults.Contacts.Column)
	v.SetDefault("contacts.sheet", defaults.Contacts.Sheet)

	v.SetDefault("group.name", defaults.Group.Name)

	v.SetDefault("browser.headless", defaults.Browser.Headless)
	v.SetDefault("browser.bin", defaults.Browser.Bin)
	v.SetDefault("browser.user_data_dir", defaults.Browser.UserDataDir)
	v.SetDefault("browser.flags", defaults.Browser.Flags)

	v.SetDefault("whatsapp.url", defaults.WhatsApp.URL)
	v.SetDefault("whatsapp.login_wait_seconds", defaults.WhatsApp.LoginWaitSeconds)
	v.SetDefault("whatsapp.login_timeout_seconds", defaults.WhatsApp.LoginTimeoutSeconds)
	v.SetDefault("whatsapp.element_timeout_seconds", defaults.WhatsApp.ElementTimeoutSeconds)
	v.SetDefault("whatsapp.search_settle_ms", defaults.WhatsApp.SearchSettleMs)

	v.SetDefault("selectors.file", defaults.Selectors.File)
	v.SetDefault("selectors.profile", defaults.Selectors.Profile)

	v.SetDefault("debug.artifact_path", defaults.Debug.ArtifactPath)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetDefault("history.enabled", defaults.History.Enabled)
	v.SetDefault("history.dsn", defaults.History.DSN)
	v.SetDefault("history.migrate", defaults.History.Migrate)

	v.SetDefault("temporal.host_port", defaults.Temporal.HostPort)
	v.SetDefault("temporal.namespace", defaults.Temporal.Namespace)
	v.SetDefault("temporal.task_queue", defaults.Temporal.TaskQueue)

	v.SetDefault("api.port", defaults.API.Port)
	v.SetDefault("api.upload_dir", defaults.API.UploadDir)
	v.SetDefault("api.allowed_origins", defaults.API.AllowedOrigins)

	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// NewViper returns a viper instance with defaults and environment binding.
// When configFile is empty, wagroup.yaml is searched for in the working
// directory and ConfigDir; a missing file is not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("wagroup")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(ConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wagroup")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wagroup"
	}
	return filepath.Join(home, ".config", "wagroup")
}
