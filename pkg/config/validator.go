package config

import (
	"fmt"
	"slices"
	"strings"
)

// FieldError is one invalid configuration key
type FieldError struct {
	Key    string
	Value  any
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s, got %q", e.Key, e.Reason, fmt.Sprint(e.Value))
}

func invalid(key string, value any, reason string) FieldError {
	return FieldError{Key: key, Value: value, Reason: reason}
}

// ValidationErrors is every problem Load found, reported together so a
// config file can be fixed in one pass
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Error()
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config for invalid values and returns all validation errors found.
// Contacts file and group name are checked by the commands that need them.
func (c *Config) Validate() []FieldError {
	var errs []FieldError

	if strings.TrimSpace(c.Contacts.Column) == "" {
		errs = append(errs, invalid("contacts.column", c.Contacts.Column, "must not be empty"))
	}

	errs = append(errs, c.validateWhatsApp()...)

	if c.Selectors.Profile == "" {
		errs = append(errs, invalid("selectors.profile", c.Selectors.Profile, "must not be empty"))
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, invalid("logging.level", c.Logging.Level, "must be one of " + strings.Join(ValidLogLevels(), ", ")))
	}
	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		errs = append(errs, invalid("logging.format", c.Logging.Format, "must be one of " + strings.Join(ValidLogFormats(), ", ")))
	}

	if c.History.Enabled && c.History.DSN == "" {
		errs = append(errs, invalid("history.dsn", c.History.DSN, "required when history is enabled"))
	}

	if c.Temporal.TaskQueue == "" {
		errs = append(errs, invalid("temporal.task_queue", c.Temporal.TaskQueue, "must not be empty"))
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, invalid("api.port", c.API.Port, "must be between 1 and 65535"))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, invalid("metrics.addr", c.Metrics.Addr, "required when metrics are enabled"))
	}

	return errs
}

func (c *Config) validateWhatsApp() []FieldError {
	var errs []FieldError
	w := c.WhatsApp

	if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
		errs = append(errs, invalid("whatsapp.url", w.URL, "must be an http(s) URL"))
	}
	if w.LoginWaitSeconds < 0 {
		errs = append(errs, invalid("whatsapp.login_wait_seconds", w.LoginWaitSeconds, "must not be negative"))
	}
	if w.LoginTimeoutSeconds < 1 {
		errs = append(errs, invalid("whatsapp.login_timeout_seconds", w.LoginTimeoutSeconds, "must be at least 1"))
	}
	if w.ElementTimeoutSeconds < 1 {
		errs = append(errs, invalid("whatsapp.element_timeout_seconds", w.ElementTimeoutSeconds, "must be at least 1"))
	}
	if w.SearchSettleMs < 0 {
		errs = append(errs, invalid("whatsapp.search_settle_ms", w.SearchSettleMs, "must not be negative"))
	}

	return errs
}
