package runner

import (
	"context"

	"dev/bravebird/wagroup/pkg/browser"
	"dev/bravebird/wagroup/pkg/config"
	"dev/bravebird/wagroup/pkg/contacts"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/metrics"
	"dev/bravebird/wagroup/pkg/selectors"
	"dev/bravebird/wagroup/pkg/whatsapp"
)

// FromConfig builds a runner that launches a real browser. history and m may be nil.
func FromConfig(cfg *config.Config, logger *logging.Logger, history Recorder, m *metrics.RunMetrics) (*Runner, error) {
	table, err := selectors.Resolve(cfg.Selectors.File, cfg.Selectors.Profile)
	if err != nil {
		return nil, err
	}
	logger.Debug("Using selector profile", "profile", table.Profile, "version", table.Version)

	launchOpts := cfg.Browser.BrowserOptions()

	return New(Options{
		Open: func(ctx context.Context) (browser.Session, error) {
			sess, err := browser.Launch(ctx, launchOpts)
			if err != nil {
				return nil, err
			}
			return sess, nil
		},
		Login:     whatsapp.NewLoginGate(cfg.WhatsApp.URL, table, cfg.WhatsApp.LoginTimeout(), cfg.WhatsApp.LoginWait(), logger),
		Selectors: table,
		Timings:   cfg.WhatsApp.Timings(),
		Artifact:  whatsapp.FileArtifact{Path: cfg.Debug.ArtifactPath},
		Loader: contacts.NewLoader(
			contacts.WithColumn(cfg.Contacts.Column),
			contacts.WithSheet(cfg.Contacts.Sheet),
			contacts.WithLogger(logger),
		),
		History: history,
		Metrics: m,
		Logger:  logger,
	}), nil
}
