package whatsapp

import (
	"context"
	"fmt"
	"time"

	"dev/bravebird/wagroup/pkg/browser"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/models"
)

// DefaultURL is the WhatsApp Web origin
const DefaultURL = "https://web.whatsapp.com/"

// LoginGate opens WhatsApp Web and holds the run until a human has scanned
// the QR code.
type LoginGate struct {
	URL string
	// Marker appears once logged in. When nil the gate sleeps for Delay
	// and proceeds without checking.
	Marker *models.Selector
	// Timeout bounds the wait for Marker
	Timeout time.Duration
	// Delay is the unconditional wait used when there is no Marker
	Delay  time.Duration
	Logger *logging.Logger
}

// NewLoginGate builds a gate for a selector table, using its login marker if it has one
func NewLoginGate(url string, table models.SelectorTable, timeout, delay time.Duration, logger *logging.Logger) LoginGate {
	g := LoginGate{
		URL:     url,
		Timeout: timeout,
		Delay:   delay,
		Logger:  logger,
	}
	if sel, ok := table.Lookup(models.RoleLoginMarker); ok {
		g.Marker = &sel
	}
	return g
}

// Wait navigates to WhatsApp Web and blocks until login is detected, the
// marker wait times out or the fixed delay has passed. Only navigation
// errors and cancellation fail the gate.
func (g LoginGate) Wait(ctx context.Context, sess browser.Session) error {
	logger := g.Logger
	if logger == nil {
		logger = logging.Default()
	}
	url := g.URL
	if url == "" {
		url = DefaultURL
	}

	logger.Info("Opening WhatsApp Web", "url", url)
	if err := sess.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to open WhatsApp Web: %w", err)
	}

	if g.Marker != nil {
		logger.Info("Please scan the QR code to log in", "timeout", g.Timeout)
		_, err := sess.Find(ctx, *g.Marker, g.Timeout)
		switch {
		case err == nil:
			logger.Info("WhatsApp Web login detected")
			return nil
		case ctx.Err() != nil:
			return fmt.Errorf("login wait interrupted: %w", ctx.Err())
		case !IsElementMissing(err):
			return fmt.Errorf("login not detected: %w", err)
		}
		// The first sequencer lookup reports the failure and saves the page
		logger.Warn("Login marker not found, proceeding anyway", "timeout", g.Timeout)
		return nil
	}

	logger.Info("Please scan the QR code to log in", "wait", g.Delay)
	if err := sleep(ctx, g.Delay); err != nil {
		return fmt.Errorf("login wait interrupted: %w", err)
	}
	logger.Info("WhatsApp Web login wait completed")
	return nil
}
