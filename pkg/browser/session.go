package browser

import (
	"context"
	"errors"
	"time"

	"dev/bravebird/wagroup/pkg/models"
)

// ErrElementNotFound is returned when an element wait times out
var ErrElementNotFound = errors.New("element not found")

// Session is a handle to one controlled browser page
type Session interface {
	// Navigate loads url and waits for the page load event
	Navigate(ctx context.Context, url string) error

	// Find waits up to timeout for an element matching sel to be present
	Find(ctx context.Context, sel models.Selector, timeout time.Duration) (Element, error)

	// HTML returns the current page markup
	HTML() (string, error)

	// Close releases the browser. Calls after the first are no-ops.
	Close() error
}

// Element is a located page element
type Element interface {
	Click() error
	Type(text string) error
	Clear() error
}
