// Package browsertest provides an in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dev/bravebird/wagroup/pkg/browser"
	"dev/bravebird/wagroup/pkg/models"
)

// Typed records text typed into an element
type Typed struct {
	Selector string
	Text     string
}

// FakeSession is a scripted browser.Session. Elements are keyed by selector
// value; anything not listed in Missing or Presence is found immediately.
type FakeSession struct {
	mu sync.Mutex

	// Missing selector values never appear
	Missing map[string]bool
	// Presence scripts successive Find calls for a selector value
	// (true = found). Once the script is used up the element is found.
	Presence map[string][]bool
	// ClickErrs makes clicks on a selector value fail
	ClickErrs map[string]error

	Markup      string
	HTMLErr     error
	NavigateErr error

	Navigated  []string
	Finds      []string
	Clicks     []string
	Typed      []Typed
	Clears     []string
	HTMLCalls  int
	CloseCalls int
}

// NewFakeSession returns an empty fake with a small page markup
func NewFakeSession() *FakeSession {
	return &FakeSession{
		Missing:   make(map[string]bool),
		Presence:  make(map[string][]bool),
		ClickErrs: make(map[string]error),
		Markup:    "<html><body>fake</body></html>",
	}
}

// Navigate implements browser.Session
func (f *FakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigated = append(f.Navigated, url)
	return f.NavigateErr
}

// Find implements browser.Session
func (f *FakeSession) Find(ctx context.Context, sel models.Selector, timeout time.Duration) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.Finds = append(f.Finds, sel.Value)

	notFound := fmt.Errorf("%w after %s: %s", browser.ErrElementNotFound, timeout, sel)
	if f.Missing[sel.Value] {
		return nil, notFound
	}
	if script := f.Presence[sel.Value]; len(script) > 0 {
		f.Presence[sel.Value] = script[1:]
		if !script[0] {
			return nil, notFound
		}
	}

	return &FakeElement{session: f, selector: sel.Value}, nil
}

// HTML implements browser.Session
func (f *FakeSession) HTML() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HTMLCalls++
	return f.Markup, f.HTMLErr
}

// Close implements browser.Session. It counts every call so tests can
// check that callers release the session exactly once.
func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCalls++
	return nil
}

// ClickCount returns how many clicks hit a selector value
func (f *FakeSession) ClickCount(selector string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// FakeElement records actions on its session
type FakeElement struct {
	session  *FakeSession
	selector string
}

// Click implements browser.Element
func (e *FakeElement) Click() error {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	if err := e.session.ClickErrs[e.selector]; err != nil {
		return err
	}
	e.session.Clicks = append(e.session.Clicks, e.selector)
	return nil
}

// Type implements browser.Element
func (e *FakeElement) Type(text string) error {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	e.session.Typed = append(e.session.Typed, Typed{Selector: e.selector, Text: text})
	return nil
}

// Clear implements browser.Element
func (e *FakeElement) Clear() error {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	e.session.Clears = append(e.session.Clears, e.selector)
	return nil
}
