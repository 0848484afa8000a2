package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"dev/bravebird/wagroup/pkg/models"
)

// Options configures how the browser is launched
type Options struct {
	Headless    bool
	Bin         string   // Browser binary; falls back to $CHROME_BIN
	UserDataDir string   // Profile dir; reusing it keeps the WhatsApp login
	Flags       []string // Chrome switches without leading dashes, "name" or "name=value"
}

// DefaultFlags are the switches used for automation in constrained environments
func DefaultFlags() []string {
	return []string{
		"start-maximized",
		"ignore-certificate-errors",
		"ignore-ssl-errors",
		"disable-web-security",
		"disable-dev-shm-usage",
	}
}

// process is the browser process behind a session; *launcher.Launcher implements it
type process interface {
	Kill()
	Cleanup()
}

// stopProcess kills the browser. The profile dir is removed only when the
// launcher generated it; a configured dir holds the WhatsApp login.
func stopProcess(p process, removeProfile bool) {
	p.Kill()
	if removeProfile {
		p.Cleanup()
	}
}

// RodSession is a Session backed by a go-rod browser and a single page
type RodSession struct {
	browser       *rod.Browser
	page          *rod.Page
	proc          process
	removeProfile bool

	closeOnce sync.Once
	closeErr  error
}

// Launch starts a browser and opens a blank page
func Launch(ctx context.Context, opts Options) (*RodSession, error) {
	l := launcher.New().Context(ctx)

	bin := opts.Bin
	if bin == "" {
		bin = os.Getenv("CHROME_BIN")
	}
	if bin != "" {
		l = l.Bin(bin)
	}

	l = l.Headless(opts.Headless)

	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}

	for _, f := range opts.Flags {
		name, value := splitFlag(f)
		if name == "" {
			continue
		}
		if value == "" {
			l = l.Set(flags.Flag(name))
		} else {
			l = l.Set(flags.Flag(name), value)
		}
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	removeProfile := opts.UserDataDir == ""

	// NoDefaultDevice keeps rod from overriding the maximized window size
	browser := rod.New().ControlURL(url).NoDefaultDevice()
	if err := browser.Connect(); err != nil {
		stopProcess(l, removeProfile)
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		stopProcess(l, removeProfile)
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &RodSession{browser: browser, page: page, proc: l, removeProfile: removeProfile}, nil
}

func splitFlag(f string) (string, string) {
	f = strings.TrimLeft(strings.TrimSpace(f), "-")
	name, value, _ := strings.Cut(f, "=")
	return name, value
}

// Navigate implements Session
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for %s to load: %w", url, err)
	}
	return nil
}

// Find implements Session. rod retries the query until the timeout context
// expires, which gives the bounded presence wait.
func (s *RodSession) Find(ctx context.Context, sel models.Selector, timeout time.Duration) (Element, error) {
	p := s.page.Context(ctx).Timeout(timeout)

	var (
		el  *rod.Element
		err error
	)
	switch sel.Kind {
	case models.SelectorXPath:
		el, err = p.ElementX(sel.Value)
	case models.SelectorCSS, "":
		el, err = p.Element(sel.Value)
	default:
		return nil, fmt.Errorf("unsupported selector kind %q", sel.Kind)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %s", ErrElementNotFound, timeout, sel)
		}
		return nil, fmt.Errorf("failed to find %s: %w", sel, err)
	}

	return &rodElement{el: el.CancelTimeout()}, nil
}

// HTML implements Session
func (s *RodSession) HTML() (string, error) {
	return s.page.HTML()
}

// Close implements Session
func (s *RodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		if s.proc == nil {
			return
		}
		// A browser that refused to close is killed so Cleanup does not block
		if s.closeErr != nil {
			s.proc.Kill()
		}
		if s.removeProfile {
			s.proc.Cleanup()
		}
	})
	return s.closeErr
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Type(text string) error {
	return e.el.Input(text)
}

// Clear selects the field's text and deletes it, which fires the input
// events the WhatsApp search box listens for.
func (e *rodElement) Clear() error {
	if err := e.el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select text: %w", err)
	}
	return e.el.Page().Keyboard.Type(input.Backspace)
}
