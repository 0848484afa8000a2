// Package runner executes one group creation run end to end: it owns the
// browser session for the duration of the run and records the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dev/bravebird/wagroup/pkg/browser"
	"dev/bravebird/wagroup/pkg/contacts"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/metrics"
	"dev/bravebird/wagroup/pkg/models"
	"dev/bravebird/wagroup/pkg/selectors"
	"dev/bravebird/wagroup/pkg/whatsapp"
)

// ErrNoContacts is returned when the contact file yields nothing to add
var ErrNoContacts = errors.New("no contacts loaded")

// SessionFactory opens a browser session
type SessionFactory func(ctx context.Context) (browser.Session, error)

// Gate blocks until the session is logged in to WhatsApp Web
type Gate interface {
	Wait(ctx context.Context, sess browser.Session) error
}

// Recorder persists run history. *database.DB implements it.
type Recorder interface {
	StartRun(ctx context.Context, run models.RunResult) error
	RecordContact(ctx context.Context, runID string, result models.ContactResult) error
	FinishRun(ctx context.Context, run models.RunResult) error
}

// Options wires a Runner. Open is required; the rest have defaults or are optional.
type Options struct {
	Open      SessionFactory
	Login     Gate
	Selectors models.SelectorTable
	Timings   whatsapp.Timings
	Artifact  whatsapp.ArtifactWriter
	Loader    *contacts.Loader
	History   Recorder
	Metrics   *metrics.RunMetrics
	Logger    *logging.Logger
}

// Runner executes group creation runs
type Runner struct {
	opts Options
}

// New creates a runner, filling unset options with defaults
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Login == nil {
		opts.Login = whatsapp.LoginGate{Delay: 30 * time.Second, Logger: opts.Logger}
	}
	if opts.Selectors.Selectors == nil {
		opts.Selectors = selectors.Default()
	}
	if opts.Timings == (whatsapp.Timings{}) {
		opts.Timings = whatsapp.DefaultTimings()
	}
	if opts.Artifact == nil {
		opts.Artifact = whatsapp.FileArtifact{Path: whatsapp.DefaultArtifactPath}
	}
	if opts.Loader == nil {
		opts.Loader = contacts.NewLoader(contacts.WithLogger(opts.Logger))
	}
	return &Runner{opts: opts}
}

type runConfig struct {
	runID        string
	contactsFile string
	progress     func(models.RunResult)
}

// RunOption customizes a single run
type RunOption func(*runConfig)

// WithRunID uses a caller-assigned run ID instead of a fresh UUID
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithContactsFile records where the contacts came from
func WithContactsFile(path string) RunOption {
	return func(c *runConfig) {
		c.contactsFile = path
	}
}

// WithProgress receives a snapshot of the run after every state change and contact
func WithProgress(fn func(models.RunResult)) RunOption {
	return func(c *runConfig) {
		c.progress = fn
	}
}

// RunFile loads contacts from path and creates the group. It returns
// ErrNoContacts without opening a browser when nothing could be loaded.
func (r *Runner) RunFile(ctx context.Context, path, name string, opts ...RunOption) (models.RunResult, error) {
	list := r.opts.Loader.Load(path)
	if len(list) == 0 {
		r.opts.Logger.Error("No contacts loaded, aborting", "file", path)
		return models.RunResult{
			GroupName:    name,
			ContactsFile: path,
			Status:       models.StatusFailed,
			State:        models.StateNone,
			ErrorMessage: ErrNoContacts.Error(),
		}, ErrNoContacts
	}

	req, err := models.NewGroupRequest(name, list)
	if err != nil {
		return models.RunResult{
			GroupName:    name,
			ContactsFile: path,
			Status:       models.StatusFailed,
			State:        models.StateNone,
			ErrorMessage: err.Error(),
		}, err
	}

	return r.Run(ctx, req, append([]RunOption{WithContactsFile(path)}, opts...)...)
}

// Run opens a browser, waits for login and creates the group. The session is
// closed exactly once before Run returns, whatever the outcome.
func (r *Runner) Run(ctx context.Context, req models.GroupRequest, opts ...RunOption) (result models.RunResult, err error) {
	rc := runConfig{runID: uuid.NewString()}
	for _, opt := range opts {
		opt(&rc)
	}

	now := time.Now()
	result = models.RunResult{
		RunID:         rc.runID,
		GroupName:     req.Name,
		ContactsFile:  rc.contactsFile,
		ContactsTotal: len(req.Contacts),
		Status:        models.StatusRunning,
		State:         models.StateNone,
		StartedAt:     &now,
	}

	if err := req.Validate(); err != nil {
		result.Status = models.StatusFailed
		result.ErrorMessage = err.Error()
		return result, err
	}

	logger := r.opts.Logger.With("run_id", rc.runID)
	historyCtx := context.WithoutCancel(ctx)

	if r.opts.History != nil {
		if herr := r.opts.History.StartRun(historyCtx, result); herr != nil {
			logger.Warn("Failed to record run start", "error", herr)
		}
	}
	r.emit(rc, result)

	// Registered first so it runs after the session is released
	defer func() {
		completed := time.Now()
		result.CompletedAt = &completed
		if err != nil {
			result.Status = models.StatusFailed
			result.ErrorMessage = err.Error()
			r.opts.Metrics.ObserveFailure(string(result.State))
		} else {
			result.Status = models.StatusSuccess
		}
		r.opts.Metrics.ObserveRun(string(result.Status), completed.Sub(now))

		if r.opts.History != nil {
			if herr := r.opts.History.FinishRun(historyCtx, result); herr != nil {
				logger.Warn("Failed to record run result", "error", herr)
			}
		}
		r.emit(rc, result)

		logger.Info("Run finished",
			"status", result.Status,
			"state", result.State,
			"added", result.Added(),
			"skipped", result.Skipped(),
			"duration", completed.Sub(now).Round(time.Millisecond))
	}()

	logger.Info("Starting browser")
	sess, err := r.opts.Open(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("Failed to close browser", "error", cerr)
			return
		}
		logger.Info("Browser closed")
	}()

	if err := r.opts.Login.Wait(ctx, sess); err != nil {
		logger.Error("Login failed", "error", err)
		return result, err
	}

	seq := whatsapp.NewSequencer(r.opts.Selectors,
		whatsapp.WithTimings(r.opts.Timings),
		whatsapp.WithArtifact(r.opts.Artifact),
		whatsapp.WithLogger(logger),
		whatsapp.WithProgress(func(ev whatsapp.Event) {
			result.State = ev.State
			if ev.Contact != nil {
				result.Contacts = append(result.Contacts, *ev.Contact)
				r.opts.Metrics.ObserveContact(string(ev.Contact.Status))
				if r.opts.History != nil {
					if herr := r.opts.History.RecordContact(historyCtx, rc.runID, *ev.Contact); herr != nil {
						logger.Warn("Failed to record contact result", "error", herr)
					}
				}
			}
			r.emit(rc, result)
		}),
	)

	out, err := seq.CreateGroup(ctx, sess, req)
	result.State = out.State
	result.Contacts = out.Contacts
	if err != nil {
		return result, err
	}

	return result, nil
}

func (r *Runner) emit(rc runConfig, result models.RunResult) {
	if rc.progress == nil {
		return
	}
	snapshot := result
	snapshot.Contacts = append([]models.ContactResult(nil), result.Contacts...)
	rc.progress(snapshot)
}
