// Package whatsapp scripts WhatsApp Web: the login gate and the group
// creation sequence.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dev/bravebird/wagroup/pkg/browser"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/models"
)

// Timings bounds the waits of the group creation sequence
type Timings struct {
	// ElementTimeout is the longest wait for any single element
	ElementTimeout time.Duration
	// SearchSettle is the pause after typing a contact before reading results
	SearchSettle time.Duration
}

// DefaultTimings returns the documented defaults
func DefaultTimings() Timings {
	return Timings{
		ElementTimeout: 20 * time.Second,
		SearchSettle:   2 * time.Second,
	}
}

// Event reports a state transition or a contact outcome
type Event struct {
	State   models.GroupState
	Contact *models.ContactResult
}

// ProgressFunc receives events as the sequence advances
type ProgressFunc func(Event)

// StepError is a fatal failure of the group creation sequence
type StepError struct {
	State models.GroupState // Last state reached before the failure
	Role  models.Role       // Element being located or acted on
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("group creation failed after %s at %s: %v", e.State, e.Role, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Outcome is what the sequence achieved, complete or not
type Outcome struct {
	State    models.GroupState
	Contacts []models.ContactResult
}

// Sequencer drives the group creation flow on an authenticated session
type Sequencer struct {
	selectors models.SelectorTable
	timings   Timings
	artifact  ArtifactWriter
	logger    *logging.Logger
	progress  ProgressFunc
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithTimings overrides the default waits
func WithTimings(t Timings) Option {
	return func(s *Sequencer) {
		s.timings = t
	}
}

// WithArtifact sets where page markup is dumped on failure
func WithArtifact(a ArtifactWriter) Option {
	return func(s *Sequencer) {
		s.artifact = a
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress registers a progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(s *Sequencer) {
		s.progress = fn
	}
}

// NewSequencer creates a sequencer for a selector table
func NewSequencer(selectors models.SelectorTable, opts ...Option) *Sequencer {
	s := &Sequencer{
		selectors: selectors,
		timings:   DefaultTimings(),
		artifact:  FileArtifact{Path: DefaultArtifactPath},
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGroup runs menu → new group → contacts → advance → name → confirm.
// A contact without a search result is skipped with a warning. Any other
// failure stops the sequence, dumps the page markup and returns a *StepError.
func (s *Sequencer) CreateGroup(ctx context.Context, sess browser.Session, req models.GroupRequest) (Outcome, error) {
	out := Outcome{State: models.StateNone}
	logger := s.logger.With("group", req.Name)

	fail := func(role models.Role, err error) (Outcome, error) {
		stepErr := &StepError{State: out.State, Role: role, Err: err}
		logger.Error("Error creating group", "state", out.State, "role", role, "error", err)
		s.dumpPage(sess, logger)
		return out, stepErr
	}

	logger.Info("Creating a new group", "contacts", len(req.Contacts))

	if err := s.click(ctx, sess, models.RoleMenu); err != nil {
		return fail(models.RoleMenu, err)
	}
	s.advance(&out, models.StateMenuOpened)
	logger.Info("Menu button clicked")

	if err := s.click(ctx, sess, models.RoleNewGroup); err != nil {
		return fail(models.RoleNewGroup, err)
	}
	s.advance(&out, models.StateGroupCreationStarted)
	logger.Info("New group option selected")

	for i, contact := range req.Contacts {
		logger.Info("Adding contact", "contact", string(contact), "position", i+1)

		search, err := s.find(ctx, sess, models.RoleSearchInput)
		if err != nil {
			return fail(models.RoleSearchInput, err)
		}
		if err := search.Type(string(contact)); err != nil {
			return fail(models.RoleSearchInput, err)
		}
		if err := sleep(ctx, s.timings.SearchSettle); err != nil {
			return fail(models.RoleSearchResult, err)
		}

		result := models.ContactResult{Position: i + 1, Contact: contact, Status: models.ContactAdded}
		if err := s.click(ctx, sess, models.RoleSearchResult); err != nil {
			if ctx.Err() != nil {
				return fail(models.RoleSearchResult, ctx.Err())
			}
			logger.Warn("Could not find or add the first result for contact, skipping",
				"contact", string(contact), "error", err)
			result.Status = models.ContactSkipped
			result.Message = err.Error()
		} else {
			logger.Info("First search result added", "contact", string(contact))
		}
		out.Contacts = append(out.Contacts, result)
		s.notify(Event{State: out.State, Contact: &result})

		if err := search.Clear(); err != nil {
			return fail(models.RoleSearchInput, err)
		}
	}
	s.advance(&out, models.StateContactsAdded)

	if err := s.click(ctx, sess, models.RoleAdvance); err != nil {
		return fail(models.RoleAdvance, err)
	}
	s.advance(&out, models.StateAdvancedToNaming)
	logger.Info("Proceeding to group naming")

	nameField, err := s.find(ctx, sess, models.RoleGroupName)
	if err != nil {
		return fail(models.RoleGroupName, err)
	}
	if err := nameField.Type(req.Name); err != nil {
		return fail(models.RoleGroupName, err)
	}
	s.advance(&out, models.StateNameEntered)
	logger.Info("Group name entered")

	if err := s.click(ctx, sess, models.RoleConfirm); err != nil {
		return fail(models.RoleConfirm, err)
	}
	s.advance(&out, models.StateConfirmed)
	logger.Info("Group created", "added", countAdded(out.Contacts), "total", len(req.Contacts))

	return out, nil
}

func (s *Sequencer) find(ctx context.Context, sess browser.Session, role models.Role) (browser.Element, error) {
	sel, ok := s.selectors.Lookup(role)
	if !ok {
		return nil, fmt.Errorf("no selector configured for role %q", role)
	}
	return sess.Find(ctx, sel, s.timings.ElementTimeout)
}

func (s *Sequencer) click(ctx context.Context, sess browser.Session, role models.Role) error {
	el, err := s.find(ctx, sess, role)
	if err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", role, err)
	}
	return nil
}

func (s *Sequencer) advance(out *Outcome, state models.GroupState) {
	out.State = state
	s.notify(Event{State: state})
}

func (s *Sequencer) notify(ev Event) {
	if s.progress != nil {
		s.progress(ev)
	}
}

func (s *Sequencer) dumpPage(sess browser.Session, logger *logging.Logger) {
	if s.artifact == nil {
		return
	}
	markup, err := sess.HTML()
	if err != nil {
		logger.Warn("Could not read page markup for debugging", "error", err)
		return
	}
	if err := s.artifact.Write(markup); err != nil {
		logger.Warn("Could not write debug page source", "error", err)
		return
	}
	logger.Info("Page source saved for debugging", "artifact", s.artifact.String())
}

func countAdded(results []models.ContactResult) int {
	n := 0
	for _, r := range results {
		if r.Status == models.ContactAdded {
			n++
		}
	}
	return n
}

// sleep pauses for d unless ctx ends first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsElementMissing reports whether err came from an element wait timing out
func IsElementMissing(err error) bool {
	return errors.Is(err, browser.ErrElementNotFound)
}
