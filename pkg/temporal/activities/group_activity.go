package activities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"dev/bravebird/wagroup/pkg/contacts"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/models"
	"dev/bravebird/wagroup/pkg/runner"
	"dev/bravebird/wagroup/pkg/temporal/workflows"
)

// Signaler delivers signals to a running workflow. client.Client implements it.
type Signaler interface {
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
}

// Activities holds activity implementations
type Activities struct {
	Runner *runner.Runner
	Logger *logging.Logger
	// Signaler, when set, forwards run progress to the calling workflow so
	// its progress query reflects the run while it is in flight
	Signaler Signaler
	// HeartbeatInterval keeps the run alive during long waits such as the login gate
	HeartbeatInterval time.Duration
}

// NewActivities creates new activities
func NewActivities(r *runner.Runner, logger *logging.Logger) *Activities {
	if logger == nil {
		logger = logging.Default()
	}
	return &Activities{
		Runner:            r,
		Logger:            logger,
		HeartbeatInterval: 10 * time.Second,
	}
}

// LoadContactsActivity reads the contact file on the worker host
func (a *Activities) LoadContactsActivity(ctx context.Context, input workflows.LoadContactsInput) (workflows.LoadContactsResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Loading contacts", "path", input.Path)

	loader := contacts.NewLoader(
		contacts.WithColumn(input.Column),
		contacts.WithSheet(input.Sheet),
		contacts.WithLogger(a.Logger),
	)

	list := loader.Load(input.Path)
	if len(list) == 0 {
		return workflows.LoadContactsResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("%s from %s", runner.ErrNoContacts, input.Path),
			workflows.NoContactsErrorType, nil)
	}

	logger.Info("Contacts loaded", "count", len(list))
	return workflows.LoadContactsResult{Contacts: list}, nil
}

// CreateGroupActivity runs one group creation on this worker's browser.
// A failed run is returned as a non-retryable error carrying the partial RunResult.
func (a *Activities) CreateGroupActivity(ctx context.Context, input workflows.CreateGroupActivityInput) (models.RunResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Creating group", "runID", input.RunID, "group", input.Request.Name, "contacts", len(input.Request.Contacts))

	var mu sync.Mutex
	latest := models.RunResult{RunID: input.RunID, Status: models.StatusRunning, State: models.StateNone}

	heartbeat := func() {
		mu.Lock()
		snapshot := latest
		mu.Unlock()
		activity.RecordHeartbeat(ctx, snapshot)
	}

	done := make(chan struct{})
	defer close(done)
	if a.HeartbeatInterval > 0 {
		go func() {
			ticker := time.NewTicker(a.HeartbeatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					heartbeat()
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	result, err := a.Runner.Run(ctx, input.Request,
		runner.WithRunID(input.RunID),
		runner.WithContactsFile(input.ContactsFile),
		runner.WithProgress(func(r models.RunResult) {
			mu.Lock()
			latest = r
			mu.Unlock()
			heartbeat()
			a.signalProgress(ctx, r)
		}),
	)
	if err != nil {
		return result, temporal.NewNonRetryableApplicationError(err.Error(), workflows.GroupCreationErrorType, nil, result)
	}

	logger.Info("Group created", "runID", input.RunID, "added", result.Added(), "skipped", result.Skipped())
	return result, nil
}

func (a *Activities) signalProgress(ctx context.Context, snapshot models.RunResult) {
	if a.Signaler == nil {
		return
	}
	info := activity.GetInfo(ctx)
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := a.Signaler.SignalWorkflow(sctx, info.WorkflowExecution.ID, info.WorkflowExecution.RunID,
		workflows.ProgressSignal, snapshot)
	if err != nil {
		a.Logger.Warn("Failed to forward run progress", "run_id", snapshot.RunID, "error", err)
	}
}
