package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/wagroup/pkg/models"
)

// Activity, query, signal and error type names shared by the worker, the API and the workflow
const (
	LoadContactsActivityName = "LoadContactsActivity"
	CreateGroupActivityName  = "CreateGroupActivity"

	ProgressQuery = "getProgress"
	// ProgressSignal carries RunResult snapshots from CreateGroupActivity
	ProgressSignal = "runProgress"

	NoContactsErrorType    = "NoContacts"
	GroupCreationErrorType = "GroupCreationError"

	defaultRunTimeout = 30 * time.Minute
)

// WorkflowID is the Temporal workflow ID of a run
func WorkflowID(runID string) string {
	return "whatsapp-group-" + runID
}

// CreateGroupInput starts a group creation run
type CreateGroupInput struct {
	RunID          string `json:"run_id"`
	GroupName      string `json:"group_name"`
	ContactsFile   string `json:"contacts_file"`
	Column         string `json:"column,omitempty"`
	Sheet          string `json:"sheet,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// LoadContactsInput is the input for LoadContactsActivity
type LoadContactsInput struct {
	Path   string `json:"path"`
	Column string `json:"column,omitempty"`
	Sheet  string `json:"sheet,omitempty"`
}

// LoadContactsResult holds the contacts read from the file
type LoadContactsResult struct {
	Contacts []models.Contact `json:"contacts"`
}

// CreateGroupActivityInput is the input for CreateGroupActivity
type CreateGroupActivityInput struct {
	RunID        string              `json:"run_id"`
	ContactsFile string              `json:"contacts_file"`
	Request      models.GroupRequest `json:"request"`
}

// CreateGroupWorkflow loads the contact file and drives one group creation on
// the worker's browser. Nothing is retried: a half-created group cannot be
// resumed, so every failure ends the run with status failed.
func CreateGroupWorkflow(ctx workflow.Context, input CreateGroupInput) (models.RunResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting group creation workflow", "runID", input.RunID, "group", input.GroupName)

	result := models.RunResult{
		RunID:        input.RunID,
		GroupName:    input.GroupName,
		ContactsFile: input.ContactsFile,
		Status:       models.StatusRunning,
		State:        models.StateNone,
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.RunResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	progress := workflow.GetSignalChannel(ctx, ProgressSignal)
	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			var snapshot models.RunResult
			progress.Receive(ctx, &snapshot)
			if result.Status == models.StatusRunning {
				applyProgress(&result, snapshot)
			}
		}
	})

	noRetry := &temporal.RetryPolicy{MaximumAttempts: 1}

	loadCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         noRetry,
	})

	var loaded LoadContactsResult
	err = workflow.ExecuteActivity(loadCtx, LoadContactsActivityName, LoadContactsInput{
		Path:   input.ContactsFile,
		Column: input.Column,
		Sheet:  input.Sheet,
	}).Get(ctx, &loaded)
	if err != nil {
		return fail(ctx, result, "Failed to load contacts: "+rootMessage(err)), nil
	}
	result.ContactsTotal = len(loaded.Contacts)

	req, err := models.NewGroupRequest(input.GroupName, loaded.Contacts)
	if err != nil {
		return fail(ctx, result, err.Error()), nil
	}

	timeout := defaultRunTimeout
	if input.TimeoutSeconds > 0 {
		timeout = time.Duration(input.TimeoutSeconds) * time.Second
	}
	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         noRetry,
	})

	var runResult models.RunResult
	err = workflow.ExecuteActivity(runCtx, CreateGroupActivityName, CreateGroupActivityInput{
		RunID:        input.RunID,
		ContactsFile: input.ContactsFile,
		Request:      req,
	}).Get(ctx, &runResult)
	if err != nil {
		// The activity attaches the partial result to its error
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.HasDetails() {
			var partial models.RunResult
			if derr := appErr.Details(&partial); derr == nil {
				result = partial
			}
		}
		return fail(ctx, result, rootMessage(err)), nil
	}

	result = runResult
	logger.Info("Workflow completed", "status", result.Status, "state", result.State,
		"added", result.Added(), "skipped", result.Skipped())
	return result, nil
}

// applyProgress copies what the activity has achieved so far. Status stays
// running until the activity itself returns.
func applyProgress(result *models.RunResult, snapshot models.RunResult) {
	result.State = snapshot.State
	result.Contacts = snapshot.Contacts
	if snapshot.StartedAt != nil {
		result.StartedAt = snapshot.StartedAt
	}
}

func fail(ctx workflow.Context, result models.RunResult, msg string) models.RunResult {
	result.Status = models.StatusFailed
	result.ErrorMessage = msg
	if result.CompletedAt == nil {
		now := workflow.Now(ctx)
		result.CompletedAt = &now
	}
	workflow.GetLogger(ctx).Error("Group creation failed", "runID", result.RunID, "error", msg)
	return result
}

// rootMessage strips the activity error wrapping down to the application message
func rootMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
