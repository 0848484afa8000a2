package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"

	"dev/bravebird/wagroup/pkg/contacts"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/models"
	"dev/bravebird/wagroup/pkg/temporal/workflows"
)

// RunStore is the run history used by the API. *database.DB implements it.
type RunStore interface {
	CreatePendingRun(ctx context.Context, run *models.RunResult, workflowID string) error
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	GetRun(ctx context.Context, id string) (*models.RunResult, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunResult, error)
}

// Config holds handler settings
type Config struct {
	TaskQueue    string
	UploadDir    string
	ArtifactPath string
	Column       string
	Sheet        string
}

// Handlers contains API handlers
type Handlers struct {
	store          RunStore
	temporalClient client.Client
	selectors      models.SelectorTable
	cfg            Config
	loader         *contacts.Loader
	logger         *logging.Logger
	upgrader       websocket.Upgrader
	pollInterval   time.Duration
}

// NewHandlers creates new API handlers. store may be nil when no database is configured.
func NewHandlers(store RunStore, temporalClient client.Client, table models.SelectorTable, cfg Config, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handlers{
		store:          store,
		temporalClient: temporalClient,
		selectors:      table,
		cfg:            cfg,
		loader: contacts.NewLoader(
			contacts.WithColumn(cfg.Column),
			contacts.WithSheet(cfg.Sheet),
			contacts.WithLogger(logger),
		),
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pollInterval: 500 * time.Millisecond,
	}
}

// ==================== Group Handlers ====================

var allowedUploads = map[string]bool{".csv": true, ".xlsx": true, ".xlsm": true}

// CreateGroup accepts a contact file and a group name and starts a run
func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse multipart form
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max
		http.Error(w, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		http.Error(w, "Missing name", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("contacts_file")
	if err != nil {
		http.Error(w, "Missing contacts_file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploads[ext] {
		http.Error(w, "contacts_file must be .csv or .xlsx", http.StatusBadRequest)
		return
	}

	runID := uuid.New().String()
	path, err := h.saveUpload(file, runID+ext)
	if err != nil {
		h.logger.Error("Failed to save upload", "error", err)
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	list, err := h.loader.LoadErr(path)
	if err != nil {
		os.Remove(path)
		http.Error(w, "Invalid contacts file: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(list) == 0 {
		os.Remove(path)
		http.Error(w, "No contacts found in column "+strconv.Quote(h.loader.Column()), http.StatusBadRequest)
		return
	}

	run := &models.RunResult{
		RunID:         runID,
		GroupName:     name,
		ContactsFile:  path,
		ContactsTotal: len(list),
		Status:        models.StatusPending,
		State:         models.StateNone,
	}
	workflowID := workflows.WorkflowID(runID)

	if h.store != nil {
		if err := h.store.CreatePendingRun(ctx, run, workflowID); err != nil {
			http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	// Start Temporal workflow
	input := workflows.CreateGroupInput{
		RunID:        runID,
		GroupName:    name,
		ContactsFile: path,
		Column:       h.cfg.Column,
		Sheet:        h.cfg.Sheet,
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.cfg.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.CreateGroupWorkflow, input)
	if err != nil {
		if h.store != nil {
			if serr := h.store.UpdateRunStatus(ctx, runID, models.StatusFailed, err.Error()); serr != nil {
				h.logger.Warn("Failed to mark run failed", "run_id", runID, "error", serr)
			}
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info("Group run submitted", "run_id", runID, "group", name, "contacts", len(list))

	respondJSONStatus(w, http.StatusAccepted, map[string]interface{}{
		"run_id":               runID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"contacts":             len(list),
		"status":               models.StatusPending,
	})
}

func (h *Handlers) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(h.cfg.UploadDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(h.cfg.UploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return path, nil
}

// ==================== Run Handlers ====================

// ListRuns lists recent runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(ctx, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, runs)
}

// GetRun retrieves a run with its contact outcomes
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	respondJSON(w, run)
}

// CancelRun cancels a run that has not finished yet
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store != nil {
		run, err := h.store.GetRun(ctx, id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if run == nil {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		if run.Status.Terminal() {
			http.Error(w, "Run already finished", http.StatusConflict)
			return
		}
	}

	if err := h.temporalClient.CancelWorkflow(ctx, workflows.WorkflowID(id), ""); err != nil {
		http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if h.store != nil {
		if err := h.store.UpdateRunStatus(ctx, id, models.StatusFailed, "Cancelled by user"); err != nil {
			h.logger.Warn("Failed to record cancellation", "run_id", id, "error", err)
		}
	}

	respondJSON(w, map[string]string{"status": "cancelled"})
}

// StreamRunUpdates streams run updates via WebSocket
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last *models.RunResult

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run := h.currentRun(ctx, runID)
			if run == nil {
				continue
			}

			if last != nil && last.Status == run.Status && last.State == run.State && len(last.Contacts) == len(run.Contacts) {
				continue
			}

			msg := models.WSMessage{
				Type:    "run_update",
				Payload: run,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			last = run

			// Close if completed
			if run.Status.Terminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(run.Status)))
				return
			}
		}
	}
}

// currentRun prefers the workflow's own view and falls back to the database
func (h *Handlers) currentRun(ctx context.Context, runID string) *models.RunResult {
	var fromWorkflow *models.RunResult
	if h.temporalClient != nil {
		resp, err := h.temporalClient.QueryWorkflow(ctx, workflows.WorkflowID(runID), "", workflows.ProgressQuery)
		if err == nil {
			var result models.RunResult
			if resp.Get(&result) == nil {
				fromWorkflow = &result
			}
		}
	}

	// Per-contact progress is only written to the database while the activity runs
	if h.store != nil && (fromWorkflow == nil || !fromWorkflow.Status.Terminal()) {
		run, err := h.store.GetRun(ctx, runID)
		if err == nil && run != nil {
			return run
		}
	}

	return fromWorkflow
}

// ==================== Selector Handlers ====================

// GetSelectors returns the active selector table
func (h *Handlers) GetSelectors(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.selectors)
}

// ==================== Debug Handlers ====================

// ServeDebugPage serves the page markup saved by the last failed run on this host
func (h *Handlers) ServeDebugPage(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(h.cfg.ArtifactPath); errors.Is(err, os.ErrNotExist) {
		http.Error(w, "No debug page saved", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, h.cfg.ArtifactPath)
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
