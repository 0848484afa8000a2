package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"dev/bravebird/wagroup/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

//go:embed schema.sql
var schema string

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// NewWithConn wraps an existing connection
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate creates the history tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// ==================== Group Runs ====================

// CreatePendingRun records a run submitted through the API before a worker picks it up
func (db *DB) CreatePendingRun(ctx context.Context, run *models.RunResult, workflowID string) error {
	query := `
		INSERT INTO group_runs (id, group_name, contacts_file, contacts_total, temporal_workflow_id, status, state)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	run.Status = models.StatusPending
	run.State = models.StateNone

	_, err := db.conn.ExecContext(ctx, query,
		run.RunID,
		run.GroupName,
		run.ContactsFile,
		run.ContactsTotal,
		workflowID,
		run.Status,
		run.State,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// StartRun marks a run as running, inserting it if the API did not
func (db *DB) StartRun(ctx context.Context, run models.RunResult) error {
	query := `
		INSERT INTO group_runs (id, group_name, contacts_file, contacts_total, status, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), state = VALUES(state), started_at = VALUES(started_at)
	`

	startedAt := time.Now()
	if run.StartedAt != nil {
		startedAt = *run.StartedAt
	}

	_, err := db.conn.ExecContext(ctx, query,
		run.RunID,
		run.GroupName,
		run.ContactsFile,
		run.ContactsTotal,
		models.StatusRunning,
		models.StateNone,
		startedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// RecordContact stores the outcome of one contact
func (db *DB) RecordContact(ctx context.Context, runID string, result models.ContactResult) error {
	query := `
		INSERT INTO group_run_contacts (run_id, position, contact, status, message)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		runID,
		result.Position,
		string(result.Contact),
		result.Status,
		result.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to record contact: %w", err)
	}
	return nil
}

// FinishRun stores the final status and state of a run
func (db *DB) FinishRun(ctx context.Context, run models.RunResult) error {
	query := `
		UPDATE group_runs
		SET status = ?, state = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`

	completedAt := time.Now()
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}

	_, err := db.conn.ExecContext(ctx, query,
		run.Status,
		run.State,
		run.ErrorMessage,
		completedAt,
		run.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// UpdateRunStatus updates the status of a run
func (db *DB) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE group_runs
		SET status = ?, error_message = ?,
		    completed_at = CASE WHEN ? IN ('success', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, status, errorMsg, status, id)
	return err
}

const runColumns = `id, group_name, contacts_file, contacts_total, status, state,
		       error_message, started_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (models.RunResult, error) {
	var run models.RunResult
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&run.RunID,
		&run.GroupName,
		&run.ContactsFile,
		&run.ContactsTotal,
		&run.Status,
		&run.State,
		&errMsg,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return run, err
	}

	run.ErrorMessage = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

// GetRun retrieves a run with its contact outcomes. It returns nil when the run does not exist.
func (db *DB) GetRun(ctx context.Context, id string) (*models.RunResult, error) {
	query := `SELECT ` + runColumns + `
		FROM group_runs
		WHERE id = ?
	`

	run, err := scanRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	contacts, err := db.GetContactResults(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Contacts = contacts

	return &run, nil
}

// ListRuns retrieves the most recent runs, newest first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.RunResult, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + `
		FROM group_runs
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunResult{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetContactResults retrieves contact outcomes for a run in list order
func (db *DB) GetContactResults(ctx context.Context, runID string) ([]models.ContactResult, error) {
	query := `
		SELECT position, contact, status, message
		FROM group_run_contacts
		WHERE run_id = ?
		ORDER BY position
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact results: %w", err)
	}
	defer rows.Close()

	var results []models.ContactResult
	for rows.Next() {
		var result models.ContactResult
		var contact string
		var message sql.NullString

		if err := rows.Scan(&result.Position, &contact, &result.Status, &message); err != nil {
			return nil, fmt.Errorf("failed to scan contact result: %w", err)
		}
		result.Contact = models.Contact(contact)
		result.Message = message.String
		results = append(results, result)
	}

	return results, rows.Err()
}
