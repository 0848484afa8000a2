package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/wagroup/pkg/models"
)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewWithConn(conn), mock
}

var runCols = []string{"id", "group_name", "contacts_file", "contacts_total", "status", "state",
	"error_message", "started_at", "completed_at"}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS group_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS group_run_contacts").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePendingRun(t *testing.T) {
	db, mock := newMock(t)

	run := &models.RunResult{RunID: "run-1", GroupName: "Team", ContactsFile: "c.csv", ContactsTotal: 3}
	mock.ExpectExec("INSERT INTO group_runs").
		WithArgs("run-1", "Team", "c.csv", 3, "wf-1", models.StatusPending, models.StateNone).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, db.CreatePendingRun(context.Background(), run, "wf-1"))
	assert.Equal(t, models.StatusPending, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartRun_Upserts(t *testing.T) {
	db, mock := newMock(t)

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO group_runs .* ON DUPLICATE KEY UPDATE").
		WithArgs("run-1", "Team", "", 2, models.StatusRunning, models.StateNone, started).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := db.StartRun(context.Background(), models.RunResult{
		RunID: "run-1", GroupName: "Team", ContactsTotal: 2, StartedAt: &started,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordContactAndFinish(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO group_run_contacts").
		WithArgs("run-1", 1, "123", models.ContactSkipped, "element not found").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE group_runs").
		WithArgs(models.StatusFailed, models.StateMenuOpened, "boom", sqlmock.AnyArg(), "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.RecordContact(ctx, "run-1", models.ContactResult{
		Position: 1, Contact: "123", Status: models.ContactSkipped, Message: "element not found",
	}))
	require.NoError(t, db.FinishRun(ctx, models.RunResult{
		RunID: "run-1", Status: models.StatusFailed, State: models.StateMenuOpened, ErrorMessage: "boom",
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordContact_Error(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("INSERT INTO group_run_contacts").WillReturnError(errors.New("deadlock"))

	err := db.RecordContact(context.Background(), "run-1", models.ContactResult{Position: 1, Contact: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record contact")
}

func TestGetRun(t *testing.T) {
	db, mock := newMock(t)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .* FROM group_runs").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("run-1", "Team", "c.csv", 2, "success", "confirmed", nil, started, started.Add(time.Minute)))
	mock.ExpectQuery("SELECT position, contact, status, message FROM group_run_contacts").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"position", "contact", "status", "message"}).
			AddRow(1, "123", "added", nil).
			AddRow(2, "456", "skipped", "element not found"))

	run, err := db.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.StatusSuccess, run.Status)
	assert.Equal(t, models.StateConfirmed, run.State)
	assert.Empty(t, run.ErrorMessage)
	require.NotNil(t, run.StartedAt)
	assert.Equal(t, started, *run.StartedAt)
	require.Len(t, run.Contacts, 2)
	assert.Equal(t, models.Contact("456"), run.Contacts[1].Contact)
	assert.Equal(t, 1, run.Added())
	assert.Equal(t, 1, run.Skipped())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun_NotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT .* FROM group_runs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runCols))

	run, err := db.GetRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestListRuns(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT .* FROM group_runs .* LIMIT").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("run-2", "B", "", 1, "running", "menu_opened", nil, nil, nil).
			AddRow("run-1", "A", "", 1, "failed", "none", "menu not found", nil, nil))

	runs, err := db.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Nil(t, runs[0].StartedAt)
	assert.Equal(t, "menu not found", runs[1].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunStatus(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("UPDATE group_runs").
		WithArgs(models.StatusFailed, "worker lost", models.StatusFailed, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.UpdateRunStatus(context.Background(), "run-1", models.StatusFailed, "worker lost"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
