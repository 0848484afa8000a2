package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/wagroup/pkg/browser"
	"dev/bravebird/wagroup/pkg/browser/browsertest"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/models"
	"dev/bravebird/wagroup/pkg/selectors"
)

type memArtifact struct {
	writes []string
}

func (m *memArtifact) Write(markup string) error {
	m.writes = append(m.writes, markup)
	return nil
}

func (m *memArtifact) String() string { return "memory" }

var fastTimings = Timings{ElementTimeout: time.Millisecond, SearchSettle: 0}

func sel(role models.Role) string {
	s, _ := selectors.Default().Lookup(role)
	return s.Value
}

func newTestSequencer(buf *bytes.Buffer, art ArtifactWriter, opts ...Option) *Sequencer {
	base := []Option{
		WithTimings(fastTimings),
		WithArtifact(art),
		WithLogger(logging.New("debug", "text", buf)),
	}
	return NewSequencer(selectors.Default(), append(base, opts...)...)
}

func mustRequest(t *testing.T, name string, contacts ...models.Contact) models.GroupRequest {
	t.Helper()
	req, err := models.NewGroupRequest(name, contacts)
	require.NoError(t, err)
	return req
}

func TestCreateGroup_HappyPath(t *testing.T) {
	var buf bytes.Buffer
	art := &memArtifact{}
	sess := browsertest.NewFakeSession()

	var states []models.GroupState
	seq := newTestSequencer(&buf, art, WithProgress(func(ev Event) {
		if ev.Contact == nil {
			states = append(states, ev.State)
		}
	}))

	out, err := seq.CreateGroup(context.Background(), sess, mustRequest(t, "Team", "111", "222"))
	require.NoError(t, err)

	assert.Equal(t, models.StateConfirmed, out.State)
	require.Len(t, out.Contacts, 2)
	for _, c := range out.Contacts {
		assert.Equal(t, models.ContactAdded, c.Status)
	}
	assert.Equal(t, []models.GroupState{
		models.StateMenuOpened,
		models.StateGroupCreationStarted,
		models.StateContactsAdded,
		models.StateAdvancedToNaming,
		models.StateNameEntered,
		models.StateConfirmed,
	}, states)

	assert.Equal(t, []browsertest.Typed{
		{Selector: sel(models.RoleSearchInput), Text: "111"},
		{Selector: sel(models.RoleSearchInput), Text: "222"},
		{Selector: sel(models.RoleGroupName), Text: "Team"},
	}, sess.Typed)
	assert.Len(t, sess.Clears, 2)
	assert.Equal(t, 2, sess.ClickCount(sel(models.RoleSearchResult)))
	assert.Equal(t, 1, sess.ClickCount(sel(models.RoleConfirm)))
	assert.Empty(t, art.writes)
	assert.Zero(t, sess.CloseCalls, "the sequencer never releases the session")
}

func TestCreateGroup_SkipsContactsWithoutResults(t *testing.T) {
	var buf bytes.Buffer
	art := &memArtifact{}
	sess := browsertest.NewFakeSession()
	sess.Presence[sel(models.RoleSearchResult)] = []bool{false, false, true}

	seq := newTestSequencer(&buf, art)
	out, err := seq.CreateGroup(context.Background(), sess, mustRequest(t, "G", "1", "2", "3"))
	require.NoError(t, err)

	assert.Equal(t, models.StateConfirmed, out.State)
	require.Len(t, out.Contacts, 3)
	assert.Equal(t, models.ContactSkipped, out.Contacts[0].Status)
	assert.Equal(t, models.ContactSkipped, out.Contacts[1].Status)
	assert.Equal(t, models.ContactAdded, out.Contacts[2].Status)
	assert.Equal(t, 3, out.Contacts[2].Position)
	assert.NotEmpty(t, out.Contacts[0].Message)

	assert.Equal(t, 2, strings.Count(buf.String(), "level=WARN"))
	assert.Len(t, sess.Clears, 3, "search box is cleared for skipped contacts too")
	assert.Empty(t, art.writes)
}

func TestCreateGroup_AllContactsSkippedStillConfirms(t *testing.T) {
	var buf bytes.Buffer
	sess := browsertest.NewFakeSession()
	sess.Missing[sel(models.RoleSearchResult)] = true

	out, err := newTestSequencer(&buf, &memArtifact{}).
		CreateGroup(context.Background(), sess, mustRequest(t, "G", "1", "2"))
	require.NoError(t, err)
	assert.Equal(t, models.StateConfirmed, out.State)
	assert.Equal(t, 0, countAdded(out.Contacts))
}

func TestCreateGroup_FatalFailures(t *testing.T) {
	tests := []struct {
		name      string
		missing   models.Role
		wantState models.GroupState
	}{
		{"menu missing", models.RoleMenu, models.StateNone},
		{"new group missing", models.RoleNewGroup, models.StateMenuOpened},
		{"search input missing", models.RoleSearchInput, models.StateGroupCreationStarted},
		{"advance missing", models.RoleAdvance, models.StateContactsAdded},
		{"name field missing", models.RoleGroupName, models.StateAdvancedToNaming},
		{"confirm missing", models.RoleConfirm, models.StateNameEntered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			art := &memArtifact{}
			sess := browsertest.NewFakeSession()
			sess.Markup = "<html>" + tt.name + "</html>"
			sess.Missing[sel(tt.missing)] = true

			out, err := newTestSequencer(&buf, art).
				CreateGroup(context.Background(), sess, mustRequest(t, "G", "1"))
			require.Error(t, err)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.missing, stepErr.Role)
			assert.Equal(t, tt.wantState, stepErr.State)
			assert.Equal(t, tt.wantState, out.State)
			assert.True(t, IsElementMissing(err))

			assert.Equal(t, []string{sess.Markup}, art.writes)
			assert.Equal(t, 1, strings.Count(buf.String(), "level=ERROR"))
		})
	}
}

func TestCreateGroup_ClickFailureIsFatal(t *testing.T) {
	var buf bytes.Buffer
	art := &memArtifact{}
	sess := browsertest.NewFakeSession()
	sess.ClickErrs[sel(models.RoleConfirm)] = errors.New("detached node")

	_, err := newTestSequencer(&buf, art).
		CreateGroup(context.Background(), sess, mustRequest(t, "G", "1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detached node")
	assert.False(t, IsElementMissing(err))
	assert.Len(t, art.writes, 1)
}

func TestCreateGroup_MissingSelectorRole(t *testing.T) {
	var buf bytes.Buffer
	art := &memArtifact{}
	table := selectors.Default().Clone()
	delete(table.Selectors, models.RoleMenu)

	seq := NewSequencer(table, WithTimings(fastTimings), WithArtifact(art),
		WithLogger(logging.New("info", "text", &buf)))
	_, err := seq.CreateGroup(context.Background(), browsertest.NewFakeSession(), mustRequest(t, "G", "1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no selector configured")
}

func TestCreateGroup_CanceledContext(t *testing.T) {
	var buf bytes.Buffer
	art := &memArtifact{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestSequencer(&buf, art).
		CreateGroup(ctx, browsertest.NewFakeSession(), mustRequest(t, "G", "1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateGroup_HTMLFailureStillReturnsStepError(t *testing.T) {
	var buf bytes.Buffer
	art := &memArtifact{}
	sess := browsertest.NewFakeSession()
	sess.HTMLErr = errors.New("page crashed")
	sess.Missing[sel(models.RoleMenu)] = true

	_, err := newTestSequencer(&buf, art).
		CreateGroup(context.Background(), sess, mustRequest(t, "G", "1"))

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Empty(t, art.writes)
	assert.Contains(t, buf.String(), "Could not read page markup")
}

func TestFileArtifact_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug", "page.html")
	art := FileArtifact{Path: path}

	require.NoError(t, art.Write("<html>one</html>"))
	require.NoError(t, art.Write("<html>two</html>"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>two</html>", string(data))
	assert.Equal(t, path, art.String())
	assert.Equal(t, DefaultArtifactPath, FileArtifact{}.String())
}

func TestSleep(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), 0))
	assert.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}

func TestStepError(t *testing.T) {
	err := &StepError{State: models.StateMenuOpened, Role: models.RoleNewGroup, Err: browser.ErrElementNotFound}
	assert.Equal(t, "group creation failed after menu_opened at new_group: element not found", err.Error())
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}
