package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/wagroup/pkg/browser/browsertest"
	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/models"
	"dev/bravebird/wagroup/pkg/selectors"
)

func TestLoginGate_FixedDelay(t *testing.T) {
	sess := browsertest.NewFakeSession()
	gate := NewLoginGate("", selectors.Default(), time.Second, time.Millisecond, logging.Discard())
	require.Nil(t, gate.Marker)

	require.NoError(t, gate.Wait(context.Background(), sess))
	assert.Equal(t, []string{DefaultURL}, sess.Navigated)
	assert.Empty(t, sess.Finds)
}

func TestLoginGate_Marker(t *testing.T) {
	table := selectors.Default().Clone()
	table.Selectors[models.RoleLoginMarker] = models.CSS("#pane-side")

	gate := NewLoginGate("https://example.test/", table, time.Second, time.Hour, logging.Discard())
	require.NotNil(t, gate.Marker)

	t.Run("detected", func(t *testing.T) {
		sess := browsertest.NewFakeSession()
		require.NoError(t, gate.Wait(context.Background(), sess))
		assert.Equal(t, []string{"https://example.test/"}, sess.Navigated)
		assert.Equal(t, []string{"#pane-side"}, sess.Finds)
	})

	t.Run("not detected proceeds with a warning", func(t *testing.T) {
		var buf bytes.Buffer
		g := gate
		g.Logger = logging.New("info", "text", &buf)

		sess := browsertest.NewFakeSession()
		sess.Missing["#pane-side"] = true
		require.NoError(t, g.Wait(context.Background(), sess))
		assert.Contains(t, buf.String(), "level=WARN")
		assert.Contains(t, buf.String(), "Login marker not found")
	})

	t.Run("canceled while waiting for marker", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sess := browsertest.NewFakeSession()
		sess.Missing["#pane-side"] = true
		err := gate.Wait(ctx, sess)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoginGate_NavigateError(t *testing.T) {
	sess := browsertest.NewFakeSession()
	sess.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	gate := LoginGate{Delay: time.Millisecond, Logger: logging.Discard()}
	err := gate.Wait(context.Background(), sess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open WhatsApp Web")
}

func TestLoginGate_CanceledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gate := LoginGate{Delay: time.Hour, Logger: logging.Discard()}
	err := gate.Wait(ctx, browsertest.NewFakeSession())
	assert.ErrorIs(t, err, context.Canceled)
}
