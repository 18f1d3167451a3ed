package integration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sbzdeck/internal/profile"
	"sbzdeck/internal/settings"
	"sbzdeck/internal/streamdeck"
	"sbzdeck/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenario_ShutdownFlushesPendingSave writes a change that was still
// waiting on the save interval when the plugin stopped.
func TestScenario_ShutdownFlushesPendingSave(t *testing.T) {
	env := setupTest(t, testutil.EnvOptions{
		SaveInterval:   time.Hour,
		GlobalSettings: []byte(storedSettings),
	})
	waitForSelection(t, env)

	env.Device.SetParameter("Device Control", "Bass", profile.Int32(4))
	require.Eventually(t, func() bool {
		s, err := env.App.Coordinator().Settings(context.Background())
		if err != nil {
			return false
		}
		v, ok := s.Headphones.Parameters.Get("Device Control", "Bass")
		return ok && v.Equal(profile.Int32(4))
	}, waitTimeout, pollEvery)
	assert.Empty(t, testutil.FilterMessages(env.Messages(), streamdeck.EventSetGlobalSettings))

	require.NoError(t, env.Stop(waitTimeout))
	require.NoError(t, env.App.Close())

	require.Eventually(t, func() bool {
		bass, ok := savedHeadphonesBass(env)
		return ok && bass == float64(4)
	}, waitTimeout, pollEvery)
}

// TestScenario_ConnectionLoss stops the plugin with an error when the
// application goes away.
func TestScenario_ConnectionLoss(t *testing.T) {
	env := setupTest(t, testutil.EnvOptions{})

	env.StreamDeck.Disconnect()

	select {
	case <-env.Done():
	case <-time.After(waitTimeout):
		t.Fatal("plugin kept running without a connection")
	}
	assert.True(t, errors.Is(env.RunErr(), streamdeck.ErrConnectionLost))
}

// TestScenario_BackupSeedsNextStart restores settings from the SQLite backup
// when the application has none stored.
func TestScenario_BackupSeedsNextStart(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "settings.db")

	first := setupTest(t, testutil.EnvOptions{BackupPath: backup, GlobalSettings: []byte(storedSettings)})
	waitForSelection(t, first)
	first.Device.SetParameter("Device Control", "Bass", profile.Int32(7))

	require.Eventually(t, func() bool {
		bass, ok := savedHeadphonesBass(first)
		return ok && bass == float64(7)
	}, waitTimeout, pollEvery)
	first.Cleanup()

	store, err := settings.OpenSQLite(backup, 0)
	require.NoError(t, err)
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Positive(t, count)
	require.NoError(t, store.Close())

	second := setupTest(t, testutil.EnvOptions{BackupPath: backup})
	s, err := second.App.Coordinator().Settings(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Selection.Contains("Device Control", "Bass"))
	bass, ok := s.Headphones.Parameters.Get("Device Control", "Bass")
	require.True(t, ok)
	assert.True(t, bass.Equal(profile.Int32(7)))
}
