package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"sbzdeck/internal/profile"
	"sbzdeck/internal/settings"
	"sbzdeck/internal/streamdeck"
	"sbzdeck/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 3 * time.Second
	pollEvery   = 10 * time.Millisecond
	action      = streamdeck.SelectOutputAction
)

// storedSettings selects Bass and gives the speakers profile its own values.
const storedSettings = `{
	"selected_parameters": {"Device Control": ["Bass"]},
	"profiles": {
		"headphones": {"volume": null, "parameters": {}},
		"speakers": {"volume": 0.3, "parameters": {"Device Control": {"Bass": 5}}}
	}
}`

func setupTest(t *testing.T, opts testutil.EnvOptions) *testutil.TestEnv {
	t.Helper()
	env, err := testutil.NewTestEnv(opts)
	require.NoError(t, err)
	t.Cleanup(env.Cleanup)
	return env
}

// waitForSelection blocks until the startup settings reply was applied.
func waitForSelection(t *testing.T, env *testutil.TestEnv) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := env.App.Coordinator().Settings(context.Background())
		return err == nil && len(s.Selection) > 0
	}, waitTimeout, pollEvery)
}

// savedRecord decodes the settings last stored in the mock application. It is
// safe to call from Eventually conditions.
func savedRecord(env *testutil.TestEnv) (settings.Record, bool) {
	var rec settings.Record
	raw := env.StreamDeck.GlobalSettings()
	if len(raw) == 0 || json.Unmarshal(raw, &rec) != nil {
		return settings.Record{}, false
	}
	return rec, true
}

// savedHeadphonesBass reads the headphones Bass value from the stored record.
func savedHeadphonesBass(env *testutil.TestEnv) (any, bool) {
	rec, ok := savedRecord(env)
	if !ok {
		return nil, false
	}
	v, ok := rec.Profiles.Headphones.Parameters["Device Control"]["Bass"]
	return v, ok
}

func stateOf(t *testing.T, msg testutil.ReceivedMessage) uint8 {
	t.Helper()
	var payload struct {
		State uint8 `json:"state"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	return payload.State
}

func deviceValue(env *testutil.TestEnv, feature, parameter string) profile.Value {
	v, _ := env.Device.Features().Get(feature, parameter)
	return v
}

func TestStartup(t *testing.T) {
	env := setupTest(t, testutil.EnvOptions{GlobalSettings: []byte(storedSettings)})

	t.Run("registers with the plugin uuid", func(t *testing.T) {
		reg, err := env.StreamDeck.WaitForRegistration(waitTimeout)
		require.NoError(t, err)
		assert.Equal(t, "registerPlugin", reg.Event)
		assert.Equal(t, testutil.TestPluginUUID, reg.UUID)
	})

	t.Run("requests global settings", func(t *testing.T) {
		msg, ok := env.StreamDeck.WaitFor(testutil.EventFor(streamdeck.EventGetGlobalSettings, ""), waitTimeout)
		require.True(t, ok)
		assert.Equal(t, testutil.TestPluginUUID, msg.Context)
	})

	t.Run("applies the stored settings", func(t *testing.T) {
		waitForSelection(t, env)
		s, err := env.App.Coordinator().Settings(context.Background())
		require.NoError(t, err)
		assert.True(t, s.Selection.Contains("Device Control", "Bass"))
		require.NotNil(t, s.Speakers.Volume)
		assert.Equal(t, float32(0.3), *s.Speakers.Volume)
	})

	t.Run("knows the output from the device", func(t *testing.T) {
		status, err := env.App.Coordinator().Status(context.Background())
		require.NoError(t, err)
		require.NotNil(t, status.CurrentOutput)
		assert.Equal(t, profile.Headphones, *status.CurrentOutput)
	})
}
