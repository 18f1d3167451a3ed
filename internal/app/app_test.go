package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"sbzdeck/internal/api"
	"sbzdeck/internal/app"
	"sbzdeck/internal/config"
	"sbzdeck/internal/gateway"
	"sbzdeck/internal/profile"
	"sbzdeck/internal/streamdeck"
	"sbzdeck/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func registration(port int) streamdeck.Registration {
	return streamdeck.Registration{Port: port, PluginUUID: "plugin", RegisterEvent: "registerPlugin"}
}

func TestDemoFeatures(t *testing.T) {
	features := app.DemoFeatures()

	selector, ok := features.Get(gateway.DeviceControlFeature, gateway.SelectOutputParameter)
	require.True(t, ok)
	out, ok := profile.OutputFromValue(selector)
	require.True(t, ok)
	assert.Equal(t, profile.Headphones, out)

	_, ok = features.Get("EQ", "Enabled")
	assert.True(t, ok)
}

func TestNew(t *testing.T) {
	t.Run("fails without a stream deck application", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		a, err := app.New(ctx, app.Options{Registration: registration(freePort(t))}, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, a)
	})

	t.Run("rejects an unknown forward level", func(t *testing.T) {
		server := testutil.NewMockStreamDeck()
		defer server.Stop()

		cfg := config.Default()
		cfg.Log.ForwardLevel = "loud"
		a, err := app.New(context.Background(), app.Options{Config: cfg, Registration: registration(server.Port())}, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, a)
	})

	t.Run("starts with the simulated device by default", func(t *testing.T) {
		server := testutil.NewMockStreamDeck()
		defer server.Stop()

		cfg := config.Default()
		cfg.Log.ForwardLevel = "off"
		a, err := app.New(context.Background(), app.Options{Config: cfg, Registration: registration(server.Port())}, zap.NewNop())
		require.NoError(t, err)
		defer a.Close()

		status, err := a.Coordinator().Status(context.Background())
		require.NoError(t, err)
		require.NotNil(t, status.CurrentOutput)
		assert.Equal(t, profile.Headphones, *status.CurrentOutput)
	})
}

func TestRun(t *testing.T) {
	server := testutil.NewMockStreamDeck()
	defer server.Stop()

	cfg := config.Default()
	cfg.Log.ForwardLevel = "info"
	cfg.API.Port = freePort(t)

	a, err := app.New(context.Background(), app.Options{Config: cfg, Registration: registration(server.Port())}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	t.Run("serves status", func(t *testing.T) {
		url := fmt.Sprintf("http://127.0.0.1:%d/api/state", cfg.API.Port)
		var state api.StateResponse
		require.Eventually(t, func() bool {
			resp, err := http.Get(url)
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			return resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&state) == nil
		}, 3*time.Second, 20*time.Millisecond)

		assert.Equal(t, "headphones", state.CurrentOutput)
	})

	t.Run("forwards logs to the application", func(t *testing.T) {
		_, ok := server.WaitFor(testutil.EventFor(streamdeck.EventLogMessage, ""), 3*time.Second)
		assert.True(t, ok)
	})

	t.Run("stops cleanly on cancel", func(t *testing.T) {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("Run did not return")
		}
		assert.NoError(t, a.Close())
	})
}
