package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sbzdeck/internal/app"
	"sbzdeck/internal/config"
	"sbzdeck/internal/gateway"
	"sbzdeck/internal/streamdeck"

	"go.uber.org/zap"
)

// TestPluginUUID is the plugin UUID a TestEnv registers with.
const TestPluginUUID = "test-plugin-uuid"

// EnvOptions tunes a TestEnv. Zero values keep test-friendly defaults.
type EnvOptions struct {
	// SaveInterval defaults to 50ms so debounced saves land quickly.
	SaveInterval time.Duration
	// BackupPath enables the SQLite settings backup.
	BackupPath string
	// GlobalSettings are replayed when the plugin asks for them on startup.
	GlobalSettings []byte
}

// TestEnv provides a complete test environment for integration tests: a mock
// Stream Deck application, a simulated device and a running plugin.
type TestEnv struct {
	StreamDeck *MockStreamDeck
	Device     *gateway.Simulator
	App        *app.App
	Logger     *zap.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	cleanup sync.Once
}

// NewTestEnv starts the mock application, connects a plugin to it and runs the plugin.
//
// Example usage:
//
//	env, err := testutil.NewTestEnv(testutil.EnvOptions{})
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Cleanup()
//
//	env.StreamDeck.KeyUp(streamdeck.SelectOutputAction, "ctx-1", 0, nil)
func NewTestEnv(opts EnvOptions) (*TestEnv, error) {
	logger, _ := zap.NewDevelopment()

	server := NewMockStreamDeck()
	if len(opts.GlobalSettings) > 0 {
		server.SetGlobalSettings(opts.GlobalSettings)
	}

	cfg := config.Default()
	cfg.Log.ForwardLevel = "off"
	cfg.Save.Interval = opts.SaveInterval
	if cfg.Save.Interval <= 0 {
		cfg.Save.Interval = 50 * time.Millisecond
	}
	cfg.Save.BackupPath = opts.BackupPath
	cfg.Gateway.ApplyTimeout = time.Second
	cfg.API.Port = 0

	volume := float32(0.5)
	device := gateway.NewSimulator(app.DemoFeatures(), &volume, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	a, err := app.New(ctx, app.Options{
		Config: cfg,
		Registration: streamdeck.Registration{
			Port:          server.Port(),
			PluginUUID:    TestPluginUUID,
			RegisterEvent: "registerPlugin",
		},
		Gateway: device,
	}, logger)
	cancel()
	if err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to start plugin: %w", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	env := &TestEnv{
		StreamDeck: server,
		Device:     device,
		App:        a,
		Logger:     logger,
		cancel:     runCancel,
		done:       make(chan struct{}),
	}
	go func() {
		defer close(env.done)
		env.runErr = a.Run(runCtx)
	}()

	if _, err := server.WaitForRegistration(5 * time.Second); err != nil {
		env.Cleanup()
		return nil, err
	}
	return env, nil
}

// Done is closed once the plugin stopped running.
func (e *TestEnv) Done() <-chan struct{} {
	return e.done
}

// RunErr is what the plugin's Run returned. Valid after Done is closed.
func (e *TestEnv) RunErr() error {
	<-e.done
	return e.runErr
}

// Stop cancels the plugin and waits for it to flush and exit.
func (e *TestEnv) Stop(timeout time.Duration) error {
	e.cancel()
	select {
	case <-e.done:
		return e.runErr
	case <-time.After(timeout):
		return errors.New("plugin did not stop in time")
	}
}

// Cleanup stops all components in the correct order.
// Always call this in a defer after creating the TestEnv.
func (e *TestEnv) Cleanup() {
	e.cleanup.Do(func() {
		_ = e.Stop(5 * time.Second)
		if e.App != nil {
			_ = e.App.Close()
		}
		e.StreamDeck.Stop()
	})
}

// Messages returns every message the plugin sent to the mock application.
func (e *TestEnv) Messages() []ReceivedMessage {
	return e.StreamDeck.Received()
}

// ClearMessages forgets recorded messages.
func (e *TestEnv) ClearMessages() {
	e.StreamDeck.ClearReceived()
}
