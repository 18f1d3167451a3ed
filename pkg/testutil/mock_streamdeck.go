// Package testutil provides testing utilities for the plugin.
// This package contains a mock Stream Deck application and helpers
// for writing integration tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// MockStreamDeck simulates the Stream Deck application side of the plugin protocol
type MockStreamDeck struct {
	server *httptest.Server

	conn   *connWrapper
	connMu sync.Mutex

	registration   Registration
	registered     chan struct{}
	registeredOnce sync.Once

	received   []ReceivedMessage
	receivedMu sync.Mutex
	notify     chan struct{}

	globalSettings   json.RawMessage
	globalSettingsMu sync.Mutex
}

// Registration is the first message a plugin sends
type Registration struct {
	Event string `json:"event"`
	UUID  string `json:"uuid"`
}

// inbound mirrors the envelope the application sends to plugins
type inbound struct {
	Event   string `json:"event"`
	Action  string `json:"action,omitempty"`
	Context string `json:"context,omitempty"`
	Device  string `json:"device,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// NewMockStreamDeck starts a mock application on a random local port
func NewMockStreamDeck() *MockStreamDeck {
	s := &MockStreamDeck{
		registered: make(chan struct{}),
		notify:     make(chan struct{}, 1),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	return s
}

// Port is the port passed to the plugin as -port
func (s *MockStreamDeck) Port() int {
	return s.server.Listener.Addr().(*net.TCPAddr).Port
}

// Stop closes the plugin connection and the server
func (s *MockStreamDeck) Stop() {
	s.Disconnect()
	s.server.Close()
}

// Disconnect drops the plugin connection, as when the application quits
func (s *MockStreamDeck) Disconnect() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.conn.Close()
		s.conn = nil
	}
}

// SetGlobalSettings sets what didReceiveGlobalSettings replays
func (s *MockStreamDeck) SetGlobalSettings(settings json.RawMessage) {
	s.globalSettingsMu.Lock()
	defer s.globalSettingsMu.Unlock()
	s.globalSettings = settings
}

// GlobalSettings returns the last settings the plugin stored
func (s *MockStreamDeck) GlobalSettings() json.RawMessage {
	s.globalSettingsMu.Lock()
	defer s.globalSettingsMu.Unlock()
	return s.globalSettings
}

// WaitForRegistration blocks until the plugin registered
func (s *MockStreamDeck) WaitForRegistration(timeout time.Duration) (Registration, error) {
	select {
	case <-s.registered:
		return s.registration, nil
	case <-time.After(timeout):
		return Registration{}, fmt.Errorf("plugin did not register within %v", timeout)
	}
}

// handleWebSocket handles the plugin connection
func (s *MockStreamDeck) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	wrapper := &connWrapper{conn: conn}
	defer conn.Close()

	if err := conn.ReadJSON(&s.registration); err != nil {
		return
	}

	s.connMu.Lock()
	s.conn = wrapper
	s.connMu.Unlock()
	s.registeredOnce.Do(func() { close(s.registered) })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ReceivedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		msg.Timestamp = time.Now()

		switch msg.Event {
		case "setGlobalSettings":
			s.SetGlobalSettings(msg.Payload)
		case "getGlobalSettings":
			s.send(inbound{
				Event:   "didReceiveGlobalSettings",
				Payload: map[string]json.RawMessage{"settings": s.storedSettings()},
			})
		}

		s.receivedMu.Lock()
		s.received = append(s.received, msg)
		s.receivedMu.Unlock()
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

func (s *MockStreamDeck) storedSettings() json.RawMessage {
	stored := s.GlobalSettings()
	if len(stored) == 0 {
		return json.RawMessage(`{}`)
	}
	return stored
}

func (s *MockStreamDeck) send(msg inbound) error {
	s.connMu.Lock()
	wrapper := s.conn
	s.connMu.Unlock()
	if wrapper == nil {
		return fmt.Errorf("plugin not connected")
	}

	wrapper.writeMu.Lock()
	defer wrapper.writeMu.Unlock()
	return wrapper.conn.WriteJSON(msg)
}

// WillAppear shows an action instance in the given state
func (s *MockStreamDeck) WillAppear(action, context string, state uint8) error {
	return s.send(inbound{Event: "willAppear", Action: action, Context: context, Device: "device-1", Payload: map[string]any{
		"settings":        map[string]any{},
		"coordinates":     map[string]int{"column": 0, "row": 0},
		"state":           state,
		"isInMultiAction": false,
	}})
}

// WillDisappear removes an action instance
func (s *MockStreamDeck) WillDisappear(action, context string) error {
	return s.send(inbound{Event: "willDisappear", Action: action, Context: context, Device: "device-1", Payload: map[string]any{
		"settings": map[string]any{},
	}})
}

// KeyUp releases a key. desired is omitted when nil.
func (s *MockStreamDeck) KeyUp(action, context string, state uint8, desired *uint8) error {
	payload := map[string]any{
		"settings":        map[string]any{},
		"state":           state,
		"isInMultiAction": desired != nil,
	}
	if desired != nil {
		payload["userDesiredState"] = *desired
	}
	return s.send(inbound{Event: "keyUp", Action: action, Context: context, Device: "device-1", Payload: payload})
}

// SendToPlugin delivers a property inspector message
func (s *MockStreamDeck) SendToPlugin(action, context string, payload any) error {
	return s.send(inbound{Event: "sendToPlugin", Action: action, Context: context, Payload: payload})
}

// PushGlobalSettings sends didReceiveGlobalSettings without a request
func (s *MockStreamDeck) PushGlobalSettings(settings json.RawMessage) error {
	return s.send(inbound{Event: "didReceiveGlobalSettings", Payload: map[string]json.RawMessage{"settings": settings}})
}

// Received returns every message the plugin sent after registering
func (s *MockStreamDeck) Received() []ReceivedMessage {
	s.receivedMu.Lock()
	defer s.receivedMu.Unlock()
	return append([]ReceivedMessage(nil), s.received...)
}

// ClearReceived forgets recorded messages
func (s *MockStreamDeck) ClearReceived() {
	s.receivedMu.Lock()
	defer s.receivedMu.Unlock()
	s.received = nil
}

// WaitFor blocks until match accepts a received message or timeout passes
func (s *MockStreamDeck) WaitFor(match func(ReceivedMessage) bool, timeout time.Duration) (ReceivedMessage, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		for _, msg := range s.Received() {
			if match(msg) {
				return msg, true
			}
		}
		select {
		case <-s.notify:
		case <-deadline.C:
			return ReceivedMessage{}, false
		}
	}
}
