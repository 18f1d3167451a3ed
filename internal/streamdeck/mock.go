package streamdeck

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MockClient implements Conn in memory for testing.
type MockClient struct {
	PluginUUID string

	inbound chan Message
	lost    chan struct{}
	lostMu  sync.Once

	sent   []OutboundMessage
	sentMu sync.Mutex
	notify chan struct{}

	sendErr error
}

// NewMockClient creates a mock connection.
func NewMockClient() *MockClient {
	return &MockClient{
		PluginUUID: "mock-plugin-uuid",
		inbound:    make(chan Message, 64),
		lost:       make(chan struct{}),
		notify:     make(chan struct{}, 1),
	}
}

// Deliver simulates a message from the Stream Deck application.
func (m *MockClient) Deliver(msg Message) {
	m.inbound <- msg
}

// DeliverJSON builds and delivers an envelope with a JSON payload.
func (m *MockClient) DeliverJSON(event, action, context string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		raw = data
	}
	m.Deliver(Message{Event: event, Action: action, Context: context, Payload: raw})
}

// Disconnect makes Receive fail with ErrConnectionLost.
func (m *MockClient) Disconnect() {
	m.lostMu.Do(func() { close(m.lost) })
}

// FailSends makes every Send return err.
func (m *MockClient) FailSends(err error) {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()
	m.sendErr = err
}

// Receive implements Conn.
func (m *MockClient) Receive(ctx context.Context, handler func(Message)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.lost:
			return ErrConnectionLost
		case msg := <-m.inbound:
			handler(msg)
		}
	}
}

// Send implements Conn. Messages are recorded immediately.
func (m *MockClient) Send(_ context.Context, msg OutboundMessage) error {
	m.sentMu.Lock()
	if m.sendErr != nil {
		err := m.sendErr
		m.sentMu.Unlock()
		return err
	}
	m.sent = append(m.sent, msg)
	m.sentMu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// SendLog records msg like Send.
func (m *MockClient) SendLog(msg OutboundMessage) bool {
	return m.Send(context.Background(), msg) == nil
}

// RunSender implements Conn.
func (m *MockClient) RunSender(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// SetGlobalSettings records a setGlobalSettings envelope.
func (m *MockClient) SetGlobalSettings(ctx context.Context, payload json.RawMessage) error {
	return m.Send(ctx, SetGlobalSettings(m.PluginUUID, payload))
}

// RequestGlobalSettings records a getGlobalSettings envelope.
func (m *MockClient) RequestGlobalSettings(ctx context.Context) error {
	return m.Send(ctx, GetGlobalSettings(m.PluginUUID))
}

// Sent returns every recorded outbound message.
func (m *MockClient) Sent() []OutboundMessage {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()
	return append([]OutboundMessage(nil), m.sent...)
}

// SentEvents returns recorded messages with the given event name.
func (m *MockClient) SentEvents(event string) []OutboundMessage {
	var out []OutboundMessage
	for _, msg := range m.Sent() {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

// WaitForSent blocks until match accepts a recorded message or timeout passes.
func (m *MockClient) WaitForSent(match func(OutboundMessage) bool, timeout time.Duration) (OutboundMessage, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		for _, msg := range m.Sent() {
			if match(msg) {
				return msg, true
			}
		}
		select {
		case <-m.notify:
		case <-deadline.C:
			return OutboundMessage{}, false
		}
	}
}

// Reset clears recorded messages.
func (m *MockClient) Reset() {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()
	m.sent = nil
}
