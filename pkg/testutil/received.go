package testutil

import (
	"encoding/json"
	"time"
)

// ReceivedMessage records a message sent by the plugin
type ReceivedMessage struct {
	Timestamp time.Time       `json:"-"`
	Event     string          `json:"event"`
	Action    string          `json:"action,omitempty"`
	Context   string          `json:"context,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// FilterMessages filters messages by event name
func FilterMessages(messages []ReceivedMessage, event string) []ReceivedMessage {
	var filtered []ReceivedMessage
	for _, msg := range messages {
		if msg.Event == event {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// FindMessageForContext finds the latest message with the given event for one button
func FindMessageForContext(messages []ReceivedMessage, event, context string) *ReceivedMessage {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Event == event && msg.Context == context {
			return &msg
		}
	}
	return nil
}

// EventFor matches messages with the given event and context. An empty context matches any.
func EventFor(event, context string) func(ReceivedMessage) bool {
	return func(msg ReceivedMessage) bool {
		return msg.Event == event && (context == "" || msg.Context == context)
	}
}
