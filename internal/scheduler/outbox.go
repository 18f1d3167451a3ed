package scheduler

import (
	"context"
	"fmt"

	"sbzdeck/internal/coordinator"
	"sbzdeck/internal/streamdeck"
)

// Sender queues outbound envelopes.
type Sender interface {
	Send(ctx context.Context, msg streamdeck.OutboundMessage) error
}

// Outbox delivers coordinator effects over the protocol connection.
type Outbox struct {
	sender Sender
}

// NewOutbox creates an outbox over sender.
func NewOutbox(sender Sender) *Outbox {
	return &Outbox{sender: sender}
}

// Deliver implements coordinator.Outbox.
func (o *Outbox) Deliver(ctx context.Context, effect coordinator.Effect) error {
	msg, ok := Render(effect)
	if !ok {
		return fmt.Errorf("no envelope for effect %T", effect)
	}
	return o.sender.Send(ctx, msg)
}
