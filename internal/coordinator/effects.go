package coordinator

import "context"

// Effect is an outbound intent produced by a handler.
type Effect interface {
	isEffect()
}

// SetButtonState changes the state a button displays.
type SetButtonState struct {
	Context string
	State   uint8
}

// FlashSuccess briefly shows success on a button.
type FlashSuccess struct {
	Context string
}

// FlashFailure briefly shows failure on a button.
type FlashFailure struct {
	Context string
}

// FeatureListing tags every exposed parameter with whether it is selected.
type FeatureListing map[string]map[string]bool

// SendFeatures answers a FeatureQuery.
type SendFeatures struct {
	Action  string
	Context string
	Listing FeatureListing
}

func (SetButtonState) isEffect() {}
func (FlashSuccess) isEffect()   {}
func (FlashFailure) isEffect()   {}
func (SendFeatures) isEffect()   {}

// Outbox delivers effects once the handler that produced them has returned.
type Outbox interface {
	Deliver(ctx context.Context, effect Effect) error
}

// DirtyNotifier is told whenever persisted state changed.
type DirtyNotifier interface {
	Trigger()
}
