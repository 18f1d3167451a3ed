package scheduler

import (
	"encoding/json"
	"fmt"

	"sbzdeck/internal/coordinator"
	"sbzdeck/internal/gateway"
	"sbzdeck/internal/streamdeck"
)

// SettingsSourceStreamDeck labels settings replayed by the Stream Deck application.
const SettingsSourceStreamDeck = "streamdeck"

// Translate converts an inbound envelope into a coordinator event. It reports
// false for envelopes the coordinator has no use for.
func Translate(msg streamdeck.Message) (coordinator.Event, bool, error) {
	switch msg.Event {
	case streamdeck.EventWillAppear, streamdeck.EventWillDisappear, streamdeck.EventKeyUp:
		if msg.Action != streamdeck.SelectOutputAction {
			return nil, false, nil
		}
		var payload streamdeck.ActionPayload
		if err := decodePayload(msg, &payload); err != nil {
			return nil, false, err
		}
		switch msg.Event {
		case streamdeck.EventWillAppear:
			var state uint8
			if payload.State != nil {
				state = *payload.State
			}
			return coordinator.ButtonAppeared{Context: msg.Context, State: state}, true, nil
		case streamdeck.EventWillDisappear:
			return coordinator.ButtonDisappeared{Context: msg.Context}, true, nil
		default:
			return coordinator.ButtonPressed{
				Context:      msg.Context,
				State:        payload.State,
				DesiredState: payload.UserDesiredState,
			}, true, nil
		}

	case streamdeck.EventDidReceiveGlobalSettings:
		var payload streamdeck.GlobalSettingsPayload
		if err := decodePayload(msg, &payload); err != nil {
			return nil, false, err
		}
		return coordinator.SettingsLoaded{Raw: payload.Settings, Source: SettingsSourceStreamDeck}, true, nil

	case streamdeck.EventSendToPlugin:
		if msg.Action != streamdeck.SelectOutputAction {
			return nil, false, nil
		}
		var payload streamdeck.InspectorMessage
		if err := decodePayload(msg, &payload); err != nil {
			return nil, false, err
		}
		switch payload.Event {
		case streamdeck.InspectorGetFeatures:
			return coordinator.FeatureQuery{Action: msg.Action, Context: msg.Context}, true, nil
		case streamdeck.InspectorSetFeatures:
			selection := payload.SelectedParameters
			if selection == nil {
				selection = map[string][]string{}
			}
			return coordinator.FeatureSelectionChanged{Context: msg.Context, Selection: selection}, true, nil
		}
	}
	return nil, false, nil
}

func decodePayload(msg streamdeck.Message, v any) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", msg.Event, err)
	}
	return nil
}

// Render converts an effect into the envelope that shows it.
func Render(effect coordinator.Effect) (streamdeck.OutboundMessage, bool) {
	switch e := effect.(type) {
	case coordinator.SetButtonState:
		return streamdeck.SetState(e.Context, e.State), true
	case coordinator.FlashSuccess:
		return streamdeck.ShowOk(e.Context), true
	case coordinator.FlashFailure:
		return streamdeck.ShowAlert(e.Context), true
	case coordinator.SendFeatures:
		return streamdeck.SendFeatures(e.Action, e.Context, streamdeck.FeatureListing(e.Listing)), true
	}
	return streamdeck.OutboundMessage{}, false
}

// FromChange converts a hardware notification into a coordinator event.
func FromChange(change gateway.ChangeEvent) (coordinator.Event, bool) {
	switch c := change.(type) {
	case gateway.SelectorChanged:
		return coordinator.HardwareSelectorChanged{Value: c.Value}, true
	case gateway.ParameterChanged:
		return coordinator.HardwareParameterChanged{Feature: c.Feature, Parameter: c.Parameter, Value: c.Value}, true
	case gateway.VolumeChanged:
		return coordinator.HardwareVolumeChanged{Volume: c.Volume, Muted: c.Muted}, true
	}
	return nil, false
}
