package scheduler

import (
	"encoding/json"
	"testing"

	"sbzdeck/internal/coordinator"
	"sbzdeck/internal/gateway"
	"sbzdeck/internal/profile"
	"sbzdeck/internal/streamdeck"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u8(v uint8) *uint8 { return &v }

func TestTranslate(t *testing.T) {
	action := streamdeck.SelectOutputAction

	tests := []struct {
		name    string
		msg     streamdeck.Message
		want    coordinator.Event
		ignored bool
		wantErr bool
	}{
		{
			name: "willAppear",
			msg:  streamdeck.Message{Event: streamdeck.EventWillAppear, Action: action, Context: "c1", Payload: json.RawMessage(`{"state":1,"isInMultiAction":false}`)},
			want: coordinator.ButtonAppeared{Context: "c1", State: 1},
		},
		{
			name: "willAppear without state",
			msg:  streamdeck.Message{Event: streamdeck.EventWillAppear, Action: action, Context: "c1", Payload: json.RawMessage(`{}`)},
			want: coordinator.ButtonAppeared{Context: "c1", State: 0},
		},
		{
			name: "willDisappear",
			msg:  streamdeck.Message{Event: streamdeck.EventWillDisappear, Action: action, Context: "c1", Payload: json.RawMessage(`{"state":0}`)},
			want: coordinator.ButtonDisappeared{Context: "c1"},
		},
		{
			name: "keyUp with desired state",
			msg:  streamdeck.Message{Event: streamdeck.EventKeyUp, Action: action, Context: "c1", Payload: json.RawMessage(`{"state":0,"userDesiredState":1,"isInMultiAction":true}`)},
			want: coordinator.ButtonPressed{Context: "c1", State: u8(0), DesiredState: u8(1)},
		},
		{
			name: "keyUp without state",
			msg:  streamdeck.Message{Event: streamdeck.EventKeyUp, Action: action, Context: "c1", Payload: json.RawMessage(`{}`)},
			want: coordinator.ButtonPressed{Context: "c1"},
		},
		{
			name:    "other action",
			msg:     streamdeck.Message{Event: streamdeck.EventKeyUp, Action: "com.example.other", Context: "c1"},
			ignored: true,
		},
		{
			name: "global settings",
			msg:  streamdeck.Message{Event: streamdeck.EventDidReceiveGlobalSettings, Payload: json.RawMessage(`{"settings":{"profiles":{}}}`)},
			want: coordinator.SettingsLoaded{Raw: json.RawMessage(`{"profiles":{}}`), Source: SettingsSourceStreamDeck},
		},
		{
			name: "inspector asks for features",
			msg:  streamdeck.Message{Event: streamdeck.EventSendToPlugin, Action: action, Context: "c1", Payload: json.RawMessage(`{"event":"getFeatures"}`)},
			want: coordinator.FeatureQuery{Action: action, Context: "c1"},
		},
		{
			name: "inspector sets features",
			msg:  streamdeck.Message{Event: streamdeck.EventSendToPlugin, Action: action, Context: "c1", Payload: json.RawMessage(`{"event":"setFeatures","selectedParameters":{"EQ":["Gain"]}}`)},
			want: coordinator.FeatureSelectionChanged{Context: "c1", Selection: map[string][]string{"EQ": {"Gain"}}},
		},
		{
			name: "inspector clears features",
			msg:  streamdeck.Message{Event: streamdeck.EventSendToPlugin, Action: action, Context: "c1", Payload: json.RawMessage(`{"event":"setFeatures"}`)},
			want: coordinator.FeatureSelectionChanged{Context: "c1", Selection: map[string][]string{}},
		},
		{
			name:    "unknown inspector event",
			msg:     streamdeck.Message{Event: streamdeck.EventSendToPlugin, Action: action, Context: "c1", Payload: json.RawMessage(`{"event":"refresh"}`)},
			ignored: true,
		},
		{
			name:    "unrelated event",
			msg:     streamdeck.Message{Event: "deviceDidConnect"},
			ignored: true,
		},
		{
			name:    "malformed payload",
			msg:     streamdeck.Message{Event: streamdeck.EventKeyUp, Action: action, Context: "c1", Payload: json.RawMessage(`{"state":"one"}`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Translate(tt.msg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.ignored {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender(t *testing.T) {
	msg, ok := Render(coordinator.SetButtonState{Context: "c1", State: 1})
	require.True(t, ok)
	assert.Equal(t, streamdeck.SetState("c1", 1), msg)

	msg, ok = Render(coordinator.FlashSuccess{Context: "c1"})
	require.True(t, ok)
	assert.Equal(t, streamdeck.EventShowOk, msg.Event)

	msg, ok = Render(coordinator.FlashFailure{Context: "c1"})
	require.True(t, ok)
	assert.Equal(t, streamdeck.EventShowAlert, msg.Event)

	msg, ok = Render(coordinator.SendFeatures{Action: "a", Context: "c1", Listing: coordinator.FeatureListing{"EQ": {"Gain": true}}})
	require.True(t, ok)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event": "sendToPropertyInspector",
		"action": "a",
		"context": "c1",
		"payload": {"event": "setFeatures", "selectedParameters": {"EQ": {"Gain": true}}}
	}`, string(data))
}

func TestFromChange(t *testing.T) {
	ev, ok := FromChange(gateway.SelectorChanged{Value: profile.Uint32(1)})
	require.True(t, ok)
	assert.Equal(t, coordinator.HardwareSelectorChanged{Value: profile.Uint32(1)}, ev)

	ev, ok = FromChange(gateway.ParameterChanged{Feature: "EQ", Parameter: "Gain", Value: profile.Float(1)})
	require.True(t, ok)
	assert.Equal(t, coordinator.HardwareParameterChanged{Feature: "EQ", Parameter: "Gain", Value: profile.Float(1)}, ev)

	ev, ok = FromChange(gateway.VolumeChanged{Volume: 0.5, Muted: true})
	require.True(t, ok)
	assert.Equal(t, coordinator.HardwareVolumeChanged{Volume: 0.5, Muted: true}, ev)
}
