package streamdeck

import "encoding/json"

// SelectOutputAction is the only action this plugin provides.
const SelectOutputAction = "io.github.mdonoughe.sbzdeck.selectOutput"

// Inbound event names.
const (
	EventWillAppear               = "willAppear"
	EventWillDisappear            = "willDisappear"
	EventKeyUp                    = "keyUp"
	EventDidReceiveGlobalSettings = "didReceiveGlobalSettings"
	EventSendToPlugin             = "sendToPlugin"
)

// Outbound event names.
const (
	EventSetState                = "setState"
	EventShowOk                  = "showOk"
	EventShowAlert               = "showAlert"
	EventSendToPropertyInspector = "sendToPropertyInspector"
	EventSetGlobalSettings       = "setGlobalSettings"
	EventGetGlobalSettings       = "getGlobalSettings"
	EventLogMessage              = "logMessage"
)

// Property inspector event names.
const (
	InspectorGetFeatures = "getFeatures"
	InspectorSetFeatures = "setFeatures"
)

// Message is an inbound envelope. Payload is decoded per event.
type Message struct {
	Event   string          `json:"event"`
	Action  string          `json:"action,omitempty"`
	Context string          `json:"context,omitempty"`
	Device  string          `json:"device,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Coordinates is a key position on the device.
type Coordinates struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// ActionPayload is carried by willAppear, willDisappear and keyUp.
type ActionPayload struct {
	Settings         json.RawMessage `json:"settings,omitempty"`
	Coordinates      *Coordinates    `json:"coordinates,omitempty"`
	State            *uint8          `json:"state,omitempty"`
	UserDesiredState *uint8          `json:"userDesiredState,omitempty"`
	IsInMultiAction  bool            `json:"isInMultiAction"`
}

// GlobalSettingsPayload is carried by didReceiveGlobalSettings.
type GlobalSettingsPayload struct {
	Settings json.RawMessage `json:"settings"`
}

// InspectorMessage is a sendToPlugin payload from the property inspector.
type InspectorMessage struct {
	Event              string              `json:"event"`
	SelectedParameters map[string][]string `json:"selectedParameters,omitempty"`
}

// FeatureListing tags each exposed parameter with whether it is selected.
type FeatureListing map[string]map[string]bool

type inspectorFeatures struct {
	Event              string         `json:"event"`
	SelectedParameters FeatureListing `json:"selectedParameters"`
}

type statePayload struct {
	State uint8 `json:"state"`
}

type logPayload struct {
	Message string `json:"message"`
}

// OutboundMessage is an envelope sent to the Stream Deck application.
type OutboundMessage struct {
	Event   string `json:"event"`
	Action  string `json:"action,omitempty"`
	Context string `json:"context,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

func SetState(context string, state uint8) OutboundMessage {
	return OutboundMessage{Event: EventSetState, Context: context, Payload: statePayload{State: state}}
}

func ShowOk(context string) OutboundMessage {
	return OutboundMessage{Event: EventShowOk, Context: context}
}

func ShowAlert(context string) OutboundMessage {
	return OutboundMessage{Event: EventShowAlert, Context: context}
}

// SendFeatures answers getFeatures in the property inspector.
func SendFeatures(action, context string, listing FeatureListing) OutboundMessage {
	if listing == nil {
		listing = FeatureListing{}
	}
	return OutboundMessage{
		Event:   EventSendToPropertyInspector,
		Action:  action,
		Context: context,
		Payload: inspectorFeatures{Event: InspectorSetFeatures, SelectedParameters: listing},
	}
}

// SetGlobalSettings stores payload as the plugin's global settings.
func SetGlobalSettings(pluginUUID string, payload json.RawMessage) OutboundMessage {
	return OutboundMessage{Event: EventSetGlobalSettings, Context: pluginUUID, Payload: payload}
}

// GetGlobalSettings asks for a didReceiveGlobalSettings reply.
func GetGlobalSettings(pluginUUID string) OutboundMessage {
	return OutboundMessage{Event: EventGetGlobalSettings, Context: pluginUUID}
}

// LogMessage writes a line to the Stream Deck application log.
func LogMessage(message string) OutboundMessage {
	return OutboundMessage{Event: EventLogMessage, Payload: logPayload{Message: message}}
}

type registerMessage struct {
	Event string `json:"event"`
	UUID  string `json:"uuid"`
}
