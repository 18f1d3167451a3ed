package streamdeck

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

// Registration holds the arguments the Stream Deck application launches a plugin with.
type Registration struct {
	Port          int
	PluginUUID    string
	RegisterEvent string
	Info          Info
}

// Info is the subset of the -info document the plugin logs at startup.
type Info struct {
	Application struct {
		Language string `json:"language"`
		Platform string `json:"platform"`
		Version  string `json:"version"`
	} `json:"application"`
	Plugin struct {
		Version string `json:"version"`
	} `json:"plugin"`
	Devices []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type int    `json:"type"`
	} `json:"devices"`
}

// ParseRegistration parses -port, -pluginUUID, -registerEvent and -info.
func ParseRegistration(args []string) (Registration, error) {
	fs := flag.NewFlagSet("sbzdeck", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var reg Registration
	var info string
	fs.IntVar(&reg.Port, "port", 0, "websocket port of the Stream Deck application")
	fs.StringVar(&reg.PluginUUID, "pluginUUID", "", "plugin instance identifier")
	fs.StringVar(&reg.RegisterEvent, "registerEvent", "", "event name used to register")
	fs.StringVar(&info, "info", "", "application and device information (JSON)")

	if err := fs.Parse(args); err != nil {
		return Registration{}, fmt.Errorf("parsing registration arguments: %w", err)
	}

	switch {
	case reg.Port <= 0 || reg.Port > 65535:
		return Registration{}, fmt.Errorf("invalid -port %d", reg.Port)
	case reg.PluginUUID == "":
		return Registration{}, fmt.Errorf("missing -pluginUUID")
	case reg.RegisterEvent == "":
		return Registration{}, fmt.Errorf("missing -registerEvent")
	}

	if info != "" {
		if err := json.Unmarshal([]byte(info), &reg.Info); err != nil {
			return Registration{}, fmt.Errorf("parsing -info: %w", err)
		}
	}

	return reg, nil
}
