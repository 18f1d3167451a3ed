// Package config loads plugin settings from defaults, an optional YAML file,
// a .env file and SBZDECK_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up next to the executable when SBZDECK_CONFIG is unset.
const DefaultFileName = "sbzdeck.yaml"

// Gateway kinds.
const (
	GatewaySimulated = "simulated"
	GatewayMQTT      = "mqtt"
)

// Config is the complete plugin configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Save      SaveConfig      `yaml:"save"`
	Outbound  OutboundConfig  `yaml:"outbound"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`

	// ForwardLevel is the minimum level copied to the Stream Deck log. "off" disables it.
	ForwardLevel string `yaml:"forward_level"`
}

// GatewayConfig selects and tunes the device gateway.
type GatewayConfig struct {
	Kind         string        `yaml:"kind"`
	ApplyTimeout time.Duration `yaml:"apply_timeout"`
	MQTT         MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig reaches a device bridge over MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// SaveConfig controls the debounced settings save.
type SaveConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BackupPath string        `yaml:"backup_path"`
	BackupKeep int           `yaml:"backup_keep"`
}

// OutboundConfig bounds the protocol send queues. Forwarded log lines use their
// own queue and are dropped when it is full.
type OutboundConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	LogQueueSize int           `yaml:"log_queue_size"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
}

// APIConfig controls the local status API. Port 0 disables it.
type APIConfig struct {
	Port int `yaml:"port"`
}

// TelemetryConfig holds optional metric sinks.
type TelemetryConfig struct {
	Influx InfluxConfig `yaml:"influx"`
}

// InfluxConfig enables InfluxDB metrics when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			File:         "sbzdeck.log",
			ForwardLevel: "warn",
		},
		Gateway: GatewayConfig{
			Kind:         GatewaySimulated,
			ApplyTimeout: 5 * time.Second,
			MQTT: MQTTConfig{
				ClientID:    "sbzdeck",
				TopicPrefix: "sbzdeck/device",
				QoS:         1,
			},
		},
		Save: SaveConfig{
			Interval:   5 * time.Second,
			BackupKeep: 20,
		},
		Outbound: OutboundConfig{
			QueueSize:    32,
			LogQueueSize: 16,
			SendTimeout:  2 * time.Second,
		},
	}
}

// ResolvePath returns SBZDECK_CONFIG when set, otherwise DefaultFileName next to the
// executable if it exists, otherwise "".
func ResolvePath() string {
	if v := os.Getenv("SBZDECK_CONFIG"); v != "" {
		return v
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	path := filepath.Join(filepath.Dir(exe), DefaultFileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Load builds the configuration. An empty path skips the YAML file. A .env file
// in the working directory is read when present; it never overrides variables
// already set in the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", name, v))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a duration", name, v))
				return
			}
			*dst = d
		}
	}

	// Logging
	setString("SBZDECK_LOG_LEVEL", &cfg.Log.Level)
	setString("SBZDECK_LOG_FORMAT", &cfg.Log.Format)
	setString("SBZDECK_LOG_FILE", &cfg.Log.File)
	setString("SBZDECK_LOG_FORWARD_LEVEL", &cfg.Log.ForwardLevel)

	// Gateway
	setString("SBZDECK_GATEWAY_KIND", &cfg.Gateway.Kind)
	setDuration("SBZDECK_GATEWAY_APPLY_TIMEOUT", &cfg.Gateway.ApplyTimeout)
	setString("SBZDECK_MQTT_BROKER", &cfg.Gateway.MQTT.Broker)
	setString("SBZDECK_MQTT_USERNAME", &cfg.Gateway.MQTT.Username)
	setString("SBZDECK_MQTT_PASSWORD", &cfg.Gateway.MQTT.Password)

	// Save
	setDuration("SBZDECK_SAVE_INTERVAL", &cfg.Save.Interval)
	setString("SBZDECK_SAVE_BACKUP_PATH", &cfg.Save.BackupPath)

	// API
	setInt("SBZDECK_API_PORT", &cfg.API.Port)

	// InfluxDB
	setString("SBZDECK_INFLUX_URL", &cfg.Telemetry.Influx.URL)
	setString("SBZDECK_INFLUX_TOKEN", &cfg.Telemetry.Influx.Token)

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"json": true, "console": true}
)

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []string

	if !validLevels[c.Log.Level] {
		errs = append(errs, "log.level must be debug, info, warn or error")
	}
	if !validFormats[c.Log.Format] {
		errs = append(errs, "log.format must be json or console")
	}
	if c.Log.ForwardLevel != "off" && !validLevels[c.Log.ForwardLevel] {
		errs = append(errs, "log.forward_level must be a log level or off")
	}

	switch c.Gateway.Kind {
	case GatewaySimulated:
	case GatewayMQTT:
		if c.Gateway.MQTT.Broker == "" {
			errs = append(errs, "gateway.mqtt.broker is required for the mqtt gateway")
		}
		if c.Gateway.MQTT.TopicPrefix == "" {
			errs = append(errs, "gateway.mqtt.topic_prefix is required for the mqtt gateway")
		}
	default:
		errs = append(errs, "gateway.kind must be simulated or mqtt")
	}
	if c.Gateway.ApplyTimeout <= 0 {
		errs = append(errs, "gateway.apply_timeout must be positive")
	}
	if c.Gateway.MQTT.QoS < 0 || c.Gateway.MQTT.QoS > 2 {
		errs = append(errs, "gateway.mqtt.qos must be 0, 1, or 2")
	}

	if c.Save.Interval <= 0 {
		errs = append(errs, "save.interval must be positive")
	}
	if c.Save.BackupPath != "" && c.Save.BackupKeep < 1 {
		errs = append(errs, "save.backup_keep must be at least 1")
	}

	if c.Outbound.QueueSize < 1 {
		errs = append(errs, "outbound.queue_size must be at least 1")
	}
	if c.Outbound.LogQueueSize < 1 {
		errs = append(errs, "outbound.log_queue_size must be at least 1")
	}
	if c.Outbound.SendTimeout <= 0 {
		errs = append(errs, "outbound.send_timeout must be positive")
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 0 and 65535")
	}

	if c.Telemetry.Influx.URL != "" {
		if c.Telemetry.Influx.Org == "" {
			errs = append(errs, "telemetry.influx.org is required when telemetry.influx.url is set")
		}
		if c.Telemetry.Influx.Bucket == "" {
			errs = append(errs, "telemetry.influx.bucket is required when telemetry.influx.url is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
