package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"sbzdeck/internal/profile"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Sink receives every saved record.
type Sink interface {
	Name() string
	Store(ctx context.Context, payload json.RawMessage) error
}

// Pipeline encodes settings once and writes them to every sink. A failing sink does not
// stop the others.
type Pipeline struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewPipeline creates a pipeline over the given sinks.
func NewPipeline(logger *zap.Logger, sinks ...Sink) *Pipeline {
	return &Pipeline{sinks: sinks, logger: logger.Named("settings")}
}

// Persist saves a settings snapshot. The returned error combines every sink failure.
func (p *Pipeline) Persist(ctx context.Context, s profile.Settings) error {
	payload, err := Marshal(s)
	if err != nil {
		return err
	}

	var errs error
	for _, sink := range p.sinks {
		if err := sink.Store(ctx, payload); err != nil {
			p.logger.Warn("Failed to save settings",
				zap.String("sink", sink.Name()),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		p.logger.Debug("Settings saved",
			zap.String("sink", sink.Name()),
			zap.Int("bytes", len(payload)))
	}
	return errs
}

// GlobalSettingsWriter is the control-protocol call that stores plugin-wide settings.
type GlobalSettingsWriter interface {
	SetGlobalSettings(ctx context.Context, payload json.RawMessage) error
}

// StreamDeckSink stores records as the plugin's global settings.
type StreamDeckSink struct {
	writer GlobalSettingsWriter
}

// NewStreamDeckSink wraps a protocol client.
func NewStreamDeckSink(w GlobalSettingsWriter) *StreamDeckSink {
	return &StreamDeckSink{writer: w}
}

func (s *StreamDeckSink) Name() string { return "streamdeck" }

func (s *StreamDeckSink) Store(ctx context.Context, payload json.RawMessage) error {
	return s.writer.SetGlobalSettings(ctx, payload)
}
