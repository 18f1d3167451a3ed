package logging

import (
	"strings"
	"sync/atomic"

	"sbzdeck/internal/streamdeck"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSender accepts envelopes without blocking.
type LogSender interface {
	SendLog(msg streamdeck.OutboundMessage) bool
}

// StreamDeckCore copies log entries into the Stream Deck application log. Entries
// are dropped when the log queue is full.
type StreamDeckCore struct {
	zapcore.LevelEnabler
	encoder zapcore.Encoder
	sender  LogSender
	dropped *atomic.Int64
}

// NewStreamDeckCore forwards entries at or above level to sender.
func NewStreamDeckCore(sender LogSender, level zapcore.LevelEnabler) *StreamDeckCore {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	cfg.CallerKey = ""
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return &StreamDeckCore{
		LevelEnabler: level,
		encoder:      zapcore.NewConsoleEncoder(cfg),
		sender:       sender,
		dropped:      new(atomic.Int64),
	}
}

// Attach tees logger into a StreamDeckCore. levelName "off" returns logger unchanged.
func Attach(logger *zap.Logger, sender LogSender, levelName string) (*zap.Logger, error) {
	if levelName == "off" {
		return logger, nil
	}
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	core := NewStreamDeckCore(sender, level)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, core)
	})), nil
}

func (c *StreamDeckCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.encoder = c.encoder.Clone()
	for _, f := range fields {
		f.AddTo(clone.encoder)
	}
	return &clone
}

func (c *StreamDeckCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *StreamDeckCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	line := strings.TrimRight(buf.String(), "\n")
	buf.Free()

	if !c.sender.SendLog(streamdeck.LogMessage(line)) {
		c.dropped.Add(1)
	}
	return nil
}

func (c *StreamDeckCore) Sync() error { return nil }

// Dropped counts entries the sender refused.
func (c *StreamDeckCore) Dropped() int64 {
	return c.dropped.Load()
}
