// Package logging builds the plugin's zap logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, encoding and an optional log file.
type Options struct {
	Level  string
	Format string

	// File is resolved against Dir when relative. Empty disables file output.
	File string
	Dir  string
}

// New builds a logger writing to stderr and, when configured, a log file. The
// returned close function releases the file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level: %w", err)
	}

	encoder, err := newEncoder(opts.Format)
	if err != nil {
		return nil, nil, err
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	closeFn := func() error { return nil }

	if opts.File != "" {
		path := opts.File
		if !filepath.IsAbs(path) && opts.Dir != "" {
			path = filepath.Join(opts.Dir, path)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.Lock(f), level))
		closeFn = f.Close
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	return logger, closeFn, nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	switch format {
	case "", "json":
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg), nil
	case "console":
		return zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
