package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sbzdeck/internal/app"
	"sbzdeck/internal/config"
	"sbzdeck/internal/logging"
	"sbzdeck/internal/streamdeck"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sbzdeck: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	reg, err := streamdeck.ParseRegistration(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Dir:    executableDir(),
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
		err = multierr.Append(err, closeLog())
	}()

	logger.Info("Starting plugin",
		zap.String("plugin_uuid", reg.PluginUUID),
		zap.Int("port", reg.Port),
		zap.String("application_version", reg.Info.Application.Version),
		zap.String("plugin_version", reg.Info.Plugin.Version),
		zap.String("gateway", cfg.Gateway.Kind))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	a, err := app.New(connectCtx, app.Options{Config: cfg, Registration: reg}, logger)
	cancel()
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		return err
	}

	runErr := a.Run(ctx)
	switch {
	case errors.Is(runErr, streamdeck.ErrConnectionLost):
		logger.Error("Stream Deck connection lost", zap.Error(runErr))
	case runErr != nil:
		logger.Error("Plugin stopped with error", zap.Error(runErr))
	default:
		logger.Info("Shutting down gracefully...")
	}

	return multierr.Append(runErr, a.Close())
}

// executableDir is where relative log files go. The Stream Deck application
// starts plugins with an arbitrary working directory.
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}
