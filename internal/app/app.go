// Package app assembles the plugin from its configuration: protocol client,
// device gateway, coordinator, scheduler, save pipeline and optional status API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"sbzdeck/internal/api"
	"sbzdeck/internal/clock"
	"sbzdeck/internal/config"
	"sbzdeck/internal/coordinator"
	"sbzdeck/internal/gateway"
	"sbzdeck/internal/logging"
	"sbzdeck/internal/profile"
	"sbzdeck/internal/scheduler"
	"sbzdeck/internal/settings"
	"sbzdeck/internal/shadowstate"
	"sbzdeck/internal/streamdeck"
	"sbzdeck/internal/telemetry"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options configures New. Gateway and Clock override what the config selects.
type Options struct {
	Config       *config.Config
	Registration streamdeck.Registration
	Gateway      gateway.Gateway
	Clock        clock.Clock
}

// App is one running plugin instance.
type App struct {
	logger      *zap.Logger
	client      *streamdeck.Client
	gateway     gateway.Gateway
	coordinator *coordinator.Coordinator
	scheduler   *scheduler.Scheduler
	server      *api.Server
	closers     []io.Closer
}

// New connects to the Stream Deck application and builds every component. On
// error, whatever was already opened is closed.
func New(ctx context.Context, opts Options, logger *zap.Logger) (a *App, err error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	a = &App{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
			a = nil
		}
	}()

	a.client = streamdeck.NewClient(opts.Registration, streamdeck.Options{
		QueueSize:    cfg.Outbound.QueueSize,
		LogQueueSize: cfg.Outbound.LogQueueSize,
		SendTimeout:  cfg.Outbound.SendTimeout,
	}, logger)
	if err := a.client.Connect(ctx); err != nil {
		return a, fmt.Errorf("connecting to stream deck: %w", err)
	}
	a.closers = append(a.closers, a.client)

	logger, err = logging.Attach(logger, a.client, cfg.Log.ForwardLevel)
	if err != nil {
		return a, fmt.Errorf("forwarding logs: %w", err)
	}
	a.logger = logger.Named("app")

	a.gateway = opts.Gateway
	if a.gateway == nil {
		a.gateway, err = newGateway(cfg.Gateway, logger)
		if err != nil {
			return a, err
		}
	}
	if c, ok := a.gateway.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	sinks := []settings.Sink{settings.NewStreamDeckSink(a.client)}
	var initial *profile.Settings
	if cfg.Save.BackupPath != "" {
		backup, err := settings.OpenSQLite(cfg.Save.BackupPath, cfg.Save.BackupKeep)
		if err != nil {
			return a, fmt.Errorf("opening settings backup: %w", err)
		}
		a.closers = append(a.closers, backup)
		sinks = append(sinks, backup)
		initial = a.loadBackup(ctx, backup)
	}
	pipeline := settings.NewPipeline(logger, sinks...)

	var recorder telemetry.Recorder = telemetry.Nop{}
	if cfg.Telemetry.Influx.URL != "" {
		influx, err := telemetry.ConnectInflux(telemetry.InfluxOptions{
			URL:    cfg.Telemetry.Influx.URL,
			Token:  cfg.Telemetry.Influx.Token,
			Org:    cfg.Telemetry.Influx.Org,
			Bucket: cfg.Telemetry.Influx.Bucket,
		}, logger)
		if err != nil {
			a.logger.Warn("Telemetry disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, influx)
			recorder = influx
		}
	}

	tracker := shadowstate.NewTracker(clk, 0)
	saver := scheduler.NewSaver(cfg.Save.Interval, pipeline, clk, logger)
	a.coordinator = coordinator.New(a.gateway, scheduler.NewOutbox(a.client), saver, coordinator.Options{
		ApplyTimeout: cfg.Gateway.ApplyTimeout,
		Initial:      initial,
		Clock:        clk,
		Tracker:      tracker,
		Recorder:     recorder,
	}, logger)
	if err := a.coordinator.Init(ctx); err != nil {
		a.logger.Warn("Starting with unknown output", zap.Error(err))
	}
	a.scheduler = scheduler.New(a.coordinator, a.client, a.gateway, saver, logger)

	if cfg.API.Port > 0 {
		a.server = api.NewServer(a.coordinator, tracker, logger, cfg.API.Port)
	}
	return a, nil
}

func (a *App) loadBackup(ctx context.Context, backup *settings.SQLiteStore) *profile.Settings {
	raw, savedAt, err := backup.Latest(ctx)
	if errors.Is(err, settings.ErrNoRecord) {
		return nil
	}
	if err != nil {
		a.logger.Warn("Could not read settings backup", zap.Error(err))
		return nil
	}
	decoded, dropped, err := settings.Decode(raw)
	if err != nil {
		a.logger.Warn("Ignoring unreadable settings backup", zap.Error(err))
		return nil
	}
	a.logger.Info("Seeded settings from backup",
		zap.Time("saved_at", savedAt),
		zap.Int("dropped", len(dropped)))
	return &decoded
}

func newGateway(cfg config.GatewayConfig, logger *zap.Logger) (gateway.Gateway, error) {
	switch cfg.Kind {
	case config.GatewayMQTT:
		broker, err := gateway.ConnectBroker(gateway.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to device bridge: %w", err)
		}
		gw, err := gateway.NewMQTTGateway(broker, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS), logger)
		if err != nil {
			broker.Close()
			return nil, fmt.Errorf("subscribing to device bridge: %w", err)
		}
		return gw, nil
	default:
		volume := float32(0.5)
		return gateway.NewSimulator(DemoFeatures(), &volume, logger), nil
	}
}

// DemoFeatures is the parameter set the simulated device exposes.
func DemoFeatures() profile.Parameters {
	p := make(profile.Parameters)
	p.Set(gateway.DeviceControlFeature, gateway.SelectOutputParameter, profile.Uint32(profile.Headphones.Code()))
	p.Set(gateway.DeviceControlFeature, "Bass", profile.Int32(0))
	p.Set(gateway.DeviceControlFeature, "Treble", profile.Int32(0))
	p.Set("Speaker Configuration", "Surround", profile.Bool(false))
	p.Set("EQ", "Enabled", profile.Bool(false))
	p.Set("EQ", "Pre-Amp", profile.Float(0))
	p.Set("SBX", "Crystalizer", profile.Float(0.5))
	p.Set("SBX", "Dialog+", profile.Float(0.5))
	return p
}

// Coordinator exposes the coordinator for status reads.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}

// Run serves until ctx ends or the Stream Deck connection is lost.
func (a *App) Run(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return err
		}
	}
	a.logger.Info("Plugin running")
	return a.scheduler.Run(ctx)
}

// Close stops the API, drains the outbound queue and releases every resource.
func (a *App) Close() error {
	var errs error
	if a.server != nil {
		errs = multierr.Append(errs, a.server.Stop())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errs
}
