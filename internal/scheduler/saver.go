package scheduler

import (
	"context"
	"time"

	"sbzdeck/internal/clock"
	"sbzdeck/internal/profile"

	"go.uber.org/zap"
)

const (
	// DefaultSaveInterval is the debounce window between a change and its save.
	DefaultSaveInterval = 5 * time.Second

	finalSaveTimeout = 5 * time.Second
)

// Persister writes a settings snapshot.
type Persister interface {
	Persist(ctx context.Context, s profile.Settings) error
}

// SettingsSource reads the settings to save at the moment the save happens.
type SettingsSource func(ctx context.Context) (profile.Settings, error)

// Saver coalesces dirty triggers into one save per interval. The first trigger
// arms the timer; later triggers inside the window are absorbed.
type Saver struct {
	interval  time.Duration
	persister Persister
	clock     clock.Clock
	logger    *zap.Logger
	trigger   chan struct{}
}

// NewSaver creates a saver. A non-positive interval selects DefaultSaveInterval.
func NewSaver(interval time.Duration, persister Persister, clk clock.Clock, logger *zap.Logger) *Saver {
	if interval <= 0 {
		interval = DefaultSaveInterval
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Saver{
		interval:  interval,
		persister: persister,
		clock:     clk,
		logger:    logger.Named("saver"),
		trigger:   make(chan struct{}, 1),
	}
}

// Trigger marks the settings dirty. It never blocks.
func (s *Saver) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run waits for triggers until ctx ends, then flushes a pending save once.
func (s *Saver) Run(ctx context.Context, source SettingsSource) error {
	var timer <-chan time.Time
	pending := false

	for {
		select {
		case <-ctx.Done():
			select {
			case <-s.trigger:
				pending = true
			default:
			}
			if pending {
				s.logger.Info("Flushing pending settings before exit")
				flushCtx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
				s.save(flushCtx, source)
				cancel()
			}
			return nil

		case <-s.trigger:
			if !pending {
				pending = true
				timer = s.clock.After(s.interval)
			}

		case <-timer:
			pending = false
			timer = nil
			s.save(ctx, source)
		}
	}
}

func (s *Saver) save(ctx context.Context, source SettingsSource) {
	settings, err := source(ctx)
	if err != nil {
		s.logger.Warn("Could not read settings to save", zap.Error(err))
		return
	}
	if err := s.persister.Persist(ctx, settings); err != nil {
		s.logger.Warn("Settings save failed", zap.Error(err))
		return
	}
	s.logger.Debug("Settings saved")
}
