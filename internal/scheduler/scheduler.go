// Package scheduler runs the event sources that feed the coordinator: the
// protocol receive and send loops, the hardware change stream and the save
// debouncer.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"sbzdeck/internal/coordinator"
	"sbzdeck/internal/gateway"
	"sbzdeck/internal/streamdeck"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Connection is the protocol connection plus the settings replay request.
type Connection interface {
	streamdeck.Conn
	RequestGlobalSettings(ctx context.Context) error
}

// Scheduler wires the sources to one coordinator.
type Scheduler struct {
	coord   *coordinator.Coordinator
	conn    Connection
	gateway gateway.Gateway
	saver   *Saver
	logger  *zap.Logger
}

// New creates a scheduler. The coordinator must have been built with saver as
// its dirty notifier.
func New(coord *coordinator.Coordinator, conn Connection, gw gateway.Gateway, saver *Saver, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		coord:   coord,
		conn:    conn,
		gateway: gw,
		saver:   saver,
		logger:  logger.Named("scheduler"),
	}
}

// Run blocks until ctx is cancelled or the protocol connection is lost. Losing
// the connection is the only error it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.coord.Run(gctx)
	})
	g.Go(func() error {
		return s.conn.RunSender(gctx)
	})
	g.Go(func() error {
		return s.receive(gctx)
	})
	g.Go(func() error {
		s.watchHardware(gctx)
		return nil
	})
	g.Go(func() error {
		return s.saver.Run(gctx, s.coord.Settings)
	})

	if err := s.conn.RequestGlobalSettings(gctx); err != nil {
		s.logger.Warn("Could not request stored settings", zap.Error(err))
	}

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) receive(ctx context.Context) error {
	err := s.conn.Receive(ctx, func(msg streamdeck.Message) {
		ev, ok, err := Translate(msg)
		if err != nil {
			s.logger.Warn("Ignoring malformed message",
				zap.String("event", msg.Event),
				zap.String("context", msg.Context),
				zap.Error(err))
			return
		}
		if !ok {
			s.logger.Debug("Ignoring message", zap.String("event", msg.Event), zap.String("action", msg.Action))
			return
		}
		if err := s.coord.Submit(ctx, ev); err != nil && ctx.Err() == nil {
			s.logger.Warn("Could not queue event", zap.String("event", msg.Event), zap.Error(err))
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		s.logger.Error("Stream Deck connection lost", zap.Error(err))
		return fmt.Errorf("receiving from stream deck: %w", err)
	}
	return nil
}

func (s *Scheduler) watchHardware(ctx context.Context) {
	changes, err := s.gateway.Subscribe(ctx)
	if err != nil {
		s.logger.Error("Hardware notifications unavailable", zap.Error(err))
		return
	}

	for n := range changes {
		if n.Err != nil {
			s.logger.Warn("Hardware notification failed", zap.Error(n.Err))
			continue
		}
		ev, ok := FromChange(n.Event)
		if !ok {
			continue
		}
		if err := s.coord.Submit(ctx, ev); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Could not queue hardware event", zap.Error(err))
			}
		}
	}

	if ctx.Err() == nil {
		s.logger.Warn("Hardware notification stream ended")
	}
}
