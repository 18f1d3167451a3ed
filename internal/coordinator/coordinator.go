// Package coordinator owns the output-switching state and serializes every
// mutation of it through a single loop.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"sbzdeck/internal/clock"
	"sbzdeck/internal/gateway"
	"sbzdeck/internal/profile"
	"sbzdeck/internal/shadowstate"
	"sbzdeck/internal/telemetry"

	"go.uber.org/zap"
)

const (
	defaultApplyTimeout = 5 * time.Second
	defaultQueueSize    = 64
)

// Options tunes a Coordinator. Zero values select defaults.
type Options struct {
	// ApplyTimeout bounds every gateway call made by a handler.
	ApplyTimeout time.Duration

	// QueueSize is the capacity of the inbound event queue.
	QueueSize int

	// Initial seeds profiles and selection before the first SettingsLoaded.
	Initial *profile.Settings

	Clock    clock.Clock
	Tracker  *shadowstate.Tracker
	Recorder telemetry.Recorder
}

// Status is a read-only view of the coordinator state.
type Status struct {
	CurrentOutput *profile.Output
	Contexts      []string
	Settings      profile.Settings
}

// Coordinator reacts to button, inspector and hardware events. All state below
// the queue fields is owned by the Run loop.
type Coordinator struct {
	gateway      gateway.Gateway
	outbox       Outbox
	dirty        DirtyNotifier
	tracker      *shadowstate.Tracker
	recorder     telemetry.Recorder
	clock        clock.Clock
	logger       *zap.Logger
	applyTimeout time.Duration

	events  chan Event
	queries chan func()
	done    chan struct{}
	running atomic.Bool

	store         *profile.Store
	currentOutput *profile.Output
	contexts      map[string]struct{}
}

// New creates a coordinator. Effects go to outbox and persisted-state changes
// are announced to dirty.
func New(gw gateway.Gateway, outbox Outbox, dirty DirtyNotifier, opts Options, logger *zap.Logger) *Coordinator {
	if opts.ApplyTimeout <= 0 {
		opts.ApplyTimeout = defaultApplyTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Tracker == nil {
		opts.Tracker = shadowstate.NewTracker(opts.Clock, 0)
	}
	if opts.Recorder == nil {
		opts.Recorder = telemetry.Nop{}
	}

	store := profile.NewStore()
	if opts.Initial != nil {
		store.Replace(*opts.Initial)
	}

	return &Coordinator{
		gateway:      gw,
		outbox:       outbox,
		dirty:        dirty,
		tracker:      opts.Tracker,
		recorder:     opts.Recorder,
		clock:        opts.Clock,
		logger:       logger.Named("coordinator"),
		applyTimeout: opts.ApplyTimeout,
		events:       make(chan Event, opts.QueueSize),
		queries:      make(chan func()),
		done:         make(chan struct{}),
		store:        store,
		contexts:     make(map[string]struct{}),
	}
}

// Tracker exposes the decision history.
func (c *Coordinator) Tracker() *shadowstate.Tracker {
	return c.tracker
}

// Init reads the device once to learn the active output. It must be called
// before Run. A failure leaves the output unknown.
func (c *Coordinator) Init(ctx context.Context) error {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading initial device state: %w", err)
	}
	if out, ok := snap.Output(); ok {
		c.setCurrentOutput(&out)
		c.logger.Info("Initial output detected", zap.String("output", out.String()))
	} else {
		c.logger.Warn("Initial output not recognized")
	}
	return nil
}

// Run processes events and queries until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	c.logger.Info("Coordinator started")
	defer c.logger.Info("Coordinator stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.dispatch(ctx, ev)
		case q := <-c.queries:
			q()
		}
	}
}

// dispatch runs one handler and then delivers what it produced.
func (c *Coordinator) dispatch(ctx context.Context, ev Event) {
	effects, dirty := c.handle(ctx, ev)
	for _, effect := range effects {
		if err := c.outbox.Deliver(ctx, effect); err != nil {
			c.logger.Warn("Dropping outbound effect",
				zap.String("effect", fmt.Sprintf("%T", effect)),
				zap.Error(err))
		}
	}
	if dirty && c.dirty != nil {
		c.dirty.Trigger()
	}
}

// Submit queues an event. It blocks while the queue is full.
func (c *Coordinator) Submit(ctx context.Context, ev Event) error {
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// query runs fn on the loop, or directly once the loop has exited.
func (c *Coordinator) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}

	select {
	case c.queries <- wrapped:
	case <-c.done:
		fn()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Settings returns a copy of the persisted part of the state.
func (c *Coordinator) Settings(ctx context.Context) (profile.Settings, error) {
	var s profile.Settings
	err := c.query(ctx, func() {
		s = c.store.Settings()
	})
	return s, err
}

// Status returns the current output, registered buttons and settings.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.query(ctx, func() {
		if c.currentOutput != nil {
			out := *c.currentOutput
			st.CurrentOutput = &out
		}
		st.Contexts = c.sortedContexts()
		st.Settings = c.store.Settings()
	})
	return st, err
}

func (c *Coordinator) sortedContexts() []string {
	contexts := make([]string, 0, len(c.contexts))
	for id := range c.contexts {
		contexts = append(contexts, id)
	}
	sort.Strings(contexts)
	return contexts
}

func (c *Coordinator) setCurrentOutput(out *profile.Output) {
	c.currentOutput = out
	if out == nil {
		c.tracker.SetCurrentOutput("unknown")
		return
	}
	c.tracker.SetCurrentOutput(out.String())
}

func (c *Coordinator) snapshot(ctx context.Context) (gateway.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.applyTimeout)
	defer cancel()
	return c.gateway.Snapshot(ctx)
}

func (c *Coordinator) apply(ctx context.Context, req gateway.ApplyRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.applyTimeout)
	defer cancel()
	return c.gateway.Apply(ctx, req)
}
