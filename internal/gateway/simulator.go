package gateway

import (
	"context"
	"fmt"
	"sync"

	"sbzdeck/internal/profile"

	"go.uber.org/zap"
)

const simulatorBufferSize = 64

// Simulator is an in-memory sound device. Apply echoes a change notification for
// every value it changes, the way the driver reports its own writes.
type Simulator struct {
	mu          sync.Mutex
	features    profile.Parameters
	volume      *float32
	muted       bool
	subscribers map[int]chan Notification
	nextSubID   int
	applies     []ApplyRequest
	snapshots   int
	snapshotErr error
	applyErr    error
	hang        bool
	dropped     int
	closed      bool
	logger      *zap.Logger
}

// NewSimulator creates a device exposing the given features. The selector parameter is
// added when missing, starting on headphones.
func NewSimulator(features profile.Parameters, volume *float32, logger *zap.Logger) *Simulator {
	f := features.Clone()
	if _, ok := f.Get(DeviceControlFeature, SelectOutputParameter); !ok {
		f.Set(DeviceControlFeature, SelectOutputParameter, profile.Uint32(profile.Headphones.Code()))
	}
	var vol *float32
	if volume != nil {
		v := *volume
		vol = &v
	}
	return &Simulator{
		features:    f,
		volume:      vol,
		subscribers: make(map[int]chan Notification),
		logger:      logger.Named("simulator"),
	}
}

// Snapshot implements Gateway.
func (s *Simulator) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	hang := s.hang
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		return Snapshot{}, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots++
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	if s.snapshotErr != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrNoSnapshot, s.snapshotErr)
	}

	var vol *float32
	if s.volume != nil {
		v := *s.volume
		vol = &v
	}
	return SnapshotFrom(vol, s.features.Clone()), nil
}

// Apply implements Gateway.
func (s *Simulator) Apply(ctx context.Context, req ApplyRequest) error {
	s.mu.Lock()
	hang := s.hang
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req.Features = req.Features.Clone()
	s.applies = append(s.applies, req)
	if s.closed {
		return ErrClosed
	}
	if s.applyErr != nil {
		return fmt.Errorf("%w: %w", ErrRejected, s.applyErr)
	}

	for feature, params := range req.Features {
		for name, v := range params {
			if current, ok := s.features.Get(feature, name); ok && current.Equal(v) {
				continue
			}
			s.features.Set(feature, name, v)
			s.emitLocked(ClassifyParameter(feature, name, v))
		}
	}
	if req.Volume != nil && (s.volume == nil || *s.volume != *req.Volume) {
		v := *req.Volume
		s.volume = &v
		s.emitLocked(VolumeChanged{Volume: v, Muted: s.muted})
	}

	s.logger.Debug("Applied configuration",
		zap.Uint32("output", req.OutputCode),
		zap.Int("features", len(req.Features)))
	return nil
}

// Subscribe implements Gateway.
func (s *Simulator) Subscribe(ctx context.Context) (<-chan Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Notification, simulatorBufferSize)
	s.subscribers[id] = ch

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}()

	return ch, nil
}

// emitLocked fans an event out without blocking; a full subscriber loses the event.
func (s *Simulator) emitLocked(ev ChangeEvent) {
	s.notifyLocked(Notification{Event: ev})
}

func (s *Simulator) notifyLocked(n Notification) {
	for _, ch := range s.subscribers {
		select {
		case ch <- n:
		default:
			s.dropped++
		}
	}
}

// SetParameter simulates a change made on the hardware itself.
func (s *Simulator) SetParameter(feature, parameter string, v profile.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features.Set(feature, parameter, v)
	s.emitLocked(ClassifyParameter(feature, parameter, v))
}

// SetOutput simulates the physical control panel flipping the selector.
func (s *Simulator) SetOutput(o profile.Output) {
	s.SetParameter(DeviceControlFeature, SelectOutputParameter, profile.Uint32(o.Code()))
}

// SetVolume simulates an operating system volume change.
func (s *Simulator) SetVolume(volume float32, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !muted {
		s.volume = &volume
	}
	s.muted = muted
	s.emitLocked(VolumeChanged{Volume: volume, Muted: muted})
}

// InjectError pushes a failed item into the change stream.
func (s *Simulator) InjectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked(Notification{Err: err})
}

// FailSnapshot makes Snapshot fail with err until cleared with nil.
func (s *Simulator) FailSnapshot(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotErr = err
}

// FailApply makes Apply fail with err until cleared with nil.
func (s *Simulator) FailApply(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyErr = err
}

// Hang makes Snapshot and Apply block until their context ends.
func (s *Simulator) Hang(hang bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hang = hang
}

// Applies returns every apply request received so far.
func (s *Simulator) Applies() []ApplyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ApplyRequest(nil), s.applies...)
}

// SnapshotCount returns how many snapshots were taken.
func (s *Simulator) SnapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots
}

// Features returns a copy of the current device parameters.
func (s *Simulator) Features() profile.Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features.Clone()
}

// Close ends every subscription.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	return nil
}

// Dropped returns how many notifications were lost to full subscriber buffers.
func (s *Simulator) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
