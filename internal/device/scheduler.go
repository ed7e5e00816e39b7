package device

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Scheduler defaults.
const (
	DefaultTick                = time.Second
	DefaultStateBackupInterval = 60 * time.Second
)

// Scheduler publishes telemetry every Store.Interval seconds and a state
// backup every stateBackup, independent of command traffic.
//
// It only ever blocks on its own ticker. While the transport is down every
// tick is skipped; the marks keep their values so both publishes fire on
// the first connected tick.
type Scheduler struct {
	store       *Store
	publisher   *Publisher
	tickEvery   time.Duration
	stateBackup time.Duration
	now         func() time.Time
	logger      Logger

	// Owned by the loop goroutine.
	lastData  time.Time
	lastState time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newScheduler(store *Store, publisher *Publisher, tick, stateBackup time.Duration, logger Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	if stateBackup <= 0 {
		stateBackup = DefaultStateBackupInterval
	}
	return &Scheduler{
		store:       store,
		publisher:   publisher,
		tickEvery:   tick,
		stateBackup: stateBackup,
		now:         time.Now,
		logger:      orNop(logger),
		done:        make(chan struct{}),
	}
}

// Start begins the tick loop. Call Stop to shut it down.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop ends the loop and waits for it. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduling step.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.publisher.Connected() {
		return
	}

	now := s.now()
	interval, changed := s.store.TakeIntervalChanged()
	if changed {
		s.lastData = now
		s.logger.Info("data interval changed", "interval", interval)
	}

	if now.Sub(s.lastData) >= time.Duration(interval)*time.Second {
		if err := s.publisher.PublishData(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
			s.logger.Warn("data publish failed", "error", err)
		}
		s.lastData = now
	}

	if now.Sub(s.lastState) >= s.stateBackup {
		if err := s.publisher.PublishState(); err != nil && !errors.Is(err, ErrNotConnected) {
			s.logger.Warn("state backup publish failed", "error", err)
		}
		s.lastState = now
	}
}
