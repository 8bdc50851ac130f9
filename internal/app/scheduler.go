package app

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs a task once immediately, then on a fixed interval, until
// stopped. Stop cancels the task context and waits for the in-flight run to
// return, so callers can rely on nothing executing after Stop.
type Scheduler struct {
	interval time.Duration
	task     func(ctx context.Context) error
	logger   *slog.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(interval time.Duration, task func(ctx context.Context) error, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		interval: interval,
		task:     task,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
	s.reset()
	return s
}

func (s *Scheduler) reset() {
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel
	s.stopCh = make(chan struct{})
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	go s.run(s.ctx, s.stopCh)
}

// Stop swaps in a fresh cycle under the lock before waiting, so a concurrent
// Start can only ever arm the new context and channel, never the ones the
// outgoing run still owns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	stopCh := s.stopCh
	s.reset()
	s.mu.Unlock()

	cancel()
	<-stopCh
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// run only touches the context and channel it was handed; the struct fields
// may already belong to the next cycle.
func (s *Scheduler) run(ctx context.Context, stopCh chan struct{}) {
	defer close(stopCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.task(ctx); err != nil {
		s.logger.Error("failed to execute task", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				s.logger.Error("failed to execute task", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
