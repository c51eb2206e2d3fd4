package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs the learning cycle periodically in the background.
//
// Thread Safety: all public methods are thread-safe. The running state is
// protected by a mutex to prevent races during Start/Stop.
type Scheduler struct {
	interval     time.Duration
	cycleTimeout time.Duration
	manager      *Manager

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	logger *zap.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the cycle interval. Defaults to one hour.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = interval }
}

// WithCycleTimeout bounds each cycle run. Defaults to two minutes.
func WithCycleTimeout(timeout time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.cycleTimeout = timeout }
}

// NewScheduler creates a scheduler over the learning manager. The scheduler
// does not start automatically; call Start().
func NewScheduler(manager *Manager, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		interval:     time.Hour,
		cycleTimeout: 2 * time.Minute,
		manager:      manager,
		stopCh:       make(chan struct{}),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the background cycle loop. Calling Start on a running
// scheduler returns an error without starting a second goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	// Fresh stop channel for this run
	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("learning scheduler started", zap.Duration("interval", s.interval))
	go s.run()
	return nil
}

// Stop signals the background goroutine to stop. Idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Debug("scheduler stop called but not running")
		return nil
	}

	s.logger.Info("stopping learning scheduler")
	s.running = false
	close(s.stopCh)
	return nil
}

// Running reports whether the scheduler loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler goroutine panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRunCycle()
		case <-s.stopCh:
			s.logger.Debug("scheduler received stop signal")
			return
		}
	}
}

// safeRunCycle wraps one cycle with panic recovery so a single run cannot
// crash the scheduler.
func (s *Scheduler) safeRunCycle() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("learning cycle panicked, continuing scheduler",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cycleTimeout)
	defer cancel()

	if _, err := s.manager.RunCycle(ctx); err != nil {
		s.logger.Error("learning cycle failed", zap.Error(err))
	}
}
