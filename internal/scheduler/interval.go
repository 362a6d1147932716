package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// IntervalScheduler implements periodic scheduling using time.Ticker.
// Runs never overlap: a slow run delays the next tick.
type IntervalScheduler struct {
	config Config
	runner Runner

	mu          sync.RWMutex
	running     bool
	stopped     bool
	stopOnce    sync.Once
	closeOnce   sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		lastError      string
	}
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, runner Runner) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}

	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}

	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop. A stopped scheduler cannot be restarted.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	s.stats.nextRunTime = time.Now()
	if !s.config.RunImmediately {
		s.stats.nextRunTime = s.stats.nextRunTime.Add(s.config.Interval)
	}

	go s.loop(ctx)

	return nil
}

func (s *IntervalScheduler) loop(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	if s.config.RunImmediately {
		s.execute(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *IntervalScheduler) execute(ctx context.Context) {
	s.mu.Lock()
	s.stats.lastRunTime = time.Now()
	s.stats.totalRuns++
	s.stats.nextRunTime = s.stats.lastRunTime.Add(s.config.Interval)
	s.mu.Unlock()

	err := s.runner.Run(ctx)

	s.mu.Lock()
	if err != nil {
		s.stats.failedRuns++
		s.stats.lastError = err.Error()
	} else {
		s.stats.successfulRuns++
		s.stats.lastError = ""
	}
	s.mu.Unlock()
}

// Stop stops the loop and waits for an in-flight run to return
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	<-s.stoppedChan

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	return nil
}

// Done is closed once the loop has exited, whether by Stop or by context
// cancellation
func (s *IntervalScheduler) Done() <-chan struct{} {
	return s.stoppedChan
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}
