// Package scheduler runs a job repeatedly, e.g. re-verifying a tree
// against its baseline to detect drift.
package scheduler

import (
	"context"
	"time"
)

// Scheduler defines the interface for run schedulers
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Interval is the duration between runs
	Interval time.Duration

	// RunImmediately runs once on Start instead of waiting a full interval
	RunImmediately bool
}

// Runner executes one scheduled run
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

// Run implements Runner
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}
