package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/lock"
	"github.com/Ning0612/Treecmp/internal/logger"
	"github.com/Ning0612/Treecmp/internal/scheduler"
	"github.com/Ning0612/Treecmp/internal/state"
)

// ErrDrift is returned by a watch run when the tree no longer matches its baseline
var ErrDrift = errors.New("tree drifted from baseline")

// ResultHandler receives the outcome of every watch run
type ResultHandler func(result *domain.ComparisonResult, err error)

// WatchService re-verifies a tree against its baseline on an interval.
// It holds the manifest lock while running so the baseline cannot be
// rewritten underneath it.
type WatchService struct {
	// handlerMu is separate from mu: Stop holds mu while waiting for an
	// in-flight run, which reads the handler
	handlerMu sync.Mutex
	handler   ResultHandler

	mu           sync.RWMutex
	svc          *CompareService
	manifestPath string
	rootPath     string
	scheduler    *scheduler.IntervalScheduler
	lock         *lock.FileLock
}

// WatchStatus represents the current watch state
type WatchStatus struct {
	Running        bool
	ManifestPath   string
	RootPath       string
	SchedulerStats *scheduler.Status
	LastRun        *state.RunRecord
}

// NewWatchService creates a watch over rootPath against the manifest at manifestPath
func NewWatchService(svc *CompareService, manifestPath, rootPath string) (*WatchService, error) {
	if svc == nil {
		return nil, fmt.Errorf("compare service cannot be nil")
	}
	if manifestPath == "" || rootPath == "" {
		return nil, fmt.Errorf("manifest and root paths are required")
	}

	return &WatchService{
		svc:          svc,
		manifestPath: manifestPath,
		rootPath:     rootPath,
	}, nil
}

// SetResultHandler sets the callback invoked after every run
func (w *WatchService) SetResultHandler(handler ResultHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handler = handler
}

// Start takes the manifest lock and begins verifying, first immediately and
// then every interval
func (w *WatchService) Start(ctx context.Context, interval time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.scheduler != nil {
		return fmt.Errorf("watch is already running")
	}

	fileLock, err := lock.ForManifest(w.manifestPath)
	if err != nil {
		return err
	}
	if err := fileLock.Acquire("watch"); err != nil {
		return err
	}

	sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
		Interval:       interval,
		RunImmediately: true,
	}, scheduler.RunnerFunc(w.verify))
	if err != nil {
		fileLock.Release()
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		fileLock.Release()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	w.scheduler = sched
	w.lock = fileLock
	logger.Get().Info("watch started",
		"manifest", w.manifestPath,
		"root", w.rootPath,
		"interval", interval)
	return nil
}

// Done is closed when the watch loop exits. It returns nil before Start.
func (w *WatchService) Done() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.scheduler == nil {
		return nil
	}
	return w.scheduler.Done()
}

func (w *WatchService) verify(ctx context.Context) error {
	result, err := w.svc.CompareBaseline(ctx, w.manifestPath, w.rootPath)
	if err == nil && result.Root.Status != domain.StatusEqual {
		s := result.Summary
		err = fmt.Errorf("%w: %d different, %d added, %d removed, %d errors",
			ErrDrift, s.Different, s.LeftOnly, s.RightOnly, s.Errors)
		logger.Get().Warn("baseline drift detected",
			"manifest", w.manifestPath,
			"root", w.rootPath,
			"different", s.Different,
			"added", s.LeftOnly,
			"removed", s.RightOnly,
			"errors", s.Errors)
	}

	w.handlerMu.Lock()
	handler := w.handler
	w.handlerMu.Unlock()
	if handler != nil {
		handler(result, err)
	}
	return err
}

// Stop stops the watch and releases the manifest lock
func (w *WatchService) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.scheduler == nil {
		return fmt.Errorf("watch is not running")
	}
	return w.stopLocked()
}

func (w *WatchService) stopLocked() error {
	var lastErr error

	if w.scheduler != nil {
		// A scheduler whose context was cancelled has already exited
		if w.scheduler.Status().Running {
			if err := w.scheduler.Stop(); err != nil {
				lastErr = err
			}
		}
		w.scheduler = nil
	}

	if w.lock != nil {
		if err := w.lock.Release(); err != nil {
			lastErr = err
		}
		w.lock = nil
	}

	return lastErr
}

// Status returns the current watch status
func (w *WatchService) Status() *WatchStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := &WatchStatus{
		Running:      w.scheduler != nil && w.scheduler.Status().Running,
		ManifestPath: w.manifestPath,
		RootPath:     w.rootPath,
	}

	if w.scheduler != nil {
		status.SchedulerStats = w.scheduler.Status()
	}

	if w.svc.history != nil {
		// verify runs record the live root as left and the manifest as right
		last, err := w.svc.history.GetLastRun(w.rootPath, w.manifestPath)
		if err == nil {
			status.LastRun = last
		}
	}

	return status
}

// Close stops the watch if it is running
func (w *WatchService) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopLocked()
}
