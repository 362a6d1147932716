package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ning0612/Treecmp/internal/adapter"
	"github.com/Ning0612/Treecmp/internal/adapter/gdrive"
	"github.com/Ning0612/Treecmp/internal/adapter/local"
	"github.com/Ning0612/Treecmp/internal/config"
	"github.com/Ning0612/Treecmp/internal/core/baseline"
	"github.com/Ning0612/Treecmp/internal/core/compare"
	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/lock"
	"github.com/Ning0612/Treecmp/internal/logger"
	"github.com/Ning0612/Treecmp/internal/manifest"
	"github.com/Ning0612/Treecmp/internal/progress"
	"github.com/Ning0612/Treecmp/internal/state"
)

// CompareService orchestrates comparisons: it turns configuration into
// engine options, applies the timeout and records every run in history.
type CompareService struct {
	config    *config.Config
	history   *state.Manager
	reporter  progress.Reporter
	publisher domain.NodePublisher
	now       func() time.Time
}

// NewCompareService creates a new compare service. history may be nil, in
// which case runs are not recorded.
func NewCompareService(cfg *config.Config, history *state.Manager) (*CompareService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CompareService{
		config:  cfg,
		history: history,
		now:     time.Now,
	}, nil
}

// SetProgressReporter sets the progress reporter for comparisons
func (s *CompareService) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

// SetPublisher sets the receiver of nodes as they complete
func (s *CompareService) SetPublisher(publisher domain.NodePublisher) {
	s.publisher = publisher
}

// getReporter returns the current progress reporter or a null reporter
func (s *CompareService) getReporter() progress.Reporter {
	if s.reporter != nil {
		return s.reporter
	}
	return progress.NullReporter{}
}

func (s *CompareService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t := s.config.Compare.Timeout; t > 0 {
		return context.WithTimeout(ctx, t)
	}
	return context.WithCancel(ctx)
}

// openTree opens a local directory, or a Drive folder for gdrive: paths
func (s *CompareService) openTree(ctx context.Context, p string) (adapter.FileSystem, error) {
	if !gdrive.IsDrivePath(p) {
		fs, err := local.New(p)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}

	g := s.config.GDrive
	if !g.Configured() {
		return nil, fmt.Errorf("%w: gdrive.client_id and gdrive.client_secret are required for %s", domain.ErrConfigInvalid, p)
	}
	auth := gdrive.NewAuthenticator(g.ClientID, g.ClientSecret, g.TokenPath)
	fs, err := gdrive.Dial(ctx, auth, gdrive.TrimScheme(p))
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// CompareDirectories diffs two directory trees. Either side may be a
// gdrive: folder.
func (s *CompareService) CompareDirectories(ctx context.Context, leftPath, rightPath string) (*domain.ComparisonResult, error) {
	log := logger.Get().With("operation", "compare")
	start := s.now()
	log.Info("comparison started", "left", leftPath, "right", rightPath)

	result, err := s.compareDirectories(ctx, leftPath, rightPath, log)
	s.record(state.KindCompare, leftPath, rightPath, start, result, err, log)
	if err != nil {
		log.Error("comparison failed", "left", leftPath, "right", rightPath, "error", err)
		return nil, err
	}

	log.Info("comparison completed",
		"status", result.Root.Status,
		"files", result.Summary.Total,
		"different", result.Summary.Different,
		"left_only", result.Summary.LeftOnly,
		"right_only", result.Summary.RightOnly,
		"errors", result.Summary.Errors,
		"duration", s.now().Sub(start))
	return result, nil
}

func (s *CompareService) compareDirectories(ctx context.Context, leftPath, rightPath string, log logger.Logger) (*domain.ComparisonResult, error) {
	left, err := s.openTree(ctx, leftPath)
	if err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	right, err := s.openTree(ctx, rightPath)
	if err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}

	c := s.config.Compare
	algos, err := c.CompareAlgorithms()
	if err != nil {
		return nil, err
	}

	engine, err := compare.New(compare.Options{
		Algorithms:              algos,
		IgnorePatterns:          c.Ignore,
		CaseSensitive:           c.CaseSensitive,
		ModTimeTolerance:        c.MtimeTolerance,
		MaxParallelism:          c.MaxParallelism,
		SkipContentVerification: !c.VerifyContent,
		Reporter:                s.getReporter(),
		Publisher:               s.publisher,
		Logger:                  log,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return engine.Compare(ctx, left, right)
}

// CreateBaseline captures rootPath and writes the manifest to manifestPath
func (s *CompareService) CreateBaseline(ctx context.Context, rootPath, manifestPath string) (*domain.BaselineManifest, error) {
	log := logger.Get().With("operation", "snapshot")
	start := s.now()
	log.Info("snapshot started", "root", rootPath, "manifest", manifestPath)

	m, err := s.createBaseline(ctx, rootPath, manifestPath, log)
	s.record(state.KindSnapshot, rootPath, manifestPath, start, nil, err, log)
	if err != nil {
		log.Error("snapshot failed", "root", rootPath, "error", err)
		return nil, err
	}

	log.Info("snapshot completed",
		"files", m.Root.CountFiles(),
		"algorithms", m.Algorithms,
		"duration", s.now().Sub(start))
	return m, nil
}

func (s *CompareService) createBaseline(ctx context.Context, rootPath, manifestPath string, log logger.Logger) (*domain.BaselineManifest, error) {
	root, err := s.openTree(ctx, rootPath)
	if err != nil {
		return nil, err
	}

	// A running watch holds the manifest lock; never rewrite a baseline under it
	fileLock, err := lock.ForManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	if err := fileLock.Acquire(string(state.KindSnapshot)); err != nil {
		return nil, err
	}
	defer func() {
		if err := fileLock.Release(); err != nil {
			log.Warn("failed to release manifest lock", "path", fileLock.Path(), "error", err)
		}
	}()

	c := s.config.Compare
	algos, err := c.SnapshotAlgorithms()
	if err != nil {
		return nil, err
	}

	gen, err := baseline.NewGenerator(baseline.SnapshotOptions{
		Algorithms:       algos,
		IgnorePatterns:   c.Ignore,
		CaseSensitive:    c.CaseSensitive,
		ModTimeTolerance: c.MtimeTolerance,
		MaxParallelism:   c.MaxParallelism,
		Reporter:         s.getReporter(),
		Logger:           log,
		Now:              s.now,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	m, err := gen.CreateSnapshot(ctx, root)
	if err != nil {
		return nil, err
	}

	fallback, err := manifest.ParseFormat(s.config.Baseline.Format)
	if err != nil {
		return nil, err
	}
	if err := manifest.SaveAs(manifestPath, m, manifest.ResolveFormat(manifestPath, fallback)); err != nil {
		return nil, err
	}
	return m, nil
}

// CompareBaseline reconciles rootPath against the manifest at manifestPath.
// The run settings must match the capture settings.
func (s *CompareService) CompareBaseline(ctx context.Context, manifestPath, rootPath string) (*domain.ComparisonResult, error) {
	log := logger.Get().With("operation", "verify")
	start := s.now()
	log.Info("baseline comparison started", "manifest", manifestPath, "root", rootPath)

	result, err := s.compareBaseline(ctx, manifestPath, rootPath, log)
	s.record(state.KindVerify, rootPath, manifestPath, start, result, err, log)
	if err != nil {
		log.Error("baseline comparison failed", "manifest", manifestPath, "root", rootPath, "error", err)
		return nil, err
	}

	log.Info("baseline comparison completed",
		"status", result.Root.Status,
		"files", result.Summary.Total,
		"duration", s.now().Sub(start))
	return result, nil
}

func (s *CompareService) compareBaseline(ctx context.Context, manifestPath, rootPath string, log logger.Logger) (*domain.ComparisonResult, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	live, err := s.openTree(ctx, rootPath)
	if err != nil {
		return nil, err
	}

	c := s.config.Compare
	explicit, err := domain.ParseHashAlgorithms(c.Algorithms)
	if err != nil {
		return nil, err
	}
	tolerance := c.MtimeTolerance
	if tolerance == 0 {
		tolerance = m.ModifiedTimeTolerance
	}

	opts := baseline.CompareOptions{
		Algorithms:       explicit,
		IgnorePatterns:   c.Ignore,
		CaseSensitive:    c.CaseSensitive,
		ModTimeTolerance: tolerance,
		MaxParallelism:   c.MaxParallelism,
		ManifestPath:     manifestPath,
		Reporter:         s.getReporter(),
		Publisher:        s.publisher,
		Logger:           log,
	}
	if err := baseline.CheckCompatibility(m, opts); err != nil {
		return nil, err
	}

	comparer, err := baseline.NewComparer(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return comparer.Compare(ctx, live, m)
}

// History returns recent runs, newest first
func (s *CompareService) History(kind state.RunKind, limit int) ([]state.RunRecord, error) {
	if s.history == nil {
		return nil, fmt.Errorf("run history is disabled")
	}
	return s.history.GetHistory(kind, limit)
}

// Outcome classifies a finished run for history and exit codes
func Outcome(result *domain.ComparisonResult, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return state.OutcomeCancelled
	case err != nil:
		return state.OutcomeFailed
	case result == nil:
		return state.OutcomeCaptured
	case result.Summary.Errors > 0 || result.Root.Status == domain.StatusError:
		return state.OutcomeError
	case result.Root.Status != domain.StatusEqual:
		return state.OutcomeDifferent
	default:
		return state.OutcomeEqual
	}
}

func (s *CompareService) record(kind state.RunKind, leftPath, rightPath string, start time.Time, result *domain.ComparisonResult, runErr error, log logger.Logger) {
	if s.history == nil {
		return
	}

	rec := state.RunRecord{
		Kind:      kind,
		LeftPath:  leftPath,
		RightPath: rightPath,
		StartTime: start,
		EndTime:   s.now(),
		Outcome:   Outcome(result, runErr),
	}
	if result != nil {
		rec.Summary = result.Summary
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if _, err := s.history.SaveRun(rec); err != nil {
		// History is best effort; the run itself already finished
		log.Warn("failed to record run", "error", err)
	}
}
