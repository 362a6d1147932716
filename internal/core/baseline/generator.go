// Package baseline captures a tree into a manifest and reconciles a live
// tree against a previously captured manifest.
package baseline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Ning0612/Treecmp/internal/adapter"
	"github.com/Ning0612/Treecmp/internal/core/checksum"
	"github.com/Ning0612/Treecmp/internal/core/ignore"
	"github.com/Ning0612/Treecmp/internal/core/parallel"
	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/logger"
	"github.com/Ning0612/Treecmp/internal/progress"
)

// SnapshotOptions configures a capture. The settings are stamped into the
// manifest so later reconciliations can be checked for compatibility.
type SnapshotOptions struct {
	Algorithms       []domain.HashAlgorithm
	IgnorePatterns   []string
	CaseSensitive    bool
	ModTimeTolerance time.Duration
	MaxParallelism   int

	Reporter progress.Reporter
	Logger   logger.Logger

	// Now stamps CreatedAt (defaults to time.Now)
	Now func() time.Time
}

// Generator captures trees into manifests
type Generator struct {
	opts     SnapshotOptions
	matcher  *ignore.Matcher
	calc     checksum.Calculator
	log      logger.Logger
	reporter progress.Reporter
	wrap     func(io.Reader) io.Reader
}

// NewGenerator validates opts and builds a generator
func NewGenerator(opts SnapshotOptions) (*Generator, error) {
	for _, a := range opts.Algorithms {
		if !a.IsValid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, a)
		}
	}
	if opts.ModTimeTolerance < 0 {
		return nil, fmt.Errorf("modified time tolerance must not be negative: %v", opts.ModTimeTolerance)
	}
	matcher, err := ignore.New(opts.IgnorePatterns, opts.CaseSensitive)
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = progress.NullReporter{}
	}

	return &Generator{
		opts:     opts,
		matcher:  matcher,
		calc:     checksum.NewDefaultCalculator(),
		log:      logger.OrNull(opts.Logger).With("component", "snapshot"),
		reporter: reporter,
		wrap:     progress.Wrapper(reporter),
	}, nil
}

// CreateSnapshot walks fs once and returns its manifest. Any file that
// cannot be read fails the whole capture.
func (g *Generator) CreateSnapshot(ctx context.Context, fs adapter.FileSystem) (*domain.BaselineManifest, error) {
	if err := adapter.RequireDirectory(ctx, fs, "snapshot"); err != nil {
		return nil, err
	}

	rootInfo, err := fs.Stat(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}

	start := time.Now()
	pool := parallel.NewPool(g.opts.MaxParallelism)
	root, err := g.captureDir(ctx, fs, pool, rootInfo, "")
	if err != nil {
		return nil, err
	}

	m := &domain.BaselineManifest{
		Version:               domain.ManifestVersion,
		SourcePath:            fs.Root(),
		CreatedAt:             g.opts.Now().UTC(),
		IgnorePatterns:        g.matcher.Patterns(),
		CaseSensitive:         g.opts.CaseSensitive,
		ModifiedTimeTolerance: g.opts.ModTimeTolerance,
		Algorithms:            append([]domain.HashAlgorithm(nil), g.opts.Algorithms...),
		Root:                  root,
	}
	g.log.Info("snapshot captured",
		"root", fs.Root(),
		"files", root.CountFiles(),
		"algorithms", g.opts.Algorithms,
		"duration", time.Since(start))
	return m, nil
}

func (g *Generator) captureDir(ctx context.Context, fs adapter.FileSystem, pool *parallel.Pool, info domain.FileInfo, relPath string) (*domain.BaselineEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.reporter.DirectoryStarted(relPath)

	entries, err := fs.List(ctx, info.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", relPath, err)
	}

	kept := entries[:0]
	for _, e := range entries {
		if !g.matcher.ShouldIgnore(domain.JoinPath(relPath, e.Name), e.IsDir()) {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return domain.CompareNames(kept[i].Name, kept[j].Name, g.opts.CaseSensitive) < 0
	})

	children := make([]*domain.BaselineEntry, len(kept))
	err = pool.ForEach(ctx, len(kept), func(ctx context.Context, i int) error {
		child := kept[i]
		childRel := domain.JoinPath(relPath, child.Name)

		var entry *domain.BaselineEntry
		var err error
		if child.IsDir() {
			entry, err = g.captureDir(ctx, fs, pool, child, childRel)
		} else {
			entry, err = g.captureFile(ctx, fs, child, childRel)
		}
		if err != nil {
			return err
		}
		children[i] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	mtime := info.ModTime
	return &domain.BaselineEntry{
		Name:         info.Name,
		RelativePath: relPath,
		Type:         domain.NodeTypeDirectory,
		ModTime:      &mtime,
		Children:     children,
	}, nil
}

func (g *Generator) captureFile(ctx context.Context, fs adapter.FileSystem, info domain.FileInfo, relPath string) (*domain.BaselineEntry, error) {
	entry := &domain.BaselineEntry{
		Name:         info.Name,
		RelativePath: relPath,
		Type:         domain.NodeTypeFile,
	}
	entry.Size, entry.ModTime = fileMetadata(info)

	if len(g.opts.Algorithms) > 0 {
		hashes, err := checksum.ComputeFile(ctx, g.calc, fs, info.Path, g.opts.Algorithms, g.wrap)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to hash %q: %w", relPath, err)
		}
		entry.Hashes = hashes
	}

	g.reporter.FileCompared(relPath, domain.StatusEqual)
	return entry, nil
}

func fileMetadata(info domain.FileInfo) (*int64, *time.Time) {
	size := info.Size
	mtime := info.ModTime
	return &size, &mtime
}
