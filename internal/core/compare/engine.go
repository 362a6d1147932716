// Package compare implements the recursive two-tree comparison engine.
//
// Each directory pair is enumerated on both sides, filtered through the
// ignore matcher and joined by name under the active collation. The joined
// entries of a level are fanned out over a pool shared by the whole run;
// workers recurse into subdirectories on their own, so the traversal is
// fork-join over the tree rather than a flat file list.
package compare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Ning0612/Treecmp/internal/adapter"
	"github.com/Ning0612/Treecmp/internal/core/checksum"
	"github.com/Ning0612/Treecmp/internal/core/diff"
	"github.com/Ning0612/Treecmp/internal/core/ignore"
	"github.com/Ning0612/Treecmp/internal/core/parallel"
	"github.com/Ning0612/Treecmp/internal/core/summary"
	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/logger"
	"github.com/Ning0612/Treecmp/internal/progress"
)

// Options configures a comparison run. The engine picks no defaults for
// Algorithms: an empty list means metadata comparison.
type Options struct {
	// Algorithms to hash both sides with. Empty selects size+mtime.
	Algorithms []domain.HashAlgorithm

	// IgnorePatterns are doublestar globs excluded on both sides
	IgnorePatterns []string

	// CaseSensitive selects ordinal name matching and ordering
	CaseSensitive bool

	// ModTimeTolerance is the largest mtime difference still treated as equal
	ModTimeTolerance time.Duration

	// MaxParallelism bounds concurrent workers (<= 0 means one per CPU)
	MaxParallelism int

	// SkipContentVerification trusts agreeing metadata instead of confirming
	// it with a byte comparison. Only used when Algorithms is empty.
	SkipContentVerification bool

	// BlockSize for byte comparison (0 = diff.DefaultBlockSize)
	BlockSize int

	// Reporter receives progress events (optional)
	Reporter progress.Reporter

	// Publisher receives nodes as they complete (optional)
	Publisher domain.NodePublisher

	// Logger for debug and per-entry warnings (optional)
	Logger logger.Logger
}

// Engine compares two directory trees
type Engine struct {
	opts     Options
	matcher  *ignore.Matcher
	calc     checksum.Calculator
	meta     *diff.DefaultComparer
	log      logger.Logger
	reporter progress.Reporter
	wrap     func(io.Reader) io.Reader
}

// New validates opts and builds an engine. An engine may run any number of
// comparisons, sequentially or concurrently.
func New(opts Options) (*Engine, error) {
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

	reporter := opts.Reporter
	if reporter == nil {
		reporter = progress.NullReporter{}
	}

	return &Engine{
		opts:     opts,
		matcher:  matcher,
		calc:     checksum.NewDefaultCalculator(),
		meta:     diff.NewToleranceComparer(opts.ModTimeTolerance),
		log:      logger.OrNull(opts.Logger).With("component", "compare"),
		reporter: reporter,
		wrap:     progress.Wrapper(reporter),
	}, nil
}

// Matcher returns the compiled ignore matcher
func (e *Engine) Matcher() *ignore.Matcher {
	return e.matcher
}

// run holds per-comparison state
type run struct {
	*Engine
	left  adapter.FileSystem
	right adapter.FileSystem
	pool  *parallel.Pool
}

// Compare diffs left against right. Setup failures, engine defects and
// cancellation abort the run and return no result; per-entry failures are
// recorded as Error nodes.
func (e *Engine) Compare(ctx context.Context, left, right adapter.FileSystem) (*domain.ComparisonResult, error) {
	if err := adapter.RequireDirectory(ctx, left, "left"); err != nil {
		return nil, err
	}
	if err := adapter.RequireDirectory(ctx, right, "right"); err != nil {
		return nil, err
	}

	start := time.Now()
	r := &run{
		Engine: e,
		left:   left,
		right:  right,
		pool:   parallel.NewPool(e.opts.MaxParallelism),
	}
	e.log.Debug("comparison started",
		"left", left.Root(),
		"right", right.Root(),
		"algorithms", e.opts.Algorithms,
		"workers", r.pool.Workers())

	root, err := r.compareDirs(ctx, "", "", "", "")
	if err != nil {
		return nil, err
	}

	result := &domain.ComparisonResult{
		LeftPath:  left.Root(),
		RightPath: right.Root(),
		Root:      root,
		Summary:   summary.Calculate(root),
	}
	e.log.Debug("comparison finished",
		"status", root.Status,
		"files", result.Summary.Total,
		"duration", time.Since(start))
	return result, nil
}

// pair is one joined name at a directory level
type pair struct {
	name  string
	left  *domain.FileInfo
	right *domain.FileInfo
}

func (r *run) publish(n *domain.ComparisonNode, final bool) {
	if r.opts.Publisher != nil {
		r.opts.Publisher.Publish(n, final)
	}
}

// compareDirs diffs the directory pair leftPath/rightPath, which is shown as
// relPath in the tree.
func (r *run) compareDirs(ctx context.Context, name, relPath, leftPath, rightPath string) (*domain.ComparisonNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.reporter.DirectoryStarted(relPath)
	r.publish(domain.NewDirectoryNode(name, relPath, nil), false)
	r.log.Debug("comparing directory", "path", relPath)

	leftEntries, err := r.list(ctx, r.left, leftPath, relPath)
	if err == nil {
		var rightEntries []domain.FileInfo
		rightEntries, err = r.list(ctx, r.right, rightPath, relPath)
		if err == nil {
			return r.joinLevel(ctx, name, relPath, leftEntries, rightEntries)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if relPath == "" {
		return nil, fmt.Errorf("failed to enumerate root: %w", err)
	}
	return r.failedDir(name, relPath, err), nil
}

func (r *run) joinLevel(ctx context.Context, name, relPath string, leftEntries, rightEntries []domain.FileInfo) (*domain.ComparisonNode, error) {
	pairs := r.join(relPath, leftEntries, rightEntries)

	children := make([]*domain.ComparisonNode, len(pairs))
	err := r.pool.ForEach(ctx, len(pairs), func(ctx context.Context, i int) error {
		node, err := r.compareEntry(ctx, relPath, pairs[i])
		if err != nil {
			return err
		}
		children[i] = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNodes(children, r.opts.CaseSensitive)
	node := domain.NewDirectoryNode(name, relPath, children)
	r.publish(node, true)
	return node, nil
}

// list enumerates dir on fs and drops ignored entries
func (r *run) list(ctx context.Context, fs adapter.FileSystem, dir, relDir string) ([]domain.FileInfo, error) {
	entries, err := fs.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	kept := entries[:0]
	for _, fi := range entries {
		if r.matcher.ShouldIgnore(domain.JoinPath(relDir, fi.Name), fi.IsDir()) {
			continue
		}
		kept = append(kept, fi)
	}
	return kept, nil
}

// join unions both sides by collation key. Under case-insensitive matching
// two names on the same side may collide; the ordinally first one wins.
func (r *run) join(relDir string, leftEntries, rightEntries []domain.FileInfo) []pair {
	byKey := make(map[string]*pair, len(leftEntries)+len(rightEntries))
	var order []string

	add := func(entries []domain.FileInfo, isLeft bool) {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for i := range entries {
			fi := &entries[i]
			key := domain.NameKey(fi.Name, r.opts.CaseSensitive)
			p, ok := byKey[key]
			if !ok {
				p = &pair{name: fi.Name}
				byKey[key] = p
				order = append(order, key)
			}
			slot := &p.right
			if isLeft {
				slot = &p.left
			}
			if *slot != nil {
				r.log.Warn("name collides under case-insensitive matching, entry skipped",
					"path", domain.JoinPath(relDir, fi.Name),
					"kept", (*slot).Name)
				continue
			}
			*slot = fi
		}
	}
	add(leftEntries, true)
	add(rightEntries, false)

	pairs := make([]pair, len(order))
	for i, key := range order {
		pairs[i] = *byKey[key]
	}
	sort.Slice(pairs, func(i, j int) bool {
		return domain.CompareNames(pairs[i].name, pairs[j].name, r.opts.CaseSensitive) < 0
	})
	return pairs
}

func (r *run) compareEntry(ctx context.Context, relDir string, p pair) (*domain.ComparisonNode, error) {
	relPath := domain.JoinPath(relDir, p.name)

	switch {
	case p.left != nil && p.right != nil:
		switch {
		case p.left.IsDir() && p.right.IsDir():
			return r.compareDirs(ctx, p.name, relPath, p.left.Path, p.right.Path)
		case p.left.IsDir() != p.right.IsDir():
			return r.typeMismatch(p.name, relPath, *p.left, *p.right), nil
		default:
			return r.compareFiles(ctx, p.name, relPath, *p.left, *p.right)
		}
	case p.left != nil:
		return r.oneSided(ctx, r.left, relPath, *p.left, domain.StatusLeftOnly)
	default:
		return r.oneSided(ctx, r.right, relPath, *p.right, domain.StatusRightOnly)
	}
}

func (r *run) typeMismatch(name, relPath string, left, right domain.FileInfo) *domain.ComparisonNode {
	detail := &domain.FileComparisonDetail{
		ErrorMessage: TypeMismatchMessage(left.IsDir(), right.IsDir()),
	}
	detail.SetLeft(left)
	detail.SetRight(right)

	node := domain.NewFileNode(name, relPath, domain.StatusDifferent, detail)
	r.finishFile(node)
	return node
}

// TypeMismatchMessage explains a file/directory collision
func TypeMismatchMessage(leftIsDir, rightIsDir bool) string {
	kind := func(dir bool) string {
		if dir {
			return "directory"
		}
		return "file"
	}
	return fmt.Sprintf("type mismatch: left is a %s, right is a %s", kind(leftIsDir), kind(rightIsDir))
}

func (r *run) compareFiles(ctx context.Context, name, relPath string, left, right domain.FileInfo) (*domain.ComparisonNode, error) {
	detail := &domain.FileComparisonDetail{}
	detail.SetLeft(left)
	detail.SetRight(right)

	status, err := r.fileStatus(ctx, left, right, detail)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrHashMismatchShape) {
			return nil, fmt.Errorf("%s: %w", relPath, err)
		}
		return r.failedFile(name, relPath, detail, err), nil
	}

	node := domain.NewFileNode(name, relPath, status, detail)
	r.finishFile(node)
	return node, nil
}

func (r *run) fileStatus(ctx context.Context, left, right domain.FileInfo, detail *domain.FileComparisonDetail) (domain.Status, error) {
	if algos := r.opts.Algorithms; len(algos) > 0 {
		lh, err := checksum.ComputeFile(ctx, r.calc, r.left, left.Path, algos, r.wrap)
		if err != nil {
			return domain.StatusError, fmt.Errorf("hash left: %w", err)
		}
		detail.LeftHashes = lh

		rh, err := checksum.ComputeFile(ctx, r.calc, r.right, right.Path, algos, r.wrap)
		if err != nil {
			return domain.StatusError, fmt.Errorf("hash right: %w", err)
		}
		detail.RightHashes = rh

		equal, err := diff.DigestsEqual(lh, rh)
		if err != nil {
			return domain.StatusError, err
		}
		return statusOf(equal), nil
	}

	if r.meta.Compare(&left, &right) != diff.FilesIdentical {
		return domain.StatusDifferent, nil
	}
	if r.opts.SkipContentVerification {
		return domain.StatusEqual, nil
	}

	equal, err := diff.ContentEqual(ctx, r.left, left.Path, r.right, right.Path, r.opts.BlockSize, r.wrap)
	if err != nil {
		return domain.StatusError, fmt.Errorf("compare content: %w", err)
	}
	return statusOf(equal), nil
}

func statusOf(equal bool) domain.Status {
	if equal {
		return domain.StatusEqual
	}
	return domain.StatusDifferent
}

// oneSided builds the subtree of an entry that exists on one side only.
// Every descendant takes the side status; only the ignore matcher prunes.
func (r *run) oneSided(ctx context.Context, fs adapter.FileSystem, relPath string, info domain.FileInfo, side domain.Status) (*domain.ComparisonNode, error) {
	if !info.IsDir() {
		detail := &domain.FileComparisonDetail{}
		if side == domain.StatusLeftOnly {
			detail.SetLeft(info)
		} else {
			detail.SetRight(info)
		}
		node := domain.NewFileNode(info.Name, relPath, side, detail)
		r.finishFile(node)
		return node, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.reporter.DirectoryStarted(relPath)

	entries, err := r.list(ctx, fs, info.Path, relPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return r.failedDir(info.Name, relPath, err), nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	children := make([]*domain.ComparisonNode, len(entries))
	err = r.pool.ForEach(ctx, len(entries), func(ctx context.Context, i int) error {
		child := entries[i]
		node, err := r.oneSided(ctx, fs, domain.JoinPath(relPath, child.Name), child, side)
		if err != nil {
			return err
		}
		children[i] = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNodes(children, r.opts.CaseSensitive)
	node := domain.NewOneSidedDirectoryNode(info.Name, relPath, children, side)
	r.publish(node, true)
	return node, nil
}

func (r *run) failedFile(name, relPath string, detail *domain.FileComparisonDetail, err error) *domain.ComparisonNode {
	detail.ErrorMessage = err.Error()
	node := domain.NewFileNode(name, relPath, domain.StatusError, detail)
	r.log.Warn("file comparison failed", "path", relPath, "error", err)
	r.reporter.EntryFailed(relPath, err)
	r.finishFile(node)
	return node
}

func (r *run) failedDir(name, relPath string, err error) *domain.ComparisonNode {
	node := domain.NewFailedDirectoryNode(name, relPath, err)
	r.log.Warn("directory enumeration failed", "path", relPath, "error", err)
	r.reporter.EntryFailed(relPath, err)
	r.publish(node, true)
	return node
}

func (r *run) finishFile(node *domain.ComparisonNode) {
	r.reporter.FileCompared(node.RelativePath, node.Status)
	r.publish(node, true)
}

func sortNodes(nodes []*domain.ComparisonNode, caseSensitive bool) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return domain.CompareNames(nodes[i].Name, nodes[j].Name, caseSensitive) < 0
	})
}
