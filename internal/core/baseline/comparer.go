package baseline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Ning0612/Treecmp/internal/adapter"
	"github.com/Ning0612/Treecmp/internal/core/checksum"
	"github.com/Ning0612/Treecmp/internal/core/compare"
	"github.com/Ning0612/Treecmp/internal/core/diff"
	"github.com/Ning0612/Treecmp/internal/core/ignore"
	"github.com/Ning0612/Treecmp/internal/core/parallel"
	"github.com/Ning0612/Treecmp/internal/core/summary"
	"github.com/Ning0612/Treecmp/internal/domain"
	"github.com/Ning0612/Treecmp/internal/logger"
	"github.com/Ning0612/Treecmp/internal/progress"
)

// CompareOptions configures a reconciliation. The live tree is the left
// side of the result and the baseline the right side.
type CompareOptions struct {
	// Algorithms, when set, must be present in the baseline for every file
	Algorithms       []domain.HashAlgorithm
	IgnorePatterns   []string
	CaseSensitive    bool
	ModTimeTolerance time.Duration
	MaxParallelism   int

	// ManifestPath is recorded in the result metadata
	ManifestPath string

	Reporter  progress.Reporter
	Publisher domain.NodePublisher
	Logger    logger.Logger
}

// Comparer reconciles live trees against manifests
type Comparer struct {
	opts     CompareOptions
	matcher  *ignore.Matcher
	calc     checksum.Calculator
	meta     *diff.DefaultComparer
	log      logger.Logger
	reporter progress.Reporter
	wrap     func(io.Reader) io.Reader
}

// NewComparer validates opts and builds a comparer
func NewComparer(opts CompareOptions) (*Comparer, error) {
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

	return &Comparer{
		opts:     opts,
		matcher:  matcher,
		calc:     checksum.NewDefaultCalculator(),
		meta:     diff.NewToleranceComparer(opts.ModTimeTolerance),
		log:      logger.OrNull(opts.Logger).With("component", "baseline"),
		reporter: reporter,
		wrap:     progress.Wrapper(reporter),
	}, nil
}

// CheckCompatibility reports whether opts match the settings the manifest
// was captured with. Differing ignore patterns or case sensitivity make
// entries appear or vanish for reasons unrelated to the tree itself.
func CheckCompatibility(m *domain.BaselineManifest, opts CompareOptions) error {
	if m.CaseSensitive != opts.CaseSensitive {
		return fmt.Errorf("%w: baseline case sensitive=%v, run case sensitive=%v",
			domain.ErrIncompatibleBaseline, m.CaseSensitive, opts.CaseSensitive)
	}

	want := normalizePatterns(m.IgnorePatterns)
	got := normalizePatterns(opts.IgnorePatterns)
	if len(want) != len(got) {
		return fmt.Errorf("%w: baseline ignores %v, run ignores %v", domain.ErrIncompatibleBaseline, want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("%w: baseline ignores %v, run ignores %v", domain.ErrIncompatibleBaseline, want, got)
		}
	}
	return nil
}

func normalizePatterns(patterns []string) []string {
	m, err := ignore.New(patterns, true)
	if err != nil {
		return patterns
	}
	out := m.Patterns()
	sort.Strings(out)
	return out
}

// ValidateManifest checks the manifest version and shape
func ValidateManifest(m *domain.BaselineManifest) error {
	if m == nil {
		return fmt.Errorf("%w: nil manifest", domain.ErrInvalidManifest)
	}
	if m.Version != domain.ManifestVersion {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrUnsupportedManifestVersion, m.Version, domain.ManifestVersion)
	}
	if m.Root == nil || !m.Root.IsDir() {
		return fmt.Errorf("%w: root entry missing or not a directory", domain.ErrInvalidManifest)
	}
	return nil
}

// reconciliation holds per-run state
type reconciliation struct {
	*Comparer
	live     adapter.FileSystem
	manifest *domain.BaselineManifest
	pool     *parallel.Pool
}

// Compare reconciles live against m. A baseline entry lacking an explicitly
// requested digest aborts the run with domain.ErrBaselineMissingHash.
func (c *Comparer) Compare(ctx context.Context, live adapter.FileSystem, m *domain.BaselineManifest) (*domain.ComparisonResult, error) {
	if err := ValidateManifest(m); err != nil {
		return nil, err
	}
	if err := adapter.RequireDirectory(ctx, live, "live"); err != nil {
		return nil, err
	}

	start := time.Now()
	r := &reconciliation{
		Comparer: c,
		live:     live,
		manifest: m,
		pool:     parallel.NewPool(c.opts.MaxParallelism),
	}
	c.log.Debug("reconciliation started",
		"live", live.Root(),
		"baseline", m.SourcePath,
		"created_at", m.CreatedAt)

	root, err := r.compareDirs(ctx, "", "", "", m.Root)
	if err != nil {
		return nil, err
	}

	rightPath := c.opts.ManifestPath
	if rightPath == "" {
		rightPath = m.SourcePath
	}
	result := &domain.ComparisonResult{
		LeftPath:  live.Root(),
		RightPath: rightPath,
		Root:      root,
		Summary:   summary.Calculate(root),
		Baseline: &domain.BaselineMetadata{
			ManifestPath: c.opts.ManifestPath,
			SourcePath:   m.SourcePath,
			CreatedAt:    m.CreatedAt,
			Algorithms:   m.Algorithms,
		},
	}
	c.log.Debug("reconciliation finished",
		"status", root.Status,
		"files", result.Summary.Total,
		"duration", time.Since(start))
	return result, nil
}

// match is one joined name at a directory level
type match struct {
	name string
	live *domain.FileInfo
	base *domain.BaselineEntry
}

func (r *reconciliation) publish(n *domain.ComparisonNode, final bool) {
	if r.opts.Publisher != nil {
		r.opts.Publisher.Publish(n, final)
	}
}

func (r *reconciliation) compareDirs(ctx context.Context, name, relPath, livePath string, base *domain.BaselineEntry) (*domain.ComparisonNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.reporter.DirectoryStarted(relPath)
	r.publish(domain.NewDirectoryNode(name, relPath, nil), false)

	liveEntries, err := r.listLive(ctx, livePath, relPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if relPath == "" {
			return nil, fmt.Errorf("failed to enumerate root: %w", err)
		}
		return r.failedDir(name, relPath, err), nil
	}

	matches := r.join(relPath, liveEntries, r.baseChildren(relPath, base))
	children := make([]*domain.ComparisonNode, len(matches))
	err = r.pool.ForEach(ctx, len(matches), func(ctx context.Context, i int) error {
		node, err := r.compareEntry(ctx, relPath, matches[i])
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

func (r *reconciliation) listLive(ctx context.Context, dir, relDir string) ([]domain.FileInfo, error) {
	entries, err := r.live.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	kept := entries[:0]
	for _, fi := range entries {
		if !r.matcher.ShouldIgnore(domain.JoinPath(relDir, fi.Name), fi.IsDir()) {
			kept = append(kept, fi)
		}
	}
	return kept, nil
}

func (r *reconciliation) baseChildren(relDir string, base *domain.BaselineEntry) []*domain.BaselineEntry {
	if base == nil {
		return nil
	}
	kept := make([]*domain.BaselineEntry, 0, len(base.Children))
	for _, e := range base.Children {
		if e != nil && !r.matcher.ShouldIgnore(domain.JoinPath(relDir, e.Name), e.IsDir()) {
			kept = append(kept, e)
		}
	}
	return kept
}

// join unions live and baseline entries by collation key; on a same-side
// collision the ordinally first name wins.
func (r *reconciliation) join(relDir string, liveEntries []domain.FileInfo, baseEntries []*domain.BaselineEntry) []match {
	cs := r.opts.CaseSensitive
	byKey := make(map[string]*match, len(liveEntries)+len(baseEntries))
	var order []string

	slot := func(name string) *match {
		key := domain.NameKey(name, cs)
		m, ok := byKey[key]
		if !ok {
			m = &match{name: name}
			byKey[key] = m
			order = append(order, key)
		}
		return m
	}
	collision := func(name, kept string) {
		r.log.Warn("name collides under case-insensitive matching, entry skipped",
			"path", domain.JoinPath(relDir, name),
			"kept", kept)
	}

	sort.Slice(liveEntries, func(i, j int) bool { return liveEntries[i].Name < liveEntries[j].Name })
	for i := range liveEntries {
		fi := &liveEntries[i]
		m := slot(fi.Name)
		if m.live != nil {
			collision(fi.Name, m.live.Name)
			continue
		}
		m.live = fi
	}

	sort.Slice(baseEntries, func(i, j int) bool { return baseEntries[i].Name < baseEntries[j].Name })
	for _, e := range baseEntries {
		m := slot(e.Name)
		if m.base != nil {
			collision(e.Name, m.base.Name)
			continue
		}
		m.base = e
	}

	out := make([]match, len(order))
	for i, key := range order {
		out[i] = *byKey[key]
	}
	sort.Slice(out, func(i, j int) bool {
		return domain.CompareNames(out[i].name, out[j].name, cs) < 0
	})
	return out
}

func (r *reconciliation) compareEntry(ctx context.Context, relDir string, m match) (*domain.ComparisonNode, error) {
	relPath := domain.JoinPath(relDir, m.name)

	switch {
	case m.live != nil && m.base != nil:
		baseInfo := entryInfo(m.base)
		switch {
		case m.live.IsDir() && m.base.IsDir():
			return r.compareDirs(ctx, m.name, relPath, m.live.Path, m.base)
		case m.live.IsDir() != m.base.IsDir():
			detail := &domain.FileComparisonDetail{
				ErrorMessage: compare.TypeMismatchMessage(m.live.IsDir(), m.base.IsDir()),
			}
			detail.SetLeft(*m.live)
			detail.SetRight(baseInfo)
			node := domain.NewFileNode(m.name, relPath, domain.StatusDifferent, detail)
			r.finishFile(node)
			return node, nil
		default:
			return r.compareFile(ctx, m.name, relPath, *m.live, m.base)
		}
	case m.live != nil:
		return r.liveOnly(ctx, relPath, *m.live)
	default:
		return r.baselineOnly(relPath, m.base, true), nil
	}
}

func (r *reconciliation) compareFile(ctx context.Context, name, relPath string, live domain.FileInfo, base *domain.BaselineEntry) (*domain.ComparisonNode, error) {
	detail := &domain.FileComparisonDetail{}
	detail.SetLeft(live)
	detail.SetRight(entryInfo(base))

	algos, err := r.algorithmsFor(base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", relPath, err)
	}

	if len(algos) == 0 {
		baseInfo := entryInfo(base)
		status := domain.StatusEqual
		if r.meta.Compare(&live, &baseInfo) != diff.FilesIdentical {
			status = domain.StatusDifferent
		}
		node := domain.NewFileNode(name, relPath, status, detail)
		r.finishFile(node)
		return node, nil
	}

	baseHashes := make(map[domain.HashAlgorithm]string, len(algos))
	for _, a := range algos {
		baseHashes[a] = base.Hashes[a]
	}
	detail.RightHashes = baseHashes

	liveHashes, err := checksum.ComputeFile(ctx, r.calc, r.live, live.Path, algos, r.wrap)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		detail.ErrorMessage = fmt.Sprintf("hash live: %v", err)
		node := domain.NewFileNode(name, relPath, domain.StatusError, detail)
		r.log.Warn("file hashing failed", "path", relPath, "error", err)
		r.reporter.EntryFailed(relPath, err)
		r.finishFile(node)
		return node, nil
	}
	detail.LeftHashes = liveHashes

	equal, err := diff.DigestsEqual(liveHashes, baseHashes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", relPath, err)
	}
	status := domain.StatusDifferent
	if equal {
		status = domain.StatusEqual
	}
	node := domain.NewFileNode(name, relPath, status, detail)
	r.finishFile(node)
	return node, nil
}

// algorithmsFor picks the digests to compare for one baseline file:
// explicitly requested ones first, then whatever the entry carries, then
// the manifest defaults. An empty result selects metadata comparison.
func (r *reconciliation) algorithmsFor(base *domain.BaselineEntry) ([]domain.HashAlgorithm, error) {
	if len(r.opts.Algorithms) > 0 {
		return r.opts.Algorithms, requireHashes(base, r.opts.Algorithms)
	}

	var own []domain.HashAlgorithm
	for _, a := range domain.SortedAlgorithms(base.Hashes) {
		if a.IsValid() && base.Hashes[a] != "" {
			own = append(own, a)
		}
	}
	if len(own) > 0 {
		return own, nil
	}

	if len(r.manifest.Algorithms) > 0 {
		return r.manifest.Algorithms, requireHashes(base, r.manifest.Algorithms)
	}
	return nil, nil
}

func requireHashes(base *domain.BaselineEntry, algos []domain.HashAlgorithm) error {
	for _, a := range algos {
		if base.Hashes[a] == "" {
			return fmt.Errorf("%w for algorithm %s", domain.ErrBaselineMissingHash, a)
		}
	}
	return nil
}

// liveOnly builds the subtree of an entry missing from the baseline
func (r *reconciliation) liveOnly(ctx context.Context, relPath string, info domain.FileInfo) (*domain.ComparisonNode, error) {
	if !info.IsDir() {
		detail := &domain.FileComparisonDetail{}
		detail.SetLeft(info)
		node := domain.NewFileNode(info.Name, relPath, domain.StatusLeftOnly, detail)
		r.finishFile(node)
		return node, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.reporter.DirectoryStarted(relPath)

	entries, err := r.listLive(ctx, info.Path, relPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return r.failedDir(info.Name, relPath, err), nil
	}

	children := make([]*domain.ComparisonNode, len(entries))
	err = r.pool.ForEach(ctx, len(entries), func(ctx context.Context, i int) error {
		child := entries[i]
		node, err := r.liveOnly(ctx, domain.JoinPath(relPath, child.Name), child)
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
	node := domain.NewOneSidedDirectoryNode(info.Name, relPath, children, domain.StatusLeftOnly)
	r.publish(node, true)
	return node, nil
}

// baselineOnly builds the subtree of an entry that vanished from the live
// tree. It never touches the filesystem, so the whole subtree is built in
// one call and only its top node is published.
func (r *reconciliation) baselineOnly(relPath string, e *domain.BaselineEntry, top bool) *domain.ComparisonNode {
	if !e.IsDir() {
		detail := &domain.FileComparisonDetail{}
		detail.SetRight(entryInfo(e))
		if len(e.Hashes) > 0 {
			detail.RightHashes = e.Hashes
		}
		node := domain.NewFileNode(e.Name, relPath, domain.StatusRightOnly, detail)
		r.reporter.FileCompared(relPath, node.Status)
		if top {
			r.publish(node, true)
		}
		return node
	}

	var children []*domain.ComparisonNode
	for _, c := range r.baseChildren(relPath, e) {
		children = append(children, r.baselineOnly(domain.JoinPath(relPath, c.Name), c, false))
	}
	sortNodes(children, r.opts.CaseSensitive)
	node := domain.NewOneSidedDirectoryNode(e.Name, relPath, children, domain.StatusRightOnly)
	if top {
		r.publish(node, true)
	}
	return node
}

func (r *reconciliation) failedDir(name, relPath string, err error) *domain.ComparisonNode {
	node := domain.NewFailedDirectoryNode(name, relPath, err)
	r.log.Warn("directory enumeration failed", "path", relPath, "error", err)
	r.reporter.EntryFailed(relPath, err)
	r.publish(node, true)
	return node
}

func (r *reconciliation) finishFile(node *domain.ComparisonNode) {
	r.reporter.FileCompared(node.RelativePath, node.Status)
	r.publish(node, true)
}

// entryInfo converts a baseline entry to the adapter metadata shape so the
// shared comparers can be applied to it.
func entryInfo(e *domain.BaselineEntry) domain.FileInfo {
	info := domain.FileInfo{
		Name: e.Name,
		Path: e.RelativePath,
		Type: domain.FileTypeRegular,
	}
	if e.IsDir() {
		info.Type = domain.FileTypeDirectory
	}
	if e.Size != nil {
		info.Size = *e.Size
	}
	if e.ModTime != nil {
		info.ModTime = *e.ModTime
	}
	return info
}

func sortNodes(nodes []*domain.ComparisonNode, caseSensitive bool) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return domain.CompareNames(nodes[i].Name, nodes[j].Name, caseSensitive) < 0
	})
}
