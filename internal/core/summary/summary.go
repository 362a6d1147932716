// Package summary derives aggregate counts and flat projections from a
// finished comparison tree.
package summary

import "github.com/Ning0612/Treecmp/internal/domain"

// Calculate counts file verdicts over the whole tree. Directories are not
// counted, so Total always equals the number of file nodes.
func Calculate(root *domain.ComparisonNode) domain.ComparisonSummary {
	var s domain.ComparisonSummary
	domain.Walk(root, func(n *domain.ComparisonNode) error {
		if n.IsDir() {
			return nil
		}
		s.Total++
		switch n.Status {
		case domain.StatusEqual:
			s.Equal++
		case domain.StatusDifferent:
			s.Different++
		case domain.StatusLeftOnly:
			s.LeftOnly++
		case domain.StatusRightOnly:
			s.RightOnly++
		case domain.StatusError:
			s.Errors++
		}
		return nil
	})
	return s
}

// Entry is a read-only flat projection of one node, as consumed by report
// exporters.
type Entry struct {
	Path   string                       `json:"path"`
	Type   domain.NodeType              `json:"type"`
	Status domain.Status                `json:"status"`
	Depth  int                          `json:"depth"`
	Detail *domain.FileComparisonDetail `json:"detail,omitempty"`
}

// FlattenOptions filters the flat projection
type FlattenOptions struct {
	// OnlyDifferences drops Equal entries
	OnlyDifferences bool
	// IncludeRoot keeps the root directory entry
	IncludeRoot bool
}

// Flatten lists the tree depth first, parents before children, in the
// tree's sorted child order.
func Flatten(root *domain.ComparisonNode, opts FlattenOptions) []Entry {
	var out []Entry
	var visit func(n *domain.ComparisonNode, depth int)
	visit = func(n *domain.ComparisonNode, depth int) {
		keep := depth > 0 || opts.IncludeRoot
		if opts.OnlyDifferences && n.Status == domain.StatusEqual {
			// Equal directories have only Equal descendants
			return
		}
		if keep {
			out = append(out, Entry{
				Path:   n.RelativePath,
				Type:   n.Type,
				Status: n.Status,
				Depth:  depth,
				Detail: n.Detail,
			})
		}
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	if root != nil {
		visit(root, 0)
	}
	return out
}

// Verify checks that every directory's status equals the aggregation of its
// children. It returns the first offending node, or nil.
func Verify(root *domain.ComparisonNode) *domain.ComparisonNode {
	var bad *domain.ComparisonNode
	domain.Walk(root, func(n *domain.ComparisonNode) error {
		if bad != nil || !n.IsDir() {
			return nil
		}
		if n.Detail != nil && n.Detail.ErrorMessage != "" {
			// Unreadable directories carry their own Error status
			if n.Status != domain.StatusError {
				bad = n
			}
			return nil
		}
		if n.Status != domain.AggregateStatus(n.Children) && !emptyOneSided(n) {
			bad = n
		}
		return nil
	})
	return bad
}

func emptyOneSided(n *domain.ComparisonNode) bool {
	return len(n.Children) == 0 && (n.Status == domain.StatusLeftOnly || n.Status == domain.StatusRightOnly)
}
