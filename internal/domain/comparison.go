package domain

import (
	"fmt"
	"strings"
	"time"
)

// NodeType distinguishes directories from files in a comparison tree
type NodeType int

const (
	NodeTypeDirectory NodeType = iota
	NodeTypeFile
)

// String returns the string representation of the node type
func (t NodeType) String() string {
	switch t {
	case NodeTypeDirectory:
		return "directory"
	case NodeTypeFile:
		return "file"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *NodeType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "directory":
		*t = NodeTypeDirectory
	case "file":
		*t = NodeTypeFile
	default:
		return fmt.Errorf("unknown node type %q", b)
	}
	return nil
}

// Status is the verdict for a single entry of the comparison tree
type Status int

const (
	// StatusEqual indicates both sides hold the same entry
	StatusEqual Status = iota
	// StatusDifferent indicates both sides hold the entry but it differs
	StatusDifferent
	// StatusLeftOnly indicates the entry only exists on the left side
	StatusLeftOnly
	// StatusRightOnly indicates the entry only exists on the right side
	StatusRightOnly
	// StatusError indicates the entry could not be compared
	StatusError
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusEqual:
		return "equal"
	case StatusDifferent:
		return "different"
	case StatusLeftOnly:
		return "left-only"
	case StatusRightOnly:
		return "right-only"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus parses the string form produced by String
func ParseStatus(s string) (Status, error) {
	for st := StatusEqual; st <= StatusError; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// FileComparisonDetail carries the per-side metadata and digests for a file
// node. Fields for a side are nil when that side lacks the entry.
type FileComparisonDetail struct {
	LeftSize     *int64                   `json:"left_size,omitempty"`
	RightSize    *int64                   `json:"right_size,omitempty"`
	LeftModTime  *time.Time               `json:"left_mod_time,omitempty"`
	RightModTime *time.Time               `json:"right_mod_time,omitempty"`
	LeftHashes   map[HashAlgorithm]string `json:"left_hashes,omitempty"`
	RightHashes  map[HashAlgorithm]string `json:"right_hashes,omitempty"`
	ErrorMessage string                   `json:"error,omitempty"`
}

// SetLeft records the left side's metadata. Directories carry no size.
func (d *FileComparisonDetail) SetLeft(info FileInfo) {
	d.LeftSize, d.LeftModTime = sideMetadata(info)
}

// SetRight records the right side's metadata. Directories carry no size.
func (d *FileComparisonDetail) SetRight(info FileInfo) {
	d.RightSize, d.RightModTime = sideMetadata(info)
}

func sideMetadata(info FileInfo) (*int64, *time.Time) {
	mtime := info.ModTime
	if info.IsDir() {
		return nil, &mtime
	}
	size := info.Size
	return &size, &mtime
}

// ComparisonNode is an immutable node of the comparison tree. Nodes are
// shared between snapshots and must not be modified after construction.
type ComparisonNode struct {
	Name         string                `json:"name"`
	RelativePath string                `json:"path"`
	Type         NodeType              `json:"type"`
	Status       Status                `json:"status"`
	Detail       *FileComparisonDetail `json:"detail,omitempty"`
	Children     []*ComparisonNode     `json:"children,omitempty"`
}

// IsDir returns true for directory nodes
func (n *ComparisonNode) IsDir() bool {
	return n.Type == NodeTypeDirectory
}

// NewFileNode builds a file node.
func NewFileNode(name, relPath string, status Status, detail *FileComparisonDetail) *ComparisonNode {
	return &ComparisonNode{
		Name:         name,
		RelativePath: relPath,
		Type:         NodeTypeFile,
		Status:       status,
		Detail:       detail,
	}
}

// NewDirectoryNode builds a directory node whose status is derived from its
// children. children must already be sorted.
func NewDirectoryNode(name, relPath string, children []*ComparisonNode) *ComparisonNode {
	return &ComparisonNode{
		Name:         name,
		RelativePath: relPath,
		Type:         NodeTypeDirectory,
		Status:       AggregateStatus(children),
		Children:     children,
	}
}

// NewOneSidedDirectoryNode builds a directory node present on one side only.
// An empty one-sided directory takes the side status rather than Equal.
func NewOneSidedDirectoryNode(name, relPath string, children []*ComparisonNode, side Status) *ComparisonNode {
	status := side
	if len(children) > 0 {
		status = AggregateStatus(children)
	}
	return &ComparisonNode{
		Name:         name,
		RelativePath: relPath,
		Type:         NodeTypeDirectory,
		Status:       status,
		Children:     children,
	}
}

// NewFailedDirectoryNode builds a directory node for a directory that could
// not be enumerated.
func NewFailedDirectoryNode(name, relPath string, err error) *ComparisonNode {
	return &ComparisonNode{
		Name:         name,
		RelativePath: relPath,
		Type:         NodeTypeDirectory,
		Status:       StatusError,
		Detail:       &FileComparisonDetail{ErrorMessage: err.Error()},
	}
}

// AggregateStatus derives a directory verdict from its children:
// Error wins, then Different (or a mix of LeftOnly and RightOnly), then
// LeftOnly, then RightOnly. No children means Equal.
func AggregateStatus(children []*ComparisonNode) Status {
	var left, right, different bool
	for _, c := range children {
		switch c.Status {
		case StatusError:
			return StatusError
		case StatusDifferent:
			different = true
		case StatusLeftOnly:
			left = true
		case StatusRightOnly:
			right = true
		}
	}

	switch {
	case different || (left && right):
		return StatusDifferent
	case left:
		return StatusLeftOnly
	case right:
		return StatusRightOnly
	default:
		return StatusEqual
	}
}

// ComparisonSummary counts file verdicts. Directories are not counted.
type ComparisonSummary struct {
	Total     int `json:"total"`
	Equal     int `json:"equal"`
	Different int `json:"different"`
	LeftOnly  int `json:"left_only"`
	RightOnly int `json:"right_only"`
	Errors    int `json:"errors"`
}

// HasDifferences reports whether any file is not Equal
func (s ComparisonSummary) HasDifferences() bool {
	return s.Different > 0 || s.LeftOnly > 0 || s.RightOnly > 0 || s.Errors > 0
}

// ComparisonResult is the outcome of a completed comparison run
type ComparisonResult struct {
	LeftPath  string            `json:"left_path"`
	RightPath string            `json:"right_path"`
	Root      *ComparisonNode   `json:"root"`
	Summary   ComparisonSummary `json:"summary"`
	Baseline  *BaselineMetadata `json:"baseline,omitempty"`
}

// NodePublisher receives nodes as the engines complete them. final reports
// that the node's children are complete.
type NodePublisher interface {
	Publish(node *ComparisonNode, final bool)
}

// NameKey returns the map key for an entry name under the active collation.
func NameKey(name string, caseSensitive bool) string {
	if caseSensitive {
		return name
	}
	return strings.ToLower(name)
}

// CompareNames orders two names under the active collation: ordinal when
// case sensitive, ordinal over lowered names otherwise.
func CompareNames(a, b string, caseSensitive bool) int {
	if !caseSensitive {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// Walk visits n and its descendants depth first, parents before children.
// Returning an error from fn stops the walk.
func Walk(n *ComparisonNode, fn func(*ComparisonNode) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Describe returns a one-line description of a node, used in logs and CLI output
func (n *ComparisonNode) Describe() string {
	if n.Detail != nil && n.Detail.ErrorMessage != "" {
		return fmt.Sprintf("%s [%s] %s", n.RelativePath, n.Status, n.Detail.ErrorMessage)
	}
	return fmt.Sprintf("%s [%s]", n.RelativePath, n.Status)
}
