// Package stream assembles nodes published out of order by the engines
// into a tree that can be rendered at any moment.
//
// Nodes are kept in a flat map keyed by relative path plus a parent to
// children index. Snapshots are rebuilt from the index on demand; a
// previously returned snapshot is never patched.
package stream

import (
	"sort"
	"strings"
	"sync"

	"github.com/Ning0612/Treecmp/internal/domain"
)

type record struct {
	node  *domain.ComparisonNode
	final bool
}

// Tree implements domain.NodePublisher
type Tree struct {
	mu            sync.Mutex
	caseSensitive bool
	nodes         map[string]record
	children      map[string]map[string]struct{}
	version       uint64
	subs          map[int]chan struct{}
	nextSub       int
}

// New creates an empty tree holding only a placeholder root
func New(caseSensitive bool) *Tree {
	t := &Tree{
		caseSensitive: caseSensitive,
		nodes:         make(map[string]record),
		children:      make(map[string]map[string]struct{}),
		subs:          make(map[int]chan struct{}),
	}
	t.nodes[""] = record{node: placeholder("")}
	return t
}

func placeholder(path string) *domain.ComparisonNode {
	name := path[strings.LastIndex(path, "/")+1:]
	return domain.NewDirectoryNode(name, path, nil)
}

// Publish records node. A final node is authoritative for its whole
// subtree and is never replaced by a later non-final publish.
func (t *Tree) Publish(node *domain.ComparisonNode, final bool) {
	if node == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.storeLocked(node, final) {
		return
	}
	t.version++
	for _, ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (t *Tree) storeLocked(node *domain.ComparisonNode, final bool) bool {
	path := node.RelativePath
	if existing, ok := t.nodes[path]; ok && existing.final && !final {
		return false
	}

	t.nodes[path] = record{node: node, final: final}
	t.linkLocked(path)

	if final && node.IsDir() {
		// Embedded children are complete; link them even if their own
		// publish has not arrived yet
		set := make(map[string]struct{}, len(node.Children))
		for _, c := range node.Children {
			set[c.RelativePath] = struct{}{}
			t.storeLocked(c, true)
		}
		t.children[path] = set
	}
	return true
}

// linkLocked registers path under its parent, creating placeholder
// ancestors as needed
func (t *Tree) linkLocked(path string) {
	for path != "" {
		parent := domain.ParentPath(path)
		set, ok := t.children[parent]
		if !ok {
			set = make(map[string]struct{})
			t.children[parent] = set
		}
		set[path] = struct{}{}

		if _, ok := t.nodes[parent]; ok {
			return
		}
		t.nodes[parent] = record{node: placeholder(parent)}
		path = parent
	}
}

// Snapshot returns a fully linked tree of everything published so far.
// Directories that are not final get their status recomputed from the
// children known at this moment.
func (t *Tree) Snapshot() *domain.ComparisonNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buildLocked("")
}

func (t *Tree) buildLocked(path string) *domain.ComparisonNode {
	rec := t.nodes[path]
	if rec.final || !rec.node.IsDir() {
		return rec.node
	}

	kids := make([]*domain.ComparisonNode, 0, len(t.children[path]))
	for child := range t.children[path] {
		kids = append(kids, t.buildLocked(child))
	}
	sort.Slice(kids, func(i, j int) bool {
		return domain.CompareNames(kids[i].Name, kids[j].Name, t.caseSensitive) < 0
	})
	return domain.NewDirectoryNode(rec.node.Name, path, kids)
}

// Get returns the latest node published for path and whether it is final
func (t *Tree) Get(path string) (*domain.ComparisonNode, bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.nodes[path]
	return rec.node, rec.final, ok
}

// Version increases with every accepted publish
func (t *Tree) Version() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// Subscribe returns a channel that receives a value after publishes.
// Notifications coalesce: a slow reader sees one pending signal no matter
// how many publishes happened. Call cancel to stop and close the channel.
func (t *Tree) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
