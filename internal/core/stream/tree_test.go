package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/Treecmp/internal/adapter/memory"
	"github.com/Ning0612/Treecmp/internal/core/compare"
	"github.com/Ning0612/Treecmp/internal/core/summary"
	"github.com/Ning0612/Treecmp/internal/domain"
)

func fileNode(path string, status domain.Status) *domain.ComparisonNode {
	name := path
	if i := len(domain.ParentPath(path)); i > 0 {
		name = path[i+1:]
	}
	return domain.NewFileNode(name, path, status, nil)
}

func TestTree_EmptySnapshot(t *testing.T) {
	snap := New(true).Snapshot()
	if snap == nil || !snap.IsDir() || snap.Status != domain.StatusEqual || len(snap.Children) != 0 {
		t.Errorf("unexpected empty snapshot: %+v", snap)
	}
}

func TestTree_OutOfOrderPublish(t *testing.T) {
	tree := New(true)

	// Deep leaf arrives before any of its ancestors
	tree.Publish(fileNode("a/b/c.txt", domain.StatusLeftOnly), true)

	snap := tree.Snapshot()
	if len(snap.Children) != 1 || snap.Children[0].Name != "a" {
		t.Fatalf("expected placeholder a, got %+v", snap.Children)
	}
	b := snap.Children[0].Children[0]
	if b.RelativePath != "a/b" || len(b.Children) != 1 || b.Children[0].Name != "c.txt" {
		t.Fatalf("unexpected placeholder b: %+v", b)
	}
	if snap.Status != domain.StatusLeftOnly {
		t.Errorf("placeholder statuses should aggregate, got %v", snap.Status)
	}

	tree.Publish(fileNode("a/z.txt", domain.StatusRightOnly), true)
	if got := tree.Snapshot().Status; got != domain.StatusDifferent {
		t.Errorf("mixed sides should aggregate to Different, got %v", got)
	}
	if bad := summary.Verify(tree.Snapshot()); bad != nil {
		t.Errorf("snapshot inconsistent at %q", bad.RelativePath)
	}
}

func TestTree_FinalNotOverwritten(t *testing.T) {
	tree := New(true)
	final := domain.NewDirectoryNode("d", "d", []*domain.ComparisonNode{fileNode("d/x", domain.StatusDifferent)})
	tree.Publish(final, true)
	tree.Publish(domain.NewDirectoryNode("d", "d", nil), false)

	node, isFinal, ok := tree.Get("d")
	if !ok || !isFinal || node != final {
		t.Errorf("final node was replaced: %+v final=%v", node, isFinal)
	}
}

func TestTree_FinalRegistersEmbeddedChildren(t *testing.T) {
	tree := New(true)
	sub := domain.NewOneSidedDirectoryNode("deep", "only/deep", []*domain.ComparisonNode{
		fileNode("only/deep/f", domain.StatusRightOnly),
	}, domain.StatusRightOnly)
	only := domain.NewOneSidedDirectoryNode("only", "only", []*domain.ComparisonNode{sub}, domain.StatusRightOnly)

	tree.Publish(only, true)

	if _, isFinal, ok := tree.Get("only/deep/f"); !ok || !isFinal {
		t.Error("embedded descendants should be registered as final")
	}
	snap := tree.Snapshot()
	if snap.Status != domain.StatusRightOnly || snap.Children[0] != only {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestTree_NonFinalRecomputed(t *testing.T) {
	tree := New(true)
	tree.Publish(domain.NewDirectoryNode("d", "d", nil), false)
	tree.Publish(fileNode("d/a", domain.StatusEqual), true)

	if got := tree.Snapshot().Children[0].Status; got != domain.StatusEqual {
		t.Errorf("expected Equal, got %v", got)
	}

	tree.Publish(fileNode("d/b", domain.StatusError), true)
	if got := tree.Snapshot().Children[0].Status; got != domain.StatusError {
		t.Errorf("expected Error after failing child, got %v", got)
	}
}

func TestTree_SnapshotsAreIndependent(t *testing.T) {
	tree := New(true)
	tree.Publish(fileNode("a", domain.StatusEqual), true)
	first := tree.Snapshot()

	tree.Publish(fileNode("b", domain.StatusDifferent), true)
	second := tree.Snapshot()

	if len(first.Children) != 1 || first.Status != domain.StatusEqual {
		t.Errorf("earlier snapshot changed: %+v", first)
	}
	if len(second.Children) != 2 || second.Status != domain.StatusDifferent {
		t.Errorf("unexpected later snapshot: %+v", second)
	}
}

func TestTree_SortedChildren(t *testing.T) {
	tree := New(false)
	for _, name := range []string{"b", "C", "a"} {
		tree.Publish(fileNode(name, domain.StatusEqual), true)
	}
	snap := tree.Snapshot()
	got := strings.Join([]string{snap.Children[0].Name, snap.Children[1].Name, snap.Children[2].Name}, " ")
	if got != "a b C" {
		t.Errorf("unexpected order %q", got)
	}
}

func TestTree_Subscribe(t *testing.T) {
	tree := New(true)
	ch, cancel := tree.Subscribe()

	for i := 0; i < 10; i++ {
		tree.Publish(fileNode(fmt.Sprintf("f%d", i), domain.StatusEqual), true)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a notification")
	}
	// Notifications coalesce into a single pending signal
	select {
	case <-ch:
		t.Error("expected notifications to coalesce")
	default:
	}
	if tree.Version() != 10 {
		t.Errorf("expected version 10, got %d", tree.Version())
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	tree.Publish(fileNode("late", domain.StatusEqual), true)
}

func TestTree_WithEngine(t *testing.T) {
	left := memory.New("l")
	right := memory.New("r")
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		path := fmt.Sprintf("d%d/sub%d/f%d.txt", i%4, i%3, i)
		left.AddFile(path, []byte(path), t0)
		if i%5 != 0 {
			right.AddFile(path, []byte(path), t0)
		}
	}
	right.AddFile("d9/only/right.txt", []byte("r"), t0)

	tree := New(true)
	engine, err := compare.New(compare.Options{CaseSensitive: true, MaxParallelism: 4, Publisher: tree})
	if err != nil {
		t.Fatalf("compare.New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			snap := tree.Snapshot()
			if snap == nil || !snap.IsDir() {
				t.Error("snapshot must always be a directory root")
				return
			}
		}
	}()

	res, err := engine.Compare(ctx, left, right)
	cancel()
	wg.Wait()
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	want := summary.Flatten(res.Root, summary.FlattenOptions{IncludeRoot: true})
	got := summary.Flatten(tree.Snapshot(), summary.FlattenOptions{IncludeRoot: true})
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Path != want[i].Path || got[i].Status != want[i].Status {
			t.Errorf("entry %d: expected %s %v, got %s %v", i, want[i].Path, want[i].Status, got[i].Path, got[i].Status)
		}
	}
}
