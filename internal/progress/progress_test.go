package progress

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/Treecmp/internal/domain"
)

// TestCallbackReporter_Counters tests that every event advances its counter
func TestCallbackReporter_Counters(t *testing.T) {
	var updates []Update
	var mu sync.Mutex

	reporter := NewCallbackReporter(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	reporter.DirectoryStarted("")
	reporter.FileCompared("a.txt", domain.StatusEqual)
	reporter.BytesRead(100)
	reporter.EntryFailed("b.txt", errors.New("read failed"))

	mu.Lock()
	defer mu.Unlock()

	if len(updates) != 4 {
		t.Fatalf("expected 4 updates, got %d", len(updates))
	}

	last := updates[3]
	if last.DirectoriesScanned != 1 || last.FilesCompared != 1 || last.BytesRead != 100 || last.Errors != 1 {
		t.Errorf("unexpected counters: %+v", last)
	}
	if last.Type != UpdateError || last.Path != "b.txt" || last.Error == nil {
		t.Errorf("unexpected error update: %+v", last)
	}
	if updates[1].Type != UpdateFile || updates[1].Status != domain.StatusEqual {
		t.Errorf("unexpected file update: %+v", updates[1])
	}
}

// TestCountingReader tests byte counting through the reporter
func TestCountingReader(t *testing.T) {
	reporter := NewCallbackReporter(nil)
	data := strings.Repeat("x", 10000)

	cr := NewCountingReader(strings.NewReader(data), reporter)
	n, err := io.Copy(io.Discard, cr)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	if n != 10000 || cr.Total() != 10000 {
		t.Errorf("expected 10000 bytes, got copy=%d total=%d", n, cr.Total())
	}
	if got := reporter.Totals().BytesRead; got != 10000 {
		t.Errorf("expected reporter to see 10000 bytes, got %d", got)
	}
}

func TestWrapper(t *testing.T) {
	if Wrapper(nil) != nil {
		t.Error("nil reporter should give nil wrapper")
	}
	if Wrapper(NullReporter{}) != nil {
		t.Error("NullReporter should give nil wrapper")
	}

	reporter := NewCallbackReporter(nil)
	wrap := Wrapper(reporter)
	io.Copy(io.Discard, wrap(strings.NewReader("hello")))
	if got := reporter.Totals().BytesRead; got != 5 {
		t.Errorf("expected 5 bytes, got %d", got)
	}
}

// TestCallbackReporter_Concurrent tests concurrent progress updates
func TestCallbackReporter_Concurrent(t *testing.T) {
	reporter := NewCallbackReporter(func(u Update) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reporter.FileCompared("f", domain.StatusEqual)
				reporter.BytesRead(1)
			}
		}()
	}
	wg.Wait()

	totals := reporter.Totals()
	if totals.FilesCompared != 800 || totals.BytesRead != 800 {
		t.Errorf("unexpected totals: %+v", totals)
	}
}

// TestSecurity_CallbackDeadlock tests that callbacks don't cause deadlock
func TestSecurity_CallbackDeadlock(t *testing.T) {
	done := make(chan bool, 1)

	var reporter *CallbackReporter
	reporter = NewCallbackReporter(func(u Update) {
		// Re-entrant calls would deadlock if the lock were held
		switch u.Type {
		case UpdateDirectory:
			reporter.BytesRead(10)
		case UpdateFile:
			_ = reporter.Totals()
		}
	})

	go func() {
		reporter.DirectoryStarted("")
		reporter.FileCompared("x", domain.StatusDifferent)
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock detected - callback was called while holding lock")
	}
}

// TestFormatBytes tests byte formatting
func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{-5, "0 B"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %s, want %s", tt.bytes, got, tt.expected)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(2048); got != "2.0 KiB/s" {
		t.Errorf("FormatSpeed(2048) = %s", got)
	}
}

// TestNullReporter tests that NullReporter doesn't panic
func TestNullReporter(t *testing.T) {
	var r Reporter = NullReporter{}
	r.DirectoryStarted("")
	r.FileCompared("a", domain.StatusEqual)
	r.BytesRead(1)
	r.EntryFailed("a", errors.New("x"))
}
