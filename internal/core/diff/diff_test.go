package diff

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/Ning0612/Treecmp/internal/adapter/memory"
	"github.com/Ning0612/Treecmp/internal/domain"
)

func fileInfo(size int64, mtime time.Time) *domain.FileInfo {
	return &domain.FileInfo{
		Path:    "test.txt",
		Type:    domain.FileTypeRegular,
		Size:    size,
		ModTime: mtime,
	}
}

func TestDefaultComparer_FilesIdentical(t *testing.T) {
	now := time.Now()
	if got := NewToleranceComparer(0).Compare(fileInfo(100, now), fileInfo(100, now)); got != FilesIdentical {
		t.Errorf("Expected FilesIdentical, got %v", got)
	}
}

func TestDefaultComparer_FileModified_SizeDiff(t *testing.T) {
	now := time.Now()
	if got := NewToleranceComparer(0).Compare(fileInfo(100, now), fileInfo(200, now)); got != FileModified {
		t.Errorf("Expected FileModified, got %v", got)
	}
}

func TestDefaultComparer_Tolerance(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		tolerance time.Duration
		skew      time.Duration
		want      DiffResult
	}{
		{"exact required, exact", 0, 0, FilesIdentical},
		{"exact required, 1ns off", 0, time.Nanosecond, FileModified},
		{"within tolerance", 2 * time.Second, 2 * time.Second, FilesIdentical},
		{"within tolerance negative", 2 * time.Second, -time.Second, FilesIdentical},
		{"beyond tolerance", 2 * time.Second, 3 * time.Second, FileModified},
		{"negative tolerance clamps to zero", -time.Second, time.Millisecond, FileModified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewToleranceComparer(tt.tolerance)
			if got := c.Compare(fileInfo(1, now), fileInfo(1, now.Add(tt.skew))); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDefaultComparer_TypeMismatch(t *testing.T) {
	now := time.Now()
	dir := &domain.FileInfo{Path: "x", Type: domain.FileTypeDirectory, ModTime: now}
	if got := NewToleranceComparer(0).Compare(fileInfo(0, now), dir); got != FileModified {
		t.Errorf("Expected FileModified, got %v", got)
	}
}

func TestDigestsEqual(t *testing.T) {
	tests := []struct {
		name      string
		left      map[domain.HashAlgorithm]string
		right     map[domain.HashAlgorithm]string
		want      bool
		wantShape bool
	}{
		{"empty", map[domain.HashAlgorithm]string{}, map[domain.HashAlgorithm]string{}, true, false},
		{"equal ignoring case", map[domain.HashAlgorithm]string{"md5": "ABCD"}, map[domain.HashAlgorithm]string{"md5": "abcd"}, true, false},
		{"one algorithm differs",
			map[domain.HashAlgorithm]string{"md5": "aa", "crc32": "bb"},
			map[domain.HashAlgorithm]string{"md5": "aa", "crc32": "cc"}, false, false},
		{"size mismatch", map[domain.HashAlgorithm]string{"md5": "aa"}, map[domain.HashAlgorithm]string{}, false, true},
		{"key mismatch", map[domain.HashAlgorithm]string{"md5": "aa"}, map[domain.HashAlgorithm]string{"sha256": "aa"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DigestsEqual(tt.left, tt.right)
			if tt.wantShape {
				if !errors.Is(err, domain.ErrHashMismatchShape) {
					t.Fatalf("expected ErrHashMismatchShape, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStreamsEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"both empty", "", "", true},
		{"identical short", "hello", "hello", true},
		{"identical across blocks", strings.Repeat("x", 100), strings.Repeat("x", 100), true},
		{"exact block multiple", strings.Repeat("y", 32), strings.Repeat("y", 32), true},
		{"differ in last block", strings.Repeat("x", 99) + "a", strings.Repeat("x", 99) + "b", false},
		{"left shorter", "abc", "abcd", false},
		{"right shorter at block boundary", strings.Repeat("z", 17), strings.Repeat("z", 16), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StreamsEqual(context.Background(), strings.NewReader(tt.a), strings.NewReader(tt.b), 16)
			if err != nil {
				t.Fatalf("StreamsEqual failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStreamsEqual_ShortReads(t *testing.T) {
	data := strings.Repeat("abcdefgh", 64)
	got, err := StreamsEqual(context.Background(),
		iotest.OneByteReader(strings.NewReader(data)),
		iotest.HalfReader(strings.NewReader(data)), 50)
	if err != nil {
		t.Fatalf("StreamsEqual failed: %v", err)
	}
	if !got {
		t.Error("expected equal streams despite uneven read sizes")
	}
}

func TestStreamsEqual_ReadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := StreamsEqual(context.Background(), iotest.ErrReader(boom), strings.NewReader("x"), 16)
	if !errors.Is(err, boom) {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestStreamsEqual_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := StreamsEqual(ctx, strings.NewReader("a"), strings.NewReader("a"), 16)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// cancelOnFirstRead cancels its context once the first block has been read
type cancelOnFirstRead struct {
	r      io.Reader
	cancel context.CancelFunc
	reads  int
}

func (c *cancelOnFirstRead) Read(p []byte) (int, error) {
	c.reads++
	if c.reads == 1 {
		defer c.cancel()
	}
	return c.r.Read(p)
}

func TestStreamsEqual_CancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	data := strings.Repeat("x", 1<<16)
	a := &cancelOnFirstRead{r: strings.NewReader(data), cancel: cancel}
	b := iotest.OneByteReader(strings.NewReader(data))

	_, err := StreamsEqual(ctx, a, b, 1024)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if a.reads != 1 {
		t.Errorf("expected the comparison to stop after the first block, got %d reads", a.reads)
	}
}

func TestContentEqual(t *testing.T) {
	now := time.Now()
	left := memory.New("left")
	right := memory.New("right")
	left.AddFile("a.txt", []byte("same"), now)
	right.AddFile("A.TXT", []byte("same"), now)
	left.AddFile("b.txt", []byte("one"), now)
	right.AddFile("b.txt", []byte("two"), now)

	ctx := context.Background()
	eq, err := ContentEqual(ctx, left, "a.txt", right, "A.TXT", 0, nil)
	if err != nil || !eq {
		t.Errorf("expected equal content, got %v (err %v)", eq, err)
	}

	eq, err = ContentEqual(ctx, left, "b.txt", right, "b.txt", 0, nil)
	if err != nil || eq {
		t.Errorf("expected different content, got %v (err %v)", eq, err)
	}

	if _, err := ContentEqual(ctx, left, "missing", right, "b.txt", 0, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
