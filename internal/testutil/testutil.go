package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// FixedTime is the modification time stamped on fixture files unless a test
// asks for another one.
var FixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// CreateTestFile creates a test file with the given content, creating parent
// directories as needed. name may contain forward slashes.
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	SetModTime(t, path, FixedTime)

	return path
}

// CreateTestDir creates a (possibly nested) directory under dir
func CreateTestDir(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("failed to create test dir: %v", err)
	}
	return path
}

// CreateTree writes every path→content pair under dir with FixedTime as mtime.
// Paths ending in "/" create empty directories.
func CreateTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		if name[len(name)-1] == '/' {
			CreateTestDir(t, dir, name)
			continue
		}
		CreateTestFile(t, dir, name, []byte(content))
	}
}

// SetModTime sets both atime and mtime of path
func SetModTime(t *testing.T, path string, modTime time.Time) {
	t.Helper()

	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
}

// CreateTestFileWithSize creates a test file with random content of the given size
func CreateTestFileWithSize(t *testing.T, dir, name string, size int64) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	defer file.Close()

	// Write random data in chunks
	const chunkSize = 1024 * 1024 // 1MB chunks
	buf := make([]byte, chunkSize)
	remaining := size

	for remaining > 0 {
		writeSize := chunkSize
		if remaining < int64(chunkSize) {
			writeSize = int(remaining)
		}

		rand.Read(buf[:writeSize])
		if _, err := file.Write(buf[:writeSize]); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}

		remaining -= int64(writeSize)
	}

	return path
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		<-ticker.C
	}
}

// AssertEventually asserts that a condition becomes true within timeout
func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()

	if !WaitForCondition(timeout, condition) {
		if len(msgAndArgs) > 0 {
			t.Fatalf("condition not met within %v: %v", timeout, msgAndArgs[0])
		} else {
			t.Fatalf("condition not met within %v", timeout)
		}
	}
}
