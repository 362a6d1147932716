// Package lock guards a baseline manifest against concurrent writers and
// overlapping watch loops. The lock is a JSON file next to the manifest.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// Suffix is appended to the manifest path to form the lock path
	Suffix = ".lock"
	// DefaultStaleTimeout is the age after which a lock from another host is considered stale
	DefaultStaleTimeout = 30 * time.Minute
)

// LockInfo contains metadata about the lock holder
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Operation string    `json:"operation,omitempty"`
}

// FileLock is a file-based lock for one manifest
type FileLock struct {
	lockPath     string
	staleTimeout time.Duration
	info         *LockInfo
}

// ForManifest creates a lock guarding the manifest at manifestPath. The
// manifest's directory is created if needed.
func ForManifest(manifestPath string) (*FileLock, error) {
	if manifestPath == "" {
		return nil, fmt.Errorf("manifest path cannot be empty")
	}

	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &FileLock{
		lockPath:     abs + Suffix,
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.lockPath
}

// SetStaleTimeout sets the duration after which a foreign-host lock is considered stale
func (l *FileLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Acquire takes the lock for operation. Re-acquiring a lock this instance
// already holds only updates the operation.
func (l *FileLock) Acquire(operation string) error {
	if l.info != nil {
		existing, err := l.readLockInfo()
		if err == nil && l.isHeldByThisInstance(existing) {
			existing.Operation = operation
			if err := l.writeLockInfo(existing); err != nil {
				return err
			}
			// Keep l.info in step with the file or Release reports a stolen lock
			l.info.Operation = operation
			return nil
		}
	}

	existing, err := l.readLockInfo()
	if err == nil {
		if !l.isStale(existing) {
			return &LockError{
				Holder: existing,
				Reason: "lock is held by another process",
			}
		}
		if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	info := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Operation: operation,
	}

	// O_EXCL makes creation the point of acquisition
	file, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder, readErr := l.readLockInfo()
			if readErr != nil {
				return fmt.Errorf("lock acquisition race condition: %w", err)
			}
			return &LockError{
				Holder: holder,
				Reason: "lock acquired by another process during acquisition",
			}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(info); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.info = info
	return nil
}

// Release releases the lock. Releasing a lock that is not held is a no-op.
func (l *FileLock) Release() error {
	if l.info == nil {
		return nil
	}

	existing, err := l.readLockInfo()
	if err != nil {
		l.info = nil
		return nil
	}

	if !l.isHeldByThisInstance(existing) {
		l.info = nil
		return fmt.Errorf("lock was stolen by another process")
	}

	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	l.info = nil
	return nil
}

// IsLocked reports whether a live lock exists
func (l *FileLock) IsLocked() bool {
	info, err := l.readLockInfo()
	if err != nil {
		return false
	}
	return !l.isStale(info)
}

// GetHolder returns information about the current lock holder
func (l *FileLock) GetHolder() (*LockInfo, error) {
	info, err := l.readLockInfo()
	if err != nil {
		return nil, err
	}
	if l.isStale(info) {
		return nil, fmt.Errorf("lock is stale")
	}
	return info, nil
}

// ForceRelease removes the lock file regardless of holder
func (l *FileLock) ForceRelease() error {
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	l.info = nil
	return nil
}

func (l *FileLock) readLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}

	return &info, nil
}

func (l *FileLock) writeLockInfo(info *LockInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.lockPath, data, 0644)
}

// isStale reports a dead holder. Locks from other hosts cannot be probed and
// expire after staleTimeout instead.
func (l *FileLock) isStale(info *LockInfo) bool {
	hostname, _ := os.Hostname()

	if info.Hostname == hostname {
		return !processExists(info.PID)
	}

	return time.Since(info.StartTime) > l.staleTimeout
}

func (l *FileLock) isHeldByThisInstance(info *LockInfo) bool {
	if l.info == nil {
		return false
	}
	hostname, _ := os.Hostname()
	return info.PID == os.Getpid() &&
		info.Hostname == hostname &&
		l.info.StartTime.Equal(info.StartTime)
}

// LockError is returned when the lock is held elsewhere
type LockError struct {
	Holder *LockInfo
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("cannot acquire lock: %s (held by PID %d on %s since %s, operation: %s)",
			e.Reason,
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
			e.Holder.Operation,
		)
	}
	return fmt.Sprintf("cannot acquire lock: %s", e.Reason)
}

// IsLockError reports whether err is or wraps a LockError
func IsLockError(err error) bool {
	var le *LockError
	return errors.As(err, &le)
}
