package progress

import (
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Ning0612/Treecmp/internal/domain"
)

// Reporter receives progress events from a running comparison.
// Implementations must be safe for concurrent use; events arrive from
// every worker.
type Reporter interface {
	// DirectoryStarted is called when a directory pair begins enumeration
	DirectoryStarted(path string)
	// FileCompared is called once per file with its final verdict
	FileCompared(path string, status domain.Status)
	// BytesRead reports n more bytes read while hashing or verifying content
	BytesRead(n int64)
	// EntryFailed reports a per-entry error that was recorded in the tree
	EntryFailed(path string, err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type               UpdateType
	Path               string
	Status             domain.Status
	DirectoriesScanned int
	FilesCompared      int
	Errors             int
	BytesRead          int64
	Elapsed            time.Duration
	BytesPerSecond     float64
	Error              error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateDirectory UpdateType = iota
	UpdateFile
	UpdateBytes
	UpdateError
)

// CallbackReporter implements Reporter with a callback function.
// The callback is never invoked while the reporter's lock is held.
type CallbackReporter struct {
	callback  Callback
	mu        sync.Mutex
	dirs      int
	files     int
	errors    int
	bytesRead int64
	startTime time.Time
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback:  callback,
		startTime: time.Now(),
	}
}

// snapshotLocked builds an Update from the current counters; r.mu must be held
func (r *CallbackReporter) snapshotLocked(t UpdateType) Update {
	elapsed := time.Since(r.startTime)
	var bps float64
	if s := elapsed.Seconds(); s > 0 {
		bps = float64(r.bytesRead) / s
	}
	return Update{
		Type:               t,
		DirectoriesScanned: r.dirs,
		FilesCompared:      r.files,
		Errors:             r.errors,
		BytesRead:          r.bytesRead,
		Elapsed:            elapsed,
		BytesPerSecond:     bps,
	}
}

func (r *CallbackReporter) emit(update Update, callback Callback) {
	// Call callback outside lock to prevent deadlock
	if callback != nil {
		callback(update)
	}
}

// DirectoryStarted implements Reporter
func (r *CallbackReporter) DirectoryStarted(path string) {
	r.mu.Lock()
	r.dirs++
	update := r.snapshotLocked(UpdateDirectory)
	update.Path = path
	callback := r.callback
	r.mu.Unlock()

	r.emit(update, callback)
}

// FileCompared implements Reporter
func (r *CallbackReporter) FileCompared(path string, status domain.Status) {
	r.mu.Lock()
	r.files++
	update := r.snapshotLocked(UpdateFile)
	update.Path = path
	update.Status = status
	callback := r.callback
	r.mu.Unlock()

	r.emit(update, callback)
}

// BytesRead implements Reporter
func (r *CallbackReporter) BytesRead(n int64) {
	r.mu.Lock()
	r.bytesRead += n
	update := r.snapshotLocked(UpdateBytes)
	callback := r.callback
	r.mu.Unlock()

	r.emit(update, callback)
}

// EntryFailed implements Reporter
func (r *CallbackReporter) EntryFailed(path string, err error) {
	r.mu.Lock()
	r.errors++
	update := r.snapshotLocked(UpdateError)
	update.Path = path
	update.Error = err
	callback := r.callback
	r.mu.Unlock()

	r.emit(update, callback)
}

// Totals returns the counters accumulated so far
func (r *CallbackReporter) Totals() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(UpdateBytes)
}

// CountingReader wraps an io.Reader and reports every chunk read
type CountingReader struct {
	reader   io.Reader
	reporter Reporter
	total    int64
}

// NewCountingReader creates a new byte-counting reader
func NewCountingReader(r io.Reader, reporter Reporter) *CountingReader {
	return &CountingReader{
		reader:   r,
		reporter: reporter,
	}
}

// Read implements io.Reader
func (cr *CountingReader) Read(p []byte) (n int, err error) {
	n, err = cr.reader.Read(p)
	if n > 0 {
		cr.total += int64(n)
		if cr.reporter != nil {
			cr.reporter.BytesRead(int64(n))
		}
	}
	return n, err
}

// Total returns the number of bytes read through cr
func (cr *CountingReader) Total() int64 {
	return cr.total
}

// Wrapper returns a function wrapping readers with a CountingReader for
// reporter. A nil reporter yields a nil wrapper.
func Wrapper(reporter Reporter) func(io.Reader) io.Reader {
	if reporter == nil {
		return nil
	}
	if _, ok := reporter.(NullReporter); ok {
		return nil
	}
	return func(r io.Reader) io.Reader {
		return NewCountingReader(r, reporter)
	}
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) DirectoryStarted(path string)                   {}
func (NullReporter) FileCompared(path string, status domain.Status) {}
func (NullReporter) BytesRead(n int64)                              {}
func (NullReporter) EntryFailed(path string, err error)             {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}
