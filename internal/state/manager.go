package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/Treecmp/internal/domain"
)

// RunKind identifies what a recorded run did
type RunKind string

const (
	KindCompare  RunKind = "compare"
	KindSnapshot RunKind = "snapshot"
	KindVerify   RunKind = "verify"
)

// IsValid checks if the kind is known
func (k RunKind) IsValid() bool {
	switch k {
	case KindCompare, KindSnapshot, KindVerify:
		return true
	default:
		return false
	}
}

// Outcome values stored for a run
const (
	OutcomeEqual     = "equal"
	OutcomeDifferent = "different"
	OutcomeError     = "error"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeCaptured  = "captured"
)

func validOutcome(s string) bool {
	switch s {
	case OutcomeEqual, OutcomeDifferent, OutcomeError, OutcomeFailed, OutcomeCancelled, OutcomeCaptured:
		return true
	default:
		return false
	}
}

// Manager handles run history persistence
type Manager struct {
	db *sql.DB
}

// RunRecord represents a single comparison or snapshot run
type RunRecord struct {
	ID        string
	Kind      RunKind
	LeftPath  string
	RightPath string
	StartTime time.Time
	EndTime   time.Time
	Outcome   string
	Summary   domain.ComparisonSummary
	Error     string
}

// Duration returns how long the run took
func (r RunRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// NewManager creates a new state manager
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "treecmp.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connection pool to prevent "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}

	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

// initSchema creates the database schema
func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS comparison_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		left_path TEXT NOT NULL,
		right_path TEXT NOT NULL DEFAULT '',
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		outcome TEXT NOT NULL,
		total INTEGER DEFAULT 0,
		equal INTEGER DEFAULT 0,
		different INTEGER DEFAULT 0,
		left_only INTEGER DEFAULT 0,
		right_only INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_start ON comparison_runs(start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_kind_start ON comparison_runs(kind, start_time DESC);
	`

	_, err := m.db.Exec(schema)
	return err
}

// SaveRun records a run. An empty ID is filled with a new UUID, which is
// returned.
func (m *Manager) SaveRun(record RunRecord) (string, error) {
	if !record.Kind.IsValid() {
		return "", fmt.Errorf("invalid run kind: %s", record.Kind)
	}
	if !validOutcome(record.Outcome) {
		return "", fmt.Errorf("invalid outcome: %s", record.Outcome)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	query := `
		INSERT INTO comparison_runs (id, kind, left_path, right_path, start_time, end_time, outcome,
			total, equal, different, left_only, right_only, errors, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	s := record.Summary
	_, err := m.db.Exec(query,
		record.ID,
		string(record.Kind),
		record.LeftPath,
		record.RightPath,
		record.StartTime.UTC(),
		record.EndTime.UTC(),
		record.Outcome,
		s.Total,
		s.Equal,
		s.Different,
		s.LeftOnly,
		s.RightOnly,
		s.Errors,
		record.Error,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save run record: %w", err)
	}

	return record.ID, nil
}

const selectColumns = `
	SELECT id, kind, left_path, right_path, start_time, end_time, outcome,
		total, equal, different, left_only, right_only, errors, COALESCE(error, '')
	FROM comparison_runs
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (RunRecord, error) {
	var record RunRecord
	var kind string
	err := s.Scan(
		&record.ID,
		&kind,
		&record.LeftPath,
		&record.RightPath,
		&record.StartTime,
		&record.EndTime,
		&record.Outcome,
		&record.Summary.Total,
		&record.Summary.Equal,
		&record.Summary.Different,
		&record.Summary.LeftOnly,
		&record.Summary.RightOnly,
		&record.Summary.Errors,
		&record.Error,
	)
	record.Kind = RunKind(kind)
	return record, err
}

// GetHistory retrieves the most recent runs, newest first. An empty kind
// returns runs of every kind.
func (m *Manager) GetHistory(kind RunKind, limit int) ([]RunRecord, error) {
	// Validate limit
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var rows *sql.Rows
	var err error
	if kind == "" {
		rows, err = m.db.Query(selectColumns+` ORDER BY start_time DESC LIMIT ?`, limit)
	} else {
		rows, err = m.db.Query(selectColumns+` WHERE kind = ? ORDER BY start_time DESC LIMIT ?`, string(kind), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// GetRun retrieves a run by id
func (m *Manager) GetRun(id string) (*RunRecord, error) {
	record, err := scanRecord(m.db.QueryRow(selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &record, nil
}

// GetLastRun retrieves the most recent run for a pair of paths
func (m *Manager) GetLastRun(leftPath, rightPath string) (*RunRecord, error) {
	record, err := scanRecord(m.db.QueryRow(
		selectColumns+` WHERE left_path = ? AND right_path = ? ORDER BY start_time DESC LIMIT 1`,
		leftPath, rightPath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No run found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}
	return &record, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
