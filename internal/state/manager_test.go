package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ning0612/Treecmp/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestNewManager(t *testing.T) {
	tmpDir := t.TempDir()

	manager, err := NewManager(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	if manager.db == nil {
		t.Error("Database connection is nil")
	}

	// Verify database file was created
	dbPath := filepath.Join(tmpDir, "treecmp.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNewManager_EmptyDir(t *testing.T) {
	_, err := NewManager("")
	if err == nil {
		t.Error("Expected error for empty directory, got nil")
	}
}

func TestSaveAndGetRun(t *testing.T) {
	manager := newTestManager(t)

	start := time.Now().Add(-10 * time.Minute).Truncate(time.Second)
	record := RunRecord{
		Kind:      KindCompare,
		LeftPath:  "/data/a",
		RightPath: "/data/b",
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Outcome:   OutcomeDifferent,
		Summary:   domain.ComparisonSummary{Total: 10, Equal: 7, Different: 1, LeftOnly: 1, RightOnly: 1},
	}

	id, err := manager.SaveRun(record)
	if err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a generated id")
	}

	got, err := manager.GetRun(id)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if got.Kind != KindCompare || got.LeftPath != "/data/a" || got.RightPath != "/data/b" {
		t.Errorf("Unexpected record: %+v", got)
	}
	if got.Summary != record.Summary {
		t.Errorf("Expected summary %+v, got %+v", record.Summary, got.Summary)
	}
	if !got.StartTime.Equal(start) || got.Duration() != 90*time.Second {
		t.Errorf("Unexpected times: %v %v", got.StartTime, got.Duration())
	}
	if got.Error != "" {
		t.Errorf("Expected empty error, got %q", got.Error)
	}
}

func TestSaveRun_KeepsExplicitID(t *testing.T) {
	manager := newTestManager(t)

	id, err := manager.SaveRun(RunRecord{
		ID:        "fixed-id",
		Kind:      KindSnapshot,
		LeftPath:  "/data/a",
		StartTime: time.Now(),
		EndTime:   time.Now(),
		Outcome:   OutcomeCaptured,
	})
	if err != nil || id != "fixed-id" {
		t.Fatalf("SaveRun() = %q, %v", id, err)
	}

	if _, err := manager.SaveRun(RunRecord{ID: "fixed-id", Kind: KindSnapshot, Outcome: OutcomeCaptured}); err == nil {
		t.Error("Expected duplicate id to fail")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	manager := newTestManager(t)
	if _, err := manager.GetRun("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetHistory(t *testing.T) {
	manager := newTestManager(t)

	now := time.Now()
	records := []RunRecord{
		{Kind: KindCompare, LeftPath: "a", RightPath: "b", StartTime: now.Add(-30 * time.Minute), EndTime: now.Add(-29 * time.Minute), Outcome: OutcomeEqual},
		{Kind: KindSnapshot, LeftPath: "a", StartTime: now.Add(-20 * time.Minute), EndTime: now.Add(-19 * time.Minute), Outcome: OutcomeCaptured},
		{Kind: KindVerify, LeftPath: "a", RightPath: "base.json", StartTime: now.Add(-10 * time.Minute), EndTime: now.Add(-9 * time.Minute), Outcome: OutcomeFailed, Error: "baseline missing hash"},
	}
	for _, record := range records {
		if _, err := manager.SaveRun(record); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
	}

	all, err := manager.GetHistory("", 100)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(all))
	}
	// Verify ordering (should be DESC by start_time)
	if all[0].Kind != KindVerify || all[0].Error != "baseline missing hash" {
		t.Errorf("Expected most recent record to be the failed verify, got %+v", all[0])
	}

	snapshots, err := manager.GetHistory(KindSnapshot, 10)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].Outcome != OutcomeCaptured {
		t.Errorf("Expected one snapshot, got %+v", snapshots)
	}
}

func TestGetHistory_Limit(t *testing.T) {
	manager := newTestManager(t)

	for i := 0; i < 5; i++ {
		record := RunRecord{
			Kind:      KindCompare,
			LeftPath:  "a",
			RightPath: "b",
			StartTime: time.Now().Add(time.Duration(-i*10) * time.Minute),
			EndTime:   time.Now().Add(time.Duration(-i*10+1) * time.Minute),
			Outcome:   OutcomeEqual,
			Summary:   domain.ComparisonSummary{Total: i, Equal: i},
		}
		if _, err := manager.SaveRun(record); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
	}

	history, err := manager.GetHistory(KindCompare, 3)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(history))
	}
	// Verify we got the most recent ones
	if history[0].Summary.Total != 0 {
		t.Errorf("Expected most recent record to have 0 files, got %d", history[0].Summary.Total)
	}
}

func TestGetLastRun(t *testing.T) {
	manager := newTestManager(t)

	last, err := manager.GetLastRun("a", "b")
	if err != nil || last != nil {
		t.Fatalf("Expected no run, got %+v, %v", last, err)
	}

	now := time.Now()
	for i, outcome := range []string{OutcomeEqual, OutcomeDifferent} {
		_, err := manager.SaveRun(RunRecord{
			Kind:      KindCompare,
			LeftPath:  "a",
			RightPath: "b",
			StartTime: now.Add(time.Duration(i) * time.Minute),
			EndTime:   now.Add(time.Duration(i) * time.Minute),
			Outcome:   outcome,
		})
		if err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
	}

	last, err = manager.GetLastRun("a", "b")
	if err != nil {
		t.Fatalf("Failed to get last run: %v", err)
	}
	if last == nil || last.Outcome != OutcomeDifferent {
		t.Errorf("Expected the later run, got %+v", last)
	}
}

func TestSaveRun_Validation(t *testing.T) {
	manager := newTestManager(t)

	tests := []struct {
		name   string
		record RunRecord
	}{
		{"invalid kind", RunRecord{Kind: "sync", Outcome: OutcomeEqual}},
		{"invalid outcome", RunRecord{Kind: KindCompare, Outcome: "success"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := manager.SaveRun(tt.record); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestGetHistory_InvalidLimit(t *testing.T) {
	manager := newTestManager(t)

	if _, err := manager.GetHistory("", 0); err == nil {
		t.Error("Expected error for limit=0, got nil")
	}
	if _, err := manager.GetHistory(KindCompare, -1); err == nil {
		t.Error("Expected error for limit=-1, got nil")
	}
}
