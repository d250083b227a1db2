package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-conga/migrations"
)

// setupRepository returns a repository over a migrated in-memory database
// and a settable clock.
func setupRepository(t *testing.T) (*Repository, *time.Time) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	now := time.Date(2024, 10, 12, 9, 0, 0, 0, time.UTC)
	repo := NewRepository(db.DB)
	repo.now = func() time.Time { return now }
	return repo, &now
}

func intPtr(v int) *int { return &v }

func TestRecordStatus(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	status := conga.Status{
		Mode:      "sweep",
		State:     conga.StateCleaning,
		Battery:   intPtr(64),
		Connected: true,
	}
	if err := repo.RecordStatus(ctx, "SN001", status); err != nil {
		t.Fatalf("RecordStatus() error = %v", err)
	}

	entries, err := repo.StatusHistory(ctx, "SN001", 10)
	if err != nil {
		t.Fatalf("StatusHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Serial != "SN001" || got.Status.State != conga.StateCleaning || !got.Status.Connected {
		t.Errorf("entry = %+v", got)
	}
	if got.Status.Battery == nil || *got.Status.Battery != 64 {
		t.Errorf("battery = %v, want 64", got.Status.Battery)
	}
	if !got.CreatedAt.Equal(time.Date(2024, 10, 12, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
}

func TestStatusHistoryOrderingAndLimit(t *testing.T) {
	repo, now := setupRepository(t)
	ctx := context.Background()

	states := []conga.VacuumState{conga.StateDocked, conga.StateCleaning, conga.StateReturning}
	for _, st := range states {
		if err := repo.RecordStatus(ctx, "SN001", conga.Status{State: st}); err != nil {
			t.Fatalf("RecordStatus() error = %v", err)
		}
		*now = now.Add(time.Minute)
	}
	if err := repo.RecordStatus(ctx, "SN002", conga.Status{State: conga.StateIdle}); err != nil {
		t.Fatalf("RecordStatus() error = %v", err)
	}

	entries, err := repo.StatusHistory(ctx, "SN001", 2)
	if err != nil {
		t.Fatalf("StatusHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Status.State != conga.StateReturning || entries[1].Status.State != conga.StateCleaning {
		t.Errorf("order = %s, %s", entries[0].Status.State, entries[1].Status.State)
	}
}

func TestRecordCommand(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	err := repo.RecordCommand(ctx, CommandEntry{
		RequestID:    "req-1",
		Serial:       "SN001",
		Command:      "start_plan",
		Status:       "failed",
		ErrorCode:    "PLAN_NOT_FOUND",
		ErrorMessage: "no plan named Kitchen",
		Latency:      1250 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}

	entries, err := repo.CommandHistory(ctx, "SN001", 0)
	if err != nil {
		t.Fatalf("CommandHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.RequestID != "req-1" || got.Command != "start_plan" || got.ErrorCode != "PLAN_NOT_FOUND" {
		t.Errorf("entry = %+v", got)
	}
	if got.Latency != 1250*time.Millisecond {
		t.Errorf("Latency = %v", got.Latency)
	}
}

func TestSerialRequired(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	if err := repo.RecordStatus(ctx, "", conga.Status{}); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("RecordStatus() error = %v", err)
	}
	if err := repo.RecordCommand(ctx, CommandEntry{}); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("RecordCommand() error = %v", err)
	}
	if _, err := repo.StatusHistory(ctx, "", 1); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("StatusHistory() error = %v", err)
	}
	if _, err := repo.CommandHistory(ctx, "", 1); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("CommandHistory() error = %v", err)
	}
}

func TestPrune(t *testing.T) {
	repo, now := setupRepository(t)
	ctx := context.Background()

	old := *now
	if err := repo.RecordStatus(ctx, "SN001", conga.Status{State: conga.StateDocked}); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordCommand(ctx, CommandEntry{Serial: "SN001", Command: "start", Status: "accepted", CreatedAt: old}); err != nil {
		t.Fatal(err)
	}

	*now = old.Add(48 * time.Hour)
	if err := repo.RecordStatus(ctx, "SN001", conga.Status{State: conga.StateCleaning}); err != nil {
		t.Fatal(err)
	}

	deleted, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	entries, err := repo.StatusHistory(ctx, "SN001", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status.State != conga.StateCleaning {
		t.Errorf("remaining = %+v", entries)
	}

	if _, err := repo.Prune(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v", err)
	}
}

func TestClampLimit(t *testing.T) {
	tests := map[int]int{0: defaultLimit, -1: defaultLimit, 10: 10, 500: maxLimit}
	for in, want := range tests {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
