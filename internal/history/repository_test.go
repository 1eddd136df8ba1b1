package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hovavo/pxt-states/internal/infrastructure/database"
	"github.com/hovavo/pxt-states/internal/states"
	"github.com/hovavo/pxt-states/migrations"
)

// setupTestRepository opens a migrated in-memory database.
func setupTestRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.Source()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewRepository(db.DB)
}

func transition(machine, from, to string, at time.Time) states.Transition {
	return states.Transition{
		ID:      fmt.Sprintf("%s-%s-%s-%d", machine, from, to, at.UnixNano()),
		Machine: states.NewID(machine),
		From:    states.NewID(from),
		To:      states.NewID(to),
		At:      at,
	}
}

func TestRecordAndGetHistory(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	tr := transition("light", "off", "on", at)
	tr.Elapsed = 2500 * time.Millisecond
	tr.Created = true
	if err := repo.Record(ctx, tr); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, " LIGHT ", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	e := entries[0]
	if e.ID != tr.ID || e.Machine != "light" || e.From != "off" || e.To != "on" {
		t.Errorf("entry = %+v", e)
	}
	if e.Elapsed != 2500*time.Millisecond {
		t.Errorf("Elapsed = %v, want 2.5s", e.Elapsed)
	}
	if !e.Created {
		t.Error("Created = false, want true")
	}
	if !e.OccurredAt.Equal(at) {
		t.Errorf("OccurredAt = %v, want %v", e.OccurredAt, at)
	}
}

func TestGetHistoryOrderingAndLimit(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tr := transition("pump", "s", fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Millisecond))
		if err := repo.Record(ctx, tr); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := repo.Record(ctx, transition("other", "a", "b", base)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "pump", 3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	want := []string{"s4", "s3", "s2"}
	if len(entries) != len(want) {
		t.Fatalf("entries length = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.To != want[i] {
			t.Errorf("entries[%d].To = %q, want %q", i, e.To, want[i])
		}
	}
}

func TestGetHistoryMainMachine(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	if err := repo.Record(ctx, transition("__main__", "__none__", "idle", time.Now())); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || entries[0].To != "idle" {
		t.Errorf("entries = %+v, want one transition to idle", entries)
	}
}

func TestRecordValidation(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	tests := []struct {
		name string
		tr   states.Transition
	}{
		{"missing id", states.Transition{Machine: "m", To: "a"}},
		{"missing machine", states.Transition{ID: "x", To: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Record(ctx, tt.tr); err == nil {
				t.Error("Record() expected error")
			}
		})
	}

	tr := transition("m", "a", "b", time.Now())
	if err := repo.Record(ctx, tr); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repo.Record(ctx, tr); err == nil {
		t.Error("Record() duplicate id expected error")
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultHistoryLimit},
		{-1, defaultHistoryLimit},
		{10, 10},
		{maxHistoryLimit, maxHistoryLimit},
		{maxHistoryLimit + 1, maxHistoryLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPrune(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	old := transition("m", "a", "b", now.Add(-48*time.Hour))
	recent := transition("m", "b", "c", now.Add(-time.Hour))
	for _, tr := range []states.Transition{old, recent} {
		if err := repo.Record(ctx, tr); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() deleted %d rows, want 1", n)
	}

	entries, err := repo.GetHistory(ctx, "m", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != recent.ID {
		t.Errorf("remaining entries = %+v, want only the recent one", entries)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) expected error")
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.infos)
}

func TestPrunerRunsImmediately(t *testing.T) {
	repo := setupTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := repo.Record(ctx, transition("m", "a", "b", time.Now().Add(-72*time.Hour))); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	logger := &recordingLogger{}
	p := NewPruner(repo, 24*time.Hour, time.Hour, logger)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for logger.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("pruner did not run on start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPrunerDisabled(t *testing.T) {
	repo := setupTestRepository(t)
	done := make(chan struct{})
	go func() {
		NewPruner(repo, 0, time.Hour, nil).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled pruner should return immediately")
	}
}
