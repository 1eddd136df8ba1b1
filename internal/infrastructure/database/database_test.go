package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("creates database file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "states.db")

		db, err := Open(ctx, Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("in memory", func(t *testing.T) {
		db, err := Open(ctx, Config{Path: MemoryPath, BusyTimeout: 1})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := db.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
			t.Fatalf("CREATE error = %v", err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)"); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil || n != 1 {
			t.Errorf("count = %d, err = %v; want 1 row on the same connection", n, err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := Open(cctx, Config{Path: filepath.Join(t.TempDir(), "x.db")}); err == nil {
			t.Error("Open() with cancelled context should fail")
		}
	})
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		contains []string
		excludes []string
	}{
		{
			name:     "wal",
			cfg:      Config{Path: "/data/states.db", WALMode: true, BusyTimeout: 5},
			contains: []string{"file:/data/states.db?", "_busy_timeout=5000", "_foreign_keys=on", "_journal_mode=WAL"},
		},
		{
			name:     "no wal",
			cfg:      Config{Path: "/data/states.db", BusyTimeout: 2},
			contains: []string{"_busy_timeout=2000"},
			excludes: []string{"_journal_mode"},
		},
		{
			name:     "memory ignores wal",
			cfg:      Config{Path: MemoryPath, WALMode: true},
			contains: []string{"file::memory:?"},
			excludes: []string{"_journal_mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dsn(tt.cfg)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("dsn() = %q, missing %q", got, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("dsn() = %q, should not contain %q", got, s)
				}
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "c.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestBeginTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	tests := []struct {
		value  string
		commit bool
		want   int
	}{
		{"committed", true, 1},
		{"rolled_back", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("BeginTx() error = %v", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", tt.value); err != nil {
				t.Fatalf("INSERT error = %v", err)
			}
			if tt.commit {
				err = tx.Commit()
			} else {
				err = tx.Rollback()
			}
			if err != nil {
				t.Fatalf("finish error = %v", err)
			}

			var count int
			if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_test WHERE value = ?", tt.value).Scan(&count); err != nil {
				t.Fatalf("SELECT error = %v", err)
			}
			if count != tt.want {
				t.Errorf("rows = %d, want %d", count, tt.want)
			}
		})
	}
}

func TestExecContextWrapsErrors(t *testing.T) {
	db := openTestDB(t)

	_, err := db.ExecContext(context.Background(), "INSERT INTO missing_table VALUES (1)")
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	if !strings.Contains(err.Error(), "executing query") {
		t.Errorf("error %q not wrapped", err)
	}
}

func TestSingleConnection(t *testing.T) {
	db := openTestDB(t)

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

// openTestDB opens a file-backed database closed at test end.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}
