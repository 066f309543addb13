package storage

import (
	"context"
	"testing"
)

func TestMigrateUpDown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := DefaultConfig()

	db, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	before, err := db.getAppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("getAppliedMigrations: %v", err)
	}
	if len(before) == 0 {
		t.Fatal("no migrations applied")
	}

	if err := db.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	after, err := db.getAppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("getAppliedMigrations: %v", err)
	}
	if len(after) != len(before)-1 {
		t.Errorf("applied migrations = %d, want %d", len(after), len(before)-1)
	}

	// Re-applying brings the schema back to the latest version.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("re-apply Migrate failed: %v", err)
	}
	restored, err := db.getAppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("getAppliedMigrations: %v", err)
	}
	if len(restored) != len(before) {
		t.Errorf("applied migrations = %d, want %d", len(restored), len(before))
	}
}
