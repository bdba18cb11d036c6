package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/aiarch/aia/internal/adapter/postgres"
)

// TestMigrationUpDown applies every migration, rolls them all back, then
// applies them again so each Down section is exercised.
func TestMigrationUpDown(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}
	ctx := context.Background()
	const totalMigrations = 3

	expectVersion := func(step string, want int64) {
		t.Helper()
		v, err := postgres.MigrationVersion(ctx, dsn)
		if err != nil {
			t.Fatalf("%s: %v", step, err)
		}
		if v != want {
			t.Fatalf("%s: expected version %d, got %d", step, want, v)
		}
	}

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("up: %v", err)
	}
	expectVersion("after up", totalMigrations)

	if err := postgres.RollbackMigrations(ctx, dsn, totalMigrations); err != nil {
		t.Fatalf("down: %v", err)
	}
	expectVersion("after rollback", 0)

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("re-up: %v", err)
	}
	expectVersion("after re-up", totalMigrations)
}
