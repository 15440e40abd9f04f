// README: Quota tests (lazy day rows and limit boundary), Postgres-backed.
package quota

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wayfarer/internal/infra"
	"wayfarer/internal/modules/gateway"
)

// TestUseInitialisesDay verifies a provider absent from the table is
// initialised on first call.
func TestUseInitialisesDay(t *testing.T) {
	svc, _ := setupTestService(t, 3)
	ctx := context.Background()

	if err := svc.Use(ctx, "serper"); err != nil {
		t.Fatalf("Use for new provider: %v", err)
	}
	remaining, err := svc.Remaining(ctx, "serper")
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 remaining, got %d", remaining)
	}
}

// TestAllowStopsAtLimit verifies the limit boundary and the gateway mapping.
func TestAllowStopsAtLimit(t *testing.T) {
	svc, _ := setupTestService(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.Allow(ctx, "gemini"); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	err := svc.Allow(ctx, "gemini")
	if !errors.Is(err, gateway.ErrRateLimited) || !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if err := svc.Allow(ctx, "deepseek"); err != nil {
		t.Fatalf("other provider should be unaffected: %v", err)
	}
}

// TestNewDayResets verifies yesterday's exhausted counter does not block today.
func TestNewDayResets(t *testing.T) {
	svc, db := setupTestService(t, 1)
	ctx := context.Background()

	yesterday := svc.day().AddDate(0, 0, -1)
	if _, err := db.Exec(ctx, "INSERT INTO provider_usage VALUES ('groq', $1, 1)", yesterday); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.Use(ctx, "groq"); err != nil {
		t.Fatalf("Use on a new day: %v", err)
	}
	n, err := svc.PruneBefore(ctx, 0)
	if err != nil || n != 1 {
		t.Fatalf("PruneBefore = %d, %v; want 1 row", n, err)
	}
}

func TestUnlimitedProvider(t *testing.T) {
	svc := NewService(nil, 5, map[string]int{"google_places": 0})
	if err := svc.Use(context.Background(), "google_places"); err != nil {
		t.Fatalf("unlimited provider: %v", err)
	}
	if r, _ := svc.Remaining(context.Background(), "google_places"); r != -1 {
		t.Fatalf("expected -1 remaining, got %d", r)
	}
}

// setupTestService creates a real postgres-backed Service for integration tests.
// It skips the test when WAYFARER_TEST_DSN is not set.
func setupTestService(t *testing.T, limit int) (*Service, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("WAYFARER_TEST_DSN")
	if dsn == "" {
		t.Skip("WAYFARER_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir, err := infra.MigrationsDir()
	if err != nil {
		t.Fatalf("locate migrations: %v", err)
	}
	if err := infra.ApplyMigrations(ctx, db, dir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE provider_usage"); err != nil {
		t.Fatalf("truncate provider_usage: %v", err)
	}

	svc := NewService(NewStore(db), limit, nil)
	fixed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc, db
}
