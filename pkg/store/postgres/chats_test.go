package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/vango-go/poppy/pkg/store/storetest"
)

// Runs against a scratch database when POPPY_TEST_POSTGRES_DSN is set.
func TestChats_Postgres(t *testing.T) {
	dsn := os.Getenv("POPPY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POPPY_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	if err := Migrate(ctx, dsn, nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	pool, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, `DELETE FROM chats WHERE user_id IN ('alice', 'bob')`); err != nil {
		t.Fatalf("reset: %v", err)
	}

	storetest.RunChats(t, NewChats(pool))
}

func TestMigrations_Embedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("no migrations embedded")
	}
}
