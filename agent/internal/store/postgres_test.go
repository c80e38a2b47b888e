package store

import (
	"context"
	"os"
	"testing"
)

// testPostgres connects to SENTINEL_TEST_DATABASE_URL and empties the table.
// Tests are skipped when no database is reachable.
func testPostgres(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv("SENTINEL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping DB test: SENTINEL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pg, err := ConnectPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("skipping DB test (cannot connect): %v", err)
	}
	t.Cleanup(pg.Close)
	if err := pg.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := pg.pool.Exec(ctx, `TRUNCATE incidents`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pg
}

func TestPostgres_Contract(t *testing.T) {
	runContract(t, testPostgres)
}

func TestConnectPostgres_EmptyDSN(t *testing.T) {
	if _, err := ConnectPostgres(context.Background(), ""); err == nil {
		t.Error("ConnectPostgres(\"\"): expected error")
	}
}
