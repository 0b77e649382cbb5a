// Package pgtest gives tests a migrated, throwaway PostgreSQL schema.
package pgtest

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/pg"
)

// EnvURL names the variable holding the test server's connection URL.
const EnvURL = "POSTGRES_TEST_URL"

// NewPool skips the test unless EnvURL is set. Otherwise it creates a fresh
// schema, applies the migrations there and drops it on cleanup.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skip(EnvURL + " not set")
	}

	ctx := context.Background()
	admin, err := pg.Connect(ctx, pg.Config{ConnectionURL: url, RetryAttempts: 1})
	require.NoError(t, err)

	schema := "dialbill_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	cfg := pg.Config{ConnectionURL: url + sep + "search_path=" + schema, RetryAttempts: 1}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pg.Migrate(ctx, pool, cfg, nil))

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})
	return pool
}
