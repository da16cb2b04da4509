// Package dbtest opens throwaway migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/logger"
)

// Open returns a migrated in-memory database private to t.
// The pool is pinned to a single connection so concurrent callers
// serialize the way a real row lock would make them.
func Open(t testing.TB) *database.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)

	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = 1
	pool.MaxIdleConns = 1
	pool.ConnMaxLifetime = 0
	pool.ConnMaxIdleTime = 0

	client, err := database.Open("sqlite3", dsn, pool, nil, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, client.Migrate(context.Background()))

	t.Cleanup(func() { client.Close() })
	return client
}
