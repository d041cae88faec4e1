// Package itf holds store fixtures shared by package tests.
package itf

import (
	"context"
	"net"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/projtrack/pkg/store"
)

// TestDatabaseURLEnv names the PostgreSQL server used by integration tests.
const TestDatabaseURLEnv = "TEST_DATABASE_URL"

// SQLite returns an isolated in-memory store closed at test cleanup.
func SQLite(tb testing.TB) store.Store {
	tb.Helper()

	s, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = s.Close() })
	return s
}

// Postgres connects to TEST_DATABASE_URL and drops the pipeline tables so the
// test starts from an empty schema. It skips locally when the server is not
// reachable and fails on CI.
func Postgres(tb testing.TB, tables ...string) store.Store {
	tb.Helper()

	dsn := strings.TrimSpace(os.Getenv(TestDatabaseURLEnv))
	if dsn == "" || !CanDialPostgres(dsn) {
		if strings.TrimSpace(os.Getenv("CI")) != "" && dsn != "" {
			tb.Fatalf("postgres is not reachable (%s)", TestDatabaseURLEnv)
		}
		tb.Skipf("postgres is not reachable; set %s to run this test", TestDatabaseURLEnv)
	}

	ctx := context.Background()
	s, err := store.OpenPostgres(ctx, dsn)
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = s.Close() })

	for i := len(tables) - 1; i >= 0; i-- {
		_, err := s.Exec(ctx, "DROP TABLE IF EXISTS "+store.Postgres.Quote(tables[i])+" CASCADE")
		require.NoError(tb, err)
	}
	return s
}

func CanDialPostgres(dsn string) bool {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return false
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "5432")
	}

	dialer := &net.Dialer{Timeout: 250 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
