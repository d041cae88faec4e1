// Package store is the thin dialect-neutral handle the pipeline talks to.
//
// Queries are written once with `?` placeholders; the PostgreSQL store rebinds
// them to `$n` before execution. Both stores return rows as plain Go values so
// callers never touch driver types.
package store

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Quote returns the identifier quoted for use in SQL text.
func (d Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

var (
	ErrUnsupportedURL = errors.New("unsupported database url")
)

// Querier runs statements either on the store itself or inside a transaction.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
}

type Store interface {
	Querier
	Dialect() Dialect
	// InTx runs fn inside one transaction. fn must only use the Querier it is
	// given; the store's own methods may block while the transaction is open.
	InTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error
	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string) ([]string, error)
	// HasUniqueIndex reports whether a non-partial unique index covers exactly
	// the given column.
	HasUniqueIndex(ctx context.Context, table, column string) (bool, error)
	// ResetIdentity moves the id generator past the largest stored id.
	ResetIdentity(ctx context.Context, table string) error
	Close() error
}

// Rows is a fully materialized result set.
type Rows struct {
	Columns []string
	Values  [][]any
}

func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Index returns the position of col or -1.
func (r *Rows) Index(col string) int {
	for i, c := range r.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Map returns row i keyed by column name.
func (r *Rows) Map(i int) map[string]any {
	m := make(map[string]any, len(r.Columns))
	for j, c := range r.Columns {
		m[c] = r.Values[i][j]
	}
	return m
}

// ParseURL decides which store a connection string selects. An empty url
// falls back to the local SQLite file.
func ParseURL(url, localPath string) (Dialect, string, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return SQLite, localPath, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return Postgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		return SQLite, strings.TrimPrefix(url, "sqlite://"), nil
	case strings.HasPrefix(url, "file:"), url == ":memory:":
		return SQLite, url, nil
	default:
		return "", "", errors.Wrapf(ErrUnsupportedURL, "%q", redact(url))
	}
}

// Open connects to the store selected by url.
func Open(ctx context.Context, url, localPath string) (Store, error) {
	dialect, dsn, err := ParseURL(url, localPath)
	if err != nil {
		return nil, err
	}
	if dialect == Postgres {
		return OpenPostgres(ctx, dsn)
	}
	return OpenSQLite(ctx, dsn)
}

// redact hides credentials in a connection string before it is logged.
func redact(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}

// Describe returns a loggable form of a connection string.
func Describe(url, localPath string) string {
	if strings.TrimSpace(url) == "" {
		return "sqlite:" + localPath
	}
	return redact(url)
}

func plainArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = plain(a)
	}
	return out
}

func plain(v any) any {
	switch x := v.(type) {
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case *bool:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}
