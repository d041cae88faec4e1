package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

const sqliteBusyTimeoutMs = 5000

type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (and creates, when missing) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if !isMemory(path) && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "create %s", dir)
			}
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One connection keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = " + itoa(sqliteBusyTimeoutMs),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "exec %q", pragma)
		}
	}
	return NewSQLite(db), nil
}

// NewSQLite wraps an already opened handle.
func NewSQLite(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Dialect() Dialect { return SQLite }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return sqliteQuerier{s.db}.Exec(ctx, query, args...)
}

func (s *SQLiteStore) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	return sqliteQuerier{s.db}.Query(ctx, query, args...)
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if err := fn(ctx, sqliteQuerier{tx}); err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			return errors.Wrapf(err, "rollback failed (%v)", rErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (s *SQLiteStore) TableExists(ctx context.Context, table string) (bool, error) {
	rows, err := s.Query(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, errors.Wrapf(err, "lookup table %s", table)
	}
	return rows.Len() > 0 && AsInt64(rows.Values[0][0]) > 0, nil
}

func (s *SQLiteStore) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.Query(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, errors.Wrapf(err, "columns of %s", table)
	}
	out := make([]string, 0, rows.Len())
	for _, v := range rows.Values {
		out = append(out, AsString(v[0]))
	}
	return out, nil
}

func (s *SQLiteStore) HasUniqueIndex(ctx context.Context, table, column string) (bool, error) {
	indexes, err := s.Query(ctx, `SELECT name FROM pragma_index_list(?) WHERE "unique" = 1 AND partial = 0`, table)
	if err != nil {
		return false, errors.Wrapf(err, "indexes of %s", table)
	}
	for _, idx := range indexes.Values {
		cols, err := s.Query(ctx, "SELECT name FROM pragma_index_info(?)", AsString(idx[0]))
		if err != nil {
			return false, errors.Wrapf(err, "index %v", idx[0])
		}
		if cols.Len() == 1 && AsString(cols.Values[0][0]) == column {
			return true, nil
		}
	}
	return false, nil
}

// ResetIdentity is a no-op: AUTOINCREMENT tracks explicit ids on its own.
func (s *SQLiteStore) ResetIdentity(context.Context, string) error {
	return nil
}

type sqliteQuerier struct {
	ext sqlx.ExtContext
}

func (q sqliteQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.ext.ExecContext(ctx, query, plainArgs(args)...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (q sqliteQuerier) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	rows, err := q.ext.QueryxContext(ctx, query, plainArgs(args)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &Rows{Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Values = append(out.Values, vals)
	}
	return out, rows.Err()
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
