package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

const postgresConnectTimeout = 10 * time.Second

type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres url")
	}
	cfg.ConnConfig.ConnectTimeout = postgresConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Dialect() Dialect { return Postgres }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return pgQuerier{s.pool}.Exec(ctx, query, args...)
}

func (s *PostgresStore) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	return pgQuerier{s.pool}.Query(ctx, query, args...)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, pgQuerier{tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (s *PostgresStore) TableExists(ctx context.Context, table string) (bool, error) {
	rows, err := s.Query(ctx, "SELECT to_regclass(?::text) IS NOT NULL", Postgres.Quote(table))
	if err != nil {
		return false, errors.Wrapf(err, "lookup table %s", table)
	}
	return rows.Len() > 0 && AsBool(rows.Values[0][0]), nil
}

func (s *PostgresStore) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.Query(ctx, `
		SELECT column_name::text
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, errors.Wrapf(err, "columns of %s", table)
	}
	out := make([]string, 0, rows.Len())
	for _, v := range rows.Values {
		out = append(out, AsString(v[0]))
	}
	return out, nil
}

func (s *PostgresStore) HasUniqueIndex(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.Query(ctx, `
		SELECT COUNT(*)
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = i.indkey[0]
		WHERE i.indrelid = to_regclass(?::text)
		  AND i.indisunique
		  AND i.indnatts = 1
		  AND i.indpred IS NULL
		  AND a.attname = ?`, Postgres.Quote(table), column)
	if err != nil {
		return false, errors.Wrapf(err, "indexes of %s", table)
	}
	return rows.Len() > 0 && AsInt64(rows.Values[0][0]) > 0, nil
}

func (s *PostgresStore) ResetIdentity(ctx context.Context, table string) error {
	q := "SELECT setval(pg_get_serial_sequence(?::text, 'id'), COALESCE(MAX(id), 0) + 1, false) FROM " + Postgres.Quote(table)
	if _, err := s.Query(ctx, q, table); err != nil {
		return errors.Wrapf(err, "reset identity of %s", table)
	}
	return nil
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgQuerier struct {
	conn pgxQuerier
}

func (q pgQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := q.conn.Exec(ctx, sqlx.Rebind(sqlx.DOLLAR, query), plainArgs(args)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q pgQuerier) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	rows, err := q.conn.Query(ctx, sqlx.Rebind(sqlx.DOLLAR, query), plainArgs(args)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := &Rows{Columns: make([]string, len(fields))}
	for i, f := range fields {
		out.Columns[i] = f.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
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
