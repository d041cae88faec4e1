package store

import (
	"context"

	"github.com/go-faster/errors"
)

// Savepoint runs fn inside a named savepoint of the current transaction.
//
// When fn fails and the savepoint can be rolled back, its error is returned as
// rowErr and the transaction stays usable. Any failure of the savepoint
// statements themselves, or a cancelled context, is returned as fatalErr and
// the caller must abandon the transaction.
func Savepoint(ctx context.Context, q Querier, name string, fn func() error) (rowErr, fatalErr error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "savepoint")
	}
	if _, err := q.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return nil, errors.Wrapf(err, "savepoint %s", name)
	}

	if err := fn(); err != nil {
		if cErr := ctx.Err(); cErr != nil {
			return nil, errors.Wrap(cErr, "savepoint")
		}
		if _, rbErr := q.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return nil, errors.Wrapf(rbErr, "rollback to savepoint %s after %v", name, err)
		}
		if _, relErr := q.Exec(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return nil, errors.Wrapf(relErr, "release savepoint %s", name)
		}
		return err, nil
	}

	if _, err := q.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return nil, errors.Wrapf(err, "release savepoint %s", name)
	}
	return nil, nil
}
