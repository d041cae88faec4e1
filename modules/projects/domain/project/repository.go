package project

import (
	"context"

	"github.com/iota-uz/projtrack/pkg/store"
)

// Repository persists project records. Write methods take the transaction's
// Querier so callers decide the unit of work.
type Repository interface {
	// KeyEnforced reports whether the store keeps field unique.
	KeyEnforced(ctx context.Context, field string) (bool, error)
	FindIDByKey(ctx context.Context, q store.Querier, field, key string) (int64, bool, error)
	Upsert(ctx context.Context, q store.Querier, field string, r *Record, now int64) error
	Insert(ctx context.Context, q store.Querier, r *Record, now int64) error
	DeleteByKey(ctx context.Context, q store.Querier, field, key string) (int64, error)
	// DeleteKeyless removes rows without a business key that share the
	// director and project name of r.
	DeleteKeyless(ctx context.Context, q store.Querier, field string, r *Record) (int64, error)
	DeleteScope(ctx context.Context, q store.Querier, director string) (int64, error)
	List(ctx context.Context) ([]Record, error)
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) (int64, error)
}
