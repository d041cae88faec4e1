package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
	"github.com/iota-uz/projtrack/modules/projects/infrastructure/persistence"
	"github.com/iota-uz/projtrack/pkg/itf"
	"github.com/iota-uz/projtrack/pkg/schema"
	"github.com/iota-uz/projtrack/pkg/store"
)

func strPtr(s string) *string { return &s }

func sample() *project.Record {
	amount := 1250.75
	start := int64(1678838400)
	rec := &project.Record{
		OVPNumber:       strPtr("OVP-100"),
		ProjectName:     strPtr("Water line"),
		ProjectDirector: strPtr("Carlos Mendoza"),
		ContractAmount:  &amount,
		StartDate:       &start,
		RawData:         []byte(`{"PROJECT NAME":"Water line"}`),
		Extra:           map[string]any{"engineer_incharge": "Pedro"},
	}
	project.ApplyDefaults(rec)
	return rec
}

func exerciseRepository(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := schema.NewProvisioner(nil).EnsureSchema(ctx, s)
	require.NoError(t, err)

	repo := persistence.NewProjectRepository(s)
	enforced, err := repo.KeyEnforced(ctx, "ovp_number")
	require.NoError(t, err)
	require.True(t, enforced)

	_, err = repo.KeyEnforced(ctx, "contract_amount")
	require.Error(t, err)

	err = s.InTx(ctx, func(ctx context.Context, q store.Querier) error {
		if err := repo.Upsert(ctx, q, "ovp_number", sample(), 100); err != nil {
			return err
		}
		id, found, err := repo.FindIDByKey(ctx, q, "ovp_number", "OVP-100")
		require.True(t, found)
		require.Positive(t, id)
		return err
	})
	require.NoError(t, err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	require.Equal(t, "Water line", *got.ProjectName)
	require.Equal(t, "Carlos Mendoza", got.Director())
	require.InDelta(t, 1250.75, *got.ContractAmount, 1e-9)
	require.Equal(t, int64(1678838400), *got.StartDate)
	require.Equal(t, project.StatusOpen, *got.ProjectStatus)
	require.Nil(t, got.DurationDays)
	require.Equal(t, "Pedro", got.Extra["engineer_incharge"])
	require.JSONEq(t, `{"PROJECT NAME":"Water line"}`, string(got.RawData))
	require.Equal(t, int64(100), got.CreatedAt)

	updated := sample()
	updated.ProjectName = strPtr("Water line phase 2")
	err = s.InTx(ctx, func(ctx context.Context, q store.Querier) error {
		return repo.Upsert(ctx, q, "ovp_number", updated, 200)
	})
	require.NoError(t, err)

	list, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, got.ID, list[0].ID)
	require.Equal(t, "Water line phase 2", *list[0].ProjectName)
	require.Equal(t, int64(100), list[0].CreatedAt)
	require.Equal(t, int64(200), list[0].UpdatedAt)

	n, err := repo.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestProjectRepository_SQLite(t *testing.T) {
	exerciseRepository(t, itf.SQLite(t))
}

func TestProjectRepository_Postgres(t *testing.T) {
	s := itf.Postgres(t, schema.DefaultOrder()...)
	exerciseRepository(t, s)
}

func TestProjectRepository_ScopeDeletes(t *testing.T) {
	ctx := context.Background()
	s := itf.SQLite(t)
	_, err := schema.NewProvisioner(nil).EnsureSchema(ctx, s)
	require.NoError(t, err)
	repo := persistence.NewProjectRepository(s)

	keyless := sample()
	keyless.OVPNumber = nil
	other := sample()
	other.OVPNumber = strPtr("OVP-200")
	other.ProjectDirector = strPtr("Ana Villanueva")

	err = s.InTx(ctx, func(ctx context.Context, q store.Querier) error {
		for _, r := range []*project.Record{sample(), keyless, other} {
			if err := repo.Insert(ctx, q, r, 1); err != nil {
				return err
			}
		}
		n, err := repo.DeleteKeyless(ctx, q, "ovp_number", keyless)
		require.Equal(t, int64(1), n)
		if err != nil {
			return err
		}
		n, err = repo.DeleteScope(ctx, q, "Carlos Mendoza")
		require.Equal(t, int64(1), n)
		return err
	})
	require.NoError(t, err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "OVP-200", *list[0].OVPNumber)
}
