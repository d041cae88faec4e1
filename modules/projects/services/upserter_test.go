package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
	"github.com/iota-uz/projtrack/modules/projects/infrastructure/persistence"
	"github.com/iota-uz/projtrack/pkg/itf"
	"github.com/iota-uz/projtrack/pkg/schema"
	"github.com/iota-uz/projtrack/pkg/store"
)

var fixedNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func provisioned(t *testing.T) (store.Store, project.Repository) {
	t.Helper()
	s := itf.SQLite(t)
	_, err := schema.NewProvisioner(nil).EnsureSchema(context.Background(), s)
	require.NoError(t, err)
	return s, persistence.NewProjectRepository(s)
}

func newUpserter(s store.Store, repo project.Repository) *Upserter {
	return NewUpserter(s, repo, nil).WithClock(func() time.Time { return fixedNow })
}

func str(s string) *string   { return &s }
func num(f float64) *float64 { return &f }
func unix(ts int64) *int64   { return &ts }

func record(key, name, director string, amount float64) project.Record {
	r := project.Record{ProjectName: str(name), ContractAmount: num(amount)}
	if key != "" {
		r.OVPNumber = str(key)
	}
	if director != "" {
		r.ProjectDirector = str(director)
	}
	project.ApplyDefaults(&r)
	return r
}

func TestUpsertBatch_ReplacesOnBusinessKey(t *testing.T) {
	ctx := context.Background()
	s, repo := provisioned(t)
	u := newUpserter(s, repo)

	res, err := u.UpsertBatch(ctx, []project.Record{record("OVP-001", "Tower A", "Juan Dela Cruz", 1500000)}, DefaultKeyField)
	require.NoError(t, err)
	require.Equal(t, BatchResult{Processed: 1, Inserted: 1}, res)

	stored, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	firstID := stored[0].ID
	require.Equal(t, fixedNow.Unix(), stored[0].CreatedAt)

	u.WithClock(func() time.Time { return fixedNow.Add(time.Hour) })
	res, err = u.UpsertBatch(ctx, []project.Record{record("OVP-001", "Tower A", "Juan Dela Cruz", 1750000)}, DefaultKeyField)
	require.NoError(t, err)
	require.Equal(t, BatchResult{Processed: 1, Updated: 1}, res)

	stored, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, firstID, stored[0].ID)
	require.InDelta(t, 1750000, *stored[0].ContractAmount, 1e-9)
	require.Equal(t, fixedNow.Unix(), stored[0].CreatedAt)
	require.Equal(t, fixedNow.Add(time.Hour).Unix(), stored[0].UpdatedAt)
}

func TestUpsertBatch_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, repo := provisioned(t)
	u := newUpserter(s, repo)

	batch := []project.Record{
		record("OVP-1", "One", "Maria Santos", 10),
		record("OVP-2", "Two", "Maria Santos", 20),
		record("", "Keyless", "Maria Santos", 30),
	}
	_, err := u.UpsertBatch(ctx, batch, DefaultKeyField)
	require.NoError(t, err)
	before, err := repo.List(ctx)
	require.NoError(t, err)

	res, err := u.UpsertBatch(ctx, batch, DefaultKeyField)
	require.NoError(t, err)
	require.Equal(t, 3, res.Updated)
	require.Zero(t, res.Inserted)

	after, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	beforeAgg, afterAgg := Summarize(before), Summarize(after)
	require.Len(t, afterAgg, len(beforeAgg))
	for key, agg := range beforeAgg {
		require.Equal(t, agg.Count, afterAgg[key].Count, key)
		require.True(t, agg.ContractSum.Equal(afterAgg[key].ContractSum), key)
	}
}

func TestUpsertBatch_PartialFailureKeepsGoodRows(t *testing.T) {
	ctx := context.Background()
	s, repo := provisioned(t)
	_, err := s.Exec(ctx, `CREATE TRIGGER reject_marked BEFORE INSERT ON projects
		WHEN NEW.project_name = 'REJECT' BEGIN SELECT RAISE(ABORT, 'rejected by trigger'); END`)
	require.NoError(t, err)

	negative := record("OVP-3", "Negative", "", 1)
	negative.DurationDays = num(-5)

	batch := []project.Record{
		record("OVP-1", "Fine", "", 1),
		record("OVP-2", "REJECT", "", 1),
		negative,
		record("OVP-4", "Fine too", "", 1),
		record("", "Fine keyless", "", 1),
	}
	res, err := newUpserter(s, repo).UpsertBatch(ctx, batch, DefaultKeyField)
	require.NoError(t, err)
	require.Equal(t, 5, res.Processed)
	require.Equal(t, 3, res.Inserted)
	require.Equal(t, 2, res.Failed)
	require.Len(t, res.Errors, 2)
	require.Equal(t, 2, res.Errors[0].Row)
	require.Equal(t, "OVP-2", res.Errors[0].BusinessKey)
	require.Contains(t, res.Errors[0].Error(), "rejected by trigger")
	require.Equal(t, 3, res.Errors[1].Row)
	require.Equal(t, "OVP-3", res.Errors[1].BusinessKey)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestUpsertBatch_ScopeReplacementWithoutUniqueIndex(t *testing.T) {
	ctx := context.Background()
	s, repo := provisioned(t)
	_, err := s.Exec(ctx, `DROP INDEX idx_projects_ovp_number`)
	require.NoError(t, err)

	u := newUpserter(s, repo)
	enforced, err := u.KeyEnforced(ctx, DefaultKeyField)
	require.NoError(t, err)
	require.False(t, enforced)

	_, err = u.UpsertBatch(ctx, []project.Record{
		record("OVP-1", "One", "Juan Dela Cruz", 10),
		record("OVP-2", "Two", "Juan Dela Cruz", 20),
	}, DefaultKeyField)
	require.NoError(t, err)
	_, err = u.UpsertBatch(ctx, []project.Record{record("OVP-9", "Other", "Ana Villanueva", 5)}, DefaultKeyField)
	require.NoError(t, err)

	res, err := u.UpsertBatch(ctx, []project.Record{record("OVP-1", "One v2", "Juan Dela Cruz", 15)}, DefaultKeyField)
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)

	stored, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	byKey := map[string]project.Record{}
	for _, r := range stored {
		byKey[r.Key(DefaultKeyField)] = r
	}
	require.Equal(t, "One v2", *byKey["OVP-1"].ProjectName)
	require.Contains(t, byKey, "OVP-9")
	require.NotContains(t, byKey, "OVP-2")
}

func TestUpsertBatch_CommitFailureIsFatal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := store.NewSQLite(sqlx.NewDb(db, "sqlite"))

	mock.ExpectQuery(`pragma_index_list`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("idx_projects_ovp_number"))
	mock.ExpectQuery(`pragma_index_info`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ovp_number"))
	mock.ExpectBegin()
	mock.ExpectExec(`SAVEPOINT project_row`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id FROM "projects"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO "projects"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`RELEASE SAVEPOINT project_row`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	fatalBefore := testutil.ToFloat64(metricsSingleton().batchesTotal.WithLabelValues("fatal", modeReplace))

	u := newUpserter(s, persistence.NewProjectRepository(s))
	res, err := u.UpsertBatch(context.Background(), []project.Record{record("OVP-1", "One", "", 1)}, DefaultKeyField)
	require.ErrorIs(t, err, ErrFatalStore)
	require.Contains(t, err.Error(), "disk I/O error")
	require.Zero(t, res.Succeeded())
	require.NoError(t, mock.ExpectationsWereMet())

	require.InDelta(t, fatalBefore+1, testutil.ToFloat64(metricsSingleton().batchesTotal.WithLabelValues("fatal", modeReplace)), 1e-9)
}

func TestUpsertBatch_CancelledContextRollsBack(t *testing.T) {
	s, repo := provisioned(t)
	ctx, cancel := context.WithCancel(context.Background())
	u := newUpserter(s, repo)

	enforced, err := u.KeyEnforced(ctx, DefaultKeyField)
	require.NoError(t, err)
	require.True(t, enforced)

	cancel()
	_, err = u.UpsertBatch(ctx, []project.Record{record("OVP-1", "One", "", 1)}, DefaultKeyField)
	require.ErrorIs(t, err, ErrFatalStore)

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBatchResult_Add(t *testing.T) {
	var total BatchResult
	total.Add(BatchResult{Processed: 3, Inserted: 2, Failed: 1, Errors: []RowError{{Row: 2}}})
	total.Add(BatchResult{Processed: 2, Updated: 2})
	require.Equal(t, 5, total.Processed)
	require.Equal(t, 4, total.Succeeded())
	require.Len(t, total.Errors, 1)
}

func TestSummarize_GroupsByDirectorAndYear(t *testing.T) {
	a := record("A", "a", "Juan Dela Cruz", 100.10)
	a.StartDate = unix(time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC).Unix())
	b := record("B", "b", "Juan Dela Cruz", 200.20)
	b.PODate = unix(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC).Unix())
	c := record("C", "c", "", 5)

	agg := Summarize([]project.Record{a, b, c})
	require.Len(t, agg, 2)
	require.Equal(t, 2, agg["Juan Dela Cruz|2023"].Count)
	require.Equal(t, "300.3", agg["Juan Dela Cruz|2023"].ContractSum.String())
	require.Equal(t, 1, agg["|unknown"].Count)
}

func TestUpsertBatch_KeylessRowsWithSameNameStayDistinct(t *testing.T) {
	ctx := context.Background()
	s, repo := provisioned(t)
	u := newUpserter(s, repo)
	batch := func() []project.Record {
		return []project.Record{
			record("", "Maintenance", "Maria Santos", 100),
			record("", "Maintenance", "Maria Santos", 200),
		}
	}

	res, err := u.UpsertBatch(ctx, batch(), DefaultKeyField)
	require.NoError(t, err)
	require.Equal(t, BatchResult{Processed: 2, Inserted: 2}, res)

	res, err = u.UpsertBatch(ctx, batch(), DefaultKeyField)
	require.NoError(t, err)
	require.Equal(t, BatchResult{Processed: 2, Updated: 2}, res)

	stored, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	got := Summarize(stored)["Maria Santos|unknown"]
	require.Equal(t, 2, got.Count)
	require.Equal(t, "300", got.ContractSum.String())
}

func TestUpsertBatch_LoadKeepsKeylessRowsAcrossBatches(t *testing.T) {
	ctx := context.Background()
	s, repo := provisioned(t)
	u := newUpserter(s, repo)
	load := func() BatchResult {
		u.BeginLoad()
		var total BatchResult
		for _, amount := range []float64{100, 200} {
			res, err := u.UpsertBatch(ctx, []project.Record{record("", "Maintenance", "Maria Santos", amount)}, DefaultKeyField)
			require.NoError(t, err)
			total.Add(res)
		}
		return total
	}

	require.Equal(t, BatchResult{Processed: 2, Inserted: 2}, load())
	require.Equal(t, BatchResult{Processed: 2, Updated: 2}, load())

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
