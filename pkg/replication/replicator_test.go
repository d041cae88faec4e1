package replication

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/projtrack/pkg/itf"
	"github.com/iota-uz/projtrack/pkg/schema"
	"github.com/iota-uz/projtrack/pkg/store"
)

func exec(t *testing.T, s store.Store, queries ...string) {
	t.Helper()
	for _, q := range queries {
		_, err := s.Exec(context.Background(), q)
		require.NoError(t, err, q)
	}
}

// legacySource mimics an older local database: no clients or suppliers
// table, users without the approved column, an extra unknown column.
func legacySource(t *testing.T) store.Store {
	t.Helper()
	s := itf.SQLite(t)
	exec(t, s,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT NOT NULL, full_name TEXT, theme TEXT)`,
		`INSERT INTO users (id, username, full_name, theme) VALUES (5, 'jdc', 'Juan Dela Cruz', 'dark'), (9, 'ms', 'Maria Santos', NULL)`,
		`CREATE TABLE projects (id INTEGER PRIMARY KEY, ovp_number TEXT, project_name TEXT NOT NULL,
			contract_amount REAL, start_date INTEGER, raw_data TEXT)`,
		`INSERT INTO projects (id, ovp_number, project_name, contract_amount, start_date, raw_data) VALUES
			(3, 'OVP-001', 'Tower A', 1500000, 1678838400, '{"PROJECT NAME":"Tower A"}'),
			(7, NULL, 'Keyless depot', 12.5, NULL, NULL)`,
		`CREATE TABLE attachments (id INTEGER PRIMARY KEY, project_id INTEGER NOT NULL, file_name TEXT NOT NULL, uploaded_by INTEGER)`,
		`INSERT INTO attachments (id, project_id, file_name, uploaded_by) VALUES (1, 3, 'po.pdf', 5), (2, 999, 'orphan.pdf', NULL)`,
	)
	return s
}

func provisionedTarget(t *testing.T) store.Store {
	t.Helper()
	s := itf.SQLite(t)
	_, err := schema.NewProvisioner(nil).EnsureSchema(context.Background(), s)
	require.NoError(t, err)
	return s
}

type sleepRecorder struct {
	calls []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return nil
}

func TestReplicate_CopiesTablesInOrderAndPreservesIDs(t *testing.T) {
	ctx := context.Background()
	source, target := legacySource(t), provisionedTarget(t)
	sleeps := &sleepRecorder{}

	skippedBefore := testutil.ToFloat64(getMetrics().tablesSkipped)

	r, err := NewReplicator(Options{MaxAttempts: 2, JitterMax: -1, Sleep: sleeps.sleep, Rand: rand.New(rand.NewSource(1))})
	require.NoError(t, err)

	res, err := r.Replicate(ctx, source, target, schema.DefaultOrder())
	require.NoError(t, err)
	require.Equal(t, []string{schema.Clients, schema.Suppliers}, res.Skipped)
	require.Equal(t, 6, res.Read)
	require.Equal(t, 5, res.Written)
	require.Equal(t, 1, res.Failed)
	require.InDelta(t, skippedBefore+2, testutil.ToFloat64(getMetrics().tablesSkipped), 1e-9)

	users := res.Tables[0]
	require.Equal(t, schema.Users, users.Table)
	require.Equal(t, []string{"theme"}, users.DroppedColumns)

	attachments := res.Tables[4]
	require.Len(t, attachments.Failures, 1)
	require.Equal(t, int64(2), attachments.Failures[0].ID)
	require.Equal(t, 2, attachments.Failures[0].Attempts)
	require.Contains(t, attachments.Failures[0].Error, "FOREIGN KEY")
	require.Equal(t, []time.Duration{time.Second}, sleeps.calls)

	rows, err := target.Query(ctx, `SELECT id, approved, role FROM users ORDER BY id`)
	require.NoError(t, err)
	require.Equal(t, 2, rows.Len())
	require.Equal(t, int64(5), store.AsInt64(rows.Values[0][0]))
	require.True(t, store.AsBool(rows.Values[0][1]))
	require.Equal(t, "user", store.AsString(rows.Values[0][2]))
	require.Equal(t, int64(9), store.AsInt64(rows.Values[1][0]))

	rows, err = target.Query(ctx, `SELECT id, project_name, raw_data FROM projects ORDER BY id`)
	require.NoError(t, err)
	require.Equal(t, 2, rows.Len())
	require.Equal(t, int64(3), store.AsInt64(rows.Values[0][0]))
	require.JSONEq(t, `{"PROJECT NAME":"Tower A"}`, store.AsString(rows.Values[0][2]))
	require.Equal(t, int64(7), store.AsInt64(rows.Values[1][0]))

	_, err = target.Exec(ctx, `INSERT INTO projects (project_name) VALUES ('after replication')`)
	require.NoError(t, err)
	rows, err = target.Query(ctx, `SELECT MAX(id) FROM projects`)
	require.NoError(t, err)
	require.Equal(t, int64(8), store.AsInt64(rows.Values[0][0]))
}

func TestReplicate_IsRepeatableAndVerifies(t *testing.T) {
	ctx := context.Background()
	source, target := legacySource(t), provisionedTarget(t)
	exec(t, source, `DELETE FROM attachments WHERE id = 2`)

	r, err := NewReplicator(Options{Sleep: (&sleepRecorder{}).sleep})
	require.NoError(t, err)
	order := schema.DefaultOrder()

	_, err = r.Replicate(ctx, source, target, order)
	require.NoError(t, err)
	exec(t, source, `UPDATE projects SET contract_amount = 1750000 WHERE id = 3`)
	res, err := r.Replicate(ctx, source, target, order)
	require.NoError(t, err)
	require.Zero(t, res.Failed)

	check, err := Verify(ctx, source, target, order)
	require.NoError(t, err)
	require.True(t, check.Complete(), "%+v", check.Differences)
	require.Equal(t, 5, check.Checked)
	require.Equal(t, []string{schema.Clients, schema.Suppliers}, check.Skipped)

	exec(t, target, `UPDATE projects SET project_name = 'Tower A (edited)' WHERE id = 3`, `DELETE FROM attachments`)
	check, err = Verify(ctx, source, target, order)
	require.NoError(t, err)
	require.False(t, check.Complete())
	require.Len(t, check.Differences, 2)

	edited := check.Differences[0]
	require.Equal(t, schema.Projects, edited.Table)
	require.Equal(t, int64(3), edited.ID)
	require.Len(t, edited.Patch, 1)
	require.Equal(t, "/project_name", edited.Patch[0].Path)

	missing := check.Differences[1]
	require.Equal(t, schema.Attachments, missing.Table)
	require.True(t, missing.Missing)
}

func TestReplicate_BatchDelayBetweenBatches(t *testing.T) {
	ctx := context.Background()
	source, target := itf.SQLite(t), provisionedTarget(t)
	exec(t, source,
		`CREATE TABLE suppliers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`INSERT INTO suppliers (id, name) VALUES (1, 'a'), (2, 'b'), (3, 'c'), (4, 'd'), (5, 'e')`,
	)
	sleeps := &sleepRecorder{}
	r, err := NewReplicator(Options{BatchSize: 2, BatchDelay: 250 * time.Millisecond, Sleep: sleeps.sleep})
	require.NoError(t, err)

	res, err := r.Replicate(ctx, source, target, []string{schema.Suppliers})
	require.NoError(t, err)
	require.Equal(t, 5, res.Written)
	require.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, sleeps.calls)
}

func TestReplicate_UnknownTable(t *testing.T) {
	r, err := NewReplicator(Options{})
	require.NoError(t, err)
	_, err = r.Replicate(context.Background(), itf.SQLite(t), itf.SQLite(t), []string{"invoices"})
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestReplicate_CancelledContextStops(t *testing.T) {
	source, target := legacySource(t), provisionedTarget(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewReplicator(Options{})
	require.NoError(t, err)
	_, err = r.Replicate(ctx, source, target, schema.DefaultOrder())
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestNewReplicator_RejectsBadRate(t *testing.T) {
	_, err := NewReplicator(Options{Rate: "fast"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPacer_WaitsForWindowReset(t *testing.T) {
	ctx := context.Background()
	var waited []time.Duration
	p, err := newPacer(Options{Rate: "2-S", Sleep: func(ctx context.Context, d time.Duration) error {
		waited = append(waited, d)
		return sleep(ctx, d)
	}})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.wait(ctx, "users"))
	}
	require.NotEmpty(t, waited)
	for _, d := range waited {
		require.LessOrEqual(t, d, time.Second)
	}
}

func TestUpsertSQL(t *testing.T) {
	require.Equal(t,
		`INSERT INTO "users" ("id", "username") VALUES (?, ?) ON CONFLICT ("id") DO UPDATE SET "username" = excluded."username"`,
		upsertSQL(store.SQLite, "users", []string{"id", "username"}))
	require.Equal(t,
		`INSERT INTO "users" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING`,
		upsertSQL(store.Postgres, "users", []string{"id"}))
}

func TestTruncateError(t *testing.T) {
	require.Empty(t, truncateError(nil, 10))
	require.Equal(t, "abc", truncateError(errors.New("abcdef"), 3))
	require.Equal(t, "é", truncateError(errors.New("éé"), 3))
}
