package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
	"github.com/iota-uz/projtrack/pkg/schema"
	"github.com/iota-uz/projtrack/pkg/store"
)

const (
	colRawData   = "raw_data"
	colExtra     = "extra_fields"
	colCreatedAt = "created_at"
	colUpdatedAt = "updated_at"
)

type ProjectRepository struct {
	store store.Store
	table schema.Table
}

func NewProjectRepository(s store.Store) project.Repository {
	t, ok := schema.Lookup(schema.Projects)
	if !ok {
		panic("projects table is not declared")
	}
	return &ProjectRepository{store: s, table: t}
}

// writeColumns are the columns an import owns: every catalog field plus the
// audit columns. id and client_id are left to the store.
func (r *ProjectRepository) writeColumns() []string {
	cols := make([]string, 0, len(project.Fields)+4)
	for _, f := range project.Fields {
		cols = append(cols, f.ID)
	}
	return append(cols, colRawData, colExtra, colCreatedAt, colUpdatedAt)
}

func (r *ProjectRepository) values(rec *project.Record, now int64) []any {
	d := r.store.Dialect()
	out := make([]any, 0, len(project.Fields)+4)
	for _, f := range project.Fields {
		out = append(out, r.encode(f.ID, f.Value(rec), d))
	}

	var extra any
	if len(rec.Extra) > 0 {
		extra = rec.Extra
	}
	var raw any
	if len(rec.RawData) > 0 {
		raw = rec.RawData
	}
	created := rec.CreatedAt
	if created == 0 {
		created = now
	}
	return append(out,
		r.encode(colRawData, raw, d),
		r.encode(colExtra, extra, d),
		created,
		now,
	)
}

func (r *ProjectRepository) encode(col string, v any, d store.Dialect) any {
	c, ok := r.table.Column(col)
	if !ok {
		return v
	}
	return c.Encode(v, d)
}

func (r *ProjectRepository) quotedColumns(cols []string) []string {
	d := r.store.Dialect()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return out
}

func (r *ProjectRepository) insertSQL() string {
	cols := r.writeColumns()
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.store.Dialect().Quote(r.table.Name),
		strings.Join(r.quotedColumns(cols), ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
}

func (r *ProjectRepository) checkKeyField(field string) error {
	f, ok := project.FieldByID(field)
	if !ok || !f.IsText() {
		return fmt.Errorf("%q cannot be used as business key", field)
	}
	return nil
}

func (r *ProjectRepository) KeyEnforced(ctx context.Context, field string) (bool, error) {
	if err := r.checkKeyField(field); err != nil {
		return false, err
	}
	return r.store.HasUniqueIndex(ctx, r.table.Name, field)
}

func (r *ProjectRepository) FindIDByKey(ctx context.Context, q store.Querier, field, key string) (int64, bool, error) {
	if err := r.checkKeyField(field); err != nil {
		return 0, false, err
	}
	d := r.store.Dialect()
	rows, err := q.Query(ctx,
		"SELECT id FROM "+d.Quote(r.table.Name)+" WHERE "+d.Quote(field)+" = ? ORDER BY id LIMIT 1", key)
	if err != nil {
		return 0, false, errors.Wrap(err, "find project by key")
	}
	if rows.Len() == 0 {
		return 0, false, nil
	}
	return store.AsInt64(rows.Values[0][0]), true, nil
}

// Upsert replaces the row holding the same key in place, keeping its id and
// created_at.
func (r *ProjectRepository) Upsert(ctx context.Context, q store.Querier, field string, rec *project.Record, now int64) error {
	if err := r.checkKeyField(field); err != nil {
		return err
	}
	d := r.store.Dialect()
	cols := r.writeColumns()
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == colCreatedAt || c == field {
			continue
		}
		sets = append(sets, d.Quote(c)+" = excluded."+d.Quote(c))
	}
	query := r.insertSQL() + " ON CONFLICT (" + d.Quote(field) + ") DO UPDATE SET " + strings.Join(sets, ", ")
	if _, err := q.Exec(ctx, query, r.values(rec, now)...); err != nil {
		return errors.Wrap(err, "upsert project")
	}
	return nil
}

func (r *ProjectRepository) Insert(ctx context.Context, q store.Querier, rec *project.Record, now int64) error {
	if _, err := q.Exec(ctx, r.insertSQL(), r.values(rec, now)...); err != nil {
		return errors.Wrap(err, "insert project")
	}
	return nil
}

func (r *ProjectRepository) DeleteByKey(ctx context.Context, q store.Querier, field, key string) (int64, error) {
	if err := r.checkKeyField(field); err != nil {
		return 0, err
	}
	d := r.store.Dialect()
	n, err := q.Exec(ctx, "DELETE FROM "+d.Quote(r.table.Name)+" WHERE "+d.Quote(field)+" = ?", key)
	if err != nil {
		return 0, errors.Wrap(err, "delete project by key")
	}
	return n, nil
}

func (r *ProjectRepository) DeleteKeyless(ctx context.Context, q store.Querier, field string, rec *project.Record) (int64, error) {
	if err := r.checkKeyField(field); err != nil {
		return 0, err
	}
	if rec.ProjectName == nil {
		return 0, nil
	}
	d := r.store.Dialect()
	query := "DELETE FROM " + d.Quote(r.table.Name) +
		" WHERE (" + d.Quote(field) + " IS NULL OR " + d.Quote(field) + " = '')" +
		" AND project_name = ? AND COALESCE(project_director, '') = ?"
	n, err := q.Exec(ctx, query, *rec.ProjectName, rec.Director())
	if err != nil {
		return 0, errors.Wrap(err, "delete keyless project")
	}
	return n, nil
}

func (r *ProjectRepository) DeleteScope(ctx context.Context, q store.Querier, director string) (int64, error) {
	d := r.store.Dialect()
	n, err := q.Exec(ctx,
		"DELETE FROM "+d.Quote(r.table.Name)+" WHERE COALESCE(project_director, '') = ?", director)
	if err != nil {
		return 0, errors.Wrapf(err, "delete scope %q", director)
	}
	return n, nil
}

func (r *ProjectRepository) List(ctx context.Context) ([]project.Record, error) {
	d := r.store.Dialect()
	cols := append([]string{schema.IDColumn}, r.writeColumns()...)
	rows, err := r.store.Query(ctx,
		"SELECT "+strings.Join(r.quotedColumns(cols), ", ")+" FROM "+d.Quote(r.table.Name)+" ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list projects")
	}

	out := make([]project.Record, 0, rows.Len())
	for i := range rows.Values {
		out = append(out, decodeRecord(rows.Map(i)))
	}
	return out, nil
}

func decodeRecord(m map[string]any) project.Record {
	rec := project.Record{
		ID:        store.AsInt64(m[schema.IDColumn]),
		CreatedAt: store.AsInt64(m[colCreatedAt]),
		UpdatedAt: store.AsInt64(m[colUpdatedAt]),
	}
	for _, f := range project.Fields {
		v := m[f.ID]
		if v == nil {
			continue
		}
		switch f.Kind {
		case project.KindText, project.KindStatus:
			f.Set(&rec, store.AsString(v))
		case project.KindNumber, project.KindAmount:
			f.Set(&rec, store.AsFloat64(v))
		case project.KindDate:
			f.Set(&rec, store.AsInt64(v))
		}
	}
	if raw := jsonBytes(m[colRawData]); raw != nil {
		rec.RawData = raw
	}
	if extra := jsonBytes(m[colExtra]); extra != nil {
		var fields map[string]any
		if err := json.Unmarshal(extra, &fields); err == nil {
			rec.Extra = fields
		}
	}
	return rec
}

func jsonBytes(v any) json.RawMessage {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return json.RawMessage(x)
	case []byte:
		return json.RawMessage(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return b
	}
}

func (r *ProjectRepository) Count(ctx context.Context) (int64, error) {
	rows, err := r.store.Query(ctx, "SELECT COUNT(*) FROM "+r.store.Dialect().Quote(r.table.Name))
	if err != nil {
		return 0, errors.Wrap(err, "count projects")
	}
	if rows.Len() == 0 {
		return 0, nil
	}
	return store.AsInt64(rows.Values[0][0]), nil
}

// Clear deletes every project row. Attachments follow through ON DELETE
// CASCADE.
func (r *ProjectRepository) Clear(ctx context.Context) (int64, error) {
	var n int64
	err := r.store.InTx(ctx, func(ctx context.Context, q store.Querier) error {
		var err error
		n, err = q.Exec(ctx, "DELETE FROM "+r.store.Dialect().Quote(r.table.Name))
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "clear projects")
	}
	return n, nil
}
