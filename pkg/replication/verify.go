package replication

import (
	"context"
	"fmt"
	"slices"

	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/projtrack/pkg/schema"
	"github.com/iota-uz/projtrack/pkg/store"
)

type Difference struct {
	Table   string `json:"table"`
	ID      int64  `json:"id"`
	Missing bool   `json:"missing,omitempty"`
	// Patch turns the source row into the target row.
	Patch jsondiff.Patch `json:"patch,omitempty"`
}

type VerifyResult struct {
	Checked     int          `json:"checked"`
	Skipped     []string     `json:"skipped,omitempty"`
	Differences []Difference `json:"differences,omitempty"`
}

func (v VerifyResult) Complete() bool {
	return len(v.Differences) == 0
}

// Verify checks that every source row of the given tables exists in the
// target with the same id and canonical values. Only columns the source
// carries and the canonical schema knows are compared.
func Verify(ctx context.Context, source, target store.Store, tables []string) (VerifyResult, error) {
	var res VerifyResult
	for _, name := range tables {
		t, ok := schema.Lookup(name)
		if !ok {
			return res, fmt.Errorf("%w: %q", ErrUnknownTable, name)
		}
		exists, err := source.TableExists(ctx, name)
		if err != nil {
			return res, err
		}
		if !exists {
			res.Skipped = append(res.Skipped, name)
			continue
		}

		want, cols, err := canonicalRows(ctx, source, t, nil)
		if err != nil {
			return res, fmt.Errorf("read source %s: %w", name, err)
		}
		got, _, err := canonicalRows(ctx, target, t, cols)
		if err != nil {
			return res, fmt.Errorf("read target %s: %w", name, err)
		}

		for _, id := range sortedIDs(want) {
			res.Checked++
			tgt, ok := got[id]
			if !ok {
				res.Differences = append(res.Differences, Difference{Table: name, ID: id, Missing: true})
				continue
			}
			patch, err := jsondiff.Compare(want[id], tgt)
			if err != nil {
				return res, fmt.Errorf("compare %s#%d: %w", name, id, err)
			}
			if len(patch) > 0 {
				res.Differences = append(res.Differences, Difference{Table: name, ID: id, Patch: patch})
			}
		}
	}
	return res, nil
}

// canonicalRows reads a table keyed by id. When only is nil the known columns
// of the store are used and returned; otherwise exactly those columns are kept.
func canonicalRows(ctx context.Context, s store.Store, t schema.Table, only []string) (map[int64]map[string]any, []string, error) {
	d := s.Dialect()
	rows, err := s.Query(ctx, "SELECT * FROM "+d.Quote(t.Name)+" ORDER BY "+d.Quote(schema.IDColumn))
	if err != nil {
		return nil, nil, err
	}
	cols := only
	if cols == nil {
		cols, _ = knownColumns(t, rows.Columns)
	}

	out := make(map[int64]map[string]any, rows.Len())
	for i := range rows.Values {
		raw := rows.Map(i)
		row := make(map[string]any, len(cols))
		for _, name := range cols {
			c, _ := t.Column(name)
			v := raw[name]
			if t.Name == schema.Users && name == usersApproved && v == nil {
				v = true
			}
			row[name] = c.Canonical(v)
		}
		out[store.AsInt64(raw[schema.IDColumn])] = row
	}
	return out, cols, nil
}

func sortedIDs(rows map[int64]map[string]any) []int64 {
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
