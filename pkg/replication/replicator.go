// Package replication copies the canonical tables from one store to another,
// row by row, keeping primary keys.
package replication

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/projtrack/pkg/schema"
	"github.com/iota-uz/projtrack/pkg/store"
)

const (
	usersApproved = "approved"
)

type RowFailure struct {
	ID       int64  `json:"id"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

type TableResult struct {
	Table          string       `json:"table"`
	Skipped        bool         `json:"skipped,omitempty"`
	Read           int          `json:"read"`
	Written        int          `json:"written"`
	Failed         int          `json:"failed"`
	DroppedColumns []string     `json:"dropped_columns,omitempty"`
	Failures       []RowFailure `json:"failures,omitempty"`
}

type Result struct {
	Tables  []TableResult `json:"tables"`
	Read    int           `json:"read"`
	Written int           `json:"written"`
	Failed  int           `json:"failed"`
	Skipped []string      `json:"skipped,omitempty"`
}

func (r *Result) add(t TableResult) {
	r.Tables = append(r.Tables, t)
	r.Read += t.Read
	r.Written += t.Written
	r.Failed += t.Failed
	if t.Skipped {
		r.Skipped = append(r.Skipped, t.Table)
	}
}

type Replicator struct {
	opts  Options
	pacer *pacer
	m     *metrics
}

func NewReplicator(opts Options) (*Replicator, error) {
	if opts.BatchSize < 0 {
		return nil, invalidConfig("batch size must be non-negative")
	}
	if opts.MaxAttempts < 0 {
		return nil, invalidConfig("max attempts must be non-negative")
	}
	opts.setDefaults()
	p, err := newPacer(opts)
	if err != nil {
		return nil, err
	}
	return &Replicator{opts: opts, pacer: p, m: getMetrics()}, nil
}

// Replicate copies every table of tableOrder from source to target. Tables the
// source does not have are skipped. Rows that keep failing after MaxAttempts
// are itemized in the result; only read failures, identity resets and context
// cancellation end the run with an error.
func (r *Replicator) Replicate(ctx context.Context, source, target store.Store, tableOrder []string) (Result, error) {
	tables := make([]schema.Table, 0, len(tableOrder))
	for _, name := range tableOrder {
		t, ok := schema.Lookup(name)
		if !ok {
			return Result{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
		}
		tables = append(tables, t)
	}

	var res Result
	for _, t := range tables {
		tr, err := r.replicateTable(ctx, source, target, t)
		res.add(tr)
		if err != nil {
			return res, err
		}
	}
	r.opts.Logger.WithFields(logrus.Fields{
		"read":    res.Read,
		"written": res.Written,
		"failed":  res.Failed,
		"skipped": len(res.Skipped),
	}).Info("replication finished")
	return res, nil
}

func (r *Replicator) replicateTable(ctx context.Context, source, target store.Store, t schema.Table) (TableResult, error) {
	tr := TableResult{Table: t.Name}
	log := r.opts.Logger.WithField("table", t.Name)

	exists, err := source.TableExists(ctx, t.Name)
	if err != nil {
		return tr, fmt.Errorf("inspect source table %s: %w", t.Name, err)
	}
	if !exists {
		tr.Skipped = true
		r.m.tablesSkipped.Inc()
		log.Warn("table missing in source, skipped")
		return tr, nil
	}

	src := source.Dialect()
	rows, err := source.Query(ctx, "SELECT * FROM "+src.Quote(t.Name)+" ORDER BY "+src.Quote(schema.IDColumn))
	if err != nil {
		return tr, fmt.Errorf("read source table %s: %w", t.Name, err)
	}
	tr.Read = rows.Len()

	cols, dropped := knownColumns(t, rows.Columns)
	tr.DroppedColumns = dropped
	if len(dropped) > 0 {
		log.WithField("columns", strings.Join(dropped, ",")).Warn("columns unknown to the canonical schema dropped")
	}
	if t.Name == schema.Users && !slices.Contains(cols, usersApproved) {
		cols = append(cols, usersApproved)
	}

	query := upsertSQL(target.Dialect(), t.Name, cols)
	for i := range rows.Values {
		values := rows.Map(i)
		id := store.AsInt64(values[schema.IDColumn])
		args := rowArgs(t, cols, values, target.Dialect())

		attempts, err := r.writeRow(ctx, target, t.Name, query, args)
		if err != nil {
			if ctx.Err() != nil {
				return tr, ctx.Err()
			}
			tr.Failed++
			tr.Failures = append(tr.Failures, RowFailure{ID: id, Attempts: attempts, Error: truncateError(err, r.opts.LastErrorMaxLen)})
			r.m.rowsTotal.WithLabelValues(t.Name, "failed").Inc()
			log.WithFields(logrus.Fields{"id": id, "attempts": attempts, "error": err.Error()}).Error("row not replicated")
		} else {
			tr.Written++
			r.m.rowsTotal.WithLabelValues(t.Name, "written").Inc()
		}

		if r.opts.BatchDelay > 0 && r.opts.BatchSize > 0 && (i+1)%r.opts.BatchSize == 0 && i+1 < rows.Len() {
			if err := r.opts.Sleep(ctx, r.opts.BatchDelay); err != nil {
				return tr, err
			}
		}
	}

	if err := target.ResetIdentity(ctx, t.Name); err != nil {
		return tr, fmt.Errorf("reset identity of %s: %w", t.Name, err)
	}
	log.WithFields(logrus.Fields{"read": tr.Read, "written": tr.Written, "failed": tr.Failed}).Info("table replicated")
	return tr, nil
}

// writeRow returns the number of attempts made.
func (r *Replicator) writeRow(ctx context.Context, target store.Store, table, query string, args []any) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if err := r.pacer.wait(ctx, table); err != nil {
			return attempt - 1, err
		}
		start := time.Now()
		_, err := target.Exec(ctx, query, args...)
		if err == nil {
			r.m.writeLatency.WithLabelValues(table, "ok").Observe(time.Since(start).Seconds())
			return attempt, nil
		}
		r.m.writeLatency.WithLabelValues(table, "error").Observe(time.Since(start).Seconds())
		lastErr = err
		if ctx.Err() != nil || attempt == r.opts.MaxAttempts {
			return attempt, err
		}
		r.m.retriesTotal.WithLabelValues(table).Inc()
		wait := backoff(attempt, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax)
		if err := r.opts.Sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}
	return r.opts.MaxAttempts, lastErr
}

// knownColumns keeps the source columns the canonical table declares, in
// source order.
func knownColumns(t schema.Table, source []string) (keep, dropped []string) {
	for _, c := range source {
		if _, ok := t.Column(c); ok {
			keep = append(keep, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	return keep, dropped
}

func rowArgs(t schema.Table, cols []string, values map[string]any, d store.Dialect) []any {
	args := make([]any, len(cols))
	for i, name := range cols {
		v := values[name]
		if t.Name == schema.Users && name == usersApproved && v == nil {
			v = true
		}
		c, _ := t.Column(name)
		args[i] = c.Encode(v, d)
	}
	return args
}

func upsertSQL(d store.Dialect, table string, cols []string) string {
	quoted := make([]string, len(cols))
	sets := make([]string, 0, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
		if c != schema.IDColumn {
			sets = append(sets, d.Quote(c)+" = excluded."+d.Quote(c))
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		d.Quote(table),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		d.Quote(schema.IDColumn),
	)
	if len(sets) == 0 {
		return q + "DO NOTHING"
	}
	return q + "DO UPDATE SET " + strings.Join(sets, ", ")
}
