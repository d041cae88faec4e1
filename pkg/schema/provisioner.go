package schema

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/projtrack/pkg/logging"
	"github.com/iota-uz/projtrack/pkg/store"
)

var ErrRequiredColumnMissing = errors.New("required column cannot be added to an existing table")

type Report struct {
	CreatedTables  []string `json:"created_tables,omitempty"`
	AddedColumns   []string `json:"added_columns,omitempty"`
	Indexes        []string `json:"indexes,omitempty"`
	SkippedIndexes []string `json:"skipped_indexes,omitempty"`
}

type Provisioner struct {
	tables []Table
	logger *logrus.Entry
}

func NewProvisioner(logger *logrus.Entry) *Provisioner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Provisioner{tables: Tables, logger: logger}
}

// WithTables provisions the given definitions instead of the canonical set.
func (p *Provisioner) WithTables(tables []Table) *Provisioner {
	cp := *p
	cp.tables = tables
	return &cp
}

// EnsureSchema creates missing tables, columns and indexes. It never drops or
// narrows anything and is safe to call on every run.
func (p *Provisioner) EnsureSchema(ctx context.Context, s store.Store) (Report, error) {
	var report Report
	d := s.Dialect()

	for _, t := range p.tables {
		exists, err := s.TableExists(ctx, t.Name)
		if err != nil {
			return report, err
		}
		if !exists {
			if _, err := s.Exec(ctx, CreateTableSQL(d, t)); err != nil {
				return report, errors.Wrapf(err, "create table %s", t.Name)
			}
			report.CreatedTables = append(report.CreatedTables, t.Name)
			p.logger.WithField("table", t.Name).Info("created table")
		} else {
			added, err := p.addMissingColumns(ctx, s, t)
			if err != nil {
				return report, err
			}
			report.AddedColumns = append(report.AddedColumns, added...)
		}

		for _, idx := range t.Indexes {
			if _, err := s.Exec(ctx, CreateIndexSQL(d, t.Name, idx)); err != nil {
				if !idx.Unique || !store.IsUniqueViolation(err) {
					return report, errors.Wrapf(err, "create index %s", idx.Name)
				}
				// Legacy rows with duplicate keys; the upserter falls back to
				// scope replacement while the index is absent.
				p.logger.WithFields(logrus.Fields{
					"table": t.Name,
					"index": idx.Name,
					"error": err.Error(),
				}).Warn("unique index skipped")
				report.SkippedIndexes = append(report.SkippedIndexes, idx.Name)
				continue
			}
			report.Indexes = append(report.Indexes, idx.Name)
		}
	}
	return report, nil
}

func (p *Provisioner) addMissingColumns(ctx context.Context, s store.Store, t Table) ([]string, error) {
	existing, err := s.Columns(ctx, t.Name)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[c] = struct{}{}
	}

	var added []string
	for _, c := range t.Columns {
		if _, ok := have[c.Name]; ok {
			continue
		}
		if c.NotNull && c.Default == "" {
			return added, fmt.Errorf("%w: %s.%s", ErrRequiredColumnMissing, t.Name, c.Name)
		}
		if _, err := s.Exec(ctx, AddColumnSQL(s.Dialect(), t.Name, c)); err != nil {
			return added, errors.Wrapf(err, "add column %s.%s", t.Name, c.Name)
		}
		added = append(added, t.Name+"."+c.Name)
		p.logger.WithFields(logrus.Fields{"table": t.Name, "column": c.Name}).Info("added column")
	}
	return added, nil
}
