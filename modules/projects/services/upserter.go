package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
	"github.com/iota-uz/projtrack/pkg/logging"
	"github.com/iota-uz/projtrack/pkg/store"
)

const (
	modeReplace = "replace"
	modeScope   = "scope"

	rowSavepoint = "project_row"
)

type BatchResult struct {
	Processed int        `json:"processed"`
	Inserted  int        `json:"inserted"`
	Updated   int        `json:"updated"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors,omitempty"`
}

// Succeeded counts rows that were written.
func (r BatchResult) Succeeded() int {
	return r.Inserted + r.Updated
}

// Add folds another batch into r.
func (r *BatchResult) Add(o BatchResult) {
	r.Processed += o.Processed
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Failed += o.Failed
	r.Errors = append(r.Errors, o.Errors...)
}

func (r *BatchResult) fail(pos int, rec *project.Record, key string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RowError{
		Row:         pos,
		Line:        rec.SourceLine,
		Sheet:       rec.SourceSheet,
		BusinessKey: key,
		Err:         err,
	})
}

// Upserter writes record batches with replace-on-key semantics.
type Upserter struct {
	store    store.Store
	repo     project.Repository
	validate *validator.Validate
	logger   *logrus.Entry
	now      func() time.Time

	// loaded carries keyless replacements across the batches of one load.
	loaded keylessRows
}

// keylessRows maps a keyless identity (director and project name) to the
// number of rows stored before the load that were removed for it and are
// still to be counted as updated. Presence means the old rows are gone.
type keylessRows map[string]int

type keylessState struct {
	done   keylessRows
	staged keylessRows
}

func (k *keylessState) cleared(id string) (int, bool) {
	if n, ok := k.staged[id]; ok {
		return n, true
	}
	n, ok := k.done[id]
	return n, ok
}

func keylessIdentity(rec *project.Record) string {
	name := ""
	if rec.ProjectName != nil {
		name = *rec.ProjectName
	}
	return rec.Director() + "\x00" + name
}

func NewUpserter(s store.Store, repo project.Repository, logger *logrus.Entry) *Upserter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Upserter{
		store:    s,
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source used for created_at/updated_at.
func (u *Upserter) WithClock(now func() time.Time) *Upserter {
	u.now = now
	return u
}

// BeginLoad starts a load spanning several UpsertBatch calls. Keyless rows
// stored before the load are replaced once; keyless rows written by the load
// itself are never replaced, even when they share a director and name.
func (u *Upserter) BeginLoad() {
	u.loaded = keylessRows{}
}

// KeyEnforced reports whether the store keeps keyField unique, which selects
// replace-on-conflict writes over scope replacement.
func (u *Upserter) KeyEnforced(ctx context.Context, keyField string) (bool, error) {
	enforced, err := u.repo.KeyEnforced(ctx, keyField)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrFatalStore, err)
	}
	return enforced, nil
}

// UpsertBatch writes records inside one transaction. Rows failing validation
// or a statement are recorded and skipped; a transaction-level failure rolls
// everything back and returns ErrFatalStore.
//
// When the store does not enforce the key, every director scope present in
// the batch is deleted first, so callers must pass a whole scope per call.
func (u *Upserter) UpsertBatch(ctx context.Context, records []project.Record, keyField string) (BatchResult, error) {
	enforced, err := u.KeyEnforced(ctx, keyField)
	if err != nil {
		return BatchResult{}, err
	}
	mode := modeReplace
	if !enforced {
		mode = modeScope
	}

	m := metricsSingleton()
	start := time.Now()
	now := u.now().Unix()

	var res BatchResult
	keyless := &keylessState{done: u.loaded}
	err = u.store.InTx(ctx, func(ctx context.Context, q store.Querier) error {
		res = BatchResult{}
		keyless.staged = keylessRows{}
		if !enforced {
			if err := u.deleteScopes(ctx, q, records); err != nil {
				return err
			}
		}

		for i := range records {
			rec := &records[i]
			pos := i + 1
			key := rec.Key(keyField)
			res.Processed++

			if err := u.validate.Struct(rec); err != nil {
				res.fail(pos, rec, key, err)
				continue
			}

			var replaced bool
			rowErr, fatal := store.Savepoint(ctx, q, rowSavepoint, func() error {
				var err error
				replaced, err = u.writeRow(ctx, q, enforced, keyField, key, rec, now, keyless)
				return err
			})
			if fatal != nil {
				return fatal
			}
			if rowErr != nil {
				res.fail(pos, rec, key, rowErr)
				continue
			}
			if replaced {
				res.Updated++
			} else {
				res.Inserted++
			}
		}
		return nil
	})
	m.batchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		m.batchesTotal.WithLabelValues("fatal", mode).Inc()
		u.logger.WithFields(logrus.Fields{"mode": mode, "rows": len(records), "error": err.Error()}).Error("batch rolled back")
		res.Inserted, res.Updated = 0, 0
		return res, fmt.Errorf("%w: %w", ErrFatalStore, err)
	}

	if u.loaded != nil {
		for id, owed := range keyless.staged {
			u.loaded[id] = owed
		}
	}
	m.batchesTotal.WithLabelValues("committed", mode).Inc()
	recordRows("inserted", res.Inserted)
	recordRows("updated", res.Updated)
	recordRows("failed", res.Failed)
	u.logger.WithFields(logrus.Fields{
		"mode":      mode,
		"processed": res.Processed,
		"inserted":  res.Inserted,
		"updated":   res.Updated,
		"failed":    res.Failed,
	}).Info("batch committed")
	return res, nil
}

// writeRow reports whether an existing row was replaced.
func (u *Upserter) writeRow(ctx context.Context, q store.Querier, enforced bool, keyField, key string, rec *project.Record, now int64, keyless *keylessState) (bool, error) {
	if enforced {
		if key == "" {
			return u.writeKeyless(ctx, q, keyField, rec, now, keyless)
		}
		_, found, err := u.repo.FindIDByKey(ctx, q, keyField, key)
		if err != nil {
			return false, err
		}
		return found, u.repo.Upsert(ctx, q, keyField, rec, now)
	}

	if key == "" {
		return false, u.repo.Insert(ctx, q, rec, now)
	}
	n, err := u.repo.DeleteByKey(ctx, q, keyField, key)
	if err != nil {
		return false, err
	}
	return n > 0, u.repo.Insert(ctx, q, rec, now)
}

// writeKeyless removes the pre-load rows sharing rec's director and name the
// first time that identity is written, then inserts rec.
func (u *Upserter) writeKeyless(ctx context.Context, q store.Querier, keyField string, rec *project.Record, now int64, keyless *keylessState) (bool, error) {
	id := keylessIdentity(rec)
	owed, cleared := keyless.cleared(id)
	if !cleared {
		n, err := u.repo.DeleteKeyless(ctx, q, keyField, rec)
		if err != nil {
			return false, err
		}
		owed = int(n)
	}
	if err := u.repo.Insert(ctx, q, rec, now); err != nil {
		return false, err
	}
	replaced := owed > 0
	if replaced {
		owed--
	}
	keyless.staged[id] = owed
	return replaced, nil
}

func (u *Upserter) deleteScopes(ctx context.Context, q store.Querier, records []project.Record) error {
	seen := map[string]struct{}{}
	for i := range records {
		director := records[i].Director()
		if _, ok := seen[director]; ok {
			continue
		}
		seen[director] = struct{}{}
		n, err := u.repo.DeleteScope(ctx, q, director)
		if err != nil {
			return err
		}
		u.logger.WithFields(logrus.Fields{"director": director, "deleted": n}).Debug("scope cleared")
	}
	return nil
}
