package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
	"github.com/iota-uz/projtrack/pkg/logging"
	"github.com/iota-uz/projtrack/pkg/schema"
	"github.com/iota-uz/projtrack/pkg/store"
)

type State string

const (
	StateIdle            State = "Idle"
	StateValidatingInput State = "ValidatingInput"
	StateSchemaReady     State = "SchemaReady"
	StateLoading         State = "Loading"
	StateReconciling     State = "Reconciling"
	StateDone            State = "Done"
	StateAborted         State = "Aborted"
)

const (
	DefaultBatchSize = 500
	DefaultKeyField  = "ovp_number"
)

// Loader reads every raw row of a source file.
type Loader func(path string) ([]project.RawRow, error)

type PipelineOptions struct {
	Store      store.Store
	Repository project.Repository
	Load       Loader

	Mapper      *Mapper
	Provisioner *schema.Provisioner
	Upserter    *Upserter

	BatchSize int
	KeyField  string
	Tolerance decimal.Decimal
	Logger    *logrus.Entry
}

func (o *PipelineOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.KeyField == "" {
		o.KeyField = DefaultKeyField
	}
	if o.Mapper == nil {
		o.Mapper = NewMapper(nil, nil, o.Logger)
	}
	if o.Provisioner == nil {
		o.Provisioner = schema.NewProvisioner(o.Logger)
	}
	if o.Upserter == nil {
		o.Upserter = NewUpserter(o.Store, o.Repository, o.Logger)
	}
}

// Pipeline runs one import: read, provision, load in batches, reconcile.
// A Pipeline is not safe for concurrent runs.
type Pipeline struct {
	opts  PipelineOptions
	state State
	runID string
	log   *logrus.Entry
}

func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Store == nil || opts.Repository == nil || opts.Load == nil {
		return nil, fmt.Errorf("pipeline: store, repository and loader are required")
	}
	opts.setDefaults()
	return &Pipeline{opts: opts, state: StateIdle, log: opts.Logger}, nil
}

func (p *Pipeline) State() State {
	return p.state
}

// RunResult summarizes one run. AbortedIn is the state a fatal error stopped
// the run in.
type RunResult struct {
	RunID     string        `json:"run_id"`
	State     State         `json:"state"`
	AbortedIn State         `json:"aborted_in,omitempty"`
	Source    string        `json:"source"`
	Rows      int           `json:"rows"`
	Skipped   []RowError    `json:"skipped,omitempty"`
	Batches   int           `json:"batches"`
	Result    BatchResult   `json:"result"`
	Report    *Report       `json:"reconciliation,omitempty"`
	Schema    schema.Report `json:"schema"`
}

// Run executes the whole state machine against the source at path. Per-row
// failures are reported in the result and never abort the run; a returned
// error wraps ErrFatalInput or ErrFatalStore and leaves the run Aborted.
// Batches committed before the failing one stay committed.
func (p *Pipeline) Run(ctx context.Context, path string) (RunResult, error) {
	p.runID = uuid.NewString()
	p.state = StateIdle
	p.log = p.opts.Logger.WithField("run_id", p.runID)
	res := RunResult{RunID: p.runID, Source: path}

	records, skipped, rows, err := p.validateInput(path)
	res.Rows, res.Skipped = rows, skipped
	if err != nil {
		return p.abort(res, err)
	}

	p.transition(StateSchemaReady)
	schemaReport, err := p.opts.Provisioner.EnsureSchema(ctx, p.opts.Store)
	res.Schema = schemaReport
	if err != nil {
		return p.abort(res, fmt.Errorf("%w: %w", ErrFatalStore, err))
	}

	p.transition(StateLoading)
	batches, err := p.batches(ctx, records)
	if err != nil {
		return p.abort(res, err)
	}
	p.opts.Upserter.BeginLoad()
	for _, batch := range batches {
		br, err := p.opts.Upserter.UpsertBatch(ctx, batch, p.opts.KeyField)
		res.Batches++
		if err != nil {
			return p.abort(res, err)
		}
		res.Result.Add(br)
	}

	p.transition(StateReconciling)
	report, err := p.reconcile(ctx, records)
	if err != nil {
		return p.abort(res, err)
	}
	res.Report = &report

	p.transition(StateDone)
	res.State = p.state
	metricsSingleton().runsTotal.WithLabelValues(string(StateDone)).Inc()
	p.log.WithFields(logrus.Fields{
		"processed":  res.Result.Processed,
		"inserted":   res.Result.Inserted,
		"updated":    res.Result.Updated,
		"failed":     res.Result.Failed,
		"skipped":    len(res.Skipped),
		"reconciled": report.Matches,
	}).Info("run finished")
	return res, nil
}

// Reconcile compares a source file against the store without writing.
func (p *Pipeline) Reconcile(ctx context.Context, path string) (Report, error) {
	p.state = StateIdle
	p.log = p.opts.Logger.WithField("source", path)
	records, _, _, err := p.validateInput(path)
	if err != nil {
		p.state = StateAborted
		return Report{}, err
	}
	p.transition(StateReconciling)
	report, err := p.reconcile(ctx, records)
	if err != nil {
		p.state = StateAborted
		return Report{}, err
	}
	p.transition(StateDone)
	return report, nil
}

func (p *Pipeline) validateInput(path string) ([]project.Record, []RowError, int, error) {
	p.transition(StateValidatingInput)
	rows, err := p.opts.Load(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %w", ErrFatalInput, err)
	}
	if len(rows) == 0 {
		return nil, nil, 0, fmt.Errorf("%w: %s has no data rows", ErrFatalInput, path)
	}
	records, skipped := p.opts.Mapper.MapAll(rows)
	if len(skipped) > 0 {
		recordRows("skipped", len(skipped))
	}
	p.log.WithFields(logrus.Fields{
		"rows":    len(rows),
		"mapped":  len(records),
		"skipped": len(skipped),
	}).Info("source mapped")
	return records, skipped, len(rows), nil
}

// batches chunks records by BatchSize. When the store does not enforce the
// business key every batch deletes its director scopes first, so records are
// grouped one batch per director instead.
func (p *Pipeline) batches(ctx context.Context, records []project.Record) ([][]project.Record, error) {
	enforced, err := p.opts.Upserter.KeyEnforced(ctx, p.opts.KeyField)
	if err != nil {
		return nil, err
	}
	if !enforced {
		p.log.WithField("key", p.opts.KeyField).Warn("business key has no unique index; replacing whole director scopes")
		return groupByDirector(records), nil
	}

	var out [][]project.Record
	for start := 0; start < len(records); start += p.opts.BatchSize {
		end := min(start+p.opts.BatchSize, len(records))
		out = append(out, records[start:end])
	}
	return out, nil
}

func groupByDirector(records []project.Record) [][]project.Record {
	index := map[string]int{}
	var out [][]project.Record
	for _, r := range records {
		d := r.Director()
		i, ok := index[d]
		if !ok {
			i = len(out)
			index[d] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], r)
	}
	return out
}

func (p *Pipeline) reconcile(ctx context.Context, records []project.Record) (Report, error) {
	stored, err := p.opts.Repository.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrFatalStore, err)
	}
	source := Deduplicate(records, p.opts.KeyField)
	report := Reconcile(Summarize(source), Summarize(FilterDirectors(stored, source)), p.opts.Tolerance)

	entry := p.log.WithFields(logrus.Fields{"groups": len(report.Groups), "mismatches": report.Mismatches})
	if report.Matches {
		entry.Info("reconciliation passed")
	} else {
		for _, g := range report.Groups {
			if g.Match {
				continue
			}
			p.log.WithFields(logrus.Fields{
				"group":        g.Key,
				"source_count": g.SourceCount,
				"target_count": g.TargetCount,
				"source_sum":   g.SourceSum.String(),
				"target_sum":   g.TargetSum.String(),
				"reason":       g.Reason,
			}).Warn("group mismatch")
		}
		entry.Warn("reconciliation found mismatches")
	}
	return report, nil
}

func (p *Pipeline) transition(to State) {
	p.log.WithFields(logrus.Fields{"from": p.state, "to": to}).Info("state transition")
	p.state = to
}

func (p *Pipeline) abort(res RunResult, err error) (RunResult, error) {
	p.log.WithFields(logrus.Fields{"from": p.state, "to": StateAborted, "error": err.Error()}).Error("run aborted")
	res.AbortedIn = p.state
	p.state = StateAborted
	res.State = StateAborted
	metricsSingleton().runsTotal.WithLabelValues(string(StateAborted)).Inc()
	return res, err
}
