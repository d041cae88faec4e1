package services

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
)

const unknownYear = "unknown"

// Aggregate is the count and contract sum of one director/year group.
type Aggregate struct {
	Count       int             `json:"count"`
	ContractSum decimal.Decimal `json:"contract_sum"`
}

type Aggregates map[string]Aggregate

type GroupResult struct {
	Key         string          `json:"key"`
	SourceCount int             `json:"source_count"`
	TargetCount int             `json:"target_count"`
	SourceSum   decimal.Decimal `json:"source_sum"`
	TargetSum   decimal.Decimal `json:"target_sum"`
	Match       bool            `json:"match"`
	Reason      string          `json:"reason,omitempty"`
}

type Report struct {
	Matches    bool          `json:"matches"`
	Groups     []GroupResult `json:"groups"`
	Mismatches int           `json:"mismatches"`
}

// GroupKey returns "director|year". The year comes from start_date, then
// po_date, and is "unknown" when neither is set.
func GroupKey(r *project.Record) string {
	return r.Director() + "|" + recordYear(r)
}

func recordYear(r *project.Record) string {
	ts := r.StartDate
	if ts == nil {
		ts = r.PODate
	}
	if ts == nil {
		return unknownYear
	}
	return strconv.Itoa(time.Unix(*ts, 0).UTC().Year())
}

// Summarize groups records by GroupKey. A missing contract amount counts as 0.
func Summarize(records []project.Record) Aggregates {
	out := Aggregates{}
	for i := range records {
		key := GroupKey(&records[i])
		a := out[key]
		a.Count++
		if amt := records[i].ContractAmount; amt != nil {
			a.ContractSum = a.ContractSum.Add(decimal.NewFromFloat(*amt))
		}
		out[key] = a
	}
	return out
}

// Deduplicate keeps the last record of every business key, in first-seen
// order. Records without a key are all kept.
func Deduplicate(records []project.Record, keyField string) []project.Record {
	index := map[string]int{}
	out := make([]project.Record, 0, len(records))
	for _, r := range records {
		key := r.Key(keyField)
		if key == "" {
			out = append(out, r)
			continue
		}
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}

// Reconcile compares source and target per group. Counts must be equal and
// contract sums within tolerance; a group present on one side only is a
// mismatch.
func Reconcile(source, target Aggregates, tolerance decimal.Decimal) Report {
	keys := make([]string, 0, len(source)+len(target))
	for k := range source {
		keys = append(keys, k)
	}
	for k := range target {
		if _, ok := source[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	rep := Report{Matches: true, Groups: make([]GroupResult, 0, len(keys))}
	for _, k := range keys {
		s, t := source[k], target[k]
		g := GroupResult{
			Key:         k,
			SourceCount: s.Count,
			TargetCount: t.Count,
			SourceSum:   s.ContractSum,
			TargetSum:   t.ContractSum,
			Match:       true,
		}
		switch {
		case s.Count != t.Count:
			g.Match = false
			g.Reason = "count differs"
		case s.ContractSum.Sub(t.ContractSum).Abs().GreaterThan(tolerance):
			g.Match = false
			g.Reason = "contract sum differs"
		}
		if !g.Match {
			rep.Matches = false
			rep.Mismatches++
		}
		rep.Groups = append(rep.Groups, g)
	}
	metricsSingleton().mismatches.Set(float64(rep.Mismatches))
	return rep
}

// FilterDirectors keeps the records whose director appears in source.
func FilterDirectors(records, source []project.Record) []project.Record {
	directors := map[string]struct{}{}
	for i := range source {
		directors[source[i].Director()] = struct{}{}
	}
	out := make([]project.Record, 0, len(records))
	for _, r := range records {
		if _, ok := directors[r.Director()]; ok {
			out = append(out, r)
		}
	}
	return out
}
