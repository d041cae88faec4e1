package services

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
	"github.com/iota-uz/projtrack/pkg/logging"
	"github.com/iota-uz/projtrack/pkg/normalize"
)

// Mapper turns raw source rows into canonical project records.
type Mapper struct {
	headers *normalize.Headers
	names   *normalize.Names
	logger  *logrus.Entry

	hinted  map[string]struct{}
	unknown map[string]struct{}
}

func NewMapper(headers *normalize.Headers, names *normalize.Names, logger *logrus.Entry) *Mapper {
	if headers == nil {
		headers = normalize.DefaultHeaders()
	}
	if names == nil {
		names = normalize.DefaultNames()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Mapper{
		headers: headers,
		names:   names,
		logger:  logger,
		hinted:  map[string]struct{}{},
		unknown: map[string]struct{}{},
	}
}

type candidate struct {
	priority int
	header   string
	value    any
	// repeat marks a renamed repeat of another column.
	repeat bool
}

// Map builds one record. Rows without a usable project name are rejected with
// ErrMissingProjectName.
func (m *Mapper) Map(row project.RawRow) (project.Record, error) {
	rec := project.Record{SourceRow: row.Position, SourceLine: row.Line, SourceSheet: row.Sheet}

	candidates := map[string][]candidate{}
	extra := map[string]any{}
	headers := rowHeaders(row)
	for _, header := range headers {
		value := row.Values[header]
		name, repeat := project.BaseHeader(header, headers)
		field, priority, mapped := m.headers.Resolve(name)
		if !mapped {
			if repeat {
				field = normalize.Clean(header)
			}
			if field != "" && !blank(value) {
				extra[field] = value
			}
			m.hintOnce(header, field)
			continue
		}
		candidates[field] = append(candidates[field], candidate{priority: priority, header: header, value: value, repeat: repeat})
	}

	for _, f := range project.Fields {
		cs := candidates[f.ID]
		// Equal priorities keep column order.
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].priority < cs[j].priority })
		picked := -1
		for i, c := range cs {
			if blank(c.value) {
				continue
			}
			if v := coerce(f.Kind, c.value); v != nil {
				f.Set(&rec, v)
				picked = i
				break
			}
		}
		for i, c := range cs {
			if c.repeat && i != picked && !blank(c.value) {
				extra[normalize.Clean(c.header)] = c.value
			}
		}
	}

	m.canonicalizeDirector(&rec, row.Director)

	if rec.ProjectName == nil {
		return rec, ErrMissingProjectName
	}

	project.ApplyDefaults(&rec)
	if len(extra) > 0 {
		rec.Extra = extra
	}
	if raw, err := json.Marshal(row.Values); err == nil {
		rec.RawData = raw
	}
	return rec, nil
}

// MapAll maps every row and sets aside the ones without a project name.
func (m *Mapper) MapAll(rows []project.RawRow) ([]project.Record, []RowError) {
	records := make([]project.Record, 0, len(rows))
	var skipped []RowError
	for _, row := range rows {
		rec, err := m.Map(row)
		if err != nil {
			skipped = append(skipped, RowError{Row: row.Position, Line: row.Line, Sheet: row.Sheet, Err: err})
			m.logger.WithFields(logrus.Fields{
				"row":   row.Position,
				"sheet": row.Sheet,
				"line":  row.Line,
			}).Warn("row skipped: no project name")
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func (m *Mapper) canonicalizeDirector(rec *project.Record, fallback string) {
	raw := rec.Director()
	if raw == "" {
		raw = fallback
	}
	name := m.names.Canonicalize(raw)
	if name == "" {
		rec.ProjectDirector = nil
		return
	}
	rec.ProjectDirector = &name
	if !m.names.Known(name) {
		if _, seen := m.unknown[name]; !seen {
			m.unknown[name] = struct{}{}
			m.logger.WithField("director", name).Warn("director not in the known list")
		}
	}
}

func (m *Mapper) hintOnce(header, cleaned string) {
	if _, seen := m.hinted[cleaned]; seen {
		return
	}
	m.hinted[cleaned] = struct{}{}
	entry := m.logger.WithFields(logrus.Fields{"header": header, "stored_as": cleaned})
	if suggestion, ok := m.headers.Suggest(header); ok {
		entry = entry.WithField("closest_field", suggestion)
	}
	entry.Info("unmapped column kept in extra fields")
}

func coerce(kind project.Kind, v any) any {
	switch kind {
	case project.KindNumber, project.KindAmount:
		if f := normalize.CoerceNumber(v); f != nil {
			return *f
		}
	case project.KindDate:
		if d := normalize.CoerceDate(v); d != nil {
			return *d
		}
	default:
		if s := normalize.CoerceText(v); s != nil {
			return *s
		}
	}
	return nil
}

func rowHeaders(row project.RawRow) []string {
	if len(row.Headers) > 0 {
		return row.Headers
	}
	headers := make([]string, 0, len(row.Values))
	for h := range row.Values {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	return headers
}

func blank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}
