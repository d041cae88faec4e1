// Package normalize turns human-authored spreadsheet headers, cell values and
// director names into canonical forms.
package normalize

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var aliasesYAML []byte

var (
	escapedBreak = strings.NewReplacer(`\r`, " ", `\n`, " ", `\t`, " ")
	whitespace   = regexp.MustCompile(`[\s\x{00A0}]+`)
	disallowed   = regexp.MustCompile(`[^A-Za-z0-9_]`)
	underscores  = regexp.MustCompile(`_{2,}`)
)

// Clean reduces a raw header to its comparable form: escaped and real line
// breaks and other whitespace become underscores, punctuation is stripped and
// the result is lower-cased.
func Clean(raw string) string {
	s := escapedBreak.Replace(raw)
	s = whitespace.ReplaceAllString(s, "_")
	s = disallowed.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	s = underscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

type aliasFile struct {
	Fields []struct {
		ID      string   `yaml:"id"`
		Aliases []string `yaml:"aliases"`
	} `yaml:"fields"`
}

type alias struct {
	field    string
	priority int
}

// Headers maps cleaned header variants to canonical field ids.
type Headers struct {
	byClean map[string]alias
	fields  []string
}

// ParseHeaders builds an alias table from YAML. A variant claimed by two
// different fields is an error.
func ParseHeaders(data []byte) (*Headers, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias table: %w", err)
	}

	h := &Headers{byClean: map[string]alias{}}
	for _, field := range f.Fields {
		id := Clean(field.ID)
		if id == "" || id != field.ID {
			return nil, fmt.Errorf("field id %q is not in canonical form", field.ID)
		}
		h.fields = append(h.fields, id)
		if err := h.add(id, id, 0); err != nil {
			return nil, err
		}
		for i, variant := range field.Aliases {
			if err := h.add(Clean(variant), id, i+1); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

func (h *Headers) add(clean, field string, priority int) error {
	if clean == "" {
		return fmt.Errorf("field %s has an alias that cleans to nothing", field)
	}
	if prev, ok := h.byClean[clean]; ok {
		if prev.field != field {
			return fmt.Errorf("alias %q claimed by both %s and %s", clean, prev.field, field)
		}
		return nil
	}
	h.byClean[clean] = alias{field: field, priority: priority}
	return nil
}

var defaultHeaders = sync.OnceValue(func() *Headers {
	h, err := ParseHeaders(aliasesYAML)
	if err != nil {
		panic(err)
	}
	return h
})

// DefaultHeaders returns the embedded alias table.
func DefaultHeaders() *Headers {
	return defaultHeaders()
}

// Normalize returns the canonical field id for raw and true, or the cleaned
// header and false when no alias matches.
func (h *Headers) Normalize(raw string) (string, bool) {
	field, _, ok := h.Resolve(raw)
	return field, ok
}

// Resolve is Normalize plus the alias priority (0 is the canonical id itself,
// lower wins).
func (h *Headers) Resolve(raw string) (field string, priority int, mapped bool) {
	clean := Clean(raw)
	if a, ok := h.byClean[clean]; ok {
		return a.field, a.priority, true
	}
	return clean, 0, false
}

// Fields lists canonical ids in declaration order.
func (h *Headers) Fields() []string {
	return append([]string(nil), h.fields...)
}

// Suggest returns the known field closest to an unmapped header, for log
// hints only.
func (h *Headers) Suggest(raw string) (string, bool) {
	clean := Clean(raw)
	if clean == "" {
		return "", false
	}
	candidates := make([]string, 0, len(h.byClean))
	for k := range h.byClean {
		candidates = append(candidates, k)
	}
	sort.Strings(candidates)

	ranks := fuzzy.RankFindNormalizedFold(clean, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return h.byClean[ranks[0].Target].field, true
	}

	best, bestDist := "", 4
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(clean, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" {
		return "", false
	}
	return h.byClean[best].field, true
}
