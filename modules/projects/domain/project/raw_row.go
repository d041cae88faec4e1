package project

import (
	"strconv"
	"strings"
)

// RawRow is one untyped source row as read from a workbook or JSON export.
type RawRow struct {
	// Position is the 1-based index across the whole source.
	Position int
	// Sheet is the workbook sheet or JSON grouping the row came from.
	Sheet string
	// Line is the sheet row number, when the source has one.
	Line int
	// Director is the grouping-level director, used when the row has none.
	Director string
	// Headers keeps the source column order.
	Headers []string
	Values  map[string]any
}

// DuplicateSep joins a repeated header with its occurrence number.
const DuplicateSep = "#"

// UniqueHeaders trims headers and renames every repeat of a non-empty header
// to "NAME#2", "NAME#3", ... so no cell is keyed twice. Empty headers stay
// empty.
func UniqueHeaders(in []string) []string {
	out := make([]string, len(in))
	seen := make(map[string]int, len(in))
	for i, h := range in {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h += DuplicateSep + strconv.Itoa(n)
			for seen[h] > 0 {
				n++
				h = strings.TrimSpace(in[i]) + DuplicateSep + strconv.Itoa(n)
			}
			seen[h]++
		}
		out[i] = h
	}
	return out
}

// BaseHeader returns the header a repeat was renamed from. ok is false when h
// is not a renamed repeat of a header in headers.
func BaseHeader(h string, headers []string) (base string, ok bool) {
	i := strings.LastIndex(h, DuplicateSep)
	if i <= 0 {
		return h, false
	}
	if _, err := strconv.Atoi(h[i+len(DuplicateSep):]); err != nil {
		return h, false
	}
	base = h[:i]
	for _, other := range headers {
		if other == base {
			return base, true
		}
	}
	return h, false
}
