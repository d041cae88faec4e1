package source

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
	"github.com/iota-uz/projtrack/pkg/normalize"
)

// headerScanRows bounds how far down a sheet the header row is searched for,
// past title and blank rows.
const headerScanRows = 10

// ReadWorkbook reads every sheet with raw cell values, so dates arrive as
// serial numbers. The sheet name is the fallback director for its rows.
func ReadWorkbook(path string) ([]project.RawRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []project.RawRow
	for _, sheet := range f.GetSheetList() {
		cells, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		out = append(out, sheetRows(sheet, cells)...)
	}
	return out, nil
}

func sheetRows(sheet string, cells [][]string) []project.RawRow {
	hdr := findHeaderRow(cells)
	if hdr < 0 {
		return nil
	}
	headers := project.UniqueHeaders(cells[hdr])

	var out []project.RawRow
	for i := hdr + 1; i < len(cells); i++ {
		values := make(map[string]any, len(headers))
		blank := true
		for j, h := range headers {
			if h == "" {
				continue
			}
			var v any
			if j < len(cells[i]) {
				v = cells[i][j]
			}
			if !isBlank(v) {
				blank = false
			}
			values[h] = v
		}
		if blank {
			continue
		}
		out = append(out, project.RawRow{
			Sheet:    sheet,
			Line:     i + 1,
			Director: strings.TrimSpace(sheet),
			Headers:  nonEmpty(headers),
			Values:   values,
		})
	}
	return out
}

// findHeaderRow picks, among the first rows, the one naming the most known
// fields; without any known field the first non-empty row is used.
func findHeaderRow(cells [][]string) int {
	h := normalize.DefaultHeaders()
	best, bestHits, firstNonEmpty := -1, 0, -1
	for i := 0; i < len(cells) && i < headerScanRows; i++ {
		hits, filled := 0, 0
		for _, c := range cells[i] {
			if strings.TrimSpace(c) == "" {
				continue
			}
			filled++
			if _, ok := h.Normalize(c); ok {
				hits++
			}
		}
		if filled > 0 && firstNonEmpty < 0 {
			firstNonEmpty = i
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	if best >= 0 {
		return best
	}
	return firstNonEmpty
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
