package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
)

const utf8BOM = "\ufeff"

// ReadCSV reads a single-table export. The header row is the first record.
func ReadCSV(path string) ([]project.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := csvHeader(cr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	headers := nonEmpty(header)

	var rows []project.RawRow
	for {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		values := make(map[string]any, len(header))
		for i, name := range header {
			if name != "" && i < len(cells) {
				values[name] = cells[i]
			}
		}
		if blankCells(cells) {
			continue
		}
		rows = append(rows, project.RawRow{Line: line, Headers: headers, Values: values})
	}
}

func csvHeader(cr *csv.Reader) ([]string, error) {
	cells, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv has no header row")
	}
	if err != nil {
		return nil, err
	}
	if len(cells) > 0 {
		cells[0] = strings.TrimPrefix(cells[0], utf8BOM)
	}
	for i, c := range cells {
		if !utf8.ValidString(c) {
			return nil, fmt.Errorf("header column %d is not valid UTF-8", i+1)
		}
	}
	return project.UniqueHeaders(cells), nil
}

func blankCells(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
