// Package source reads raw project rows from workbook, JSON and CSV exports.
package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
)

var ErrUnsupportedSource = errors.New("unsupported source format")

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Detect sniffs the file content and falls back to the extension for plain
// text that could be either JSON or CSV.
func Detect(path string) (Format, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	switch {
	case mtype.Is(xlsxMIME):
		return FormatXLSX, nil
	case mtype.Is("application/json"):
		return FormatJSON, nil
	case mtype.Is("text/csv"):
		return FormatCSV, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedSource, filepath.Base(path), mtype.String())
}

// Load reads every row of the source file. Positions are 1-based across the
// whole file.
func Load(path string) ([]project.RawRow, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}

	var rows []project.RawRow
	switch format {
	case FormatXLSX:
		rows, err = ReadWorkbook(path)
	case FormatJSON:
		rows, err = ReadJSON(path)
	case FormatCSV:
		rows, err = ReadCSV(path)
	}
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Position = i + 1
	}
	return rows, nil
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}
