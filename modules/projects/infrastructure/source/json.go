package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
)

type directorGroup struct {
	Director string            `json:"director"`
	Projects []json.RawMessage `json:"projects"`
}

// ReadJSON accepts either director groupings
// `[{"director": ..., "projects": [{"data": {...}}]}]` or a flat array of row
// objects. Numbers are kept as json.Number.
func ReadJSON(path string) ([]project.RawRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseJSON(data)
}

func parseJSON(data []byte) ([]project.RawRow, error) {
	var items []json.RawMessage
	if err := decode(data, &items); err != nil {
		return nil, fmt.Errorf("parse json source: %w", err)
	}

	var out []project.RawRow
	for i, item := range items {
		var shape map[string]json.RawMessage
		if err := decode(item, &shape); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		if _, grouped := shape["projects"]; !grouped {
			row, err := jsonRow(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i+1, err)
			}
			out = append(out, row)
			continue
		}

		var g directorGroup
		if err := decode(item, &g); err != nil {
			return nil, fmt.Errorf("group %d: %w", i+1, err)
		}
		director := strings.TrimSpace(g.Director)
		for j, p := range g.Projects {
			row, err := jsonRow(unwrapData(p))
			if err != nil {
				return nil, fmt.Errorf("group %d project %d: %w", i+1, j+1, err)
			}
			row.Sheet = director
			row.Director = director
			row.Line = j + 1
			out = append(out, row)
		}
	}
	return out, nil
}

// unwrapData returns the "data" object of a project entry, or the entry itself
// when it has none.
func unwrapData(p json.RawMessage) json.RawMessage {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(p, &wrapper); err == nil && len(wrapper.Data) > 0 && !bytes.Equal(wrapper.Data, []byte("null")) {
		return wrapper.Data
	}
	return p
}

func jsonRow(raw json.RawMessage) (project.RawRow, error) {
	values := map[string]any{}
	if err := decode(raw, &values); err != nil {
		return project.RawRow{}, err
	}
	headers, err := objectKeys(raw)
	if err != nil {
		return project.RawRow{}, err
	}
	return project.RawRow{Headers: headers, Values: values}, nil
}

// objectKeys lists the keys of a JSON object in document order, once each.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	seen := map[string]struct{}{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
