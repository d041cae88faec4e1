package normalize

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed directors.yaml
var directorsYAML []byte

type directorFile struct {
	Directors []struct {
		Canonical string   `yaml:"canonical"`
		Variants  []string `yaml:"variants"`
	} `yaml:"directors"`
}

// Names is a finite, case-sensitive table of name variants.
type Names struct {
	variants  map[string]string
	canonical map[string]struct{}
}

func ParseNames(data []byte) (*Names, error) {
	var f directorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse director table: %w", err)
	}

	n := &Names{variants: map[string]string{}, canonical: map[string]struct{}{}}
	for _, d := range f.Directors {
		canonical := strings.TrimSpace(d.Canonical)
		if canonical == "" {
			return nil, fmt.Errorf("director entry without canonical name")
		}
		n.canonical[canonical] = struct{}{}
		for _, v := range append([]string{canonical}, d.Variants...) {
			if prev, ok := n.variants[v]; ok && prev != canonical {
				return nil, fmt.Errorf("variant %q maps to both %q and %q", v, prev, canonical)
			}
			n.variants[v] = canonical
		}
	}
	return n, nil
}

var defaultNames = sync.OnceValue(func() *Names {
	n, err := ParseNames(directorsYAML)
	if err != nil {
		panic(err)
	}
	return n
})

// DefaultNames returns the embedded director table.
func DefaultNames() *Names {
	return defaultNames()
}

// Canonicalize maps a known variant to its display form. Unknown names come
// back trimmed and otherwise unchanged.
func (n *Names) Canonicalize(raw string) string {
	if c, ok := n.variants[raw]; ok {
		return c
	}
	trimmed := strings.TrimSpace(raw)
	if c, ok := n.variants[trimmed]; ok {
		return c
	}
	return trimmed
}

// Known reports whether name is one of the canonical display names.
func (n *Names) Known(name string) bool {
	_, ok := n.canonical[name]
	return ok
}

