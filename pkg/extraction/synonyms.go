package extraction

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Synonyms lists the accepted header names for each logical column.
// Header names are compared after lower-casing and trimming.
type Synonyms struct {
	CAS        []string `yaml:"cas"`
	Name       []string `yaml:"name"`
	Percentage []string `yaml:"percentage"`
}

// DefaultSynonyms returns the built-in header tables.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		CAS:        []string{"cas", "cas_number", "cas number", "cas no", "cas_no", "casnumber"},
		Name:       []string{"component", "compound", "name", "component_name", "substance", "chemical"},
		Percentage: []string{"percentage", "%", "percent", "concentration", "amount", "area%", "area_percent"},
	}
}

// LoadSynonyms reads additional header names from a YAML file and merges them
// over the defaults. An empty path returns the defaults.
func LoadSynonyms(path string) (Synonyms, error) {
	syn := DefaultSynonyms()
	if path == "" {
		return syn, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Synonyms{}, fmt.Errorf("failed to read synonyms file: %w", err)
	}

	var extra Synonyms
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return Synonyms{}, fmt.Errorf("failed to parse synonyms file %s: %w", path, err)
	}

	return syn.Merge(extra), nil
}

// Merge returns s extended with the names from other that s does not already contain.
func (s Synonyms) Merge(other Synonyms) Synonyms {
	return Synonyms{
		CAS:        mergeNames(s.CAS, other.CAS),
		Name:       mergeNames(s.Name, other.Name),
		Percentage: mergeNames(s.Percentage, other.Percentage),
	}
}

func mergeNames(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, n := range base {
		out = appendName(out, n)
	}
	for _, n := range extra {
		out = appendName(out, n)
	}
	return out
}

func appendName(names []string, n string) []string {
	n = normalizeHeader(n)
	if n == "" || slices.Contains(names, n) {
		return names
	}
	return append(names, n)
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
