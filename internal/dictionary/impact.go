package dictionary

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ImpactTable maps journal names to impact factors. Unlike the translator,
// lookup failure is not an error: an unknown journal yields an absent value
// that the notifier renders as "N/A". A missing impact factor must never
// collapse to zero.
type ImpactTable struct {
	// exact keys are stored as given; the lowered map backs the
	// case-insensitive substring fallback. loweredNames holds the lowered
	// keys ordered longest first (ties alphabetical) so the fallback is
	// deterministic and the most specific entry wins.
	exact        map[string]float64
	lowered      map[string]float64
	loweredNames []string
}

type impactFile struct {
	Journals map[string]float64 `yaml:"journals"`
}

// NewImpactTable builds an ImpactTable from an in-memory journal map.
func NewImpactTable(entries map[string]float64) *ImpactTable {
	t := &ImpactTable{
		exact:   make(map[string]float64, len(entries)),
		lowered: make(map[string]float64, len(entries)),
	}
	for name, factor := range entries {
		t.exact[name] = factor
		lowered := strings.ToLower(name)
		if _, seen := t.lowered[lowered]; !seen {
			t.loweredNames = append(t.loweredNames, lowered)
		}
		t.lowered[lowered] = factor
	}
	sort.Slice(t.loweredNames, func(i, j int) bool {
		a, b := t.loweredNames[i], t.loweredNames[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return t
}

// LoadImpactTable reads the journal impact-factor table from a YAML file.
func LoadImpactTable(path string) (*ImpactTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read impact-factor table: %w", err)
	}

	var file impactFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse impact-factor table %s: %w", path, err)
	}

	return NewImpactTable(file.Journals), nil
}

// Lookup returns the impact factor for a journal, or nil when the journal is
// unknown. Exact match wins; otherwise the longest case-insensitive entry
// whose name contains, or is contained in, the queried journal matches.
// Journal strings from PubMed often carry edition suffixes the table omits,
// so the containment check runs both directions.
func (t *ImpactTable) Lookup(journal string) *float64 {
	if journal == "" {
		return nil
	}
	if factor, ok := t.exact[journal]; ok {
		return &factor
	}

	q := strings.ToLower(journal)
	for _, name := range t.loweredNames {
		if strings.Contains(q, name) || strings.Contains(name, q) {
			f := t.lowered[name]
			return &f
		}
	}
	return nil
}

// Size returns the number of journals in the table.
func (t *ImpactTable) Size() int {
	return len(t.exact)
}
