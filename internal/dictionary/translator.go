// Package dictionary provides the versioned lookup tables the pipeline
// depends on: the keyword-to-query translator and the journal
// impact-factor table. Both load from YAML files checked in alongside the
// service configuration.
package dictionary

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helixir/citation-alert-service/internal/domain"
)

// Translator maps operator-facing keywords to provider query fragments.
// Translation is total over the configured dictionary: an unknown keyword is
// an operator mistake and fails the run, it is never passed through verbatim.
type Translator struct {
	entries map[string]string
}

type translatorFile struct {
	Keywords map[string]string `yaml:"keywords"`
}

// NewTranslator builds a Translator from an in-memory keyword map.
func NewTranslator(entries map[string]string) *Translator {
	m := make(map[string]string, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return &Translator{entries: m}
}

// LoadTranslator reads the keyword dictionary from a YAML file.
func LoadTranslator(path string) (*Translator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword dictionary: %w", err)
	}

	var file translatorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse keyword dictionary %s: %w", path, err)
	}
	if len(file.Keywords) == 0 {
		return nil, domain.NewConfigurationError("dictionary.keywords", path, "dictionary has no keyword entries")
	}

	return NewTranslator(file.Keywords), nil
}

// Translate maps a single keyword to its query fragment. The lookup is exact:
// no normalization, no fuzzy matching.
func (t *Translator) Translate(keyword string) (string, error) {
	fragment, ok := t.entries[keyword]
	if !ok {
		return "", domain.NewConfigurationError("dictionary.keyword", keyword, "no translation entry")
	}
	return fragment, nil
}

// TranslateAll maps every keyword and combines the fragments into one
// OR query, each fragment parenthesized. The combination is deterministic:
// fragments appear in input order. Any unknown keyword fails the whole call.
func (t *Translator) TranslateAll(keywords []string) (string, error) {
	if len(keywords) == 0 {
		return "", domain.NewConfigurationError("dictionary.keywords", "", "no keywords configured")
	}

	fragments := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		fragment, err := t.Translate(kw)
		if err != nil {
			return "", err
		}
		fragments = append(fragments, "("+fragment+")")
	}
	if len(fragments) == 1 {
		return fragments[0], nil
	}
	return strings.Join(fragments, " OR "), nil
}

// Keywords returns the configured keywords in sorted order, for diagnostics.
func (t *Translator) Keywords() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
