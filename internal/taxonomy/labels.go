package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed labels.yaml
var defaultLabels []byte

// Slot binds a product metadata key to the canonical parent label of its value.
type Slot struct {
	MetaKey string `yaml:"meta"`
	Label   string `yaml:"label"`
}

// LanguageLabels is the canonical label table of one taxonomy in one language.
type LanguageLabels struct {
	Slots    []Slot            `yaml:"slots"`
	Synonyms map[string]string `yaml:"synonyms"`
}

// Labels holds the label tables: taxonomy -> language -> table.
type Labels struct {
	Taxonomies map[string]map[string]LanguageLabels `yaml:"taxonomies"`
}

// DefaultLabels returns the built-in tables.
func DefaultLabels() *Labels {
	l, err := ParseLabels(defaultLabels)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: embedded labels are invalid: %v", err))
	}
	return l
}

// LoadLabels reads the tables from path, or returns the built-in ones when path is empty.
func LoadLabels(path string) (*Labels, error) {
	if path == "" {
		return DefaultLabels(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read labels file %s: %w", path, err)
	}
	return ParseLabels(data)
}

// ParseLabels decodes and checks a YAML label document.
func ParseLabels(data []byte) (*Labels, error) {
	var l Labels
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("taxonomy: decode labels: %w", err)
	}
	for tax, byLang := range l.Taxonomies {
		normalized := make(map[string]LanguageLabels, len(byLang))
		for lang, table := range byLang {
			for i, slot := range table.Slots {
				if strings.TrimSpace(slot.Label) == "" {
					return nil, fmt.Errorf("taxonomy: %s/%s slot %d has no label", tax, lang, i)
				}
			}
			for syn, target := range table.Synonyms {
				if !table.hasLabel(target) {
					return nil, fmt.Errorf("taxonomy: %s/%s synonym %q points at unknown label %q", tax, lang, syn, target)
				}
			}
			normalized[strings.ToLower(lang)] = table
		}
		l.Taxonomies[tax] = normalized
	}
	return &l, nil
}

// For returns the table of a taxonomy in a language.
func (l *Labels) For(taxonomy, lang string) (LanguageLabels, bool) {
	if l == nil {
		return LanguageLabels{}, false
	}
	table, ok := l.Taxonomies[taxonomy][strings.ToLower(lang)]
	return table, ok
}

// Canonical returns the canonical label matching name, by folded label or synonym.
func (t LanguageLabels) Canonical(name string) (string, bool) {
	folded := Fold(name)
	if folded == "" {
		return "", false
	}
	for _, slot := range t.Slots {
		if Fold(slot.Label) == folded {
			return slot.Label, true
		}
	}
	for syn, target := range t.Synonyms {
		if Fold(syn) == folded {
			return target, true
		}
	}
	return "", false
}

// LabelForSlug returns the canonical label whose language slug is slug.
func (t LanguageLabels) LabelForSlug(slug, lang string) (string, bool) {
	for _, slot := range t.Slots {
		if LangSlug(slot.Label, lang) == slug {
			return slot.Label, true
		}
	}
	return "", false
}

// Labels lists the canonical labels in slot order, without duplicates.
func (t LanguageLabels) Labels() []string {
	seen := make(map[string]bool, len(t.Slots))
	out := make([]string, 0, len(t.Slots))
	for _, slot := range t.Slots {
		if !seen[slot.Label] {
			seen[slot.Label] = true
			out = append(out, slot.Label)
		}
	}
	return out
}

func (t LanguageLabels) hasLabel(label string) bool {
	for _, slot := range t.Slots {
		if slot.Label == label {
			return true
		}
	}
	return false
}
