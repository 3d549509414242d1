// Package lang canonicalizes the language identifiers found in import documents,
// CLI flags and host language taxonomies.
package lang

import (
	"path/filepath"
	"regexp"
	"strings"
)

var codeAliases = map[string]string{
	"fr": "fr", "fr-fr": "fr", "fr_fr": "fr", "french": "fr", "français": "fr", "francais": "fr",
	"en": "en", "en-us": "en", "en-gb": "en", "en_us": "en", "en_gb": "en", "english": "en", "anglais": "en",
	"es": "es", "es-es": "es", "es_es": "es", "spanish": "es", "español": "es", "espanol": "es", "espagnol": "es",
}

var nameCodes = map[string]string{
	"fr": "fr", "français": "fr", "francais": "fr", "french": "fr",
	"en": "en", "english": "en", "anglais": "en",
	"es": "es", "español": "es", "espanol": "es", "spanish": "es", "espagnol": "es",
}

// Normalize maps a free-text language identifier to its canonical code.
// Unknown values come back lower-cased and trimmed; callers treat them as a hint only.
func Normalize(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if canonical, ok := codeAliases[c]; ok {
		return canonical
	}
	return c
}

// NameToCode maps a language display name ("Français", "English") to its code,
// or returns "" when the name is not known.
func NameToCode(name string) string {
	return nameCodes[strings.ToLower(strings.TrimSpace(name))]
}

// Match reports whether two codes designate the same language, treating a prefix
// relationship in either direction as a match ("en" matches "en-US").
func Match(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// Resolve picks the host language code matching hint from available.
// With no known host languages the hint is returned unchanged.
func Resolve(hint string, available []string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return ""
	}
	if len(available) == 0 {
		return hint
	}
	for _, code := range available {
		if strings.ToLower(code) == hint {
			return code
		}
	}
	for _, code := range available {
		if Match(code, hint) {
			return code
		}
	}
	return ""
}

var fileLangPattern = regexp.MustCompile(`_(fr|en|es)(\.|_|$)`)

// FromFileName guesses a language from the base name of paths like products_fr.json.
// Directories are ignored and the code must stand alone, so catalog_free.json has none.
func FromFileName(path string) string {
	m := fileLangPattern.FindStringSubmatch(strings.ToLower(filepath.Base(path)))
	if m == nil {
		return ""
	}
	return m[1]
}
