package taxonomy

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents removes combining marks after canonical decomposition.
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// ligatures folds letters that have no canonical decomposition.
var ligatures = strings.NewReplacer(
	"œ", "oe", "Œ", "OE", "æ", "ae", "Æ", "AE", "ß", "ss", "ẞ", "SS",
	"ø", "o", "Ø", "O", "đ", "d", "Đ", "D", "ł", "l", "Ł", "L", "þ", "th", "Þ", "TH",
)

// Slugify turns a label into a lower-case slug: accents stripped, runs of anything
// else than letters and digits collapsed into a single dash. Letters outside ASCII are
// kept as lower-case percent-encoded UTF-8, and so are %XX octets already present, so
// "東芝" and "日立" get distinct slugs.
func Slugify(s string) string {
	s = strings.ToLower(stripAccents(ligatures.Replace(strings.TrimSpace(s))))
	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteString(s[i : i+3])
			size = 3
			dash = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if r < utf8.RuneSelf {
				b.WriteRune(r)
			} else {
				for _, c := range []byte(string(r)) {
					fmt.Fprintf(&b, "%%%02x", c)
				}
			}
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		i += size
	}
	return strings.TrimSuffix(b.String(), "-")
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f')
}

// LangSlug is the slug used for a term carrying label in lang, e.g. "marque-fr".
func LangSlug(label, lang string) string {
	base := Slugify(label)
	if lang == "" {
		return base
	}
	return base + "-" + strings.ToLower(lang)
}

// Fold normalizes a label for comparison: trimmed, inner whitespace collapsed,
// upper-cased and accent-stripped. "  Tensión " and "TENSION" fold alike.
func Fold(s string) string {
	// Casers carry state, so each call gets its own.
	return cases.Upper(language.Und).String(stripAccents(strings.Join(strings.Fields(s), " ")))
}
