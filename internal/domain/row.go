package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IDsBlockSuffix marks a top-level document key holding translated term ids,
// e.g. "al_product-cat_ids": {"fr": [12, 13], "en": [40]}.
const IDsBlockSuffix = "_ids"

// ErrNotObject is returned for a value that must be a JSON object but is a non-empty
// array or a scalar.
var ErrNotObject = errors.New("domain: value is not a JSON object")

// decodeObject decodes a JSON object into dst. null, [] and {} leave dst untouched:
// PHP encodes an empty associative array as [].
func decodeObject(raw json.RawMessage, dst interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	switch trimmed[0] {
	case '{':
		return json.Unmarshal(trimmed, dst)
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
	}
	return ErrNotObject
}

// FlexInt decodes ids that arrive as numbers, numeric strings, empty strings or null.
// Anything unparseable decodes to 0 rather than failing the whole document.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexInt(int64(fl))
		return nil
	}
	*f = 0
	return nil
}

// FlexString decodes values that may be strings, numbers or null into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	*f = FlexString(trimmed)
	return nil
}

// TermRef is a taxonomy term as carried by the document: either an object
// {id, slug, name} or a bare name string.
type TermRef struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (t *TermRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*t = TermRef{Name: strings.TrimSpace(name)}
		return nil
	}
	var raw struct {
		ID   FlexInt    `json:"id"`
		Slug FlexString `json:"slug"`
		Name FlexString `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = TermRef{ID: int64(raw.ID), Slug: string(raw.Slug), Name: string(raw.Name)}
	return nil
}

// termRefList accepts either an array of terms or a single term.
type termRefList []TermRef

func (l *termRefList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*l = nil
		return nil
	}
	if trimmed[0] != '[' {
		var single TermRef
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*l = termRefList{single}
		return nil
	}
	var many []TermRef
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// ImageRef describes one image of a row.
type ImageRef struct {
	ID      int64  `json:"id,omitempty"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Alt     string `json:"alt"`
	Caption string `json:"caption"`
}

func (i *ImageRef) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      FlexInt    `json:"id"`
		URL     FlexString `json:"url"`
		Title   FlexString `json:"title"`
		Alt     FlexString `json:"alt"`
		Caption FlexString `json:"caption"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = ImageRef{
		ID:      int64(raw.ID),
		URL:     string(raw.URL),
		Title:   string(raw.Title),
		Alt:     string(raw.Alt),
		Caption: string(raw.Caption),
	}
	return nil
}

// Row is one product in one language, as exported and as consumed by the importer.
type Row struct {
	ID           int64                      `json:"id"`
	SourceID     string                     `json:"source_id,omitempty"`
	Slug         string                     `json:"slug"`
	Status       string                     `json:"status"`
	Lang         string                     `json:"lang"`
	Date         string                     `json:"date,omitempty"`
	Modified     string                     `json:"modified,omitempty"`
	Title        string                     `json:"title"`
	Name         string                     `json:"name"`
	ContentLong  string                     `json:"content_long"`
	ContentShort string                     `json:"content_short"`
	Meta         map[string]json.RawMessage `json:"meta"`
	Tax          map[string][]TermRef       `json:"tax"`
	Image        *ImageRef                  `json:"image"`
	Images       []ImageRef                 `json:"images"`
	Permalink    string                     `json:"permalink,omitempty"`
	Translations map[string]int64           `json:"translations"`

	// TermIDs holds the "{taxonomy}_ids" blocks: taxonomy -> language -> term ids.
	TermIDs map[string]map[string][]int64 `json:"-"`
}

type rowWire struct {
	ID           FlexInt         `json:"id"`
	SourceID     FlexString      `json:"source_id"`
	Slug         FlexString      `json:"slug"`
	Status       FlexString      `json:"status"`
	Lang         FlexString      `json:"lang"`
	Date         FlexString      `json:"date"`
	Modified     FlexString      `json:"modified"`
	Title        FlexString      `json:"title"`
	Name         FlexString      `json:"name"`
	ContentLong  *string         `json:"content_long"`
	ContentShort *string         `json:"content_short"`
	Meta         json.RawMessage `json:"meta"`
	Tax          json.RawMessage `json:"tax"`
	Image        json.RawMessage `json:"image"`
	Images       []ImageRef      `json:"images"`
	Permalink    FlexString      `json:"permalink"`
	Translations json.RawMessage `json:"translations"`
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var w rowWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Row{
		ID:        int64(w.ID),
		SourceID:  string(w.SourceID),
		Slug:      string(w.Slug),
		Status:    string(w.Status),
		Lang:      string(w.Lang),
		Date:      string(w.Date),
		Modified:  string(w.Modified),
		Title:     string(w.Title),
		Name:      string(w.Name),
		Images:    w.Images,
		Permalink: string(w.Permalink),
	}
	if err := decodeObject(w.Meta, &r.Meta); err != nil {
		return fmt.Errorf("meta: %w", err)
	}
	var tax map[string]termRefList
	if err := decodeObject(w.Tax, &tax); err != nil {
		return fmt.Errorf("tax: %w", err)
	}
	if tax != nil {
		r.Tax = make(map[string][]TermRef, len(tax))
		for name, refs := range tax {
			r.Tax[name] = refs
		}
	}
	var image ImageRef
	if err := decodeObject(w.Image, &image); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	if image != (ImageRef{}) {
		r.Image = &image
	}
	var translations map[string]FlexInt
	if err := decodeObject(w.Translations, &translations); err != nil {
		return fmt.Errorf("translations: %w", err)
	}
	if w.ContentLong != nil {
		r.ContentLong = *w.ContentLong
	}
	if w.ContentShort != nil {
		r.ContentShort = *w.ContentShort
	}
	if translations != nil {
		r.Translations = make(map[string]int64, len(translations))
		for code, id := range translations {
			if id > 0 {
				r.Translations[code] = int64(id)
			}
		}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	for key, raw := range top {
		if !strings.HasSuffix(key, IDsBlockSuffix) || key == IDsBlockSuffix {
			continue
		}
		var block map[string][]FlexInt
		if err := decodeObject(raw, &block); err != nil {
			continue
		}
		if r.TermIDs == nil {
			r.TermIDs = make(map[string]map[string][]int64)
		}
		tax := strings.TrimSuffix(key, IDsBlockSuffix)
		perLang := make(map[string][]int64, len(block))
		for code, ids := range block {
			list := make([]int64, 0, len(ids))
			for _, id := range ids {
				list = append(list, int64(id))
			}
			perLang[strings.ToLower(strings.TrimSpace(code))] = list
		}
		r.TermIDs[tax] = perLang
	}
	return nil
}

// MarshalJSON writes the row followed by its "{taxonomy}_ids" blocks as top-level keys.
func (r Row) MarshalJSON() ([]byte, error) {
	type plain Row
	var encoded bytes.Buffer
	enc := json.NewEncoder(&encoded)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(plain(r)); err != nil {
		return nil, err
	}
	base := bytes.TrimRight(encoded.Bytes(), "\n")
	if len(r.TermIDs) == 0 {
		return base, nil
	}
	taxes := make([]string, 0, len(r.TermIDs))
	for tax := range r.TermIDs {
		taxes = append(taxes, tax)
	}
	sort.Strings(taxes)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, tax := range taxes {
		key, _ := json.Marshal(tax + IDsBlockSuffix)
		val, err := json.Marshal(r.TermIDs[tax])
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DisplayName returns the row's name, falling back to its title.
func (r Row) DisplayName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return strings.TrimSpace(r.Title)
}

// LanguageTerms returns the names listed under the language taxonomy of the row.
func (r Row) LanguageTerms(languageTax string) []string {
	refs := r.Tax[languageTax]
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if n := strings.TrimSpace(ref.Name); n != "" {
			names = append(names, n)
		} else if s := strings.TrimSpace(ref.Slug); s != "" {
			names = append(names, s)
		}
	}
	return names
}

// MetaKeys returns the row's metadata keys in sorted order.
func (r Row) MetaKeys() []string {
	keys := make([]string, 0, len(r.Meta))
	for k := range r.Meta {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// MetaText converts a raw document metadata value into the string stored on the record.
// Strings are stored as-is, scalars as their literal text, structured values as compact
// JSON without HTML escaping. The boolean reports whether the value counts as empty.
func MetaText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", true
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return string(trimmed), false
		}
		return s, s == ""
	case '{', '[':
		var v interface{}
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return string(trimmed), false
		}
		return EncodeJSON(v), false
	case 't':
		return "1", false
	case 'f':
		return "", true
	default:
		return string(trimmed), false
	}
}

// EncodeJSON encodes v compactly without HTML escaping.
func EncodeJSON(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}
