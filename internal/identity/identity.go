// Package identity decides which existing product, if any, an import row designates
// in its target language.
package identity

import (
	"context"
	"errors"
	"strings"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/translation"
)

// Request is the row being resolved with its target language.
type Request struct {
	Row  domain.Row
	Lang string
}

// Match is a resolved product and the strategy that found it.
type Match struct {
	ProductID int64
	Strategy  string
}

// Strategy looks for an existing product. It returns 0 when it finds nothing.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, req Request) (int64, error)
}

// Chain tries strategies in order; the first hit wins.
type Chain []Strategy

// Resolve runs the chain. found is false when no strategy matched.
func (c Chain) Resolve(ctx context.Context, req Request) (m Match, found bool, err error) {
	for _, s := range c {
		id, err := s.Resolve(ctx, req)
		if err != nil {
			return Match{}, false, err
		}
		if id > 0 {
			return Match{ProductID: id, Strategy: s.Name()}, true, nil
		}
	}
	return Match{}, false, nil
}

// NewChain builds the standard order: direct id (when preferID), source id in the
// target language, slug in the target language, then the row's translations map.
func NewChain(products store.ProductStorer, detector *translation.Detector, preferID bool) Chain {
	var c Chain
	if preferID {
		c = append(c, DirectID{products: products})
	}
	return append(c,
		SourceIDLanguage{products: products, detector: detector},
		SlugLanguage{products: products, detector: detector},
		TranslationsMap{products: products, detector: detector},
	)
}

// DirectID matches the row id when a product with that id exists.
type DirectID struct {
	products store.ProductStorer
}

func (DirectID) Name() string { return "id" }

func (s DirectID) Resolve(ctx context.Context, req Request) (int64, error) {
	if req.Row.ID <= 0 {
		return 0, nil
	}
	return existing(ctx, s.products, req.Row.ID)
}

// SourceIDLanguage matches a product recorded with the row's source id whose language
// matches the target.
type SourceIDLanguage struct {
	products store.ProductStorer
	detector *translation.Detector
}

func (SourceIDLanguage) Name() string { return "source_id" }

func (s SourceIDLanguage) Resolve(ctx context.Context, req Request) (int64, error) {
	src := strings.TrimSpace(req.Row.SourceID)
	if src == "" || req.Lang == "" {
		return 0, nil
	}
	ids, err := s.products.FindProductsByMeta(ctx, domain.MetaSourceID, src)
	if err != nil {
		return 0, err
	}
	return firstInLanguage(ctx, s.detector, ids, req.Lang)
}

// SlugLanguage matches a product using the row's slug whose language matches the target.
type SlugLanguage struct {
	products store.ProductStorer
	detector *translation.Detector
}

func (SlugLanguage) Name() string { return "slug" }

func (s SlugLanguage) Resolve(ctx context.Context, req Request) (int64, error) {
	slug := strings.TrimSpace(req.Row.Slug)
	if slug == "" || req.Lang == "" {
		return 0, nil
	}
	products, err := s.products.FindProductsBySlug(ctx, slug)
	if err != nil {
		return 0, err
	}
	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return firstInLanguage(ctx, s.detector, ids, req.Lang)
}

// TranslationsMap matches the id the row lists for the target language in its
// translations, when that product exists and carries the language.
type TranslationsMap struct {
	products store.ProductStorer
	detector *translation.Detector
}

func (TranslationsMap) Name() string { return "translations" }

func (s TranslationsMap) Resolve(ctx context.Context, req Request) (int64, error) {
	if req.Lang == "" || len(req.Row.Translations) == 0 {
		return 0, nil
	}
	var candidate int64
	for code, id := range req.Row.Translations {
		if lang.Normalize(code) == req.Lang && id > 0 {
			candidate = id
			break
		}
	}
	if candidate == 0 {
		return 0, nil
	}
	id, err := existing(ctx, s.products, candidate)
	if err != nil || id == 0 {
		return 0, err
	}
	return firstInLanguage(ctx, s.detector, []int64{id}, req.Lang)
}

func existing(ctx context.Context, products store.ProductStorer, id int64) (int64, error) {
	p, err := products.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrProductNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if p.Status == domain.StatusTrash {
		return 0, nil
	}
	return p.ID, nil
}

func firstInLanguage(ctx context.Context, detector *translation.Detector, ids []int64, target string) (int64, error) {
	for _, id := range ids {
		code, _, err := detector.ProductLanguage(ctx, id)
		if err != nil {
			return 0, err
		}
		if lang.Match(code, target) {
			return id, nil
		}
	}
	return 0, nil
}

// TargetLanguage derives the language a row is imported into: the row's own lang,
// else the first entry of override (a name or a code), else the first language term
// of the row.
func TargetLanguage(row domain.Row, override, languageTax string) string {
	if l := lang.Normalize(row.Lang); l != "" {
		return l
	}
	if first := strings.TrimSpace(strings.Split(override, ",")[0]); first != "" {
		if code := lang.NameToCode(first); code != "" {
			return code
		}
		return lang.Normalize(first)
	}
	for _, ref := range row.Tax[languageTax] {
		if code := translation.TermCode(ref.Name, ref.Slug); code != "" {
			return code
		}
	}
	return ""
}
