package translation

import (
	"context"

	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/store"
)

// Detector derives the language of a product from the linker, falling back to its
// membership in the language taxonomy.
type Detector struct {
	linking     Capability
	terms       store.TermStorer
	languageTax string
}

// NewDetector creates a Detector.
func NewDetector(linking Capability, terms store.TermStorer, languageTax string) *Detector {
	return &Detector{linking: linking, terms: terms, languageTax: languageTax}
}

// ProductLanguage returns the language code of a product, or "" when none is known.
// fromTaxonomy reports that the code came from the language taxonomy, meaning the
// linker has no tag for the product.
func (d *Detector) ProductLanguage(ctx context.Context, productID int64) (code string, fromTaxonomy bool, err error) {
	if linker, ok := d.linking.Linker(); ok {
		tag, err := linker.ProductLanguage(ctx, productID)
		if err != nil {
			return "", false, err
		}
		if tag != "" {
			return tag, false, nil
		}
	}
	if d.terms == nil || d.languageTax == "" {
		return "", false, nil
	}
	terms, err := d.terms.GetObjectTerms(ctx, productID, d.languageTax)
	if err != nil {
		return "", false, err
	}
	for _, t := range terms {
		if code := TermCode(t.Name, t.Slug); code != "" {
			return code, true, nil
		}
	}
	return "", false, nil
}

// TermCode turns a language taxonomy term into a language code.
func TermCode(name, slug string) string {
	if code := lang.NameToCode(name); code != "" {
		return code
	}
	if slug != "" {
		return lang.Normalize(slug)
	}
	return lang.Normalize(name)
}
