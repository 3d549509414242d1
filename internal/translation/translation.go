// Package translation describes the host's translation-linking subsystem: language
// tags on products and terms, and the groups tying the language variants together.
//
// Linking is optional on a host. Whether it is present is resolved once at startup
// and handed to the engine as a Capability.
package translation

import (
	"context"

	"product-catalog-migrator/internal/domain"
)

// Linker is the host translation-linking subsystem.
type Linker interface {
	// Languages lists the language codes configured on the host.
	Languages(ctx context.Context) ([]string, error)

	SetProductLanguage(ctx context.Context, productID int64, lang string) error
	// ProductLanguage returns "" for an untagged product.
	ProductLanguage(ctx context.Context, productID int64) (string, error)
	ProductGroup(ctx context.Context, productID int64) (domain.TranslationGroup, error)
	// SaveProductGroup makes the listed products the complete translation group of each other.
	SaveProductGroup(ctx context.Context, group domain.TranslationGroup) error
	ProductsByLanguage(ctx context.Context, lang string) ([]int64, error)

	SetTermLanguage(ctx context.Context, termID int64, lang string) error
	TermLanguage(ctx context.Context, termID int64) (string, error)
	TermGroup(ctx context.Context, termID int64) (domain.TranslationGroup, error)
	SaveTermGroup(ctx context.Context, group domain.TranslationGroup) error
}

// Capability carries the linker when the host has one.
type Capability struct {
	linker Linker
	reason string
}

// Available wraps a present linker.
func Available(l Linker) Capability {
	if l == nil {
		return Unavailable("no linker")
	}
	return Capability{linker: l}
}

// Unavailable records why linking cannot be used.
func Unavailable(reason string) Capability {
	return Capability{reason: reason}
}

// Linker returns the linker and whether it is present.
func (c Capability) Linker() (Linker, bool) {
	return c.linker, c.linker != nil
}

// Reason explains an absent capability.
func (c Capability) Reason() string { return c.reason }

// TermTranslation returns the id of the translation of termID in lang, or 0.
func TermTranslation(ctx context.Context, l Linker, termID int64, lang string) (int64, error) {
	group, err := l.TermGroup(ctx, termID)
	if err != nil {
		return 0, err
	}
	return group[lang], nil
}
