package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"product-catalog-migrator/internal/domain"
)

// ErrInvalidStatus is returned when the default status is not an allowed status.
var ErrInvalidStatus = errors.New("importer: invalid status")

// Options controls an import run.
type Options struct {
	Update           bool
	UpdateIfChanged  bool
	IDOnly           bool
	PreferID         bool
	PreserveSlug     bool
	SkipEmpty        bool
	DryRun           bool
	LinkSiblings     bool
	MergeParents     bool
	Status           domain.Status `validate:"required"`
	AuthorID         int64         `validate:"gte=0"`
	TaxLanguage      string        `validate:"max=200"`
	CreateSlugSuffix string        `validate:"max=100"`
}

// DefaultOptions returns the options of a plain create-only run.
func DefaultOptions() Options {
	return Options{
		PreferID:     true,
		MergeParents: true,
		Status:       domain.StatusDraft,
	}
}

var validate = validator.New()

// Validate reports configuration errors that must abort a run before any row.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("importer: invalid options: %w", err)
	}
	if !o.Status.IsAllowed() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, o.Status)
	}
	return nil
}

// Taxonomies names the taxonomies the importer reconciles.
type Taxonomies struct {
	Category  string
	Attribute string
	Language  string
}

// languageTerms returns the language term names to assign: the override list when set,
// else the row's own language terms.
func (o Options) languageTerms(row domain.Row, languageTax string) []string {
	if strings.TrimSpace(o.TaxLanguage) == "" {
		return row.LanguageTerms(languageTax)
	}
	var names []string
	for _, part := range strings.Split(o.TaxLanguage, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}
