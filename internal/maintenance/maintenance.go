// Package maintenance holds catalog-wide operations that are never part of an import:
// removing a language and tagging untagged products.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/translation"
)

var (
	ErrLanguageRequired   = errors.New("maintenance: language is required")
	ErrUnknownLanguage    = errors.New("maintenance: language not configured on the host")
	ErrDeleteModeRequired = errors.New("maintenance: choose trash or force for a real deletion")
	ErrLinkingUnavailable = errors.New("maintenance: translation linking unavailable")
)

// Service runs maintenance operations against the host store.
type Service struct {
	store    store.ProductStorer
	linking  translation.Capability
	detector *translation.Detector
	log      zerolog.Logger
	// Tick, when set, is called after each product handled.
	Tick func()
}

// NewService creates a Service.
func NewService(products store.ProductStorer, terms store.TermStorer, linking translation.Capability, languageTax string, log zerolog.Logger) *Service {
	return &Service{
		store:    products,
		linking:  linking,
		detector: translation.NewDetector(linking, terms, languageTax),
		log:      log,
	}
}

// DeleteOptions selects what DeleteByLanguage removes and how.
type DeleteOptions struct {
	Lang     string
	Statuses []domain.Status // empty means every status but trash
	DryRun   bool
	Trash    bool
	Force    bool
}

// DeleteReport counts the products of a deletion pass.
type DeleteReport struct {
	Matched int `json:"matched"`
	Trashed int `json:"trashed"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// DeleteByLanguage trashes or deletes every product in a language.
func (s *Service) DeleteByLanguage(ctx context.Context, opts DeleteOptions) (DeleteReport, error) {
	var rep DeleteReport
	code := lang.Normalize(opts.Lang)
	if code == "" {
		return rep, ErrLanguageRequired
	}
	if !opts.DryRun && !opts.Trash && !opts.Force {
		return rep, ErrDeleteModeRequired
	}

	products, err := s.productsInLanguage(ctx, code, opts.Statuses)
	if err != nil {
		return rep, err
	}
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Matched++
		s.deleteOne(ctx, p, opts, &rep)
		if s.Tick != nil {
			s.Tick()
		}
	}
	return rep, nil
}

func (s *Service) deleteOne(ctx context.Context, p domain.Product, opts DeleteOptions, rep *DeleteReport) {
	switch {
	case opts.DryRun:
		s.log.Info().Msgf("[DRY-RUN] delete ID %d - %s", p.ID, p.Title)
	case opts.Trash:
		if _, err := s.store.UpdateProduct(ctx, p.ID, domain.ProductFields{Title: p.Title, Status: domain.StatusTrash}); err != nil {
			rep.Failed++
			s.log.Warn().Err(err).Msgf("trash failed for ID %d - %s", p.ID, p.Title)
			return
		}
		rep.Trashed++
		s.log.Info().Msgf("[TRASH] ID %d - %s", p.ID, p.Title)
	default:
		if err := s.store.DeleteProduct(ctx, p.ID); err != nil {
			rep.Failed++
			s.log.Warn().Err(err).Msgf("delete failed for ID %d - %s", p.ID, p.Title)
			return
		}
		rep.Deleted++
		s.log.Info().Msgf("[DELETE] ID %d - %s", p.ID, p.Title)
	}
}

// productsInLanguage lists the products of a language: from the linker when it knows
// the language, otherwise through each product's detected language.
func (s *Service) productsInLanguage(ctx context.Context, code string, statuses []domain.Status) ([]domain.Product, error) {
	var products []domain.Product
	linked := false
	if linker, ok := s.linking.Linker(); ok {
		available, err := linker.Languages(ctx)
		if err != nil {
			return nil, err
		}
		if hostCode := lang.Resolve(code, available); hostCode != "" {
			ids, err := linker.ProductsByLanguage(ctx, hostCode)
			if err != nil {
				return nil, err
			}
			if len(ids) == 0 {
				return nil, nil
			}
			products, err = s.store.ListProducts(ctx, store.ListProductsParams{IDs: ids, Statuses: statuses})
			if err != nil {
				return nil, err
			}
			linked = true
		} else {
			s.log.Warn().Str("lang", code).Strs("known", available).Msg("language unknown to the host; trying the language taxonomy")
		}
	}
	if !linked {
		all, err := s.store.ListProducts(ctx, store.ListProductsParams{Statuses: statuses})
		if err != nil {
			return nil, err
		}
		if products, err = s.filterByDetectedLanguage(ctx, all, code); err != nil {
			return nil, err
		}
	}

	if len(statuses) > 0 {
		return products, nil
	}
	kept := products[:0]
	for _, p := range products {
		if p.Status != domain.StatusTrash {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func (s *Service) filterByDetectedLanguage(ctx context.Context, products []domain.Product, code string) ([]domain.Product, error) {
	var out []domain.Product
	for _, p := range products {
		got, _, err := s.detector.ProductLanguage(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if lang.Match(got, code) {
			out = append(out, p)
		}
	}
	return out, nil
}

// TagReport counts the products of a tagging pass.
type TagReport struct {
	Affected      int `json:"affected"`
	AlreadyTagged int `json:"already_had_lang"`
}

// SetMissingLanguage tags every untagged product with lng.
func (s *Service) SetMissingLanguage(ctx context.Context, lng string, dryRun bool) (TagReport, error) {
	var rep TagReport
	linker, ok := s.linking.Linker()
	if !ok {
		return rep, fmt.Errorf("%w: %s", ErrLinkingUnavailable, s.linking.Reason())
	}
	code := lang.Normalize(lng)
	if code == "" {
		return rep, ErrLanguageRequired
	}
	available, err := linker.Languages(ctx)
	if err != nil {
		return rep, err
	}
	hostCode := lang.Resolve(code, available)
	if hostCode == "" {
		return rep, fmt.Errorf("%w: %q (known: %s)", ErrUnknownLanguage, lng, strings.Join(available, ","))
	}

	products, err := s.store.ListProducts(ctx, store.ListProductsParams{})
	if err != nil {
		return rep, err
	}
	for _, p := range products {
		if p.Status == domain.StatusTrash {
			continue
		}
		current, err := linker.ProductLanguage(ctx, p.ID)
		if err != nil {
			return rep, err
		}
		if current != "" {
			rep.AlreadyTagged++
			continue
		}
		if !dryRun {
			if err := linker.SetProductLanguage(ctx, p.ID, hostCode); err != nil {
				return rep, err
			}
		}
		rep.Affected++
		if s.Tick != nil {
			s.Tick()
		}
	}
	s.log.Info().Bool("dry_run", dryRun).Int("affected", rep.Affected).Int("already_had_lang", rep.AlreadyTagged).Msg("missing languages set")
	return rep, nil
}
