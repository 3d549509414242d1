// Package exporter builds the portable export document of one language.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/htmlfix"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/translation"
)

// Config names the taxonomies exported and where permalinks point.
type Config struct {
	// Taxonomies are exported under "tax" in this order.
	Taxonomies []string
	// Translated lists the taxonomies that also get a "{taxonomy}_ids" block.
	Translated  []string
	LanguageTax string
	BaseURL     string
}

// Exporter reads products from the host store.
type Exporter struct {
	store    store.Storer
	linking  translation.Capability
	detector *translation.Detector
	cfg      Config
	log      zerolog.Logger
}

// New creates an Exporter.
func New(st store.Storer, linking translation.Capability, cfg Config, log zerolog.Logger) *Exporter {
	return &Exporter{
		store:    st,
		linking:  linking,
		detector: translation.NewDetector(linking, st, cfg.LanguageTax),
		cfg:      cfg,
		log:      log,
	}
}

// Export returns one row per non-trashed product in lng, ordered by id.
func (e *Exporter) Export(ctx context.Context, lng string) ([]domain.Row, error) {
	code := lang.Normalize(lng)
	if code == "" {
		return nil, errors.New("exporter: language is required")
	}
	products, err := e.products(ctx, code)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.Row, 0, len(products))
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := e.row(ctx, p, code)
		if err != nil {
			return nil, fmt.Errorf("exporter: product %d: %w", p.ID, err)
		}
		rows = append(rows, row)
	}
	e.log.Debug().Str("lang", code).Int("rows", len(rows)).Msg("export built")
	return rows, nil
}

func (e *Exporter) products(ctx context.Context, code string) ([]domain.Product, error) {
	all, err := e.store.ListProducts(ctx, store.ListProductsParams{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(all))
	for _, p := range all {
		if p.Status == domain.StatusTrash {
			continue
		}
		got, _, err := e.detector.ProductLanguage(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if lang.Match(got, code) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (e *Exporter) row(ctx context.Context, p domain.Product, code string) (domain.Row, error) {
	row := domain.Row{
		ID:           p.ID,
		Slug:         p.Slug,
		Status:       string(p.Status),
		Lang:         code,
		Date:         p.CreatedAt.UTC().Format(time.RFC3339),
		Modified:     p.ModifiedAt.UTC().Format(time.RFC3339),
		Title:        p.Title,
		Name:         p.Title,
		ContentLong:  p.Content,
		ContentShort: htmlfix.StripTags(p.Excerpt),
		Images:       []domain.ImageRef{},
		Permalink:    e.permalink(p.Slug),
	}

	meta, err := e.store.GetAllProductMeta(ctx, p.ID)
	if err != nil {
		return row, err
	}
	row.Meta = make(map[string]json.RawMessage, len(meta))
	for k, v := range meta {
		raw, err := json.Marshal(v)
		if err != nil {
			return row, err
		}
		row.Meta[k] = raw
		if k == domain.MetaSourceID {
			row.SourceID = v
		}
	}

	linker, linked := e.linking.Linker()
	row.Tax = make(map[string][]domain.TermRef, len(e.cfg.Taxonomies))
	for _, tax := range e.cfg.Taxonomies {
		terms, err := e.store.GetObjectTerms(ctx, p.ID, tax)
		if err != nil {
			return row, err
		}
		refs := make([]domain.TermRef, len(terms))
		for i, t := range terms {
			refs[i] = domain.TermRef{ID: t.ID, Slug: t.Slug, Name: t.Name}
		}
		row.Tax[tax] = refs

		if !e.translated(tax) {
			continue
		}
		block, err := e.idsBlock(ctx, linker, linked, terms, code)
		if err != nil {
			return row, err
		}
		if row.TermIDs == nil {
			row.TermIDs = make(map[string]map[string][]int64)
		}
		row.TermIDs[tax] = block
	}

	if err := e.images(ctx, p.ID, meta, &row); err != nil {
		return row, err
	}

	if linked {
		group, err := linker.ProductGroup(ctx, p.ID)
		if err != nil {
			return row, err
		}
		row.Translations = map[string]int64(group)
	}
	return row, nil
}

func (e *Exporter) translated(tax string) bool {
	for _, t := range e.cfg.Translated {
		if t == tax {
			return true
		}
	}
	return false
}

// idsBlock maps each language to the ids of the translations of terms in that language.
func (e *Exporter) idsBlock(ctx context.Context, linker translation.Linker, linked bool, terms []domain.Term, code string) (map[string][]int64, error) {
	block := map[string][]int64{code: {}}
	for _, t := range terms {
		block[code] = append(block[code], t.ID)
		if !linked {
			continue
		}
		group, err := linker.TermGroup(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		for other, id := range group {
			if other == code || id == t.ID {
				continue
			}
			block[other] = append(block[other], id)
		}
	}
	return block, nil
}

// images fills the featured image, then the gallery followed by the other assets of
// the product. The featured asset never appears twice.
func (e *Exporter) images(ctx context.Context, productID int64, meta map[string]string, row *domain.Row) error {
	featured, _ := strconv.ParseInt(meta[domain.MetaThumbnail], 10, 64)
	if featured > 0 {
		a, err := e.store.GetAsset(ctx, featured)
		switch {
		case err == nil:
			ref := imageRef(*a)
			row.Image = &ref
		case !errors.Is(err, store.ErrAssetNotFound):
			return err
		}
	}

	seen := map[int64]bool{featured: true}
	var gallery []int64
	if raw := meta[domain.MetaGalleryIDs]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &gallery); err != nil {
			e.log.Debug().Err(err).Int64("id", productID).Msg("gallery metadata is not an id list")
		}
	}
	for _, id := range gallery {
		if seen[id] {
			continue
		}
		a, err := e.store.GetAsset(ctx, id)
		if errors.Is(err, store.ErrAssetNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		seen[id] = true
		row.Images = append(row.Images, imageRef(*a))
	}

	attached, err := e.store.ListAssetsByParent(ctx, productID)
	if err != nil {
		return err
	}
	for _, a := range attached {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		row.Images = append(row.Images, imageRef(a))
	}
	return nil
}

func imageRef(a domain.Asset) domain.ImageRef {
	return domain.ImageRef{ID: a.ID, URL: a.SourceURL, Title: a.Title, Alt: a.Alt, Caption: a.Caption}
}

func (e *Exporter) permalink(slug string) string {
	base := strings.TrimRight(e.cfg.BaseURL, "/")
	if base == "" || slug == "" {
		return ""
	}
	return base + "/" + slug + "/"
}

// Write encodes rows as an indented JSON array without HTML escaping.
func Write(w io.Writer, rows []domain.Row) error {
	if rows == nil {
		rows = []domain.Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
