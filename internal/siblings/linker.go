// Package siblings groups the language variants of a product into one translation group
// once an import batch is complete.
package siblings

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/metrics"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/translation"
)

// Hint is a source id seen during a run with the products written for it.
type Hint struct {
	SourceID   string
	ProductIDs []int64
}

// Result summarizes a linking pass.
type Result struct {
	Considered int `json:"considered"`
	Saved      int `json:"saved"`
	Unchanged  int `json:"unchanged"`
	Tagged     int `json:"tagged"`
}

// Linker saves translation groups for products sharing a source id.
type Linker struct {
	products store.ProductStorer
	linking  translation.Capability
	detector *translation.Detector
	log      zerolog.Logger
	warned   bool
}

// NewLinker creates a Linker.
func NewLinker(products store.ProductStorer, linking translation.Capability, detector *translation.Detector, log zerolog.Logger) *Linker {
	return &Linker{products: products, linking: linking, detector: detector, log: log}
}

// Link builds and saves one group per hint. Without a linker it logs a single warning
// and does nothing.
func (l *Linker) Link(ctx context.Context, hints []Hint) (Result, error) {
	var res Result
	linker, ok := l.linking.Linker()
	if !ok {
		if !l.warned {
			l.warned = true
			l.log.Warn().Str("reason", l.linking.Reason()).Msg("translation linking unavailable; skipping sibling linking")
		}
		return res, nil
	}
	available, err := linker.Languages(ctx)
	if err != nil {
		return res, err
	}

	for _, h := range hints {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		src := strings.TrimSpace(h.SourceID)
		if src == "" {
			continue
		}
		res.Considered++

		ids, err := l.siblings(ctx, src, h.ProductIDs)
		if err != nil {
			return res, err
		}
		group, tagged, err := l.group(ctx, linker, src, ids, available)
		if err != nil {
			return res, err
		}
		res.Tagged += tagged
		if group.Languages() < 2 {
			continue
		}

		current, err := linker.ProductGroup(ctx, ids[0])
		if err != nil {
			return res, err
		}
		if current.Equal(group) {
			res.Unchanged++
			continue
		}
		if err := linker.SaveProductGroup(ctx, group); err != nil {
			return res, err
		}
		res.Saved++
		metrics.RecordSiblingGroup()
		l.log.Info().Str("source_id", src).Msgf("[LINKED] source_id=%s -> %s", src, domain.EncodeJSON(group))
	}
	return res, nil
}

// siblings lists the products recorded with src, the product whose id is src when it is
// numeric, and the products touched for src during the run.
func (l *Linker) siblings(ctx context.Context, src string, touched []int64) ([]int64, error) {
	ids, err := l.products.FindProductsByMeta(ctx, domain.MetaSourceID, src)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(ids)+len(touched))
	for _, id := range ids {
		seen[id] = true
	}
	if n, err := strconv.ParseInt(src, 10, 64); err == nil && n > 0 && !seen[n] {
		p, err := l.products.GetProductByID(ctx, n)
		switch {
		case err == nil && p.Status != domain.StatusTrash:
			ids = append(ids, n)
			seen[n] = true
		case err != nil && !errors.Is(err, store.ErrProductNotFound):
			return nil, err
		}
	}
	for _, id := range touched {
		if id > 0 && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	return ids, nil
}

// group maps each language to the first sibling carrying it. Siblings known only through
// the language taxonomy are tagged on the way. Later siblings of a taken language are
// logged and left out.
func (l *Linker) group(ctx context.Context, linker translation.Linker, src string, ids []int64, available []string) (domain.TranslationGroup, int, error) {
	group := domain.TranslationGroup{}
	tagged := 0
	for _, id := range ids {
		code, fromTaxonomy, err := l.detector.ProductLanguage(ctx, id)
		if err != nil {
			return nil, tagged, err
		}
		code = lang.Resolve(code, available)
		if code == "" {
			continue
		}
		if fromTaxonomy {
			if err := linker.SetProductLanguage(ctx, id, code); err != nil {
				return nil, tagged, err
			}
			tagged++
		}
		if kept, taken := group[code]; taken {
			l.log.Debug().Str("source_id", src).Str("lang", code).Int64("kept_id", kept).Int64("dropped_id", id).
				Msg("duplicate language sibling left out of the group")
			continue
		}
		group[code] = id
	}
	return group, tagged, nil
}
