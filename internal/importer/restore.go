package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/identity"
	"product-catalog-migrator/internal/lang"
)

// ErrUnsupportedLanguage is returned when no attribute label table exists for a language.
var ErrUnsupportedLanguage = errors.New("importer: unsupported language")

// RestoreReport is the outcome of an attribute restore pass.
type RestoreReport struct {
	Done    int `json:"done"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

func (r RestoreReport) Summary() string {
	return fmt.Sprintf("Done=%d | Skipped=%d | Errors=%d", r.Done, r.Skipped, r.Errors)
}

// RestoreLanguage picks the language of a restore pass: the flag, else the first row
// language with a label table, else the language named by the file.
func (o *Orchestrator) RestoreLanguage(flag string, doc Document, path string) (string, error) {
	supported := func(code string) bool {
		_, ok := o.reconciler.Labels().For(o.tax.Attribute, code)
		return code != "" && ok
	}
	if strings.TrimSpace(flag) != "" {
		code := lang.Normalize(flag)
		if !supported(code) {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, flag)
		}
		return code, nil
	}
	for _, row := range doc.Rows() {
		if code := lang.Normalize(row.Lang); supported(code) {
			return code, nil
		}
	}
	if code := lang.FromFileName(path); supported(code) {
		return code, nil
	}
	return "", fmt.Errorf("%w: pass a language or name the file like products_fr.json", ErrUnsupportedLanguage)
}

// RestoreAttributes rebuilds the attribute memberships of existing products from the
// metadata slots of each row. It never creates products.
func (o *Orchestrator) RestoreAttributes(ctx context.Context, doc Document, lng string, dryRun bool) (RestoreReport, error) {
	var rep RestoreReport
	if _, ok := o.reconciler.Labels().For(o.tax.Attribute, lng); !ok {
		return rep, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lng)
	}
	chain := identity.NewChain(o.store, o.detector, true)

	for i, raw := range doc {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if o.progress != nil {
			o.progress(i+1, len(doc))
		}
		row, err := decodeRow(raw)
		if err != nil {
			rep.Skipped++
			continue
		}
		values, ok := o.slotValues(row.Meta, lng)
		if !ok {
			rep.Skipped++
			continue
		}
		match, found, err := chain.Resolve(ctx, identity.Request{Row: row, Lang: lng})
		if err != nil {
			rep.Errors++
			o.log.Warn().Err(err).Msgf("[ERR] row #%d identity resolution failed", i)
			continue
		}
		if !found {
			rep.Skipped++
			continue
		}

		if dryRun {
			parts := make([]string, len(values))
			for j, sv := range values {
				parts[j] = sv.label + "=" + sv.value
			}
			o.log.Info().Msgf("[DRY-RUN] #%d set %s -> %s", match.ProductID, o.tax.Attribute, strings.Join(parts, ", "))
			rep.Done++
			continue
		}

		ids, _, err := o.slotTerms(ctx, row.Meta, lng)
		if err == nil {
			err = o.reconciler.Assign(ctx, match.ProductID, o.tax.Attribute, ids)
		}
		if err != nil {
			rep.Errors++
			o.log.Warn().Err(err).Msgf("[ERR] set terms on #%d", match.ProductID)
			continue
		}
		if err := o.finalize(ctx, match.ProductID); err != nil {
			o.log.Debug().Err(err).Int64("id", match.ProductID).Msg("finalize failed")
		}
		o.log.Info().Msgf("[OK] #%d %s -> %s", match.ProductID, o.tax.Attribute, domain.EncodeJSON(ids))
		rep.Done++
	}
	return rep, nil
}
