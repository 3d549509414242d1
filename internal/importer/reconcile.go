package importer

import (
	"context"
	"encoding/json"
	"time"

	"product-catalog-migrator/internal/cache"
	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/store"
)

// termIDsFor returns the translated id block of tax for lng, if the row carries one.
func termIDsFor(row domain.Row, tax, lng string) ([]int64, bool) {
	block, ok := row.TermIDs[tax]
	if !ok || lng == "" {
		return nil, false
	}
	if ids, ok := block[lng]; ok {
		return ids, true
	}
	for code, ids := range block {
		if lang.Normalize(code) == lng {
			return ids, true
		}
	}
	return nil, false
}

// mapRefs maps source terms into lng. Terms that cannot be mapped are left out.
func (o *Orchestrator) mapRefs(ctx context.Context, tax string, refs []domain.TermRef, lng string) []int64 {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		id, err := o.reconciler.MapTerm(ctx, tax, ref, lng)
		if err != nil {
			o.log.Debug().Err(err).Str("taxonomy", tax).Str("term", ref.Name).Msg("term mapping failed")
			continue
		}
		if id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// reconcileCategory sets the category memberships from the translated id block, else
// from the row's category terms. Without either the memberships are left alone.
func (o *Orchestrator) reconcileCategory(ctx context.Context, rc rowContext) error {
	tax := o.tax.Category
	if tax == "" {
		return nil
	}
	if ids, ok := termIDsFor(rc.row, tax, rc.lang); ok {
		return o.reconciler.Assign(ctx, rc.productID, tax, ids)
	}
	if refs, ok := rc.row.Tax[tax]; ok {
		return o.reconciler.Assign(ctx, rc.productID, tax, o.mapRefs(ctx, tax, refs, rc.lang))
	}
	return nil
}

// reconcileAttribute sets the attribute memberships from the translated id block, else
// from the metadata slots of the label table, else from the row's attribute terms.
func (o *Orchestrator) reconcileAttribute(ctx context.Context, rc rowContext) error {
	tax := o.tax.Attribute
	if tax == "" {
		return nil
	}
	if ids, ok := termIDsFor(rc.row, tax, rc.lang); ok {
		return o.reconciler.Assign(ctx, rc.productID, tax, ids)
	}
	ids, ok, err := o.slotTerms(ctx, rc.row.Meta, rc.lang)
	if err != nil {
		return err
	}
	if ok {
		return o.reconciler.Assign(ctx, rc.productID, tax, ids)
	}
	if refs, ok := rc.row.Tax[tax]; ok {
		return o.reconciler.Assign(ctx, rc.productID, tax, o.mapRefs(ctx, tax, refs, rc.lang))
	}
	return nil
}

// slotValue is a non-empty metadata value bound to a canonical parent label.
type slotValue struct {
	label string
	value string
}

// slotValues reads the attribute slots of the label table for lng from meta.
// ok is false when the language has no table or no slot carries a value.
func (o *Orchestrator) slotValues(meta map[string]json.RawMessage, lng string) ([]slotValue, bool) {
	table, ok := o.reconciler.Labels().For(o.tax.Attribute, lng)
	if !ok {
		return nil, false
	}
	var out []slotValue
	for _, slot := range table.Slots {
		raw, present := meta[slot.MetaKey]
		if !present {
			continue
		}
		text, empty := domain.MetaText(raw)
		if empty {
			continue
		}
		out = append(out, slotValue{label: slot.Label, value: text})
	}
	return out, len(out) > 0
}

// slotTerms ensures the parent and value terms of every filled slot and returns the
// value term ids.
func (o *Orchestrator) slotTerms(ctx context.Context, meta map[string]json.RawMessage, lng string) ([]int64, bool, error) {
	values, ok := o.slotValues(meta, lng)
	if !ok {
		return nil, false, nil
	}
	ids := make([]int64, 0, len(values))
	for _, sv := range values {
		parent, err := o.reconciler.EnsureRoot(ctx, o.tax.Attribute, sv.label, lng)
		if err != nil {
			return nil, true, err
		}
		child, err := o.reconciler.EnsureChild(ctx, o.tax.Attribute, parent.ID, sv.value, lng)
		if err != nil {
			return nil, true, err
		}
		ids = append(ids, child.ID)
	}
	return ids, true, nil
}

// RefreshHook refreshes derived or cached representations of a product.
type RefreshHook func(ctx context.Context, productID int64) error

// RecomputeHook asks the host to recompute what it derives from the product.
func RecomputeHook(products store.ProductStorer) RefreshHook {
	return products.RecomputeDerived
}

// CacheHook drops cached representations of the product.
func CacheHook(c cache.Client) RefreshHook {
	return func(ctx context.Context, productID int64) error {
		key := cache.ProductKey(productID)
		if err := c.Delete(ctx, key); err != nil {
			return err
		}
		return c.DeleteByPrefix(ctx, key+":")
	}
}

// finalize stamps the touch key, runs the refresh hooks and puts the modified timestamp
// back if a hook moved it.
func (o *Orchestrator) finalize(ctx context.Context, productID int64) error {
	before, err := o.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if err := o.store.SetProductMeta(ctx, productID, domain.MetaTouch, o.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	for _, hook := range o.hooks {
		if err := hook(ctx, productID); err != nil {
			o.log.Debug().Err(err).Int64("id", productID).Msg("refresh hook failed")
		}
	}
	after, err := o.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if !after.ModifiedAt.Equal(before.ModifiedAt) {
		return o.store.SetModifiedAt(ctx, productID, before.ModifiedAt)
	}
	return nil
}
