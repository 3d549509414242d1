package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-catalog-migrator/internal/domain"
)

func TestMemoryStore_ProductSlugSharedAcrossLanguages(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("fr", "en")

	a, err := m.CreateProduct(ctx, domain.ProductFields{Slug: PtrTo("lamp"), Title: "Lampe", Status: domain.StatusDraft})
	require.NoError(t, err)
	b, err := m.CreateProduct(ctx, domain.ProductFields{Slug: PtrTo("lamp"), Title: "Lamp", Status: domain.StatusDraft})
	require.NoError(t, err)

	found, err := m.FindProductsBySlug(ctx, "lamp")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, a.ID, found[0].ID)
	assert.Equal(t, b.ID, found[1].ID)
}

func TestMemoryStore_UpdateProductKeepsNilFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })

	p, err := m.CreateProduct(ctx, domain.ProductFields{Slug: PtrTo("s"), Title: "T", Status: domain.StatusDraft, Content: PtrTo("body"), AuthorID: 2})
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	updated, err := m.UpdateProduct(ctx, p.ID, domain.ProductFields{Title: "T2", Status: domain.StatusPublished})
	require.NoError(t, err)
	assert.Equal(t, "s", updated.Slug)
	assert.Equal(t, "body", updated.Content)
	assert.Equal(t, int64(2), updated.AuthorID)
	assert.Equal(t, clock, updated.ModifiedAt)

	_, err = m.UpdateProduct(ctx, 999, domain.ProductFields{})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMemoryStore_TermSlugUniquePerTaxonomy(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.CreateTerm(ctx, &domain.Term{Taxonomy: "attrs", Name: "MARQUE", Slug: "marque-fr"})
	require.NoError(t, err)
	_, err = m.CreateTerm(ctx, &domain.Term{Taxonomy: "attrs", Name: "Marque", Slug: "marque-fr"})
	assert.ErrorIs(t, err, ErrTermSlugExists)
	_, err = m.CreateTerm(ctx, &domain.Term{Taxonomy: "cats", Name: "MARQUE", Slug: "marque-fr"})
	assert.NoError(t, err)
}

func TestMemoryStore_SetObjectTermsDropsForeignIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	p, _ := m.CreateProduct(ctx, domain.ProductFields{Title: "p", Status: domain.StatusDraft})
	cat, _ := m.CreateTerm(ctx, &domain.Term{Taxonomy: "cats", Name: "Lampes", Slug: "lampes"})
	attr, _ := m.CreateTerm(ctx, &domain.Term{Taxonomy: "attrs", Name: "Philips", Slug: "philips"})

	require.NoError(t, m.SetObjectTerms(ctx, p.ID, "cats", []int64{cat.ID, attr.ID, 404, cat.ID}))

	terms, err := m.GetObjectTerms(ctx, p.ID, "cats")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, cat.ID, terms[0].ID)

	ids, err := m.ListObjectsWithTerm(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, ids)

	require.NoError(t, m.SetObjectTerms(ctx, p.ID, "cats", nil))
	terms, _ = m.GetObjectTerms(ctx, p.ID, "cats")
	assert.Empty(t, terms)
}

func TestMemoryStore_DeleteTermRemovesMemberships(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	p, _ := m.CreateProduct(ctx, domain.ProductFields{Title: "p", Status: domain.StatusDraft})
	a, _ := m.CreateTerm(ctx, &domain.Term{Taxonomy: "attrs", Name: "A", Slug: "a"})
	b, _ := m.CreateTerm(ctx, &domain.Term{Taxonomy: "attrs", Name: "B", Slug: "b"})
	require.NoError(t, m.SetObjectTerms(ctx, p.ID, "attrs", []int64{a.ID, b.ID}))

	require.NoError(t, m.DeleteTerm(ctx, a.ID))

	terms, _ := m.GetObjectTerms(ctx, p.ID, "attrs")
	require.Len(t, terms, 1)
	assert.Equal(t, b.ID, terms[0].ID)
	assert.ErrorIs(t, m.DeleteTerm(ctx, a.ID), ErrTermNotFound)
}

func TestMemoryStore_ProductGroups(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("fr", "en", "es")

	require.NoError(t, m.SetProductLanguage(ctx, 1, "fr"))
	group, err := m.ProductGroup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TranslationGroup{"fr": 1}, group)

	require.NoError(t, m.SaveProductGroup(ctx, domain.TranslationGroup{"fr": 1, "en": 2, "es": 3}))
	group, _ = m.ProductGroup(ctx, 2)
	assert.Equal(t, domain.TranslationGroup{"fr": 1, "en": 2, "es": 3}, group)

	// Regrouping without 3 detaches it.
	require.NoError(t, m.SaveProductGroup(ctx, domain.TranslationGroup{"fr": 1, "en": 2}))
	group, _ = m.ProductGroup(ctx, 3)
	assert.Equal(t, domain.TranslationGroup{"es": 3}, group)

	lang, _ := m.ProductLanguage(ctx, 2)
	assert.Equal(t, "en", lang)

	ids, _ := m.ProductsByLanguage(ctx, "es")
	assert.Empty(t, ids, "only existing products are listed")
}

func TestMemoryStore_ListProductsFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, st := range []domain.Status{domain.StatusDraft, domain.StatusPublished, domain.StatusDraft, domain.StatusPrivate} {
		_, err := m.CreateProduct(ctx, domain.ProductFields{Title: "p", Status: st})
		require.NoError(t, err)
	}

	drafts, err := m.ListProducts(ctx, ListProductsParams{Statuses: []domain.Status{domain.StatusDraft}})
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, int64(1), drafts[0].ID)
	assert.Equal(t, int64(3), drafts[1].ID)

	page, _ := m.ListProducts(ctx, ListProductsParams{Limit: 2, Offset: 1})
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].ID)

	byID, _ := m.ListProducts(ctx, ListProductsParams{IDs: []int64{4, 2}})
	require.Len(t, byID, 2)
	assert.Equal(t, int64(2), byID[0].ID)
}

func TestMemoryStore_AssetsUniqueByURL(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	a, err := m.CreateAsset(ctx, &domain.Asset{SourceURL: "https://cdn/a.jpg", ParentID: 1})
	require.NoError(t, err)
	_, err = m.CreateAsset(ctx, &domain.Asset{SourceURL: "https://cdn/a.jpg"})
	assert.ErrorIs(t, err, ErrAssetURLExists)

	found, err := m.FindAssetByURL(ctx, "https://cdn/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	byParent, _ := m.ListAssetsByParent(ctx, 1)
	assert.Len(t, byParent, 1)
}
