package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/translation"
)

type fixture struct {
	m     *store.MemoryStore
	chain Chain
}

func newFixture(t *testing.T, preferID bool) fixture {
	t.Helper()
	m := store.NewMemoryStore("fr", "en", "es")
	det := translation.NewDetector(translation.Available(m), m, "language")
	return fixture{m: m, chain: NewChain(m, det, preferID)}
}

func (f fixture) product(t *testing.T, slug, lng, sourceID string) int64 {
	t.Helper()
	ctx := context.Background()
	p, err := f.m.CreateProduct(ctx, domain.ProductFields{Slug: &slug, Title: slug, Status: domain.StatusPublished})
	require.NoError(t, err)
	if lng != "" {
		require.NoError(t, f.m.SetProductLanguage(ctx, p.ID, lng))
	}
	if sourceID != "" {
		require.NoError(t, f.m.SetProductMeta(ctx, p.ID, domain.MetaSourceID, sourceID))
	}
	return p.ID
}

func TestChain_DirectIDWinsWhenPreferred(t *testing.T) {
	f := newFixture(t, true)
	id := f.product(t, "lamp", "en", "")

	m, found, err := f.chain.Resolve(context.Background(), Request{Row: domain.Row{ID: id}, Lang: "fr"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, m.ProductID)
	assert.Equal(t, "id", m.Strategy)
}

func TestChain_DirectIDSkippedWithoutPreference(t *testing.T) {
	f := newFixture(t, false)
	id := f.product(t, "lamp", "en", "")

	_, found, err := f.chain.Resolve(context.Background(), Request{Row: domain.Row{ID: id}, Lang: "fr"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChain_SourceIDInTargetLanguage(t *testing.T) {
	f := newFixture(t, true)
	f.product(t, "lampe", "fr", "42")
	en := f.product(t, "lamp", "en", "42")

	m, found, err := f.chain.Resolve(context.Background(), Request{
		Row:  domain.Row{ID: 9999, SourceID: "42"},
		Lang: "en",
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, en, m.ProductID)
	assert.Equal(t, "source_id", m.Strategy)
}

func TestChain_SlugInTargetLanguage(t *testing.T) {
	f := newFixture(t, true)
	f.product(t, "lamp", "fr", "")
	es := f.product(t, "lamp", "es", "")

	m, found, err := f.chain.Resolve(context.Background(), Request{Row: domain.Row{Slug: "lamp"}, Lang: "es"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, es, m.ProductID)
	assert.Equal(t, "slug", m.Strategy)

	_, found, err = f.chain.Resolve(context.Background(), Request{Row: domain.Row{Slug: "lamp"}, Lang: "en"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChain_TranslationsMapIsLastResort(t *testing.T) {
	f := newFixture(t, true)
	en := f.product(t, "lamp-en", "en", "")
	fr := f.product(t, "lampe", "fr", "")

	m, found, err := f.chain.Resolve(context.Background(), Request{
		Row:  domain.Row{Slug: "unknown", Translations: map[string]int64{"en": en, "fr": fr}},
		Lang: "en",
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, en, m.ProductID)
	assert.Equal(t, "translations", m.Strategy)

	// A listed id whose language differs does not match.
	_, found, err = f.chain.Resolve(context.Background(), Request{
		Row:  domain.Row{Translations: map[string]int64{"es": fr}},
		Lang: "es",
	})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChain_IsStableAcrossRepeatedResolution(t *testing.T) {
	f := newFixture(t, true)
	f.product(t, "lampe", "fr", "42")
	req := Request{Row: domain.Row{SourceID: "42", Slug: "lampe"}, Lang: "fr"}

	first, _, err := f.chain.Resolve(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, _, err := f.chain.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }
func (failingStrategy) Resolve(context.Context, Request) (int64, error) {
	return 0, errors.New("store down")
}

func TestChain_PropagatesErrors(t *testing.T) {
	_, found, err := Chain{failingStrategy{}}.Resolve(context.Background(), Request{})
	assert.Error(t, err)
	assert.False(t, found)
}

func TestTargetLanguage(t *testing.T) {
	row := domain.Row{Tax: map[string][]domain.TermRef{"language": {{Name: "Español", Slug: "es"}}}}

	assert.Equal(t, "fr", TargetLanguage(domain.Row{Lang: "fr-FR"}, "en", "language"))
	assert.Equal(t, "en", TargetLanguage(row, "English, fr", "language"))
	assert.Equal(t, "fr", TargetLanguage(row, "fr", "language"))
	assert.Equal(t, "es", TargetLanguage(row, "", "language"))
	assert.Equal(t, "", TargetLanguage(domain.Row{}, "", "language"))
}
