package importer

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-catalog-migrator/internal/cache"
	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/media"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/taxonomy"
	"product-catalog-migrator/internal/translation"
)

const (
	categoryTax  = "al_product-cat"
	attributeTax = "al_product-attributes"
	languageTax  = "language"
)

var testTaxonomies = Taxonomies{Category: categoryTax, Attribute: attributeTax, Language: languageTax}

type stubFetcher struct{ calls int }

func (s *stubFetcher) Fetch(_ context.Context, url string) (*media.Download, error) {
	s.calls++
	return &media.Download{LocalPath: "/media/" + url, MimeType: "image/jpeg", Width: 10, Height: 10}, nil
}

// bumpingStore moves the modified timestamp on every metadata write, the way some
// hosts do.
type bumpingStore struct {
	*store.MemoryStore
}

func (s bumpingStore) SetProductMeta(ctx context.Context, id int64, key, value string) error {
	if err := s.MemoryStore.SetProductMeta(ctx, id, key, value); err != nil {
		return err
	}
	return s.MemoryStore.SetModifiedAt(ctx, id, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
}

// failingStore rejects the creation of products titled "boom".
type failingStore struct {
	*store.MemoryStore
}

func (s failingStore) CreateProduct(ctx context.Context, f domain.ProductFields) (*domain.Product, error) {
	if f.Title == "boom" {
		return nil, errors.New("store: CreateProduct failed: rejected")
	}
	return s.MemoryStore.CreateProduct(ctx, f)
}

type harness struct {
	m       *store.MemoryStore
	fetcher *stubFetcher
	logs    *bytes.Buffer
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	m := store.NewMemoryStore("fr", "en", "es")
	m.SetClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	h := &harness{m: m, fetcher: &stubFetcher{}, logs: &bytes.Buffer{}}
	log := zerolog.New(h.logs)
	capability := translation.Available(m)
	h.deps = Deps{
		Store:      m,
		Linking:    capability,
		Reconciler: taxonomy.NewReconciler(m, capability, taxonomy.DefaultLabels(), log),
		Media:      media.NewResolver(m, m, h.fetcher, cache.NewMemoryClient(), "en", log),
		Taxonomies: testTaxonomies,
		Log:        log,
		Now:        func() time.Time { return time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC) },
	}
	return h
}

func (h *harness) run(t *testing.T, opts Options, doc string) Report {
	t.Helper()
	o, err := New(h.deps, opts)
	require.NoError(t, err)
	parsed, err := ParseDocument([]byte(doc))
	require.NoError(t, err)
	rep, err := o.Run(context.Background(), parsed)
	require.NoError(t, err)
	return rep
}

func (h *harness) products(t *testing.T) []domain.Product {
	t.Helper()
	ps, err := h.m.ListProducts(context.Background(), store.ListProductsParams{})
	require.NoError(t, err)
	return ps
}

func (h *harness) termCount(t *testing.T, tax string) int {
	t.Helper()
	terms, err := h.m.ListTerms(context.Background(), tax, nil)
	require.NoError(t, err)
	return len(terms)
}

const chargerRow = `[{"id":0,"source_id":"P1","lang":"fr","slug":"chargeur","name":"Chargeur USB","status":"draft","meta":{"_attribute1":"Acme"}}]`

func updateIfChanged() Options {
	opts := DefaultOptions()
	opts.Update = true
	opts.UpdateIfChanged = true
	return opts
}

func TestRun_CreateThenUnchangedUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rep := h.run(t, DefaultOptions(), chargerRow)
	assert.Equal(t, 1, rep.Created)
	assert.NotEmpty(t, rep.RunID)

	ps := h.products(t)
	require.Len(t, ps, 1)
	p := ps[0]
	assert.Equal(t, "chargeur", p.Slug)
	assert.Equal(t, domain.StatusDraft, p.Status)
	code, err := h.m.ProductLanguage(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "fr", code)
	src, ok, err := h.m.GetProductMeta(ctx, p.ID, domain.MetaSourceID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "P1", src)

	attrs, err := h.m.GetObjectTerms(ctx, p.ID, attributeTax)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "Acme", attrs[0].Name)
	parent, err := h.m.GetTerm(ctx, attrs[0].ParentID)
	require.NoError(t, err)
	assert.Equal(t, "MARQUE", parent.Name)
	assert.True(t, parent.IsRoot())

	writes := h.m.Writes()
	terms := h.termCount(t, attributeTax)
	rep = h.run(t, updateIfChanged(), chargerRow)
	assert.Equal(t, 1, rep.Skipped)
	assert.Zero(t, rep.Updated)
	assert.Equal(t, writes, h.m.Writes())
	assert.Len(t, h.products(t), 1)
	assert.Equal(t, terms, h.termCount(t, attributeTax))
	assert.Contains(t, h.logs.String(), "[SKIP] Unchanged ID")
}

func TestRun_SourceIDKeepsIdentityWhenSlugChanges(t *testing.T) {
	h := newHarness(t)
	h.run(t, DefaultOptions(), `[{"source_id":"P100","lang":"en","slug":"lamp","name":"Lamp"}]`)
	before := h.products(t)
	require.Len(t, before, 1)

	opts := DefaultOptions()
	opts.Update = true
	rep := h.run(t, opts, `[{"source_id":"P100","lang":"en","slug":"desk-lamp","name":"Lamp"}]`)
	assert.Equal(t, 1, rep.Updated)

	after := h.products(t)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, "desk-lamp", after[0].Slug)
}

func TestRun_PreserveSlugAndSkipEmpty(t *testing.T) {
	h := newHarness(t)
	h.run(t, DefaultOptions(), `[{"source_id":"P7","lang":"en","slug":"lamp","name":"Lamp","content_long":"<p>long</p>","content_short":"short"}]`)

	opts := DefaultOptions()
	opts.Update = true
	opts.PreserveSlug = true
	opts.SkipEmpty = true
	h.run(t, opts, `[{"source_id":"P7","lang":"en","slug":"other","name":"Lamp 2","content_long":"","content_short":"new"}]`)

	p := h.products(t)[0]
	assert.Equal(t, "lamp", p.Slug)
	assert.Equal(t, "Lamp 2", p.Title)
	assert.Equal(t, "<p>long</p>", p.Content)
	assert.Equal(t, "new", p.Excerpt)
}

func TestRun_CreateSlugSuffix(t *testing.T) {
	h := newHarness(t)
	opts := DefaultOptions()
	opts.CreateSlugSuffix = "en"
	h.run(t, opts, `[{"lang":"en","name":"Lamp"},{"lang":"en","slug":"desk-en","name":"Desk"}]`)

	ps := h.products(t)
	require.Len(t, ps, 2)
	assert.Equal(t, "lamp-en", ps[0].Slug)
	assert.Equal(t, "desk-en", ps[1].Slug)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	h := newHarness(t)
	opts := DefaultOptions()
	opts.DryRun = true
	opts.LinkSiblings = true
	writes := h.m.Writes()

	rep := h.run(t, opts, chargerRow)
	assert.Equal(t, 1, rep.WouldCreate)
	assert.Zero(t, rep.Created)
	assert.Equal(t, writes, h.m.Writes())
	assert.Empty(t, h.products(t))
	assert.Contains(t, h.logs.String(), "[DRY-RUN][CREATE] Chargeur USB")
	assert.Contains(t, rep.Summary(), "Would create: 1")
}

func TestRun_DryRunPreviewsUpdates(t *testing.T) {
	h := newHarness(t)
	h.run(t, DefaultOptions(), chargerRow)
	writes := h.m.Writes()

	opts := DefaultOptions()
	opts.Update = true
	opts.DryRun = true
	rep := h.run(t, opts, `[{"source_id":"P1","lang":"fr","slug":"chargeur","name":"Chargeur USB-C"}]`)
	assert.Equal(t, 1, rep.WouldUpdate)
	assert.Equal(t, writes, h.m.Writes())
	assert.Contains(t, h.logs.String(), "[DRY-RUN][UPDATE]")
}

func TestRun_LinksSiblingsAcrossFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.run(t, DefaultOptions(), `[{"source_id":"P2","lang":"fr","slug":"chargeur","name":"Chargeur"}]`)

	opts := DefaultOptions()
	opts.Update = true
	opts.LinkSiblings = true
	rep := h.run(t, opts, `[{"source_id":"P2","lang":"en","slug":"charger","name":"Charger"}]`)
	assert.Equal(t, 1, rep.Created)
	require.NotNil(t, rep.Linking)
	assert.Equal(t, 1, rep.Linking.Saved)

	ps := h.products(t)
	require.Len(t, ps, 2)
	group, err := h.m.ProductGroup(ctx, ps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TranslationGroup{"fr": ps[0].ID, "en": ps[1].ID}, group)
}

func TestRun_RowOutcomes(t *testing.T) {
	h := newHarness(t)
	h.deps.Store = failingStore{h.m}
	rep := h.run(t, DefaultOptions(), `[
		42,
		{"lang":"fr","name":""},
		{"lang":"fr","name":"boom"},
		{"lang":"fr","name":"Lampe"}
	]`)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, "Imported: 1 | Updated: 0 | Skipped: 2 | Errors: 1", rep.Summary())
}

func TestRun_AcceptsEmptyArraysForObjects(t *testing.T) {
	h := newHarness(t)
	rep := h.run(t, DefaultOptions(), `[
		{"source_id":"P9","lang":"fr","slug":"lampe","name":"Lampe","meta":[],"translations":[]},
		{"source_id":"P10","lang":"fr","name":"Table","meta":{"_attribute1":"Acme"},"translations":[],"tax":[],"image":[]}
	]`)
	assert.Equal(t, 2, rep.Created)
	assert.Zero(t, rep.Skipped)

	ps := h.products(t)
	require.Len(t, ps, 2)
	assert.Equal(t, "lampe", ps[0].Slug)
	value, ok, err := h.m.GetProductMeta(context.Background(), ps[1].ID, "_attribute1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Acme", value)
}

func TestRun_SkipsRowWithListMeta(t *testing.T) {
	h := newHarness(t)
	rep := h.run(t, DefaultOptions(), `[{"lang":"fr","name":"Lampe","meta":["x"]}]`)
	assert.Equal(t, 1, rep.Skipped)
	assert.Contains(t, h.logs.String(), "is malformed")
}

func TestRun_IDOnlyAndUpdateDisabledSkip(t *testing.T) {
	h := newHarness(t)
	h.run(t, DefaultOptions(), chargerRow)

	rep := h.run(t, DefaultOptions(), chargerRow)
	assert.Equal(t, 1, rep.Skipped, "existing record without update")

	opts := DefaultOptions()
	opts.IDOnly = true
	rep = h.run(t, opts, `[{"source_id":"P9","lang":"fr","name":"Nouveau"}]`)
	assert.Equal(t, 1, rep.Skipped)
	assert.Len(t, h.products(t), 1)
}

func TestRun_CategoriesFromTranslatedIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cat, err := h.m.CreateTerm(ctx, &domain.Term{Taxonomy: categoryTax, Name: "Chargeurs", Slug: "chargeurs"})
	require.NoError(t, err)

	h.run(t, DefaultOptions(), `[{"source_id":"P3","lang":"fr","name":"Chargeur","al_product-cat_ids":{"fr":[`+strconv.FormatInt(cat.ID, 10)+`,9999],"en":[1]}}]`)
	p := h.products(t)[0]
	terms, err := h.m.GetObjectTerms(ctx, p.ID, categoryTax)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, cat.ID, terms[0].ID)

	opts := DefaultOptions()
	opts.Update = true
	h.run(t, opts, `[{"source_id":"P3","lang":"fr","name":"Chargeur","al_product-cat_ids":{"fr":[9999]}}]`)
	terms, err = h.m.GetObjectTerms(ctx, p.ID, categoryTax)
	require.NoError(t, err)
	assert.Empty(t, terms, "a block resolving to nothing clears the taxonomy")

	require.NoError(t, h.m.SetObjectTerms(ctx, p.ID, categoryTax, []int64{cat.ID}))
	h.run(t, opts, `[{"source_id":"P3","lang":"fr","name":"Chargeur 2"}]`)
	terms, err = h.m.GetObjectTerms(ctx, p.ID, categoryTax)
	require.NoError(t, err)
	assert.Len(t, terms, 1, "absent category data leaves memberships alone")
}

func TestRun_CategoriesMappedFromSourceTerms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.run(t, DefaultOptions(), `[{"lang":"es","name":"Cargador","tax":{"al_product-cat":["Cargadores"]}}]`)

	p := h.products(t)[0]
	terms, err := h.m.GetObjectTerms(ctx, p.ID, categoryTax)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "Cargadores", terms[0].Name)
	code, err := h.m.TermLanguage(ctx, terms[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "es", code)
}

func TestRun_LanguageTermsAndOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	opts := DefaultOptions()
	opts.TaxLanguage = "English"
	h.run(t, opts, `[{"name":"Lamp","tax":{"language":["Français"]}}]`)

	p := h.products(t)[0]
	terms, err := h.m.GetObjectTerms(ctx, p.ID, languageTax)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "English", terms[0].Name)
	code, err := h.m.ProductLanguage(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "en", code)
}

func TestRun_ImportsImagesAndFinalizes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.run(t, DefaultOptions(), `[{"lang":"en","name":"Lamp",
		"image":{"url":"https://cdn/a.jpg","title":"Lamp"},
		"images":[{"url":"https://cdn/b.jpg"},{"url":""},{"url":"https://cdn/a.jpg"}]}]`)

	p := h.products(t)[0]
	thumb, ok, err := h.m.GetProductMeta(ctx, p.ID, domain.MetaThumbnail)
	require.NoError(t, err)
	require.True(t, ok)
	gallery, _, err := h.m.GetProductMeta(ctx, p.ID, domain.MetaGalleryIDs)
	require.NoError(t, err)
	assert.Equal(t, "1", thumb)
	assert.Equal(t, "[2,1]", gallery, "gallery keeps document order and reuses the featured asset")
	assert.Equal(t, 2, h.fetcher.calls)

	touch, ok, err := h.m.GetProductMeta(ctx, p.ID, domain.MetaTouch)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-05-02T00:00:00Z", touch)
	assert.Equal(t, 1, h.m.RecomputeCount(p.ID))
}

func TestRun_FinalizeRestoresModifiedTimestamp(t *testing.T) {
	h := newHarness(t)
	h.deps.Store = bumpingStore{h.m}
	h.run(t, DefaultOptions(), `[{"lang":"en","name":"Lamp"}]`)

	p := h.products(t)[0]
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), p.ModifiedAt)
}

func TestRun_MergesParentsForTouchedLanguages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lower, err := h.m.CreateTerm(ctx, &domain.Term{Taxonomy: attributeTax, Name: "Tension", Slug: "tension"})
	require.NoError(t, err)
	upper, err := h.m.CreateTerm(ctx, &domain.Term{Taxonomy: attributeTax, Name: "TENSION", Slug: "tension-2"})
	require.NoError(t, err)
	for _, id := range []int64{lower.ID, upper.ID} {
		require.NoError(t, h.m.SetTermLanguage(ctx, id, "fr"))
	}
	child, err := h.m.CreateTerm(ctx, &domain.Term{Taxonomy: attributeTax, Name: "12V", Slug: "12v", ParentID: lower.ID})
	require.NoError(t, err)

	rep := h.run(t, DefaultOptions(), `[{"lang":"fr","name":"Chargeur","meta":{"_attribute2":"5V"}}]`)
	require.Len(t, rep.Merges, 1)
	assert.Equal(t, "fr", rep.Merges[0].Lang)
	assert.Equal(t, 1, rep.Merges[0].Deleted)

	roots, err := h.m.ListTerms(ctx, attributeTax, new(int64))
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, upper.ID, roots[0].ID)
	assert.Equal(t, "TENSION", roots[0].Name)

	children, err := h.m.ListTerms(ctx, attributeTax, &upper.ID)
	require.NoError(t, err)
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Name
	}
	assert.ElementsMatch(t, []string{"12V", "5V"}, names)
	moved, err := h.m.GetTerm(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, upper.ID, moved.ParentID)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	o, err := New(h.deps, DefaultOptions())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Run(ctx, Document{[]byte(`{"name":"Lamp"}`)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.products(t))
}

func TestNew_RejectsInvalidStatus(t *testing.T) {
	h := newHarness(t)
	opts := DefaultOptions()
	opts.Status = "archived"
	_, err := New(h.deps, opts)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	opts.Status = domain.StatusTrash
	assert.ErrorIs(t, opts.Validate(), ErrInvalidStatus)
}

func TestCacheHook_DropsProductKeys(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryClient()
	for _, k := range []string{cache.ProductKey(1), cache.ProductKey(1) + ":json", cache.ProductKey(12)} {
		require.NoError(t, c.Set(ctx, k, []byte("x"), 0))
	}

	require.NoError(t, CacheHook(c)(ctx, 1))

	_, err := c.Get(ctx, cache.ProductKey(1))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = c.Get(ctx, cache.ProductKey(1)+":json")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = c.Get(ctx, cache.ProductKey(12))
	assert.NoError(t, err)
}

func TestRunner_ImportsWithPerRunOptions(t *testing.T) {
	h := newHarness(t)
	runner := NewRunner(h.deps)
	doc, err := ParseDocument([]byte(chargerRow))
	require.NoError(t, err)

	rep, err := runner.Import(context.Background(), doc, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)

	opts := DefaultOptions()
	opts.Status = "bogus"
	_, err = runner.Import(context.Background(), doc, opts)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
