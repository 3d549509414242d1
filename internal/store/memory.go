package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"product-catalog-migrator/internal/domain"
)

// MemoryStore is an in-process host store with translation linking. It backs
// STORE_DRIVER=memory and the engine tests.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	nextProductID int64
	nextTermID    int64
	nextAssetID   int64

	products    map[int64]domain.Product
	meta        map[int64]map[string]string
	terms       map[int64]domain.Term
	objectTerms map[int64]map[string][]int64
	assets      map[int64]domain.Asset

	languages []string
	langOf    map[string]map[int64]string // object type -> id -> lang
	groupOf   map[string]map[int64]int64  // object type -> id -> group id

	writes    int
	recompute map[int64]int
}

// NewMemoryStore creates an empty store whose host knows the given languages.
func NewMemoryStore(languages ...string) *MemoryStore {
	return &MemoryStore{
		now:         time.Now,
		products:    make(map[int64]domain.Product),
		meta:        make(map[int64]map[string]string),
		terms:       make(map[int64]domain.Term),
		objectTerms: make(map[int64]map[string][]int64),
		assets:      make(map[int64]domain.Asset),
		languages:   append([]string(nil), languages...),
		langOf:      map[string]map[int64]string{objectProduct: {}, objectTerm: {}},
		groupOf:     map[string]map[int64]int64{objectProduct: {}, objectTerm: {}},
		recompute:   make(map[int64]int),
	}
}

// SetClock replaces the time source used for created/modified timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Writes returns the number of mutating calls served so far.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// RecomputeCount returns how often RecomputeDerived ran for a product.
func (m *MemoryStore) RecomputeCount(id int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recompute[id]
}

// --- ProductStorer ---

func (m *MemoryStore) CreateProduct(_ context.Context, fields domain.ProductFields) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextProductID++
	now := m.now()
	p := domain.Product{
		ID:         m.nextProductID,
		Slug:       valueOrEmpty(fields.Slug),
		Title:      fields.Title,
		Status:     fields.Status,
		Content:    valueOrEmpty(fields.Content),
		Excerpt:    valueOrEmpty(fields.Excerpt),
		AuthorID:   fields.AuthorID,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	m.products[p.ID] = p
	m.writes++
	return &p, nil
}

func (m *MemoryStore) UpdateProduct(_ context.Context, id int64, fields domain.ProductFields) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	if fields.Slug != nil {
		p.Slug = *fields.Slug
	}
	p.Title = fields.Title
	p.Status = fields.Status
	if fields.Content != nil {
		p.Content = *fields.Content
	}
	if fields.Excerpt != nil {
		p.Excerpt = *fields.Excerpt
	}
	if fields.AuthorID > 0 {
		p.AuthorID = fields.AuthorID
	}
	p.ModifiedAt = m.now()
	m.products[id] = p
	m.writes++
	return &p, nil
}

func (m *MemoryStore) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (m *MemoryStore) FindProductsBySlug(_ context.Context, slug string) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Product{}
	for _, id := range m.sortedProductIDs() {
		if p := m.products[id]; p.Slug == slug {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindProductsByMeta(_ context.Context, key, value string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []int64{}
	for _, id := range m.sortedProductIDs() {
		if v, ok := m.meta[id][key]; ok && v == value {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryStore) ListProducts(_ context.Context, params ListProductsParams) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statusOK := func(s domain.Status) bool {
		if len(params.Statuses) == 0 {
			return true
		}
		for _, want := range params.Statuses {
			if s == want {
				return true
			}
		}
		return false
	}
	var idSet map[int64]bool
	if len(params.IDs) > 0 {
		idSet = make(map[int64]bool, len(params.IDs))
		for _, id := range params.IDs {
			idSet[id] = true
		}
	}

	out := []domain.Product{}
	skipped := 0
	for _, id := range m.sortedProductIDs() {
		p := m.products[id]
		if !statusOK(p.Status) || (idSet != nil && !idSet[id]) {
			continue
		}
		if skipped < params.Offset {
			skipped++
			continue
		}
		if params.Limit > 0 && len(out) >= params.Limit {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryStore) DeleteProduct(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(m.products, id)
	delete(m.meta, id)
	delete(m.objectTerms, id)
	delete(m.langOf[objectProduct], id)
	delete(m.groupOf[objectProduct], id)
	m.writes++
	return nil
}

func (m *MemoryStore) GetProductMeta(_ context.Context, id int64, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.meta[id][key]
	return v, ok, nil
}

func (m *MemoryStore) GetAllProductMeta(_ context.Context, id int64) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.meta[id]))
	for k, v := range m.meta[id] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SetProductMeta(_ context.Context, id int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return ErrProductNotFound
	}
	if m.meta[id] == nil {
		m.meta[id] = make(map[string]string)
	}
	m.meta[id][key] = value
	m.writes++
	return nil
}

func (m *MemoryStore) SetModifiedAt(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.ModifiedAt = at
	m.products[id] = p
	m.writes++
	return nil
}

func (m *MemoryStore) RecomputeDerived(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return ErrProductNotFound
	}
	m.recompute[id]++
	return nil
}

// --- TermStorer ---

func (m *MemoryStore) GetTerm(_ context.Context, id int64) (*domain.Term, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.terms[id]
	if !ok {
		return nil, ErrTermNotFound
	}
	return &t, nil
}

func (m *MemoryStore) FindTermBySlug(_ context.Context, taxonomy, slug string) (*domain.Term, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.sortedTermIDs() {
		if t := m.terms[id]; t.Taxonomy == taxonomy && t.Slug == slug {
			return &t, nil
		}
	}
	return nil, ErrTermNotFound
}

func (m *MemoryStore) FindTermsByName(_ context.Context, taxonomy, name string, parentID *int64) ([]domain.Term, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Term{}
	for _, id := range m.sortedTermIDs() {
		t := m.terms[id]
		if t.Taxonomy != taxonomy || !strings.EqualFold(t.Name, name) {
			continue
		}
		if parentID != nil && t.ParentID != *parentID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) ListTerms(_ context.Context, taxonomy string, parentID *int64) ([]domain.Term, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Term{}
	for _, id := range m.sortedTermIDs() {
		t := m.terms[id]
		if t.Taxonomy != taxonomy || (parentID != nil && t.ParentID != *parentID) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) CreateTerm(_ context.Context, term *domain.Term) (*domain.Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slugTaken(term.Taxonomy, term.Slug, 0) {
		return nil, ErrTermSlugExists
	}
	m.nextTermID++
	t := *term
	t.ID = m.nextTermID
	m.terms[t.ID] = t
	m.writes++
	return &t, nil
}

func (m *MemoryStore) UpdateTerm(_ context.Context, term *domain.Term) (*domain.Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.terms[term.ID]
	if !ok {
		return nil, ErrTermNotFound
	}
	if m.slugTaken(existing.Taxonomy, term.Slug, term.ID) {
		return nil, ErrTermSlugExists
	}
	existing.Name = term.Name
	existing.Slug = term.Slug
	existing.ParentID = term.ParentID
	m.terms[term.ID] = existing
	m.writes++
	return &existing, nil
}

func (m *MemoryStore) DeleteTerm(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.terms[id]; !ok {
		return ErrTermNotFound
	}
	delete(m.terms, id)
	for _, byTax := range m.objectTerms {
		for tax, ids := range byTax {
			byTax[tax] = removeID(ids, id)
		}
	}
	delete(m.langOf[objectTerm], id)
	delete(m.groupOf[objectTerm], id)
	m.writes++
	return nil
}

func (m *MemoryStore) SetObjectTerms(_ context.Context, productID int64, taxonomy string, termIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[productID]; !ok {
		return ErrProductNotFound
	}
	kept := make([]int64, 0, len(termIDs))
	seen := make(map[int64]bool, len(termIDs))
	for _, id := range termIDs {
		t, ok := m.terms[id]
		if !ok || t.Taxonomy != taxonomy || seen[id] {
			continue
		}
		seen[id] = true
		kept = append(kept, id)
	}
	if m.objectTerms[productID] == nil {
		m.objectTerms[productID] = make(map[string][]int64)
	}
	m.objectTerms[productID][taxonomy] = kept
	m.writes++
	return nil
}

func (m *MemoryStore) GetObjectTerms(_ context.Context, productID int64, taxonomy string) ([]domain.Term, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Term{}
	for _, id := range m.objectTerms[productID][taxonomy] {
		if t, ok := m.terms[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListObjectsWithTerm(_ context.Context, termID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []int64{}
	for _, pid := range m.sortedProductIDs() {
		for _, tids := range m.objectTerms[pid] {
			if containsID(tids, termID) {
				ids = append(ids, pid)
				break
			}
		}
	}
	return ids, nil
}

// --- AssetStorer ---

func (m *MemoryStore) FindAssetByURL(_ context.Context, url string) (*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assets {
		if a.SourceURL == url {
			return &a, nil
		}
	}
	return nil, ErrAssetNotFound
}

func (m *MemoryStore) GetAsset(_ context.Context, id int64) (*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return &a, nil
}

func (m *MemoryStore) CreateAsset(_ context.Context, asset *domain.Asset) (*domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assets {
		if a.SourceURL == asset.SourceURL {
			return nil, ErrAssetURLExists
		}
	}
	m.nextAssetID++
	a := *asset
	a.ID = m.nextAssetID
	m.assets[a.ID] = a
	m.writes++
	return &a, nil
}

func (m *MemoryStore) UpdateAsset(_ context.Context, asset *domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.assets[asset.ID]
	if !ok {
		return ErrAssetNotFound
	}
	existing.Title = asset.Title
	existing.Alt = asset.Alt
	existing.Caption = asset.Caption
	existing.ParentID = asset.ParentID
	m.assets[asset.ID] = existing
	m.writes++
	return nil
}

func (m *MemoryStore) ListAssetsByParent(_ context.Context, parentID int64) ([]domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Asset{}
	for _, a := range m.assets {
		if a.ParentID == parentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- translation.Linker ---

func (m *MemoryStore) Languages(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.languages...), nil
}

func (m *MemoryStore) SetProductLanguage(_ context.Context, productID int64, lang string) error {
	return m.setLanguage(objectProduct, productID, lang)
}

func (m *MemoryStore) ProductLanguage(_ context.Context, productID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.langOf[objectProduct][productID], nil
}

func (m *MemoryStore) ProductGroup(_ context.Context, productID int64) (domain.TranslationGroup, error) {
	return m.group(objectProduct, productID), nil
}

func (m *MemoryStore) SaveProductGroup(_ context.Context, group domain.TranslationGroup) error {
	m.saveGroup(objectProduct, group)
	return nil
}

func (m *MemoryStore) ProductsByLanguage(_ context.Context, lang string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []int64{}
	for _, id := range m.sortedProductIDs() {
		if m.langOf[objectProduct][id] == lang {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryStore) SetTermLanguage(_ context.Context, termID int64, lang string) error {
	return m.setLanguage(objectTerm, termID, lang)
}

func (m *MemoryStore) TermLanguage(_ context.Context, termID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.langOf[objectTerm][termID], nil
}

func (m *MemoryStore) TermGroup(_ context.Context, termID int64) (domain.TranslationGroup, error) {
	return m.group(objectTerm, termID), nil
}

func (m *MemoryStore) SaveTermGroup(_ context.Context, group domain.TranslationGroup) error {
	m.saveGroup(objectTerm, group)
	return nil
}

func (m *MemoryStore) setLanguage(objectType string, id int64, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.langOf[objectType][id] = lang
	m.writes++
	return nil
}

func (m *MemoryStore) group(objectType string, id int64) domain.TranslationGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group := domain.TranslationGroup{}
	gid, grouped := m.groupOf[objectType][id]
	if !grouped {
		if lang := m.langOf[objectType][id]; lang != "" {
			group[lang] = id
		}
		return group
	}
	members := make([]int64, 0)
	for oid, g := range m.groupOf[objectType] {
		if g == gid {
			members = append(members, oid)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	for _, oid := range members {
		lang := m.langOf[objectType][oid]
		if _, taken := group[lang]; lang != "" && !taken {
			group[lang] = oid
		}
	}
	return group
}

func (m *MemoryStore) saveGroup(objectType string, group domain.TranslationGroup) {
	if len(group) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var gid int64
	members := make(map[int64]bool, len(group))
	for _, id := range group {
		members[id] = true
		if gid == 0 || id < gid {
			gid = id
		}
	}
	for oid, g := range m.groupOf[objectType] {
		if g == gid && !members[oid] {
			delete(m.groupOf[objectType], oid)
		}
	}
	for lang, id := range group {
		m.langOf[objectType][id] = lang
		m.groupOf[objectType][id] = gid
	}
	m.writes++
}

// --- helpers ---

func (m *MemoryStore) slugTaken(taxonomy, slug string, exceptID int64) bool {
	for id, t := range m.terms {
		if id != exceptID && t.Taxonomy == taxonomy && t.Slug == slug {
			return true
		}
	}
	return false
}

func (m *MemoryStore) sortedProductIDs() []int64 {
	ids := make([]int64, 0, len(m.products))
	for id := range m.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MemoryStore) sortedTermIDs() []int64 {
	ids := make([]int64, 0, len(m.terms))
	for id := range m.terms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
