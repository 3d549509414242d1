// Package importer applies an import document to the host store: one row at a time,
// then a batch phase that merges taxonomy parents and links translation siblings.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/identity"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/media"
	"product-catalog-migrator/internal/metrics"
	"product-catalog-migrator/internal/siblings"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/taxonomy"
	"product-catalog-migrator/internal/translation"
)

type outcome string

const (
	outcomeCreated     outcome = "created"
	outcomeUpdated     outcome = "updated"
	outcomeSkipped     outcome = "skipped"
	outcomeFailed      outcome = "failed"
	outcomeWouldCreate outcome = "would_create"
	outcomeWouldUpdate outcome = "would_update"
)

// Report is the outcome of a run.
type Report struct {
	RunID       string                 `json:"run_id"`
	DryRun      bool                   `json:"dry_run"`
	Created     int                    `json:"created"`
	Updated     int                    `json:"updated"`
	Skipped     int                    `json:"skipped"`
	Errors      int                    `json:"errors"`
	WouldCreate int                    `json:"would_create"`
	WouldUpdate int                    `json:"would_update"`
	Merges      []taxonomy.MergeReport `json:"merges,omitempty"`
	Linking     *siblings.Result       `json:"linking,omitempty"`
}

func (r *Report) count(o outcome) {
	switch o {
	case outcomeCreated:
		r.Created++
	case outcomeUpdated:
		r.Updated++
	case outcomeSkipped:
		r.Skipped++
	case outcomeFailed:
		r.Errors++
	case outcomeWouldCreate:
		r.WouldCreate++
	case outcomeWouldUpdate:
		r.WouldUpdate++
	}
}

// Summary returns the one-line run summary.
func (r Report) Summary() string {
	s := fmt.Sprintf("Imported: %d | Updated: %d | Skipped: %d | Errors: %d", r.Created, r.Updated, r.Skipped, r.Errors)
	if r.DryRun {
		s += fmt.Sprintf(" | Would create: %d | Would update: %d", r.WouldCreate, r.WouldUpdate)
	}
	return s
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store      store.Storer
	Linking    translation.Capability
	Reconciler *taxonomy.Reconciler
	// Media may be nil, in which case images are not imported.
	Media      *media.Resolver
	Siblings   *siblings.Linker
	Taxonomies Taxonomies
	// Hooks run on finalize. Nil means RecomputeHook on Store.
	Hooks    []RefreshHook
	Log      zerolog.Logger
	Now      func() time.Time
	Progress func(done, total int)
}

// Orchestrator runs imports.
type Orchestrator struct {
	store      store.Storer
	linking    translation.Capability
	reconciler *taxonomy.Reconciler
	media      *media.Resolver
	siblings   *siblings.Linker
	detector   *translation.Detector
	chain      identity.Chain
	tax        Taxonomies
	hooks      []RefreshHook
	opts       Options
	log        zerolog.Logger
	now        func() time.Time
	progress   func(done, total int)
}

// New creates an Orchestrator. Invalid options are returned as errors.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Reconciler == nil {
		return nil, errors.New("importer: store and reconciler are required")
	}
	o := &Orchestrator{
		store:      deps.Store,
		linking:    deps.Linking,
		reconciler: deps.Reconciler,
		media:      deps.Media,
		siblings:   deps.Siblings,
		tax:        deps.Taxonomies,
		hooks:      deps.Hooks,
		opts:       opts,
		log:        deps.Log,
		now:        deps.Now,
		progress:   deps.Progress,
	}
	o.detector = translation.NewDetector(deps.Linking, deps.Store, deps.Taxonomies.Language)
	o.chain = identity.NewChain(deps.Store, o.detector, opts.PreferID)
	if o.hooks == nil {
		o.hooks = []RefreshHook{RecomputeHook(deps.Store)}
	}
	if o.siblings == nil {
		o.siblings = siblings.NewLinker(deps.Store, deps.Linking, o.detector, deps.Log)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// rowContext is everything a row's sub-steps need to know about the row.
type rowContext struct {
	index     int
	row       domain.Row
	title     string
	lang      string
	productID int64
}

// batch collects what the batch phase works on.
type batch struct {
	languages []string
	hostLangs []string
	hints     []siblings.Hint
	hintIndex map[string]int
}

func (b *batch) touchLanguage(lng string) {
	if lng == "" {
		return
	}
	for _, l := range b.languages {
		if l == lng {
			return
		}
	}
	b.languages = append(b.languages, lng)
}

func (b *batch) seeSource(src string, productID int64) {
	src = strings.TrimSpace(src)
	if src == "" {
		return
	}
	i, ok := b.hintIndex[src]
	if !ok {
		i = len(b.hints)
		b.hintIndex[src] = i
		b.hints = append(b.hints, siblings.Hint{SourceID: src})
	}
	if productID > 0 {
		b.hints[i].ProductIDs = append(b.hints[i].ProductIDs, productID)
	}
}

// Run imports every row of doc in order, then runs the batch phase. It stops before
// the next row when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, doc Document) (Report, error) {
	rep := Report{RunID: uuid.NewString(), DryRun: o.opts.DryRun}
	log := o.log.With().Str("run_id", rep.RunID).Logger()
	b := &batch{hintIndex: map[string]int{}}

	if linker, ok := o.linking.Linker(); ok {
		codes, err := linker.Languages(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("host languages unavailable")
		}
		b.hostLangs = codes
	}

	for i, raw := range doc {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		out := o.processRow(ctx, log, i, raw, b)
		rep.count(out)
		metrics.RecordRow(string(out))
		if o.progress != nil {
			o.progress(i+1, len(doc))
		}
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	o.finishBatch(ctx, log, b, &rep)
	return rep, nil
}

func (o *Orchestrator) processRow(ctx context.Context, log zerolog.Logger, idx int, raw json.RawMessage, b *batch) outcome {
	row, err := decodeRow(raw)
	if errors.Is(err, ErrRowNotObject) {
		log.Info().Msgf("[SKIP] Row #%d is not an object", idx)
		return outcomeSkipped
	}
	if err != nil {
		log.Info().Err(err).Msgf("[SKIP] Row #%d is malformed", idx)
		return outcomeSkipped
	}
	b.seeSource(row.SourceID, 0)

	rc := rowContext{index: idx, row: row, title: row.DisplayName()}
	if rc.title == "" {
		log.Info().Msgf("[SKIP] Row #%d has no name", idx)
		return outcomeSkipped
	}
	rc.lang = identity.TargetLanguage(row, o.opts.TaxLanguage, o.tax.Language)

	match, found, err := o.chain.Resolve(ctx, identity.Request{Row: row, Lang: rc.lang})
	if err != nil {
		log.Warn().Err(err).Msgf("[ERROR] Row #%d identity resolution failed", idx)
		return outcomeFailed
	}
	if !found && o.opts.IDOnly {
		log.Info().Msgf("[SKIP] No target found for row #%d (id-only)", idx)
		return outcomeSkipped
	}

	fields := o.buildFields(row, rc.title, found)
	var out outcome
	if found {
		rc.productID = match.ProductID
		out = o.update(ctx, log, &rc, match, fields)
	} else {
		out = o.create(ctx, log, &rc, fields)
	}
	switch out {
	case outcomeWouldCreate, outcomeWouldUpdate:
		b.touchLanguage(rc.lang)
	case outcomeCreated, outcomeUpdated:
		b.touchLanguage(rc.lang)
		o.afterWrite(ctx, log, rc, b)
		b.seeSource(row.SourceID, rc.productID)
		log.Info().Int64("id", rc.productID).Str("lang", rc.lang).
			Msgf("[%s] ID %d - %s (status: %s)", strings.ToUpper(actionOf(out)), rc.productID, fields.Title, fields.Status)
	}
	return out
}

func actionOf(o outcome) string {
	if o == outcomeCreated {
		return "create"
	}
	return "update"
}

func (o *Orchestrator) update(ctx context.Context, log zerolog.Logger, rc *rowContext, match identity.Match, fields domain.ProductFields) outcome {
	id := match.ProductID
	if !o.opts.Update {
		log.Info().Msgf("[SKIP] Existing %d and update disabled", id)
		return outcomeSkipped
	}
	if o.opts.UpdateIfChanged {
		same, err := o.unchanged(ctx, id, fields, rc.row)
		if err != nil {
			log.Warn().Err(err).Msgf("[ERROR] Row #%d change detection failed", rc.index)
			return outcomeFailed
		}
		if same {
			log.Info().Msgf("[SKIP] Unchanged ID %d", id)
			return outcomeSkipped
		}
	}
	if o.opts.DryRun {
		log.Info().Str("strategy", match.Strategy).
			Msgf("[DRY-RUN][UPDATE] #%d %s (slug: %s)", id, fields.Title, slugPreview(fields.Slug))
		return outcomeWouldUpdate
	}
	if _, err := o.store.UpdateProduct(ctx, id, fields); err != nil {
		log.Warn().Err(err).Msgf("UPDATE ERROR: row #%d", rc.index)
		return outcomeFailed
	}
	return outcomeUpdated
}

func (o *Orchestrator) create(ctx context.Context, log zerolog.Logger, rc *rowContext, fields domain.ProductFields) outcome {
	if o.opts.DryRun {
		log.Info().Msgf("[DRY-RUN][CREATE] %s (slug: %s)", fields.Title, slugPreview(fields.Slug))
		return outcomeWouldCreate
	}
	p, err := o.store.CreateProduct(ctx, fields)
	if err != nil {
		log.Warn().Err(err).Msgf("CREATE ERROR: row #%d", rc.index)
		return outcomeFailed
	}
	rc.productID = p.ID
	return outcomeCreated
}

func slugPreview(slug *string) string {
	if slug == nil {
		return "(preserve)"
	}
	return *slug
}

// buildFields derives the field set written for a row.
func (o *Orchestrator) buildFields(row domain.Row, title string, existing bool) domain.ProductFields {
	status := domain.Status(strings.TrimSpace(row.Status))
	if !status.IsAllowed() {
		status = o.opts.Status
	}
	f := domain.ProductFields{Title: title, Status: status, AuthorID: o.opts.AuthorID}

	slug := taxonomy.Slugify(row.Slug)
	if slug == "" {
		slug = taxonomy.Slugify(title)
	}
	switch {
	case !existing:
		slug = appendSuffix(slug, o.opts.CreateSlugSuffix)
		f.Slug = &slug
	case !o.opts.PreserveSlug:
		f.Slug = &slug
	}

	if !(o.opts.SkipEmpty && row.ContentLong == "") {
		content := row.ContentLong
		f.Content = &content
	}
	if !(o.opts.SkipEmpty && row.ContentShort == "") {
		excerpt := row.ContentShort
		f.Excerpt = &excerpt
	}
	return f
}

// appendSuffix adds "-suffix" to slug unless it already ends with it.
func appendSuffix(slug, suffix string) string {
	suffix = taxonomy.Slugify(suffix)
	if suffix == "" {
		return slug
	}
	suffix = "-" + suffix
	if strings.HasSuffix(slug, suffix) {
		return slug
	}
	return slug + suffix
}

// unchanged reports whether writing fields and the row's metadata would change nothing.
func (o *Orchestrator) unchanged(ctx context.Context, id int64, fields domain.ProductFields, row domain.Row) (bool, error) {
	p, err := o.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrProductNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !sameText(p.Title, fields.Title) || p.Status != fields.Status {
		return false, nil
	}
	if fields.Content != nil && !sameText(p.Content, *fields.Content) {
		return false, nil
	}
	if fields.Excerpt != nil && !sameText(p.Excerpt, *fields.Excerpt) {
		return false, nil
	}
	if fields.Slug != nil && p.Slug != *fields.Slug {
		return false, nil
	}
	for _, key := range row.MetaKeys() {
		want, _ := domain.MetaText(row.Meta[key])
		have, _, err := o.store.GetProductMeta(ctx, id, key)
		if err != nil {
			return false, err
		}
		if !sameText(have, want) {
			return false, nil
		}
	}
	return true, nil
}

// sameText compares two texts ignoring surrounding whitespace and CRLF line endings.
func sameText(a, b string) bool {
	norm := func(s string) string {
		return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	}
	return norm(a) == norm(b)
}

// afterWrite runs the steps following a successful create or update. Each failure only
// degrades its own step.
func (o *Orchestrator) afterWrite(ctx context.Context, log zerolog.Logger, rc rowContext, b *batch) {
	soft := func(step string, err error) {
		if err != nil {
			log.Debug().Err(err).Int64("id", rc.productID).Msgf("%s failed", step)
		}
	}
	soft("metadata", o.writeMeta(ctx, rc))
	soft("language", o.setLanguage(ctx, rc, b.hostLangs))
	soft("category", o.reconcileCategory(ctx, rc))
	soft("attribute", o.reconcileAttribute(ctx, rc))
	if o.media != nil {
		_, err := o.media.ImportImages(ctx, rc.productID, rc.row, rc.lang)
		soft("media", err)
	}
	soft("finalize", o.finalize(ctx, rc.productID))
}

func (o *Orchestrator) writeMeta(ctx context.Context, rc rowContext) error {
	if src := strings.TrimSpace(rc.row.SourceID); src != "" {
		if err := o.store.SetProductMeta(ctx, rc.productID, domain.MetaSourceID, src); err != nil {
			return err
		}
	}
	for _, key := range rc.row.MetaKeys() {
		value, empty := domain.MetaText(rc.row.Meta[key])
		if empty && o.opts.SkipEmpty {
			continue
		}
		if err := o.store.SetProductMeta(ctx, rc.productID, key, value); err != nil {
			return err
		}
	}
	return nil
}

// setLanguage assigns the language taxonomy terms of the row and tags the product with
// the host language matching the target.
func (o *Orchestrator) setLanguage(ctx context.Context, rc rowContext, hostLangs []string) error {
	if names := o.opts.languageTerms(rc.row, o.tax.Language); len(names) > 0 && o.tax.Language != "" {
		ids := make([]int64, 0, len(names))
		for _, name := range names {
			id, err := o.ensureLanguageTerm(ctx, name)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := o.store.SetObjectTerms(ctx, rc.productID, o.tax.Language, ids); err != nil {
			return err
		}
	}

	linker, ok := o.linking.Linker()
	if !ok || rc.lang == "" {
		return nil
	}
	code := lang.Resolve(rc.lang, hostLangs)
	if code == "" {
		return nil
	}
	return linker.SetProductLanguage(ctx, rc.productID, code)
}

func (o *Orchestrator) ensureLanguageTerm(ctx context.Context, name string) (int64, error) {
	found, err := o.store.FindTermsByName(ctx, o.tax.Language, name, nil)
	if err != nil {
		return 0, err
	}
	if len(found) > 0 {
		return found[0].ID, nil
	}
	slug := taxonomy.Slugify(name)
	t, err := o.store.CreateTerm(ctx, &domain.Term{Taxonomy: o.tax.Language, Name: name, Slug: slug})
	if errors.Is(err, store.ErrTermSlugExists) {
		t, err = o.store.FindTermBySlug(ctx, o.tax.Language, slug)
	}
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// finishBatch merges attribute parents for every language touched, then links siblings.
func (o *Orchestrator) finishBatch(ctx context.Context, log zerolog.Logger, b *batch, rep *Report) {
	if o.opts.MergeParents && o.tax.Attribute != "" {
		langs := append([]string(nil), b.languages...)
		sort.Strings(langs)
		for _, lng := range langs {
			mr, err := o.reconciler.MergeRoots(ctx, o.tax.Attribute, lng, o.opts.DryRun)
			if err != nil {
				log.Warn().Err(err).Str("lang", lng).Msg("attribute parent merge failed")
				continue
			}
			rep.Merges = append(rep.Merges, mr)
		}
	}

	if !o.opts.LinkSiblings {
		return
	}
	if o.opts.DryRun {
		log.Info().Msgf("[DRY-RUN] sibling linking skipped for %d source ids", len(b.hints))
		return
	}
	res, err := o.siblings.Link(ctx, b.hints)
	if err != nil {
		log.Warn().Err(err).Msg("sibling linking failed")
	}
	rep.Linking = &res
}
