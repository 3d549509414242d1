// Package taxonomy keeps hierarchical product taxonomies consistent across languages:
// canonical parents per language, translated child values and exact memberships.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/lang"
	"product-catalog-migrator/internal/metrics"
	"product-catalog-migrator/internal/store"
	"product-catalog-migrator/internal/translation"
)

// maxParentDepth bounds parent-first mapping on corrupted hierarchies.
const maxParentDepth = 8

// Reconciler finds, creates and merges taxonomy terms.
type Reconciler struct {
	terms   store.TermStorer
	linking translation.Capability
	labels  *Labels
	log     zerolog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(terms store.TermStorer, linking translation.Capability, labels *Labels, log zerolog.Logger) *Reconciler {
	if labels == nil {
		labels = DefaultLabels()
	}
	return &Reconciler{terms: terms, linking: linking, labels: labels, log: log}
}

// Labels returns the label tables in use.
func (r *Reconciler) Labels() *Labels { return r.labels }

// EnsureRoot returns the root term carrying label in lang, creating it when missing.
func (r *Reconciler) EnsureRoot(ctx context.Context, tax, label, lng string) (*domain.Term, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, errors.New("taxonomy: empty root label")
	}
	slug := LangSlug(label, lng)

	t, err := r.terms.FindTermBySlug(ctx, tax, slug)
	switch {
	case err == nil && t.IsRoot():
		return t, nil
	case err == nil:
		// A child value slug can coincide with {label}-{lang}.
		slug, err = r.freeSlug(ctx, tax, slug)
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, store.ErrTermNotFound):
		return nil, err
	}

	root := int64(0)
	candidates, err := r.terms.FindTermsByName(ctx, tax, label, &root)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		ok, err := r.inLanguage(ctx, candidates[i].ID, lng)
		if err != nil {
			return nil, err
		}
		if ok {
			return &candidates[i], nil
		}
	}

	created, err := r.terms.CreateTerm(ctx, &domain.Term{Taxonomy: tax, Name: label, Slug: slug})
	if errors.Is(err, store.ErrTermSlugExists) {
		existing, ferr := r.terms.FindTermBySlug(ctx, tax, slug)
		if ferr != nil {
			return nil, ferr
		}
		if !existing.IsRoot() {
			return nil, fmt.Errorf("taxonomy: root slug %q is held by term %d: %w", slug, existing.ID, store.ErrTermSlugExists)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taxonomy: create root %q: %w", label, err)
	}
	if err := r.tagTerm(ctx, created.ID, lng); err != nil {
		return nil, err
	}
	r.log.Debug().Str("taxonomy", tax).Str("lang", lng).Int64("term_id", created.ID).Msgf("[TERM] created root %s", label)
	return created, nil
}

// freeSlug returns the first of slug-2, slug-3, ... not used in tax.
func (r *Reconciler) freeSlug(ctx context.Context, tax, slug string) (string, error) {
	for n := 2; n < 100; n++ {
		candidate := slug + "-" + strconv.Itoa(n)
		_, err := r.terms.FindTermBySlug(ctx, tax, candidate)
		if errors.Is(err, store.ErrTermNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("taxonomy: no free slug for %q: %w", slug, store.ErrTermSlugExists)
}

// EnsureChild returns the child of parentID named value, creating it when missing.
func (r *Reconciler) EnsureChild(ctx context.Context, tax string, parentID int64, value, lng string) (*domain.Term, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("taxonomy: empty child value")
	}
	slug := LangSlug(value, lng)

	children, err := r.terms.ListTerms(ctx, tax, &parentID)
	if err != nil {
		return nil, err
	}
	for i := range children {
		if children[i].Slug == slug {
			return &children[i], nil
		}
	}
	for i := range children {
		if strings.EqualFold(strings.TrimSpace(children[i].Name), value) {
			return &children[i], nil
		}
	}

	created, err := r.terms.CreateTerm(ctx, &domain.Term{Taxonomy: tax, Name: value, Slug: slug, ParentID: parentID})
	if errors.Is(err, store.ErrTermSlugExists) {
		// The slug belongs to a term elsewhere in the taxonomy; qualify it with the parent.
		parent, perr := r.terms.GetTerm(ctx, parentID)
		if perr != nil {
			return nil, perr
		}
		alt := Slugify(value) + "-" + parent.Slug
		created, err = r.terms.CreateTerm(ctx, &domain.Term{Taxonomy: tax, Name: value, Slug: alt, ParentID: parentID})
		if errors.Is(err, store.ErrTermSlugExists) {
			existing, ferr := r.terms.FindTermBySlug(ctx, tax, alt)
			if ferr != nil {
				return nil, ferr
			}
			if existing.ParentID != parentID {
				return nil, fmt.Errorf("taxonomy: slug %q is used outside parent %d: %w", alt, parentID, store.ErrTermSlugExists)
			}
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("taxonomy: create child %q under %d: %w", value, parentID, err)
	}
	if err := r.tagTerm(ctx, created.ID, lng); err != nil {
		return nil, err
	}
	r.log.Debug().Str("taxonomy", tax).Str("lang", lng).Int64("term_id", created.ID).Int64("parent_id", parentID).
		Msgf("[TERM] created %s", value)
	return created, nil
}

// Reparent moves a term under parentID. It writes nothing when the parent is already right.
func (r *Reconciler) Reparent(ctx context.Context, tax string, termID, parentID int64) error {
	t, err := r.terms.GetTerm(ctx, termID)
	if err != nil {
		return err
	}
	if t.Taxonomy != tax {
		return fmt.Errorf("taxonomy: term %d belongs to %s, not %s", termID, t.Taxonomy, tax)
	}
	if t.ParentID == parentID {
		return nil
	}
	t.ParentID = parentID
	_, err = r.terms.UpdateTerm(ctx, t)
	return err
}

// MapTerm returns the id of the term representing source in lng: its registered
// translation, else a matching term of that language, else a new term linked to source.
// It returns 0 when source carries nothing to map.
func (r *Reconciler) MapTerm(ctx context.Context, tax string, source domain.TermRef, lng string) (int64, error) {
	return r.mapTerm(ctx, tax, source, lng, 0)
}

func (r *Reconciler) mapTerm(ctx context.Context, tax string, source domain.TermRef, lng string, depth int) (int64, error) {
	linker, linked := r.linking.Linker()

	var hostSource *domain.Term
	if source.ID > 0 {
		t, err := r.terms.GetTerm(ctx, source.ID)
		switch {
		case err == nil && t.Taxonomy == tax:
			hostSource = t
		case err != nil && !errors.Is(err, store.ErrTermNotFound):
			return 0, err
		}
	}

	if hostSource != nil && linked {
		if id, err := translation.TermTranslation(ctx, linker, hostSource.ID, lng); err != nil {
			return 0, err
		} else if id > 0 {
			if _, err := r.terms.GetTerm(ctx, id); err == nil {
				return id, nil
			}
		}
		if srcLang, err := linker.TermLanguage(ctx, hostSource.ID); err != nil {
			return 0, err
		} else if srcLang != "" && lang.Match(srcLang, lng) {
			return hostSource.ID, nil
		}
	}

	name := strings.TrimSpace(source.Name)
	if name == "" && hostSource != nil {
		name = hostSource.Name
	}
	if name == "" {
		name = strings.TrimSpace(source.Slug)
	}
	if name == "" {
		return 0, nil
	}

	var parentID int64
	if hostSource != nil && hostSource.ParentID > 0 && depth < maxParentDepth {
		parent, err := r.terms.GetTerm(ctx, hostSource.ParentID)
		if err != nil && !errors.Is(err, store.ErrTermNotFound) {
			return 0, err
		}
		if parent != nil {
			parentID, err = r.mapTerm(ctx, tax, domain.TermRef{ID: parent.ID, Slug: parent.Slug, Name: parent.Name}, lng, depth+1)
			if err != nil {
				return 0, err
			}
		}
	}

	var target *domain.Term
	var err error
	if parentID > 0 {
		target, err = r.EnsureChild(ctx, tax, parentID, name, lng)
	} else {
		target, err = r.EnsureRoot(ctx, tax, name, lng)
	}
	if err != nil {
		return 0, err
	}

	if hostSource != nil && linked && hostSource.ID != target.ID {
		if err := r.linkTerms(ctx, linker, hostSource.ID, target.ID, lng); err != nil {
			return 0, err
		}
	}
	return target.ID, nil
}

// linkTerms adds target to the translation group of source when source has a language.
func (r *Reconciler) linkTerms(ctx context.Context, linker translation.Linker, sourceID, targetID int64, lng string) error {
	group, err := linker.TermGroup(ctx, sourceID)
	if err != nil {
		return err
	}
	if len(group) == 0 {
		return nil
	}
	if _, taken := group[lng]; taken {
		// First registered translation wins.
		return nil
	}
	merged := domain.TranslationGroup{}
	for code, id := range group {
		merged[code] = id
	}
	merged[lng] = targetID
	return linker.SaveTermGroup(ctx, merged)
}

// MergeReport summarizes a MergeRoots pass.
type MergeReport struct {
	Taxonomy   string
	Lang       string
	Renamed    int
	Reparented int
	Deleted    int
	DryRun     bool
}

// Writes is the number of term changes made, or planned in a dry run.
func (m MergeReport) Writes() int { return m.Renamed + m.Reparented + m.Deleted }

// MergeRoots collapses the roots of tax recognized as the same canonical label in lng
// into one canonical root. Unrecognized roots and roots tagged with another language
// are left alone. A second pass makes no changes.
func (r *Reconciler) MergeRoots(ctx context.Context, tax, lng string, dryRun bool) (MergeReport, error) {
	report := MergeReport{Taxonomy: tax, Lang: lng, DryRun: dryRun}
	table, ok := r.labels.For(tax, lng)
	if !ok {
		return report, nil
	}
	tag := "[MERGE]"
	if dryRun {
		tag = "[DRY-RUN][MERGE]"
	}

	root := int64(0)
	roots, err := r.terms.ListTerms(ctx, tax, &root)
	if err != nil {
		return report, err
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })

	groups := make(map[string][]domain.Term)
	for _, t := range roots {
		ok, err := r.inLanguage(ctx, t.ID, lng)
		if err != nil {
			return report, err
		}
		if !ok {
			continue
		}
		label, recognized := table.LabelForSlug(t.Slug, lng)
		if !recognized {
			label, recognized = table.Canonical(t.Name)
		}
		if recognized {
			groups[label] = append(groups[label], t)
		}
	}

	for _, label := range table.Labels() {
		members := groups[label]
		if len(members) == 0 {
			continue
		}
		canonical := pickCanonical(members, label, lng)
		log := r.log.With().Str("taxonomy", tax).Str("lang", lng).Str("label", label).Int64("canonical_id", canonical.ID).Logger()

		wantSlug := LangSlug(label, lng)
		if canonical.Slug != wantSlug {
			holder, err := r.terms.FindTermBySlug(ctx, tax, wantSlug)
			switch {
			case err == nil && holder.ID != canonical.ID:
				// Held by a term outside the group; only the name can be fixed.
				wantSlug = canonical.Slug
			case err != nil && !errors.Is(err, store.ErrTermNotFound):
				return report, err
			}
		}
		if canonical.Name != label || canonical.Slug != wantSlug {
			report.Renamed++
			log.Info().Str("from_name", canonical.Name).Str("from_slug", canonical.Slug).Msgf("%s rename canonical root", tag)
			if !dryRun {
				if err := r.renameRoot(ctx, canonical, label, wantSlug); err != nil {
					return report, err
				}
			}
		}

		for _, dup := range members {
			if dup.ID == canonical.ID {
				continue
			}
			children, err := r.terms.ListTerms(ctx, tax, &dup.ID)
			if err != nil {
				return report, err
			}
			for _, child := range children {
				report.Reparented++
				log.Info().Int64("term_id", child.ID).Int64("from_parent", dup.ID).Msgf("%s reparent %s", tag, child.Name)
				if !dryRun {
					if err := r.Reparent(ctx, tax, child.ID, canonical.ID); err != nil {
						return report, err
					}
				}
			}
			report.Deleted++
			log.Info().Int64("term_id", dup.ID).Msgf("%s delete duplicate root %s", tag, dup.Name)
			if !dryRun {
				if err := r.terms.DeleteTerm(ctx, dup.ID); err != nil && !errors.Is(err, store.ErrTermNotFound) {
					return report, err
				}
			}
		}

		if !dryRun {
			if err := r.tagIfUntagged(ctx, canonical.ID, lng); err != nil {
				return report, err
			}
		}
	}

	if !dryRun {
		metrics.RecordMergedRoots(tax, report.Deleted)
	}
	return report, nil
}

func (r *Reconciler) renameRoot(ctx context.Context, t domain.Term, label, slug string) error {
	t.Name = label
	t.Slug = slug
	_, err := r.terms.UpdateTerm(ctx, &t)
	if errors.Is(err, store.ErrTermSlugExists) {
		// Another term owns the slug; settle for the name.
		current, gerr := r.terms.GetTerm(ctx, t.ID)
		if gerr != nil {
			return gerr
		}
		if current.Name == label {
			return nil
		}
		current.Name = label
		_, err = r.terms.UpdateTerm(ctx, current)
	}
	return err
}

// pickCanonical prefers the root holding the canonical slug, then the exact label, then the lowest id.
// members must be sorted by id.
func pickCanonical(members []domain.Term, label, lng string) domain.Term {
	slug := LangSlug(label, lng)
	for _, t := range members {
		if t.Slug == slug {
			return t
		}
	}
	for _, t := range members {
		if t.Name == label {
			return t
		}
	}
	return members[0]
}

// Assign replaces the memberships of productID in tax with ids, in order. Ids that do
// not resolve to a term of tax are dropped; an empty result clears the taxonomy.
func (r *Reconciler) Assign(ctx context.Context, productID int64, tax string, ids []int64) error {
	kept := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		t, err := r.terms.GetTerm(ctx, id)
		if errors.Is(err, store.ErrTermNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if t.Taxonomy != tax {
			continue
		}
		seen[id] = true
		kept = append(kept, id)
	}
	return r.terms.SetObjectTerms(ctx, productID, tax, kept)
}

// inLanguage reports whether a term may be used for lng: always without linking,
// otherwise when untagged or tagged with a matching language.
func (r *Reconciler) inLanguage(ctx context.Context, termID int64, lng string) (bool, error) {
	linker, ok := r.linking.Linker()
	if !ok || lng == "" {
		return true, nil
	}
	tag, err := linker.TermLanguage(ctx, termID)
	if err != nil {
		return false, err
	}
	return tag == "" || lang.Match(tag, lng), nil
}

func (r *Reconciler) tagTerm(ctx context.Context, termID int64, lng string) error {
	linker, ok := r.linking.Linker()
	if !ok || lng == "" {
		return nil
	}
	return linker.SetTermLanguage(ctx, termID, lng)
}

func (r *Reconciler) tagIfUntagged(ctx context.Context, termID int64, lng string) error {
	linker, ok := r.linking.Linker()
	if !ok || lng == "" {
		return nil
	}
	tag, err := linker.TermLanguage(ctx, termID)
	if err != nil || tag != "" {
		return err
	}
	return linker.SetTermLanguage(ctx, termID, lng)
}
