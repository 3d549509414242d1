package htmlfix

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-catalog-migrator/internal/domain"
	"product-catalog-migrator/internal/store"
)

func TestUnwrapListParagraphs(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		removed int
	}{
		{
			name:    "single item",
			in:      `<ul><li><p>12V</p></li></ul>`,
			want:    `<ul><li>12V</li></ul>`,
			removed: 1,
		},
		{
			name:    "several paragraphs and inline markup",
			in:      `<ul><li><p>a <b>b</b></p><p>c</p></li><li>d</li></ul>`,
			want:    `<ul><li>a <b>b</b>c</li><li>d</li></ul>`,
			removed: 2,
		},
		{
			name:    "paragraph outside a list is kept",
			in:      `<p>intro</p><ol><li><div><p>x</p></div></li></ol>`,
			want:    `<p>intro</p><ol><li><div>x</div></li></ol>`,
			removed: 1,
		},
		{
			name: "nothing to do",
			in:   `<p>only <i>text</i></p>`,
			want: `<p>only <i>text</i></p>`,
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, removed, err := UnwrapListParagraphs(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.removed, removed)
		})
	}
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Chargeur USB & câble", StripTags(`<p>Chargeur <b>USB</b> &amp; câble</p><script>alert(1)</script>`))
	assert.Equal(t, "plain", StripTags("plain"))
}

func seed(t *testing.T, m *store.MemoryStore, content string, status domain.Status) int64 {
	t.Helper()
	p, err := m.CreateProduct(context.Background(), domain.ProductFields{Title: "p", Status: status, Content: &content})
	require.NoError(t, err)
	return p.ID
}

func TestFixer_DryRunThenRun(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore()
	listed := seed(t, m, `<ul><li><p>a</p></li><li><p>b</p></li></ul>`, domain.StatusPublished)
	seed(t, m, `<p>plain</p>`, domain.StatusPublished)
	seed(t, m, "", domain.StatusDraft)
	f := NewFixer(m, zerolog.Nop())

	writes := m.Writes()
	rep, err := f.Run(ctx, Options{Batch: 2})
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 3, Changed: 1, Unwrapped: 2}, rep)
	assert.Equal(t, writes, m.Writes())

	rep, err = f.Run(ctx, Options{Run: true})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Changed)
	p, err := m.GetProductByID(ctx, listed)
	require.NoError(t, err)
	assert.Equal(t, `<ul><li>a</li><li>b</li></ul>`, p.Content)
	assert.Equal(t, "p", p.Title)
	assert.Equal(t, domain.StatusPublished, p.Status)

	rep, err = f.Run(ctx, Options{Run: true})
	require.NoError(t, err)
	assert.Zero(t, rep.Changed)
}

func TestFixer_FiltersAndLimit(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore()
	content := `<ul><li><p>a</p></li></ul>`
	first := seed(t, m, content, domain.StatusPublished)
	seed(t, m, content, domain.StatusDraft)
	seed(t, m, content, domain.StatusPublished)
	f := NewFixer(m, zerolog.Nop())

	rep, err := f.Run(ctx, Options{ID: first})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Scanned)

	rep, err = f.Run(ctx, Options{Statuses: []domain.Status{domain.StatusDraft}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Scanned)

	rep, err = f.Run(ctx, Options{Limit: 2, Batch: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Scanned)
}
