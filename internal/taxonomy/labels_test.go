package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLabels(t *testing.T) {
	l := DefaultLabels()

	fr, ok := l.For("al_product-attributes", "FR")
	require.True(t, ok)
	assert.Equal(t, []string{"MARQUE", "TENSION", "TYPE"}, fr.Labels())
	assert.Equal(t, "_attribute1", fr.Slots[0].MetaKey)

	en, ok := l.For("al_product-attributes", "en")
	require.True(t, ok)
	assert.Equal(t, []string{"BRAND", "VOLTAGE", "CATEGORY"}, en.Labels())

	es, ok := l.For("al_product-attributes", "es")
	require.True(t, ok)
	assert.Equal(t, []string{"MARCA", "TENSIÓN", "TIPO"}, es.Labels())

	_, ok = l.For("al_product-cat", "fr")
	assert.False(t, ok)
}

func TestLanguageLabels_Canonical(t *testing.T) {
	fr, _ := DefaultLabels().For("al_product-attributes", "fr")

	label, ok := fr.Canonical(" marque ")
	assert.True(t, ok)
	assert.Equal(t, "MARQUE", label)

	label, ok = fr.Canonical("Brand")
	assert.True(t, ok)
	assert.Equal(t, "MARQUE", label)

	label, ok = fr.Canonical("voltage")
	assert.True(t, ok)
	assert.Equal(t, "TENSION", label)

	_, ok = fr.Canonical("Couleur")
	assert.False(t, ok)

	es, _ := DefaultLabels().For("al_product-attributes", "es")
	label, ok = es.Canonical("TENSION")
	assert.True(t, ok)
	assert.Equal(t, "TENSIÓN", label)
}

func TestLanguageLabels_LabelForSlug(t *testing.T) {
	es, _ := DefaultLabels().For("al_product-attributes", "es")
	label, ok := es.LabelForSlug("tension-es", "es")
	assert.True(t, ok)
	assert.Equal(t, "TENSIÓN", label)

	_, ok = es.LabelForSlug("tension-fr", "es")
	assert.False(t, ok)
}

func TestParseLabels_RejectsDanglingSynonym(t *testing.T) {
	_, err := ParseLabels([]byte(`
taxonomies:
  attrs:
    fr:
      slots:
        - meta: _attribute1
          label: MARQUE
      synonyms:
        BRAND: MARK
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown label")
}

func TestLoadLabels_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
taxonomies:
  attrs:
    de:
      slots:
        - meta: _attribute1
          label: MARKE
`), 0o600))

	l, err := LoadLabels(path)
	require.NoError(t, err)
	de, ok := l.For("attrs", "de")
	require.True(t, ok)
	assert.Equal(t, []string{"MARKE"}, de.Labels())

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
