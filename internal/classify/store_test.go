package classify

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/errors"
)

func TestTemplateStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "db", "templates.db")
	settings := conf.TemplateStoreSettings{Driver: "sqlite", Path: path}
	ctx := t.Context()

	store, err := OpenTemplateStore(settings)
	require.NoError(t, err)
	bank := NewTemplateBank(3, store)

	_, _, err = bank.Add(ctx, "acme", TypeBOL, []float32{3, 0, 4}, "", map[string]string{"filename": "a.png"})
	require.NoError(t, err)
	_, _, err = bank.Add(ctx, "acme", TypeBOL, []float32{0, 1, 0}, "second", nil)
	require.NoError(t, err)
	_, total, err := bank.Add(ctx, "globex", TypePOD, []float32{1, 1, 1}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NoError(t, bank.Close())

	store, err = OpenTemplateStore(settings)
	require.NoError(t, err)
	reopened := NewTemplateBank(3, store)
	t.Cleanup(func() { _ = reopened.Close() })

	n, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"acme", "globex"}, reopened.Customers())

	bols := reopened.Templates("acme", TypeBOL)
	require.Len(t, bols, 2)
	assert.Equal(t, "template_1", bols[0].TemplateID)
	assert.Equal(t, "second", bols[1].TemplateID)
	assert.InDeltaSlice(t, []float32{0.6, 0, 0.8}, bols[0].Features, 1e-6)
	assert.Equal(t, map[string]string{"filename": "a.png"}, bols[0].Metadata)
	assert.Nil(t, bols[1].Metadata)

	matches := reopened.Match("acme", []float32{0.6, 0, 0.8}, 0.5)
	require.Len(t, matches, 1)
	assert.Equal(t, "template_1", matches[0].TemplateID)
}

func TestOpenTemplateStoreRejectsDriver(t *testing.T) {
	t.Parallel()

	_, err := OpenTemplateStore(conf.TemplateStoreSettings{Driver: "postgres"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestFeatureEncoding(t *testing.T) {
	t.Parallel()

	v := []float32{0, -1.5, 3.25, 1e-7}
	got, err := decodeFeatures(encodeFeatures(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeFeatures([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestTemplateBankValidation(t *testing.T) {
	t.Parallel()

	bank := NewTemplateBank(2, nil)
	ctx := t.Context()

	_, _, err := bank.Add(ctx, "acme", TypeBOL, []float32{1, 2, 3}, "", nil)
	assert.True(t, errors.IsValidation(err))

	_, _, err = bank.Add(ctx, "acme", TypeBOL, []float32{0, 0}, "", nil)
	assert.True(t, errors.IsValidation(err))

	_, _, err = bank.Add(ctx, "", TypeBOL, []float32{1, 0}, "", nil)
	assert.True(t, errors.IsValidation(err))

	assert.False(t, bank.HasTemplates("acme"))
	assert.Nil(t, bank.Match("acme", []float32{1, 0}, 0))
}
