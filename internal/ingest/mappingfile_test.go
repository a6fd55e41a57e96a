package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryabkov82/um-label-server/internal/job"
)

func TestParseMappingJSON(t *testing.T) {
	cfg, err := ParseMappingJSON([]byte(`{
		"identifier": "Артикул",
		"barcode_value": {"col": "ШК"},
		"title": {"col": "Наименование", "required": true},
		"brand": "Бренд"
	}`))
	require.NoError(t, err)

	assert.Equal(t, job.MappingConfig{
		IdentifierField: "Артикул",
		BarcodeField:    "ШК",
		TitleField:      "Наименование",
		BrandField:      "Бренд",
		Required:        []string{"title"},
	}, cfg)

	_, err = ParseMappingJSON([]byte(`{"colour": "c"}`))
	assert.ErrorIs(t, err, ErrInvalidMapping)

	_, err = ParseMappingJSON([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidMapping)
}

func TestParseMappingCSV(t *testing.T) {
	cfg, err := ParseMappingCSV(strings.NewReader("field,col,required\nidentifier,sku,\nbarcode_value,ean,true\nprice,cost,true\n"))
	require.NoError(t, err)
	assert.Equal(t, "sku", cfg.IdentifierField)
	assert.Equal(t, "ean", cfg.BarcodeField)
	assert.Equal(t, "cost", cfg.PriceField)
	assert.Equal(t, []string{"price"}, cfg.Required)

	_, err = ParseMappingCSV(strings.NewReader("name,value\na,b\n"))
	assert.ErrorIs(t, err, ErrInvalidMapping)

	_, err = ParseMappingCSV(strings.NewReader("field,col,required\ntitle,name,maybe\n"))
	assert.ErrorIs(t, err, ErrInvalidMapping)
}

func TestLoadMappingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"barcode_value": "gtin"}`), 0o644))

	cfg, err := LoadMappingFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gtin", cfg.BarcodeField)

	_, err = LoadMappingFile(filepath.Join(dir, "mapping.yaml"))
	assert.Error(t, err)
}

func TestOverlayMapping(t *testing.T) {
	base := job.MappingConfig{IdentifierField: "sku", BarcodeField: "ean", TitleField: "name", Required: []string{"title"}}
	over := job.MappingConfig{BarcodeField: "gtin", Required: []string{"price", "title"}}

	got := OverlayMapping(base, over)
	assert.Equal(t, "sku", got.IdentifierField)
	assert.Equal(t, "gtin", got.BarcodeField)
	assert.Equal(t, "name", got.TitleField)
	assert.Equal(t, []string{"title", "price"}, got.Required)
}
