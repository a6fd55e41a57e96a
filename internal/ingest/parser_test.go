package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/ryabkov82/um-label-server/internal/job"
)

func TestReadCSV(t *testing.T) {
	input := "\ufeffsku; ean ;name\nA-1;400638133393;Oats\n;;\nB-2;036000291452\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(input), job.TableConfig{Delimiter: ";"})
	require.NoError(t, err)

	assert.Equal(t, []string{"sku", "ean", "name"}, table.Columns)
	require.Len(t, table.Rows, 2, "blank row is skipped")

	assert.Equal(t, int64(1), table.Rows[0].RowNo)
	assert.Equal(t, int64(3), table.Rows[1].RowNo, "skipped rows still count")

	v, ok := table.Rows[0].Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Oats", v)

	_, ok = table.Rows[1].Get("name")
	assert.False(t, ok, "short row has no name column")
}

func TestReadCSVWindows1251(t *testing.T) {
	src := "Артикул,ШК,Наименование\nA-1,400638133393,Овсянка\n"
	encoded, err := charmap.Windows1251.NewEncoder().String(src)
	require.NoError(t, err)

	table, err := ReadCSV(context.Background(), strings.NewReader(encoded), job.TableConfig{Encoding: "windows-1251"})
	require.NoError(t, err)

	assert.True(t, table.HasColumn("Наименование"))
	v, _ := table.Rows[0].Get("Наименование")
	assert.Equal(t, "Овсянка", v)
}

func TestReadCSVErrors(t *testing.T) {
	ctx := context.Background()

	_, err := ReadCSV(ctx, strings.NewReader(""), job.TableConfig{})
	assert.Error(t, err, "empty file has no header")

	_, err = ReadCSV(ctx, strings.NewReader("a,b\n"), job.TableConfig{Delimiter: ";;"})
	assert.Error(t, err)

	_, err = ReadCSV(ctx, strings.NewReader("a,b\n"), job.TableConfig{Encoding: "koi8-r"})
	assert.Error(t, err)
}

func TestReadXML(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8"?>
<products>
  <product><sku>A-1</sku><ean>400638133393</ean><name>Oats &amp; Co</name></product>
  <product><sku></sku><ean></ean></product>
  <product><sku>B-2</sku><ean>036000291452</ean></product>
</products>`

	table, err := ReadXML(context.Background(), strings.NewReader(input), job.TableConfig{})
	require.NoError(t, err)

	assert.Equal(t, []string{"sku", "ean", "name"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, int64(3), table.Rows[1].RowNo)

	v, ok := table.Rows[0].Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Oats & Co", v)

	_, ok = table.Rows[1].Get("name")
	assert.False(t, ok, "tag absent from the row")
}

func TestReadXMLWindows1251Declaration(t *testing.T) {
	src := `<?xml version="1.0" encoding="windows-1251"?><rows><row><name>Гречка</name></row></rows>`
	encoded, err := charmap.Windows1251.NewEncoder().String(src)
	require.NoError(t, err)

	table, err := ReadXML(context.Background(), strings.NewReader(encoded), job.TableConfig{})
	require.NoError(t, err)
	v, _ := table.Rows[0].Get("name")
	assert.Equal(t, "Гречка", v)
}

func TestReadTableDetectsFormat(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "items.XML")
	require.NoError(t, os.WriteFile(xmlPath, []byte(`<r><i><sku>1</sku></i></r>`), 0o644))

	table, err := ReadTable(context.Background(), xmlPath, job.TableConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sku"}, table.Columns)

	_, err = DetectFormat("items.xlsx", "")
	assert.Error(t, err)
}

func TestReadCSVCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadCSV(ctx, strings.NewReader("a\n1\n"), job.TableConfig{})
	assert.ErrorIs(t, err, context.Canceled)
}
