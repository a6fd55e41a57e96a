package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryabkov82/um-label-server/internal/ingest"
)

const testProfile = `
[table]
delimiter = ";"

[mapping]
identifier_field = "sku"
barcode_field = "ean"
title_field = "name"

[label]
width_mm = 40
height_mm = 25
dpi = 150
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEncodeCommand(t *testing.T) {
	out, err := execute(t, "encode", "400638133393")
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "4006381333931", string(lines[0]))
	assert.Len(t, lines[1], 95)
}

func TestEncodeCommandRejectsShortPayload(t *testing.T) {
	_, err := execute(t, "encode", "12345")
	assert.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "products.csv", "sku;ean;name\nA-1;400638133393;Oats\nB-2;12345;Rice\n")
	profile := writeFile(t, dir, "shelf.toml", testProfile)
	archive := filepath.Join(dir, "labels.zip")
	reportPath := filepath.Join(dir, "report.json")

	out, err := execute(t, "render",
		"--input", input, "--profile", profile, "--out", archive, "--report", reportPath, "--workers", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "Rendered 1 of 2 labels")
	assert.Contains(t, out, "InvalidPayloadLength")

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "A-1.png", zr.File[0].Name)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report ingest.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "products", report.PackageID)
	assert.Equal(t, "labels.zip", report.Archive)
	assert.Equal(t, 2, report.RowsTotal)
	require.Len(t, report.Errors, 1)
	assert.EqualValues(t, 2, report.Errors[0].RowNo)
}

func TestRenderCommandMappingOverride(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "products.csv", "code;gtin;name\nA-1;400638133393;Oats\n")
	profile := writeFile(t, dir, "shelf.toml", testProfile)
	mapping := writeFile(t, dir, "mapping.json", `{"identifier":"code","barcode_value":"gtin"}`)
	archive := filepath.Join(dir, "labels.zip")

	out, err := execute(t, "render", "--input", input, "--profile", profile, "--mapping", mapping, "--out", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "Rendered 1 of 1 labels")
	assert.FileExists(t, archive)
}

func TestRenderCommandEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "products.csv", "sku;ean;name\nB-2;12345;Rice\n")
	profile := writeFile(t, dir, "shelf.toml", testProfile)
	archive := filepath.Join(dir, "labels.zip")

	_, err := execute(t, "render", "--input", input, "--profile", profile, "--out", archive)
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrEmptyBatch)
	assert.NoFileExists(t, archive)
}

func TestRenderCommandRequiresFlags(t *testing.T) {
	_, err := execute(t, "render", "--input", "x.csv")
	assert.Error(t, err)
}
