package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ryabkov82/um-label-server/internal/job"
)

// LoadMappingFile reads a mapping file in JSON or CSV form, chosen by extension.
//
// JSON is an object keyed by logical field whose values are either a column
// name or {"col": "...", "required": true}. CSV has a header row with the
// columns field,col and an optional required column.
func LoadMappingFile(path string) (job.MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return job.MappingConfig{}, fmt.Errorf("read mapping file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseMappingJSON(data)
	case ".csv":
		return ParseMappingCSV(bytes.NewReader(data))
	}
	return job.MappingConfig{}, fmt.Errorf("%w: unsupported mapping file %s", ErrInvalidMapping, filepath.Base(path))
}

type mappingEntry struct {
	Col      string `json:"col"`
	Required bool   `json:"required"`
}

func (e *mappingEntry) UnmarshalJSON(b []byte) error {
	var col string
	if err := json.Unmarshal(b, &col); err == nil {
		e.Col = col
		return nil
	}
	type plain mappingEntry
	return json.Unmarshal(b, (*plain)(e))
}

// ParseMappingJSON parses the JSON mapping form
func ParseMappingJSON(data []byte) (job.MappingConfig, error) {
	var raw map[string]mappingEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return job.MappingConfig{}, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	var cfg job.MappingConfig
	for name, entry := range raw {
		if err := setMapping(&cfg, name, entry.Col, entry.Required); err != nil {
			return job.MappingConfig{}, err
		}
	}
	sort.Strings(cfg.Required)
	return cfg, nil
}

// ParseMappingCSV parses the CSV mapping form
func ParseMappingCSV(r io.Reader) (job.MappingConfig, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return job.MappingConfig{}, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if len(records) < 2 {
		return job.MappingConfig{}, fmt.Errorf("%w: mapping csv has no records", ErrInvalidMapping)
	}

	fieldIdx, colIdx, reqIdx := -1, -1, -1
	for i, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))) {
		case "field", "placeholder":
			fieldIdx = i
		case "col", "column":
			colIdx = i
		case "required":
			reqIdx = i
		}
	}
	if fieldIdx < 0 || colIdx < 0 {
		return job.MappingConfig{}, fmt.Errorf("%w: mapping csv needs field and col columns", ErrInvalidMapping)
	}

	var cfg job.MappingConfig
	for _, rec := range records[1:] {
		if fieldIdx >= len(rec) || colIdx >= len(rec) {
			continue
		}
		required := false
		if reqIdx >= 0 && reqIdx < len(rec) && strings.TrimSpace(rec[reqIdx]) != "" {
			required, err = strconv.ParseBool(strings.TrimSpace(rec[reqIdx]))
			if err != nil {
				return job.MappingConfig{}, fmt.Errorf("%w: required flag %q", ErrInvalidMapping, rec[reqIdx])
			}
		}
		if err := setMapping(&cfg, rec[fieldIdx], rec[colIdx], required); err != nil {
			return job.MappingConfig{}, err
		}
	}
	return cfg, nil
}

func setMapping(cfg *job.MappingConfig, name, col string, required bool) error {
	f, err := ParseField(name)
	if err != nil {
		return err
	}
	col = strings.TrimSpace(col)
	switch f {
	case FieldIdentifier:
		cfg.IdentifierField = col
	case FieldBarcode:
		cfg.BarcodeField = col
	case FieldSKU:
		cfg.SKUField = col
	case FieldTitle:
		cfg.TitleField = col
	case FieldPrice:
		cfg.PriceField = col
	case FieldBrand:
		cfg.BrandField = col
	}
	if required && f != FieldIdentifier && f != FieldBarcode {
		cfg.Required = append(cfg.Required, string(f))
	}
	return nil
}

// OverlayMapping returns base with every column set in over replacing its
// counterpart. Required lists are merged.
func OverlayMapping(base, over job.MappingConfig) job.MappingConfig {
	pick := func(b, o string) string {
		if o != "" {
			return o
		}
		return b
	}
	out := job.MappingConfig{
		IdentifierField: pick(base.IdentifierField, over.IdentifierField),
		BarcodeField:    pick(base.BarcodeField, over.BarcodeField),
		SKUField:        pick(base.SKUField, over.SKUField),
		TitleField:      pick(base.TitleField, over.TitleField),
		PriceField:      pick(base.PriceField, over.PriceField),
		BrandField:      pick(base.BrandField, over.BrandField),
	}
	seen := make(map[string]bool)
	for _, r := range append(append([]string(nil), base.Required...), over.Required...) {
		if !seen[r] {
			seen[r] = true
			out.Required = append(out.Required, r)
		}
	}
	return out
}
