package ingest

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ryabkov82/um-label-server/internal/job"
	"github.com/ryabkov82/um-label-server/internal/render"
)

// Field is a logical label field
type Field string

const (
	FieldIdentifier Field = "identifier"
	FieldBarcode    Field = "barcode_value"
	FieldSKU        Field = "sku"
	FieldTitle      Field = "title"
	FieldPrice      Field = "price"
	FieldBrand      Field = "brand"
)

// Fields lists every logical field in resolution order
var Fields = []Field{FieldIdentifier, FieldBarcode, FieldSKU, FieldTitle, FieldPrice, FieldBrand}

// ParseField accepts a logical field name
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Fields {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown field %q", ErrInvalidMapping, s)
}

// FieldMapping maps logical fields to source column names
type FieldMapping map[Field]string

// withBarcodeDefault returns m with barcode_value read from the identifier
// column when only the identifier is mapped
func (m FieldMapping) withBarcodeDefault() FieldMapping {
	if strings.TrimSpace(m[FieldBarcode]) != "" || strings.TrimSpace(m[FieldIdentifier]) == "" {
		return m
	}
	out := make(FieldMapping, len(m)+1)
	for f, col := range m {
		out[f] = col
	}
	out[FieldBarcode] = m[FieldIdentifier]
	return out
}

// MappedFields holds trimmed, validated values of the mapped fields
type MappedFields map[Field]string

// RequiredFields returns identifier and barcode_value followed by extra,
// without duplicates
func RequiredFields(extra ...Field) []Field {
	out := []Field{FieldIdentifier, FieldBarcode}
	for _, f := range extra {
		dup := false
		for _, have := range out {
			if have == f {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}

// ValidateMapping checks that every required field is mapped and, when
// columns is not nil, that its column exists in the header. Optional fields
// mapped to an absent column fail per row with MissingColumn instead.
func ValidateMapping(mapping FieldMapping, required []Field, columns []string) error {
	for _, f := range required {
		if strings.TrimSpace(mapping[f]) == "" {
			return fmt.Errorf("%w: required field %s is not mapped", ErrInvalidMapping, f)
		}
	}
	if columns == nil {
		return nil
	}
	header := make(map[string]bool, len(columns))
	for _, c := range columns {
		header[c] = true
	}
	for _, f := range required {
		if col := mapping[f]; !header[col] {
			return fmt.Errorf("%w: column %q for field %s is not in the header", ErrInvalidMapping, col, f)
		}
	}
	return nil
}

// Resolve extracts the mapped fields of one row. Values are trimmed. Fields
// are checked in the order of Fields, and the first problem is returned as a
// *FieldError.
func Resolve(row RowRecord, mapping FieldMapping, required []Field) (MappedFields, error) {
	isRequired := make(map[Field]bool, len(required))
	for _, f := range required {
		isRequired[f] = true
	}

	out := make(MappedFields, len(mapping))
	for _, f := range Fields {
		col, ok := mapping[f]
		if !ok || col == "" {
			continue
		}
		raw, ok := row.Get(col)
		if !ok {
			return nil, &FieldError{Field: f, Err: fmt.Errorf("%w: %s", ErrMissingColumn, col)}
		}
		value := strings.TrimSpace(raw)
		if value == "" {
			if isRequired[f] {
				return nil, &FieldError{Field: f, Err: ErrEmptyRequiredField}
			}
			continue
		}
		if f == FieldBarcode && !digitsOnly(value) {
			return nil, &FieldError{Field: f, Value: value, Err: fmt.Errorf("%w: barcode value must contain only digits", ErrInvalidFieldFormat)}
		}
		out[f] = value
	}
	return out, nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

var brandCaser = cases.Upper(language.Und)

// ContentFromFields builds the printed text of a label
func ContentFromFields(fields MappedFields) render.Content {
	return render.Content{
		Title: fields[FieldTitle],
		Brand: brandCaser.String(fields[FieldBrand]),
		SKU:   fields[FieldSKU],
		Price: fields[FieldPrice],
	}
}

// MappingFromConfig converts a job mapping into a field mapping and its
// required field list
func MappingFromConfig(cfg job.MappingConfig) (FieldMapping, []Field, error) {
	m := FieldMapping{}
	set := func(f Field, col string) {
		if col = strings.TrimSpace(col); col != "" {
			m[f] = col
		}
	}
	set(FieldIdentifier, cfg.IdentifierField)
	set(FieldBarcode, cfg.BarcodeField)
	set(FieldSKU, cfg.SKUField)
	set(FieldTitle, cfg.TitleField)
	set(FieldPrice, cfg.PriceField)
	set(FieldBrand, cfg.BrandField)
	m = m.withBarcodeDefault()

	extra := make([]Field, 0, len(cfg.Required))
	for _, name := range cfg.Required {
		f, err := ParseField(name)
		if err != nil {
			return nil, nil, err
		}
		extra = append(extra, f)
	}
	return m, RequiredFields(extra...), nil
}

// SpecFromConfig converts a job label section into a render spec. Unset
// options take the defaults of render.NewSpec.
func SpecFromConfig(cfg job.LabelConfig) (render.Spec, error) {
	spec := render.NewSpec(cfg.WidthMM, cfg.HeightMM, cfg.DPI)
	if cfg.BarcodeHeightFraction != 0 {
		spec.BarcodeHeightFraction = cfg.BarcodeHeightFraction
	}
	if cfg.MarginFraction != nil {
		spec.MarginFraction = *cfg.MarginFraction
	}
	if cfg.QuietZoneModules != nil {
		spec.QuietZoneModules = *cfg.QuietZoneModules
	}
	if cfg.TitleFontFraction != 0 {
		spec.TitleFontFraction = cfg.TitleFontFraction
	}
	if cfg.TextFontFraction != 0 {
		spec.TextFontFraction = cfg.TextFontFraction
	}
	if cfg.CaptionFontFraction != 0 {
		spec.CaptionFontFraction = cfg.CaptionFontFraction
	}

	switch render.Align(strings.ToLower(cfg.TextAlign)) {
	case "", render.AlignLeft:
	case render.AlignCenter:
		spec.TextAlign = render.AlignCenter
	default:
		return render.Spec{}, fmt.Errorf("%w: text align %q", render.ErrInvalidSpec, cfg.TextAlign)
	}

	if cfg.Background != "" {
		c, err := render.ParseColor(cfg.Background)
		if err != nil {
			return render.Spec{}, fmt.Errorf("%w: background: %v", render.ErrInvalidSpec, err)
		}
		spec.Background = c
	}
	if cfg.Foreground != "" {
		c, err := render.ParseColor(cfg.Foreground)
		if err != nil {
			return render.Spec{}, fmt.Errorf("%w: foreground: %v", render.ErrInvalidSpec, err)
		}
		spec.Foreground = c
	}

	if err := spec.Validate(); err != nil {
		return render.Spec{}, err
	}
	return spec, nil
}
