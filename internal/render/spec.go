package render

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Align controls horizontal placement of text lines
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
)

const mmPerInch = 25.4

// Layout defaults
const (
	DefaultBarcodeHeightFraction = 0.5
	DefaultMarginFraction        = 0.05
	DefaultQuietZoneModules      = 11
	DefaultTitleFontFraction     = 0.10
	DefaultTextFontFraction      = 0.07
	DefaultCaptionFontFraction   = 0.07
)

var (
	// ErrInvalidSpec is returned for label specs that cannot describe any canvas
	ErrInvalidSpec = errors.New("invalid label spec")
	// ErrLabelTooSmall is returned when the barcode and its quiet zones do not fit the canvas
	ErrLabelTooSmall = errors.New("label too small")
)

// Spec describes the physical label and its layout constants. Compose and
// Layout use a Spec as given; build one with NewSpec to get the defaults.
type Spec struct {
	WidthMM  float64
	HeightMM float64
	DPI      int

	BarcodeHeightFraction float64
	MarginFraction        float64
	QuietZoneModules      int

	TitleFontFraction   float64
	TextFontFraction    float64
	CaptionFontFraction float64
	TextAlign           Align

	Background color.RGBA
	Foreground color.RGBA
}

// NewSpec returns a spec of the given physical size with default layout constants
func NewSpec(widthMM, heightMM float64, dpi int) Spec {
	return Spec{WidthMM: widthMM, HeightMM: heightMM, DPI: dpi}.WithDefaults()
}

// WithDefaults fills zero-valued layout constants. A zero margin or quiet
// zone cannot be expressed through it; set those after NewSpec.
func (s Spec) WithDefaults() Spec {
	if s.BarcodeHeightFraction == 0 {
		s.BarcodeHeightFraction = DefaultBarcodeHeightFraction
	}
	if s.MarginFraction == 0 {
		s.MarginFraction = DefaultMarginFraction
	}
	if s.QuietZoneModules == 0 {
		s.QuietZoneModules = DefaultQuietZoneModules
	}
	if s.TitleFontFraction == 0 {
		s.TitleFontFraction = DefaultTitleFontFraction
	}
	if s.TextFontFraction == 0 {
		s.TextFontFraction = DefaultTextFontFraction
	}
	if s.CaptionFontFraction == 0 {
		s.CaptionFontFraction = DefaultCaptionFontFraction
	}
	if s.TextAlign == "" {
		s.TextAlign = AlignLeft
	}
	if s.Background.A == 0 {
		s.Background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}
	if s.Foreground.A == 0 {
		s.Foreground = color.RGBA{A: 0xff}
	}
	return s
}

// Validate checks that the spec describes a drawable label
func (s Spec) Validate() error {
	if !(s.WidthMM > 0) || math.IsInf(s.WidthMM, 0) {
		return fmt.Errorf("%w: width_mm must be positive, got %v", ErrInvalidSpec, s.WidthMM)
	}
	if !(s.HeightMM > 0) || math.IsInf(s.HeightMM, 0) {
		return fmt.Errorf("%w: height_mm must be positive, got %v", ErrInvalidSpec, s.HeightMM)
	}
	if s.DPI <= 0 {
		return fmt.Errorf("%w: dpi must be positive, got %d", ErrInvalidSpec, s.DPI)
	}
	if s.BarcodeHeightFraction <= 0 || s.BarcodeHeightFraction > 1 {
		return fmt.Errorf("%w: barcode_height_fraction must be in (0, 1], got %v", ErrInvalidSpec, s.BarcodeHeightFraction)
	}
	if s.MarginFraction < 0 || s.MarginFraction >= 0.5 {
		return fmt.Errorf("%w: margin_fraction must be in [0, 0.5), got %v", ErrInvalidSpec, s.MarginFraction)
	}
	if s.QuietZoneModules < 0 {
		return fmt.Errorf("%w: quiet_zone_modules must not be negative, got %d", ErrInvalidSpec, s.QuietZoneModules)
	}
	fractions := []struct {
		name  string
		value float64
	}{
		{"title_font_fraction", s.TitleFontFraction},
		{"text_font_fraction", s.TextFontFraction},
		{"caption_font_fraction", s.CaptionFontFraction},
	}
	for _, f := range fractions {
		if f.value <= 0 || f.value > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidSpec, f.name, f.value)
		}
	}
	if s.TextAlign != AlignLeft && s.TextAlign != AlignCenter {
		return fmt.Errorf("%w: text_align must be %q or %q, got %q", ErrInvalidSpec, AlignLeft, AlignCenter, s.TextAlign)
	}
	return nil
}

// PixelSize returns the canvas size derived from the physical size and DPI
func (s Spec) PixelSize() (width, height int) {
	return MMToPixels(s.WidthMM, s.DPI), MMToPixels(s.HeightMM, s.DPI)
}

// MMToPixels converts millimetres to whole pixels at dpi, never less than 1
func MMToPixels(mm float64, dpi int) int {
	px := int(math.Round(mm * float64(dpi) / mmPerInch))
	if px < 1 {
		return 1
	}
	return px
}

// ParseColor parses "#RRGGBB" or "#RGB" into an opaque colour
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
