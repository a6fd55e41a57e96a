package render

import (
	"fmt"
	"image"
	"math"

	"github.com/ryabkov82/um-label-server/internal/barcode"
)

// Layout is the pixel geometry of a label. All regions lie inside Content.
type Layout struct {
	Canvas  image.Rectangle
	Content image.Rectangle
	// Text holds the title, brand and price lines; it may be empty
	Text image.Rectangle
	// Barcode is the full-width bar band, quiet zones included
	Barcode image.Rectangle
	// Symbol is the extent of the bars themselves
	Symbol  image.Rectangle
	Caption image.Rectangle

	// Module is the width of one barcode module in pixels
	Module int
	// QuietZone is the narrower of the two blank flanks beside the symbol, in pixels
	QuietZone int
}

// Layout computes the label geometry for the spec
func (s Spec) Layout() (Layout, error) {
	if err := s.Validate(); err != nil {
		return Layout{}, err
	}
	f, err := newFaces(s)
	if err != nil {
		return Layout{}, err
	}
	defer f.Close()
	return s.layout(lineHeight(f.caption))
}

// contentRect is the canvas minus the uniform margin
func (s Spec) contentRect() image.Rectangle {
	w, h := s.PixelSize()
	margin := int(math.Round(s.MarginFraction * float64(min(w, h))))
	return image.Rect(margin, margin, w-margin, h-margin)
}

func (s Spec) layout(captionHeight int) (Layout, error) {
	w, h := s.PixelSize()
	canvas := image.Rect(0, 0, w, h)

	content := s.contentRect()
	if content.Empty() {
		return Layout{}, fmt.Errorf("%w: no room inside %dpx margins of a %dx%d canvas", ErrLabelTooSmall, content.Min.X, w, h)
	}

	units := barcode.ModuleCount + 2*s.QuietZoneModules
	module := content.Dx() / units
	if module < 1 {
		return Layout{}, fmt.Errorf("%w: barcode needs %dpx of width (%d modules with quiet zones), have %dpx",
			ErrLabelTooSmall, units, units, content.Dx())
	}

	gap := max(1, int(math.Round(0.01*float64(h))))

	caption := image.Rect(content.Min.X, content.Max.Y-captionHeight, content.Max.X, content.Max.Y)
	barBottom := caption.Min.Y - gap
	barTop := max(barBottom-int(math.Round(s.BarcodeHeightFraction*float64(h))), content.Min.Y)
	if barBottom-barTop < 1 {
		return Layout{}, fmt.Errorf("%w: no vertical room for bars under a %dpx caption on a %dpx canvas",
			ErrLabelTooSmall, captionHeight, h)
	}

	symbolWidth := barcode.ModuleCount * module
	left := content.Min.X + (content.Dx()-symbolWidth)/2
	symbol := image.Rect(left, barTop, left+symbolWidth, barBottom)

	text := image.Rect(content.Min.X, content.Min.Y, content.Max.X, barTop-gap)
	if text.Empty() {
		text = image.Rectangle{}
	}

	return Layout{
		Canvas:    canvas,
		Content:   content,
		Text:      text,
		Barcode:   image.Rect(content.Min.X, barTop, content.Max.X, barBottom),
		Symbol:    symbol,
		Caption:   caption,
		Module:    module,
		QuietZone: min(symbol.Min.X-content.Min.X, content.Max.X-symbol.Max.X),
	}, nil
}
