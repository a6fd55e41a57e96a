package render

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"golang.org/x/image/font"

	"github.com/ryabkov82/um-label-server/internal/barcode"
)

// ErrInvalidSymbol is returned when a symbol does not have the EAN-13 module width
var ErrInvalidSymbol = errors.New("invalid barcode symbol")

// Content is the human-readable text printed above the barcode
type Content struct {
	Title string
	Brand string
	SKU   string
	Price string
}

// Label is a rendered label canvas
type Label struct {
	Image *image.RGBA
	DPI   int
}

// Size returns the canvas size in pixels
func (l *Label) Size() (width, height int) {
	b := l.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Compose renders one label. Each call owns its canvas and font faces, so
// Compose may run concurrently.
func Compose(content Content, sym barcode.Symbol, spec Spec) (*Label, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if sym.Width() != barcode.ModuleCount || len(sym.Digits) != barcode.PayloadLength+1 {
		return nil, fmt.Errorf("%w: %d modules, digits %q", ErrInvalidSymbol, sym.Width(), sym.Digits)
	}

	f, err := newFaces(spec)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lay, err := spec.layout(lineHeight(f.caption))
	if err != nil {
		return nil, err
	}
	if tw := textWidth(f.caption, sym.Digits); tw > lay.Caption.Dx() {
		return nil, fmt.Errorf("%w: caption %s needs %dpx, have %dpx", ErrLabelTooSmall, sym.Digits, tw, lay.Caption.Dx())
	}

	img := image.NewRGBA(lay.Canvas)
	draw.Draw(img, img.Bounds(), image.NewUniform(spec.Background), image.Point{}, draw.Src)

	ink := image.NewUniform(spec.Foreground)
	drawBars(img, ink, lay, sym)

	d := &font.Drawer{Dst: img, Src: ink}
	drawLines(d, f, lay.Text, content, spec.TextAlign)

	d.Face = f.caption
	drawText(d, sym.Digits, lay.Caption.Min.X, lay.Caption.Max.X, lay.Caption.Min.Y, AlignCenter)

	return &Label{Image: img, DPI: spec.DPI}, nil
}

// drawBars paints every bar run as a solid rectangle spanning the bar band
func drawBars(img draw.Image, ink image.Image, lay Layout, sym barcode.Symbol) {
	x := lay.Symbol.Min.X
	for _, m := range sym.Modules {
		w := m.Width * lay.Module
		if m.Bar {
			r := image.Rect(x, lay.Symbol.Min.Y, x+w, lay.Symbol.Max.Y)
			draw.Draw(img, r, ink, image.Point{}, draw.Src)
		}
		x += w
	}
}

// drawLines stacks the text lines from the top of region, dropping lines that
// do not fit vertically
func drawLines(d *font.Drawer, f *faces, region image.Rectangle, c Content, align Align) {
	if region.Empty() {
		return
	}
	lines := []struct {
		text string
		face font.Face
	}{
		{c.Title, f.title},
		{c.Brand, f.text},
		{c.SKU, f.text},
		{c.Price, f.title},
	}

	y := region.Min.Y
	for _, ln := range lines {
		if ln.text == "" {
			continue
		}
		lh := lineHeight(ln.face)
		if y+lh > region.Max.Y {
			return
		}
		d.Face = ln.face
		drawText(d, fitText(ln.face, ln.text, region.Dx()), region.Min.X, region.Max.X, y, align)
		y += lh
	}
}
