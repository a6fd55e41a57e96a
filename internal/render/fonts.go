package render

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const ellipsis = "…"

// captionSample stands in for any 13-digit code; Go Regular digits share one advance width
const captionSample = "8888888888888"

type fontSet struct {
	regular *opentype.Font
	bold    *opentype.Font
}

// Parsed fonts are immutable and shared; faces are created per call.
var loadFonts = sync.OnceValues(func() (*fontSet, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &fontSet{regular: regular, bold: bold}, nil
})

// faces holds the faces used by one composition
type faces struct {
	title   font.Face
	text    font.Face
	caption font.Face
}

func newFaces(spec Spec) (*faces, error) {
	fs, err := loadFonts()
	if err != nil {
		return nil, err
	}
	_, canvasHeight := spec.PixelSize()
	h := float64(canvasHeight)

	f := &faces{}
	if f.title, err = newFace(fs.bold, h*spec.TitleFontFraction); err != nil {
		return nil, err
	}
	if f.text, err = newFace(fs.regular, h*spec.TextFontFraction); err != nil {
		f.Close()
		return nil, err
	}
	if f.caption, err = newCaptionFace(fs.regular, h*spec.CaptionFontFraction, spec.contentRect().Dx()); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// newFace creates a face whose size is given in pixels
func newFace(fnt *opentype.Font, sizePx float64) (font.Face, error) {
	if sizePx < 1 {
		sizePx = 1
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}

// newCaptionFace creates the caption face at sizePx, shrunk until a full
// 13-digit code fits width pixels
func newCaptionFace(fnt *opentype.Font, sizePx float64, width int) (font.Face, error) {
	for {
		face, err := newFace(fnt, sizePx)
		if err != nil {
			return nil, err
		}
		tw := textWidth(face, captionSample)
		if tw <= width {
			return face, nil
		}
		face.Close()
		if sizePx <= 1 {
			return nil, fmt.Errorf("%w: a %d-digit caption needs %dpx, have %dpx", ErrLabelTooSmall, len(captionSample), tw, width)
		}
		sizePx = max(1, min(sizePx*float64(width)/float64(tw), sizePx-0.5))
	}
}

func (f *faces) Close() {
	for _, face := range []font.Face{f.title, f.text, f.caption} {
		if face != nil {
			face.Close()
		}
	}
}

func lineHeight(face font.Face) int {
	m := face.Metrics()
	return (m.Ascent + m.Descent).Ceil()
}

func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// fitText returns s unchanged when it fits maxWidth pixels, otherwise the longest
// prefix that fits with an ellipsis appended. Returns "" when not even the ellipsis fits.
func fitText(face font.Face, s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if textWidth(face, s) <= maxWidth {
		return s
	}

	runes := []rune(s)
	candidate := func(n int) string {
		return strings.TrimRightFunc(string(runes[:n]), unicode.IsSpace) + ellipsis
	}

	n := sort.Search(len(runes), func(n int) bool {
		return textWidth(face, candidate(n)) > maxWidth
	}) - 1
	for ; n >= 0; n-- {
		if c := candidate(n); textWidth(face, c) <= maxWidth {
			return c
		}
	}
	return ""
}

// drawText draws s with its top edge at y, aligned inside [minX, maxX)
func drawText(d *font.Drawer, s string, minX, maxX, y int, align Align) {
	x := minX
	if align == AlignCenter {
		x = minX + (maxX-minX-textWidth(d.Face, s))/2
	}
	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y) + d.Face.Metrics().Ascent}
	d.DrawString(s)
}
