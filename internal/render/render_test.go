package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryabkov82/um-label-server/internal/barcode"
)

var (
	white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	black = color.RGBA{A: 0xff}
)

func mustSymbol(t *testing.T, payload string) barcode.Symbol {
	t.Helper()
	sym, err := barcode.Encode(payload)
	require.NoError(t, err)
	return sym
}

func TestMMToPixels(t *testing.T) {
	tests := []struct {
		mm   float64
		dpi  int
		want int
	}{
		{80, 300, 945},
		{50, 300, 591},
		{50.8, 300, 600},
		{25.4, 203, 203},
		{0.01, 72, 1},
		{100, 72, 283},
	}
	for _, tt := range tests {
		if got := MMToPixels(tt.mm, tt.dpi); got != tt.want {
			t.Errorf("MMToPixels(%v, %d) = %d, want %d", tt.mm, tt.dpi, got, tt.want)
		}
	}
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"zero width", func(s *Spec) { s.WidthMM = 0 }},
		{"negative height", func(s *Spec) { s.HeightMM = -1 }},
		{"zero dpi", func(s *Spec) { s.DPI = 0 }},
		{"barcode fraction above one", func(s *Spec) { s.BarcodeHeightFraction = 1.5 }},
		{"margin half the label", func(s *Spec) { s.MarginFraction = 0.5 }},
		{"negative quiet zone", func(s *Spec) { s.QuietZoneModules = -1 }},
		{"unknown alignment", func(s *Spec) { s.TextAlign = "justify" }},
		{"caption font too big", func(s *Spec) { s.CaptionFontFraction = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSpec(80, 50, 300)
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSpec)
		})
	}

	assert.NoError(t, NewSpec(80, 50, 300).Validate())
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xff, G: 0x80, B: 0x00, A: 0xff}, c)

	c, err = ParseColor("fff")
	require.NoError(t, err)
	assert.Equal(t, white, c)

	_, err = ParseColor("#12345")
	assert.Error(t, err)
	_, err = ParseColor("#gggggg")
	assert.Error(t, err)
}

func TestComposeCanvasSizeIgnoresContent(t *testing.T) {
	spec := NewSpec(80, 50, 300)
	sym := mustSymbol(t, "400638133393")

	contents := []Content{
		{},
		{Title: "Tea"},
		{Title: strings.Repeat("Extraordinarily long product name ", 20), Brand: "ACME", Price: "12.99"},
	}
	for _, c := range contents {
		l, err := Compose(c, sym, spec)
		require.NoError(t, err)
		w, h := l.Size()
		assert.Equal(t, 945, w)
		assert.Equal(t, 591, h)
		assert.Equal(t, 300, l.DPI)
	}
}

func TestComposeDrawsBarsInsideQuietZones(t *testing.T) {
	spec := NewSpec(80, 50, 300)
	sym := mustSymbol(t, "036000291452")

	l, err := Compose(Content{Title: "Oats"}, sym, spec)
	require.NoError(t, err)
	lay, err := spec.Layout()
	require.NoError(t, err)

	assertBarRow(t, l.Image, lay, sym)
}

func TestQuietZoneNeverSqueezed(t *testing.T) {
	sym := mustSymbol(t, "590123412345")
	fits := 0
	for w := 30.0; w <= 70; w += 0.5 {
		spec := NewSpec(w, 30, 72)
		l, err := Compose(Content{Title: "x"}, sym, spec)
		if err != nil {
			if !errors.Is(err, ErrLabelTooSmall) {
				t.Fatalf("width %vmm: error = %v, want ErrLabelTooSmall", w, err)
			}
			continue
		}
		fits++
		lay, err := spec.Layout()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, lay.QuietZone, spec.QuietZoneModules*lay.Module, "width %vmm", w)
		assertBarRow(t, l.Image, lay, sym)
	}
	assert.NotZero(t, fits, "some widths in the sweep should fit")
}

func TestComposeLabelTooSmall(t *testing.T) {
	sym := mustSymbol(t, "400638133393")
	tests := []struct {
		name string
		spec Spec
	}{
		{"too narrow for quiet zones", NewSpec(20, 20, 72)},
		{"caption leaves no room for bars", func() Spec { s := NewSpec(80, 10, 300); s.CaptionFontFraction = 1; return s }()},
		{"wide quiet zones", func() Spec { s := NewSpec(40, 30, 72); s.QuietZoneModules = 40; return s }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Compose(Content{}, sym, tt.spec)
			assert.ErrorIs(t, err, ErrLabelTooSmall)
			assert.Nil(t, l)
		})
	}
}

func TestComposeCaptionShrinksToFullCode(t *testing.T) {
	spec := NewSpec(40, 100, 300)
	sym := mustSymbol(t, "036000291452")

	l, err := Compose(Content{Title: "Oats"}, sym, spec)
	require.NoError(t, err)
	lay, err := spec.Layout()
	require.NoError(t, err)

	f, err := newFaces(spec)
	require.NoError(t, err)
	defer f.Close()
	want := textWidth(f.caption, sym.Digits)
	assert.LessOrEqual(t, want, lay.Caption.Dx())

	fs, err := loadFonts()
	require.NoError(t, err)
	_, h := spec.PixelSize()
	full, err := newFace(fs.regular, float64(h)*spec.CaptionFontFraction)
	require.NoError(t, err)
	defer full.Close()
	assert.Greater(t, textWidth(full, sym.Digits), lay.Caption.Dx(), "default caption size would overflow")

	minX, maxX := lay.Caption.Max.X, lay.Caption.Min.X
	for y := lay.Caption.Min.Y; y < lay.Caption.Max.Y; y++ {
		for x := lay.Caption.Min.X; x < lay.Caption.Max.X; x++ {
			if l.Image.RGBAAt(x, y) != white {
				minX, maxX = min(minX, x), max(maxX, x)
			}
		}
	}
	require.Less(t, minX, maxX, "caption has ink")
	assert.GreaterOrEqual(t, maxX-minX+1, want*9/10, "all 13 digits are drawn")
}

func TestLayoutZeroMarginAndQuietZone(t *testing.T) {
	spec := NewSpec(80, 50, 300)
	spec.MarginFraction = 0
	spec.QuietZoneModules = 0

	lay, err := spec.Layout()
	require.NoError(t, err)
	assert.Equal(t, lay.Canvas, lay.Content)
	assert.Equal(t, 945/barcode.ModuleCount, lay.Module)
}

func TestComposeRejectsForeignSymbol(t *testing.T) {
	_, err := Compose(Content{}, barcode.Symbol{Digits: "123", Modules: []barcode.Module{{Bar: true, Width: 3}}}, NewSpec(80, 50, 300))
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestComposeIsDeterministicAndConcurrent(t *testing.T) {
	spec := NewSpec(60, 40, 203)
	spec.TextAlign = AlignCenter
	sym := mustSymbol(t, "978020137962")
	content := Content{Title: "Mythical Man-Month", Brand: "Addison", Price: "39.99"}

	ref, err := Compose(content, sym, spec)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Label, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := Compose(content, sym, spec)
			if err == nil {
				results[i] = l
			}
		}(i)
	}
	wg.Wait()

	for i, l := range results {
		require.NotNil(t, l, "goroutine %d", i)
		assert.True(t, bytes.Equal(ref.Image.Pix, l.Image.Pix), "goroutine %d produced a different canvas", i)
	}
}

func TestComposeTruncatedTitleStaysInsideMargins(t *testing.T) {
	spec := NewSpec(80, 50, 300)
	sym := mustSymbol(t, "400638133393")
	l, err := Compose(Content{Title: strings.Repeat("WWWW ", 60)}, sym, spec)
	require.NoError(t, err)
	lay, err := spec.Layout()
	require.NoError(t, err)

	for y := lay.Text.Min.Y; y < lay.Text.Max.Y; y++ {
		for x := lay.Content.Max.X + 2; x < lay.Canvas.Max.X; x++ {
			if l.Image.RGBAAt(x, y) != white {
				t.Fatalf("ink at (%d,%d) in the right margin", x, y)
			}
		}
	}
}

func TestComposeBackgroundColour(t *testing.T) {
	spec := NewSpec(80, 50, 150)
	spec.Background = color.RGBA{R: 0xee, G: 0xdd, B: 0xcc, A: 0xff}
	l, err := Compose(Content{}, mustSymbol(t, "400638133393"), spec)
	require.NoError(t, err)
	assert.Equal(t, spec.Background, l.Image.RGBAAt(0, 0))
}

func TestFitText(t *testing.T) {
	fs, err := loadFonts()
	require.NoError(t, err)
	face, err := newFace(fs.regular, 20)
	require.NoError(t, err)
	defer face.Close()

	assert.Equal(t, "Hi", fitText(face, "Hi", 200))

	long := strings.Repeat("Wide text ", 40)
	got := fitText(face, long, 200)
	assert.True(t, strings.HasSuffix(got, ellipsis), "got %q", got)
	assert.LessOrEqual(t, textWidth(face, got), 200)
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(got, ellipsis)))

	assert.Equal(t, "", fitText(face, long, 1))
	assert.Equal(t, "", fitText(face, long, 0))
}

func TestLabelPNGCarriesDPI(t *testing.T) {
	l, err := Compose(Content{Title: "Oats"}, mustSymbol(t, "036000291452"), NewSpec(50, 30, 300))
	require.NoError(t, err)

	data, err := l.PNG()
	require.NoError(t, err)

	dpi, err := ReadDPI(data)
	require.NoError(t, err)
	assert.Equal(t, 300, dpi)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, l.Image.Bounds(), img.Bounds())
}

func TestReadDPIWithoutPhys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	_, err := ReadDPI(buf.Bytes())
	assert.ErrorIs(t, err, ErrNoDPI)

	_, err = ReadDPI([]byte("nope"))
	assert.Error(t, err)
}

// assertBarRow checks one scanline through the bar band: blank quiet zones on
// both sides and the symbol's module pattern in between.
func assertBarRow(t *testing.T, img *image.RGBA, lay Layout, sym barcode.Symbol) {
	t.Helper()
	y := (lay.Symbol.Min.Y + lay.Symbol.Max.Y) / 2
	pattern := sym.String()

	for x := lay.Canvas.Min.X; x < lay.Canvas.Max.X; x++ {
		want := white
		if x >= lay.Symbol.Min.X && x < lay.Symbol.Max.X {
			if pattern[(x-lay.Symbol.Min.X)/lay.Module] == '1' {
				want = black
			}
		}
		if got := img.RGBAAt(x, y); got != want {
			t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
		}
	}
}
