package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"math"
)

const metersPerInch = 0.0254

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ErrNoDPI is returned by ReadDPI when the image carries no physical resolution
var ErrNoDPI = errors.New("png has no pHYs chunk")

// PNG encodes the label with its DPI recorded in a pHYs chunk
func (l *Label) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, l.Image, l.DPI); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePNG writes img as PNG with a pHYs chunk declaring dpi.
// image/png has no option for physical dimensions, so the chunk is spliced in
// right after IHDR.
func EncodePNG(w io.Writer, img image.Image, dpi int) error {
	if dpi <= 0 {
		return fmt.Errorf("encode png: dpi must be positive, got %d", dpi)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	data := buf.Bytes()

	// signature + IHDR (length, type, 13 data bytes, crc)
	ihdrEnd := len(pngSignature) + 8 + 13 + 4
	if len(data) < ihdrEnd || string(data[len(pngSignature)+4:len(pngSignature)+8]) != "IHDR" {
		return errors.New("encode png: unexpected encoder output")
	}

	ppm := uint32(math.Round(float64(dpi) / metersPerInch))
	phys := make([]byte, 9)
	binary.BigEndian.PutUint32(phys[0:4], ppm)
	binary.BigEndian.PutUint32(phys[4:8], ppm)
	phys[8] = 1 // unit: metre

	if _, err := w.Write(data[:ihdrEnd]); err != nil {
		return err
	}
	if err := writeChunk(w, "pHYs", phys); err != nil {
		return err
	}
	_, err := w.Write(data[ihdrEnd:])
	return err
}

func writeChunk(w io.Writer, typ string, payload []byte) error {
	chunk := make([]byte, 0, 12+len(payload))
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(payload)))
	chunk = append(chunk, typ...)
	chunk = append(chunk, payload...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))
	_, err := w.Write(chunk)
	return err
}

// ReadDPI returns the horizontal resolution declared in a PNG's pHYs chunk
func ReadDPI(data []byte) (int, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return 0, errors.New("not a png")
	}
	for off := len(pngSignature); off+8 <= len(data); {
		n := int(binary.BigEndian.Uint32(data[off : off+4]))
		typ := string(data[off+4 : off+8])
		start, end := off+8, off+8+n
		if n < 0 || end+4 > len(data) {
			return 0, errors.New("truncated png chunk")
		}
		switch typ {
		case "pHYs":
			if n != 9 || data[start+8] != 1 {
				return 0, ErrNoDPI
			}
			ppm := binary.BigEndian.Uint32(data[start : start+4])
			return int(math.Round(float64(ppm) * metersPerInch)), nil
		case "IDAT", "IEND":
			// pHYs must precede image data
			return 0, ErrNoDPI
		}
		off = end + 4
	}
	return 0, ErrNoDPI
}
