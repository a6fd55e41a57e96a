package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrDuplicateEntry is returned when two labels share an entry name
var ErrDuplicateEntry = errors.New("duplicate archive entry")

// archiveModTime is stamped on every entry so equal inputs give equal bytes
var archiveModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// BuildArchive packs labels into an in-memory ZIP
func BuildArchive(labels []RenderedLabel) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteArchive(&buf, labels); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteArchive streams labels as a Deflate ZIP to w, one entry per label in
// the given order. Entry names must be unique, compared case-insensitively.
func WriteArchive(w io.Writer, labels []RenderedLabel) error {
	if len(labels) == 0 {
		return ErrEmptyBatch
	}

	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l.Filename == "" {
			return errors.New("archive entry without a name")
		}
		key := strings.ToLower(l.Filename)
		if seen[key] {
			return fmt.Errorf("%w: %q", ErrDuplicateEntry, l.Filename)
		}
		seen[key] = true
	}

	zw := zip.NewWriter(w)
	for _, l := range labels {
		hdr := &zip.FileHeader{
			Name:     l.Filename,
			Method:   zip.Deflate,
			Modified: archiveModTime,
		}
		hdr.SetMode(0o644)
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("create archive entry %s: %w", l.Filename, err)
		}
		if _, err := fw.Write(l.PNG); err != nil {
			return fmt.Errorf("write archive entry %s: %w", l.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}
