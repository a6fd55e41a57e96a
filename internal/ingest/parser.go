package ingest

import (
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/ryabkov82/um-label-server/internal/job"
)

const (
	FormatCSV = "csv"
	FormatXML = "xml"

	EncodingUTF8        = "utf-8"
	EncodingWindows1251 = "windows-1251"
)

const utf8BOM = "\ufeff"

// ReadTable opens path and reads it as CSV or XML. An empty cfg.Format is
// resolved from the file extension.
func ReadTable(ctx context.Context, path string, cfg job.TableConfig) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	format, err := DetectFormat(path, cfg.Format)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatXML:
		return ReadXML(ctx, f, cfg)
	default:
		return ReadCSV(ctx, f, cfg)
	}
}

// DetectFormat returns the table format, falling back to the file extension
func DetectFormat(path, format string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch strings.ToLower(format) {
	case FormatCSV, "txt":
		return FormatCSV, nil
	case FormatXML:
		return FormatXML, nil
	}
	return "", fmt.Errorf("unsupported table format %q", format)
}

func isUTF8(encoding string) bool {
	switch strings.ToLower(encoding) {
	case "", EncodingUTF8, "utf8":
		return true
	}
	return false
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	if isUTF8(encoding) {
		return r, nil
	}
	switch strings.ToLower(encoding) {
	case EncodingWindows1251, "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(r), nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", encoding)
}

// ReadCSV reads a delimited table with a mandatory header row. Lines that are
// entirely blank are skipped but still count towards row numbers.
func ReadCSV(ctx context.Context, r io.Reader, cfg job.TableConfig) (*Table, error) {
	src, err := decodeReader(r, cfg.Encoding)
	if err != nil {
		return nil, err
	}

	delimiter := cfg.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	if utf8.RuneCountInString(delimiter) != 1 {
		return nil, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
	}

	reader := csv.NewReader(src)
	reader.Comma, _ = utf8.DecodeRuneInString(delimiter)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("failed to read header: file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		header[i] = strings.TrimSpace(name)
	}

	t := newTable(header)
	var rowNo int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read error: %w", err)
		}
		rowNo++
		t.add(rowNo, record)
		if t.Rows[len(t.Rows)-1].Blank() {
			t.Rows = t.Rows[:len(t.Rows)-1]
		}
	}
	return t, nil
}

// ReadXML reads a table where every child element of the document root is a
// row and the child elements of a row are its columns. Columns are ordered by
// first appearance.
func ReadXML(ctx context.Context, r io.Reader, cfg job.TableConfig) (*Table, error) {
	src, err := decodeReader(r, cfg.Encoding)
	if err != nil {
		return nil, err
	}

	// A configured encoding wins over the document declaration
	predecoded := !isUTF8(cfg.Encoding)
	dec := xml.NewDecoder(src)
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		if predecoded {
			return input, nil
		}
		return decodeReader(input, label)
	}

	type cell struct {
		name, value string
	}
	var (
		columns []string
		seen    = make(map[string]bool)
		rows    [][]cell
		current []cell
		depth   int
		text    strings.Builder
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml read error: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 2:
				current = current[:0:0]
			case 3:
				text.Reset()
			}
		case xml.CharData:
			if depth == 3 {
				text.Write(el)
			}
		case xml.EndElement:
			switch depth {
			case 3:
				name := el.Name.Local
				if !seen[name] {
					seen[name] = true
					columns = append(columns, name)
				}
				current = append(current, cell{name: name, value: text.String()})
			case 2:
				rows = append(rows, current)
			}
			depth--
		}
	}

	if len(rows) == 0 && len(columns) == 0 {
		return nil, errors.New("xml document has no rows")
	}

	t := newTable(columns)
	for i, cells := range rows {
		values := make([]string, len(columns))
		present := make([]bool, len(columns))
		for _, c := range cells {
			idx := t.index[c.name]
			values[idx] = c.value
			present[idx] = true
		}
		t.add(int64(i+1), values)
		rec := &t.Rows[len(t.Rows)-1]
		rec.absent = absentColumns(columns, present)
		if rec.Blank() {
			t.Rows = t.Rows[:len(t.Rows)-1]
		}
	}
	return t, nil
}

func absentColumns(columns []string, present []bool) map[string]bool {
	var absent map[string]bool
	for i, ok := range present {
		if ok {
			continue
		}
		if absent == nil {
			absent = make(map[string]bool)
		}
		absent[columns[i]] = true
	}
	return absent
}
