package ingest

import "strings"

// RowRecord is one data row of the input table. RowNo is the 1-based position
// of the row among the data rows of the source, header excluded.
type RowRecord struct {
	RowNo  int64
	index  map[string]int
	values []string
	absent map[string]bool
}

// Get returns the raw value of column. ok is false when the row has no such
// column, for example a short CSV line or an XML row without that tag.
func (r RowRecord) Get(column string) (value string, ok bool) {
	i, found := r.index[column]
	if !found || i >= len(r.values) || r.absent[column] {
		return "", false
	}
	return r.values[i], true
}

// Blank reports whether every value of the row is whitespace
func (r RowRecord) Blank() bool {
	for _, v := range r.values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Table is an input table: header plus data rows in source order
type Table struct {
	Columns []string
	Rows    []RowRecord

	index map[string]int
}

// NewTable builds a table from a header and raw rows. Rows are numbered from 1.
func NewTable(columns []string, rows [][]string) *Table {
	t := newTable(columns)
	for i, values := range rows {
		t.add(int64(i+1), values)
	}
	return t
}

func newTable(columns []string) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
	return t
}

func (t *Table) add(rowNo int64, values []string) {
	t.Rows = append(t.Rows, RowRecord{
		RowNo:  rowNo,
		index:  t.index,
		values: append([]string(nil), values...),
	})
}

// HasColumn reports whether the header contains column
func (t *Table) HasColumn(column string) bool {
	_, ok := t.index[column]
	return ok
}
