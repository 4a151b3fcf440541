// Package export streams rows from a paginated source as CSV.
package export

import (
	"bytes"
	"encoding/json"
)

// Row is one record from the upstream source: column names in the order the
// source returned them, each mapped to a scalar value. Rows are never
// mutated after construction.
type Row struct {
	columns []string
	values  map[string]any
}

// NewRow builds a row from parallel column and value slices. Missing values
// are nil, surplus values are dropped, and repeated column names keep their
// first position and last value.
func NewRow(columns []string, values []any) Row {
	r := Row{
		columns: make([]string, 0, len(columns)),
		values:  make(map[string]any, len(columns)),
	}

	for i, col := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}

		if _, seen := r.values[col]; !seen {
			r.columns = append(r.columns, col)
		}

		r.values[col] = v
	}

	return r
}

// Columns returns the row's column names in source order.
func (r Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)

	return out
}

// Get returns the value for col and whether the row has that column.
func (r Row) Get(col string) (any, bool) {
	v, ok := r.values[col]

	return v, ok
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.columns)
}

// MarshalJSON encodes the row as an object keeping column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}

		val, err := json.Marshal(r.values[col])
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}
