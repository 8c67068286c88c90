package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// ColumnSampleSize is the number of leading rows used to infer the column set.
const ColumnSampleSize = 100

// Row is a single flat record. Values are untyped.
type Row map[string]any

// Dataset is an in-memory table of rows. It is never mutated after construction.
type Dataset struct {
	ID      string
	Rows    []Row
	Columns []string

	lower map[string]string
}

// New builds a dataset. Columns are inferred from the rows when not supplied and
// the ID defaults to a fingerprint of the content.
func New(id string, rows []Row, columns []string) *Dataset {
	if len(columns) == 0 {
		columns = InferColumns(rows)
	}
	if id == "" {
		id = Fingerprint(columns, rows)
	}
	ds := &Dataset{
		ID:      id,
		Rows:    rows,
		Columns: columns,
		lower:   make(map[string]string, len(columns)),
	}
	for _, c := range columns {
		k := strings.ToLower(c)
		if _, ok := ds.lower[k]; !ok {
			ds.lower[k] = c
		}
	}
	return ds
}

// InferColumns returns the union of keys over the leading rows, in first-seen
// order, with the keys of each row visited in lexical order.
func InferColumns(rows []Row) []string {
	seen := make(map[string]struct{})
	var columns []string
	for i, row := range rows {
		if i >= ColumnSampleSize {
			break
		}
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			columns = append(columns, k)
		}
	}
	return columns
}

// Fingerprint returns a stable content hash for a set of rows.
func Fingerprint(columns []string, rows []Row) string {
	h := xxh3.New()
	_, _ = h.WriteString(strings.Join(columns, "\x1f"))
	_, _ = h.WriteString(fmt.Sprintf("\x1e%d", len(rows)))
	for _, row := range rows {
		for _, c := range columns {
			v, ok := row[c]
			if !ok {
				_, _ = h.WriteString("\x1d")
				continue
			}
			_, _ = h.WriteString(ToString(v))
			_, _ = h.WriteString("\x1f")
		}
		_, _ = h.WriteString("\x1e")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Head returns the first n rows, or all rows if there are fewer.
func (d *Dataset) Head(n int) []Row {
	if n < 0 || n >= len(d.Rows) {
		return d.Rows
	}
	return d.Rows[:n]
}

// Resolve maps a column reference to the dataset's column name, ignoring case.
func (d *Dataset) Resolve(name string) (string, bool) {
	for _, c := range d.Columns {
		if c == name {
			return c, true
		}
	}
	if d.lower == nil {
		for _, c := range d.Columns {
			if strings.EqualFold(c, name) {
				return c, true
			}
		}
		return "", false
	}
	c, ok := d.lower[strings.ToLower(name)]
	return c, ok
}

// HasColumn reports whether the column exists, ignoring case.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.Resolve(name)
	return ok
}
