package indexer

import (
	"context"
	"sort"
	"time"

	"github.com/malbeclabs/nlquery/pkg/dataset"
)

const cancelCheckInterval = 1024

// ColumnIndex holds the precomputed lookups for one column.
type ColumnIndex struct {
	Name string
	// Values are the distinct non-null values in first-seen order.
	Values []any
	// Frequency counts occurrences per dataset.GroupKey.
	Frequency map[string]int
	// Sorted holds Values ordered numerically when Numeric, lexically otherwise.
	Sorted    []any
	Numeric   bool
	NullCount int

	positions map[string][]int
}

// Count returns how many rows hold a value equal to v under grouping identity.
func (c *ColumnIndex) Count(v any) int {
	return c.Frequency[dataset.GroupKey(v)]
}

// DatasetIndex is an immutable snapshot of lookups and aggregates for a dataset.
type DatasetIndex struct {
	DatasetID  string
	RowCount   int
	Columns    map[string]*ColumnIndex
	Aggregates map[string]float64
	CreatedAt  time.Time
}

// Aggregate returns a precomputed aggregate such as "amount_sum".
func (idx *DatasetIndex) Aggregate(column, fn string) (float64, bool) {
	if idx == nil {
		return 0, false
	}
	v, ok := idx.Aggregates[column+"_"+fn]
	return v, ok
}

// Covers reports whether the index was built from a dataset with n rows.
func (idx *DatasetIndex) Covers(n int) bool {
	return idx != nil && idx.RowCount == n
}

// Build scans the dataset once per column. It checks ctx periodically and
// returns ctx.Err() if cancelled.
func Build(ctx context.Context, ds *dataset.Dataset, now time.Time) (*DatasetIndex, error) {
	idx := &DatasetIndex{
		DatasetID:  ds.ID,
		RowCount:   len(ds.Rows),
		Columns:    make(map[string]*ColumnIndex, len(ds.Columns)),
		Aggregates: make(map[string]float64),
		CreatedAt:  now,
	}
	for _, col := range ds.Columns {
		ci, err := buildColumn(ctx, ds.Rows, col)
		if err != nil {
			return nil, err
		}
		idx.Columns[col] = ci
		if ci.Numeric {
			addAggregates(idx.Aggregates, ds.Rows, col)
		}
	}
	return idx, nil
}

func buildColumn(ctx context.Context, rows []dataset.Row, col string) (*ColumnIndex, error) {
	ci := &ColumnIndex{
		Name:      col,
		Frequency: make(map[string]int),
		positions: make(map[string][]int),
	}
	numeric := 0
	for i, row := range rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v := row[col]
		if dataset.IsNull(v) {
			ci.NullCount++
			continue
		}
		if _, ok := dataset.ToFloat(v); ok {
			numeric++
		}
		k := dataset.GroupKey(v)
		if ci.Frequency[k] == 0 {
			ci.Values = append(ci.Values, v)
		}
		ci.Frequency[k]++
		mk := dataset.MatchKey(v)
		ci.positions[mk] = append(ci.positions[mk], i)
	}
	ci.Numeric = numeric > 0 && numeric == len(rows)-ci.NullCount

	ci.Sorted = make([]any, len(ci.Values))
	copy(ci.Sorted, ci.Values)
	sort.SliceStable(ci.Sorted, func(i, j int) bool {
		return dataset.Compare(ci.Sorted[i], ci.Sorted[j]) < 0
	})
	return ci, nil
}

// addAggregates sums in row order so results match a linear scan exactly.
func addAggregates(aggs map[string]float64, rows []dataset.Row, col string) {
	var sum, lo, hi float64
	n := 0
	for _, row := range rows {
		f, ok := dataset.ToFloat(row[col])
		if !ok {
			continue
		}
		if n == 0 || f < lo {
			lo = f
		}
		if n == 0 || f > hi {
			hi = f
		}
		sum += f
		n++
	}
	aggs[col+"_sum"] = sum
	aggs[col+"_count"] = float64(n)
	aggs[col+"_min"] = lo
	aggs[col+"_max"] = hi
	if n > 0 {
		aggs[col+"_avg"] = sum / float64(n)
	}
}

// FastFilter returns the rows where column <op> value holds. Equality is served
// from the index; every other operator is a linear scan with identical
// semantics. rows must be the dataset the index was built from for the
// equality path; otherwise it falls back to scanning.
func (idx *DatasetIndex) FastFilter(rows []dataset.Row, column string, op dataset.Operator, value any) []dataset.Row {
	if ci, ok := idx.Columns[column]; ok && op == dataset.OpEq && idx.Covers(len(rows)) {
		if dataset.IsNull(value) {
			return []dataset.Row{}
		}
		pos := ci.positions[dataset.MatchKey(value)]
		out := make([]dataset.Row, 0, len(pos))
		for _, i := range pos {
			out = append(out, rows[i])
		}
		return out
	}
	out := make([]dataset.Row, 0)
	for _, row := range rows {
		if op.Apply(row[column], value) {
			out = append(out, row)
		}
	}
	return out
}
