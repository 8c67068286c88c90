package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/indexer"
)

const cancelCheckInterval = 1024

type Options struct {
	// Index, when built from the same dataset, serves equality filters and
	// whole-table aggregates.
	Index *indexer.DatasetIndex
}

type Result struct {
	Columns             []string
	Rows                []dataset.Row
	RowCountBeforeLimit int
	Truncated           bool
	UsedIndex           bool
}

// Empty reports whether the query produced no rows.
func (r *Result) Empty() bool {
	return len(r.Rows) == 0
}

// Scalar returns the single value of a one-row, one-column result.
func (r *Result) Scalar() (any, bool) {
	if len(r.Rows) != 1 || len(r.Columns) != 1 {
		return nil, false
	}
	return r.Rows[0][r.Columns[0]], true
}

// Values returns the rows as slices ordered by Columns.
func (r *Result) Values() [][]any {
	out := make([][]any, len(r.Rows))
	for i, row := range r.Rows {
		vals := make([]any, len(r.Columns))
		for j, c := range r.Columns {
			vals[j] = row[c]
		}
		out[i] = vals
	}
	return out
}

// Run parses and executes text against the dataset.
func Run(ctx context.Context, text string, ds *dataset.Dataset, opts Options) (*Result, error) {
	q, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, q, ds, opts)
}

// Execute evaluates q over the dataset: filter, group, aggregate, order,
// limit, project. A filter that matches nothing yields an empty result, also
// for aggregate queries.
func Execute(ctx context.Context, q *Query, ds *dataset.Dataset, opts Options) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &ExecutionError{Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	pl, err := bind(q, ds)
	if err != nil {
		return nil, err
	}
	idx := opts.Index
	if idx != nil && (idx.DatasetID != ds.ID || !idx.Covers(len(ds.Rows))) {
		idx = nil
	}

	rows, usedIndex, err := filterRows(ctx, pl.q.Where, ds.Rows, idx)
	if err != nil {
		return nil, err
	}
	res = &Result{Columns: pl.outputs, Rows: []dataset.Row{}, UsedIndex: usedIndex}
	if len(rows) == 0 {
		return res, nil
	}

	if pl.q.IsGrouped() {
		out, fromIndex := pl.aggregateFromIndex(idx, rows)
		if fromIndex {
			res.UsedIndex = true
		} else {
			out = pl.aggregate(rows)
		}
		pl.sortOutputs(out)
		for _, o := range out {
			res.Rows = append(res.Rows, pl.project(o.values))
		}
	} else {
		for _, row := range pl.sortRows(rows) {
			vals := make([]any, len(pl.q.Select))
			for i, item := range pl.q.Select {
				vals[i] = row[item.Column]
			}
			res.Rows = append(res.Rows, pl.project(vals))
		}
	}

	res.RowCountBeforeLimit = len(res.Rows)
	if lim := pl.q.Limit; lim != nil && *lim < len(res.Rows) {
		res.Rows = res.Rows[:*lim]
		res.Truncated = true
	}
	return res, nil
}

func filterRows(ctx context.Context, where Expr, rows []dataset.Row, idx *indexer.DatasetIndex) ([]dataset.Row, bool, error) {
	if where == nil {
		return rows, false, nil
	}
	if c, ok := where.(*Compare); ok && c.Op == dataset.OpEq && idx != nil {
		return idx.FastFilter(rows, c.Column, c.Op, c.Value), true, nil
	}
	out := make([]dataset.Row, 0)
	for i, row := range rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, false, &ExecutionError{Message: "query cancelled", Err: err}
			}
		}
		if eval(where, row) == truthTrue {
			out = append(out, row)
		}
	}
	return out, false, nil
}

// truth is a three-valued predicate result. Comparisons against null or
// non-numeric operands are unknown, and only true rows pass a filter.
type truth int8

const (
	truthFalse truth = iota
	truthUnknown
	truthTrue
)

func boolTruth(b bool) truth {
	if b {
		return truthTrue
	}
	return truthFalse
}

func eval(e Expr, row dataset.Row) truth {
	switch x := e.(type) {
	case *And:
		return min(eval(x.Left, row), eval(x.Right, row))
	case *Or:
		return max(eval(x.Left, row), eval(x.Right, row))
	case *Not:
		return truthTrue - eval(x.Expr, row)
	case *Compare:
		cell := row[x.Column]
		if !x.Op.Determinate(cell, x.Value) {
			return truthUnknown
		}
		return boolTruth(x.Op.Apply(cell, x.Value))
	case *IsNull:
		return boolTruth(dataset.IsNull(row[x.Column]) != x.Negated)
	}
	panic(fmt.Sprintf("unexpected predicate %T", e))
}

type outputRow struct {
	values []any
	first  dataset.Row
}

// aggregate groups rows by the GROUP BY tuple in first-seen order. Null group
// values share a single bucket keyed by nil.
func (pl *plan) aggregate(rows []dataset.Row) []outputRow {
	type group struct {
		rows []dataset.Row
	}
	groups := make(map[string]*group)
	var order []string
	for _, row := range rows {
		var b strings.Builder
		for _, g := range pl.q.GroupBy {
			b.WriteString(dataset.GroupKey(row[g]))
			b.WriteByte(0x1f)
		}
		k := b.String()
		grp, ok := groups[k]
		if !ok {
			grp = &group{}
			groups[k] = grp
			order = append(order, k)
		}
		grp.rows = append(grp.rows, row)
	}

	out := make([]outputRow, 0, len(order))
	for _, k := range order {
		grp := groups[k]
		first := grp.rows[0]
		vals := make([]any, len(pl.q.Select))
		for i, item := range pl.q.Select {
			if item.IsAggregate() {
				vals[i] = aggregateValue(item, grp.rows)
			} else {
				vals[i] = nullToNil(first[item.Column])
			}
		}
		out = append(out, outputRow{values: vals, first: first})
	}
	return out
}

// aggregateFromIndex answers whole-table aggregates from precomputed values.
func (pl *plan) aggregateFromIndex(idx *indexer.DatasetIndex, rows []dataset.Row) ([]outputRow, bool) {
	if idx == nil || pl.q.Where != nil || len(pl.q.GroupBy) > 0 || !idx.Covers(len(rows)) {
		return nil, false
	}
	vals := make([]any, len(pl.q.Select))
	for i, item := range pl.q.Select {
		if !item.IsAggregate() || item.Distinct {
			return nil, false
		}
		if item.Star {
			vals[i] = idx.RowCount
			continue
		}
		ci, ok := idx.Columns[item.Column]
		if !ok {
			return nil, false
		}
		if item.Func == AggCount {
			vals[i] = idx.RowCount - ci.NullCount
			continue
		}
		if !ci.Numeric {
			return nil, false
		}
		v, ok := idx.Aggregate(item.Column, strings.ToLower(string(item.Func)))
		if !ok {
			return nil, false
		}
		vals[i] = v
	}
	return []outputRow{{values: vals, first: rows[0]}}, true
}

// aggregateValue ignores nulls and non-numeric values except for COUNT. SUM of
// nothing is 0; AVG, MIN and MAX of nothing are nil. MIN and MAX fall back to
// text ordering when a column has no numeric values at all.
func aggregateValue(item SelectItem, rows []dataset.Row) any {
	if item.Func == AggCount {
		if item.Star {
			return len(rows)
		}
		if item.Distinct {
			seen := make(map[string]struct{})
			for _, row := range rows {
				if v := row[item.Column]; !dataset.IsNull(v) {
					seen[dataset.GroupKey(v)] = struct{}{}
				}
			}
			return len(seen)
		}
		n := 0
		for _, row := range rows {
			if !dataset.IsNull(row[item.Column]) {
				n++
			}
		}
		return n
	}

	var sum, lo, hi float64
	n := 0
	for _, row := range rows {
		f, ok := dataset.ToFloat(row[item.Column])
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

	switch item.Func {
	case AggSum:
		return sum
	case AggAvg:
		if n == 0 {
			return nil
		}
		return sum / float64(n)
	case AggMin, AggMax:
		if n > 0 {
			if item.Func == AggMin {
				return lo
			}
			return hi
		}
		return textExtreme(rows, item.Column, item.Func == AggMax)
	}
	panic(fmt.Sprintf("unexpected aggregate %s", item.Func))
}

func textExtreme(rows []dataset.Row, col string, wantMax bool) any {
	var best any
	for _, row := range rows {
		v := row[col]
		if dataset.IsNull(v) {
			continue
		}
		if best == nil {
			best = v
			continue
		}
		c := dataset.Compare(v, best)
		if (wantMax && c > 0) || (!wantMax && c < 0) {
			best = v
		}
	}
	return best
}

func (pl *plan) sortOutputs(out []outputRow) {
	if len(pl.order) == 0 {
		return
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range pl.order {
			var a, b any
			if k.output >= 0 {
				a, b = out[i].values[k.output], out[j].values[k.output]
			} else {
				a, b = out[i].first[k.column], out[j].first[k.column]
			}
			if c := compareNullsLast(a, b, k.desc); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// sortRows returns a sorted copy; the input may be the dataset's own rows.
func (pl *plan) sortRows(in []dataset.Row) []dataset.Row {
	if len(pl.order) == 0 {
		return in
	}
	rows := make([]dataset.Row, len(in))
	copy(rows, in)
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range pl.order {
			if c := compareNullsLast(rows[i][k.column], rows[j][k.column], k.desc); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return rows
}

// compareNullsLast places nulls after every value in either direction.
func compareNullsLast(a, b any, desc bool) int {
	an, bn := dataset.IsNull(a), dataset.IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	c := dataset.Compare(a, b)
	if desc {
		return -c
	}
	return c
}

func (pl *plan) project(vals []any) dataset.Row {
	row := make(dataset.Row, len(pl.outputs))
	for i, name := range pl.outputs {
		row[name] = vals[i]
	}
	return row
}

func nullToNil(v any) any {
	if dataset.IsNull(v) {
		return nil
	}
	return v
}
