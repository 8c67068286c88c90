package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/dataset"
)

// orderKey is a resolved ORDER BY entry: either an output position or a
// dataset column.
type orderKey struct {
	output int
	column string
	desc   bool
}

// plan is a query whose column references have been resolved against a dataset.
type plan struct {
	q       *Query
	outputs []string
	order   []orderKey
}

// Validate resolves every column reference in q against the dataset.
func Validate(q *Query, ds *dataset.Dataset) error {
	_, err := bind(q, ds)
	return err
}

func bind(q *Query, ds *dataset.Dataset) (*plan, error) {
	resolve := func(name string) (string, error) {
		col, ok := ds.Resolve(name)
		if !ok {
			return "", &UnknownColumnError{Column: name, Available: ds.Columns}
		}
		return col, nil
	}

	bound := &Query{From: q.From, Limit: q.Limit}
	for _, item := range q.Select {
		if item.Star && item.Func == AggNone {
			for _, col := range ds.Columns {
				bound.Select = append(bound.Select, SelectItem{Column: col})
			}
			continue
		}
		if !item.Star {
			col, err := resolve(item.Column)
			if err != nil {
				return nil, err
			}
			item.Column = col
		}
		bound.Select = append(bound.Select, item)
	}
	if len(bound.Select) == 0 {
		return nil, &SyntaxError{Message: "query selects no columns"}
	}

	if q.Where != nil {
		where, err := bindExpr(q.Where, resolve)
		if err != nil {
			return nil, err
		}
		bound.Where = where
	}

	for _, g := range q.GroupBy {
		col, err := resolve(g)
		if err != nil {
			return nil, err
		}
		bound.GroupBy = append(bound.GroupBy, col)
	}

	pl := &plan{q: bound, outputs: outputNames(bound.Select)}
	for _, o := range q.OrderBy {
		key, err := pl.resolveOrder(o, resolve)
		if err != nil {
			return nil, err
		}
		pl.order = append(pl.order, key)
		bound.OrderBy = append(bound.OrderBy, o)
	}
	return pl, nil
}

func bindExpr(e Expr, resolve func(string) (string, error)) (Expr, error) {
	switch x := e.(type) {
	case *And:
		l, err := bindExpr(x.Left, resolve)
		if err != nil {
			return nil, err
		}
		r, err := bindExpr(x.Right, resolve)
		if err != nil {
			return nil, err
		}
		return &And{Left: l, Right: r}, nil
	case *Or:
		l, err := bindExpr(x.Left, resolve)
		if err != nil {
			return nil, err
		}
		r, err := bindExpr(x.Right, resolve)
		if err != nil {
			return nil, err
		}
		return &Or{Left: l, Right: r}, nil
	case *Not:
		inner, err := bindExpr(x.Expr, resolve)
		if err != nil {
			return nil, err
		}
		return &Not{Expr: inner}, nil
	case *Compare:
		col, err := resolve(x.Column)
		if err != nil {
			return nil, err
		}
		return &Compare{Column: col, Op: x.Op, Value: x.Value}, nil
	case *IsNull:
		col, err := resolve(x.Column)
		if err != nil {
			return nil, err
		}
		return &IsNull{Column: col, Negated: x.Negated}, nil
	}
	return nil, &SyntaxError{Message: fmt.Sprintf("unsupported predicate %T", e)}
}

// resolveOrder maps an ORDER BY entry to an output column, or for grouped
// queries to a GROUP BY column, or for plain queries to any dataset column.
func (pl *plan) resolveOrder(o OrderItem, resolve func(string) (string, error)) (orderKey, error) {
	grouped := pl.q.IsGrouped()

	if o.Func != AggNone {
		if !grouped {
			return orderKey{}, &SyntaxError{Message: fmt.Sprintf("ORDER BY %s requires an aggregate query", o.call())}
		}
		for i, item := range pl.q.Select {
			if item.Func == o.Func && item.Star == o.Star && !item.Distinct && strings.EqualFold(item.Column, o.Column) {
				return orderKey{output: i, desc: o.Desc}, nil
			}
		}
		if !o.Star {
			if _, err := resolve(o.Column); err != nil {
				return orderKey{}, err
			}
		}
		return orderKey{}, &SyntaxError{Message: fmt.Sprintf("ORDER BY %s must appear in the select list", o.call())}
	}

	for i, name := range pl.outputs {
		if strings.EqualFold(name, o.Column) {
			if grouped {
				return orderKey{output: i, desc: o.Desc}, nil
			}
			return orderKey{output: -1, column: pl.q.Select[i].Column, desc: o.Desc}, nil
		}
	}

	col, err := resolve(o.Column)
	if err != nil {
		return orderKey{}, err
	}
	if grouped {
		for _, g := range pl.q.GroupBy {
			if g == col {
				return orderKey{output: -1, column: col, desc: o.Desc}, nil
			}
		}
		return orderKey{}, &SyntaxError{Message: fmt.Sprintf("ORDER BY %s must name a selected or grouped column", o.Column)}
	}
	return orderKey{output: -1, column: col, desc: o.Desc}, nil
}

// outputNames returns one unique name per select item, suffixing repeats.
func outputNames(items []SelectItem) []string {
	names := make([]string, len(items))
	seen := make(map[string]int, len(items))
	for i, item := range items {
		name := item.OutputName()
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		names[i] = name
	}
	return names
}
