package query

import (
	"strconv"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/dataset"
)

// AggFunc is an aggregate function name; empty for plain column references.
type AggFunc string

const (
	AggNone  AggFunc = ""
	AggCount AggFunc = "COUNT"
	AggSum   AggFunc = "SUM"
	AggAvg   AggFunc = "AVG"
	AggMin   AggFunc = "MIN"
	AggMax   AggFunc = "MAX"
)

func parseAggFunc(name string) (AggFunc, bool) {
	switch f := AggFunc(strings.ToUpper(name)); f {
	case AggCount, AggSum, AggAvg, AggMin, AggMax:
		return f, true
	}
	return AggNone, false
}

// SelectItem is one entry of the select list. COUNT(*) has Func set and Star
// true; a bare * has only Star.
type SelectItem struct {
	Func     AggFunc
	Column   string
	Star     bool
	Distinct bool
	Alias    string
}

func (s SelectItem) IsAggregate() bool {
	return s.Func != AggNone
}

// OutputName is the alias, the column, or <func>_<column> in lowercase.
func (s SelectItem) OutputName() string {
	if s.Alias != "" {
		return s.Alias
	}
	switch {
	case s.Func == AggNone:
		return s.Column
	case s.Star:
		return "count"
	case s.Distinct:
		return strings.ToLower(string(s.Func)) + "_distinct_" + strings.ToLower(s.Column)
	}
	return strings.ToLower(string(s.Func)) + "_" + strings.ToLower(s.Column)
}

func (s SelectItem) String() string {
	var b strings.Builder
	switch {
	case s.Func != AggNone:
		b.WriteString(string(s.Func))
		b.WriteByte('(')
		if s.Distinct {
			b.WriteString("DISTINCT ")
		}
		if s.Star {
			b.WriteByte('*')
		} else {
			b.WriteString(QuoteIdent(s.Column))
		}
		b.WriteByte(')')
	case s.Star:
		b.WriteByte('*')
	default:
		b.WriteString(QuoteIdent(s.Column))
	}
	if s.Alias != "" {
		b.WriteString(" AS ")
		b.WriteString(QuoteIdent(s.Alias))
	}
	return b.String()
}

// Expr is a node of the WHERE predicate tree.
type Expr interface {
	expr()
	String() string
}

type And struct {
	Left, Right Expr
}

type Or struct {
	Left, Right Expr
}

type Not struct {
	Expr Expr
}

// Compare tests a column against a literal.
type Compare struct {
	Column string
	Op     dataset.Operator
	Value  any
}

type IsNull struct {
	Column  string
	Negated bool
}

func (*And) expr()     {}
func (*Or) expr()      {}
func (*Not) expr()     {}
func (*Compare) expr() {}
func (*IsNull) expr()  {}

func (e *And) String() string { return "(" + e.Left.String() + " AND " + e.Right.String() + ")" }
func (e *Or) String() string  { return "(" + e.Left.String() + " OR " + e.Right.String() + ")" }
func (e *Not) String() string { return "NOT " + e.Expr.String() }

func (e *Compare) String() string {
	return QuoteIdent(e.Column) + " " + string(e.Op) + " " + formatLiteral(e.Value)
}

func (e *IsNull) String() string {
	if e.Negated {
		return QuoteIdent(e.Column) + " IS NOT NULL"
	}
	return QuoteIdent(e.Column) + " IS NULL"
}

// OrderItem is an ORDER BY key: a name (column or alias) or an aggregate call.
type OrderItem struct {
	Func   AggFunc
	Column string
	Star   bool
	Desc   bool
}

func (o OrderItem) call() string {
	switch {
	case o.Func != AggNone && o.Star:
		return string(o.Func) + "(*)"
	case o.Func != AggNone:
		return string(o.Func) + "(" + QuoteIdent(o.Column) + ")"
	}
	return QuoteIdent(o.Column)
}

func (o OrderItem) String() string {
	s := o.call()
	if o.Desc {
		return s + " DESC"
	}
	return s + " ASC"
}

// Query is the parsed form of a SELECT statement.
type Query struct {
	Select  []SelectItem
	From    string
	Where   Expr
	GroupBy []string
	OrderBy []OrderItem
	Limit   *int
}

// HasAggregates reports whether any select item is an aggregate.
func (q *Query) HasAggregates() bool {
	for _, s := range q.Select {
		if s.IsAggregate() {
			return true
		}
	}
	return false
}

// IsGrouped reports whether the query produces one row per group.
func (q *Query) IsGrouped() bool {
	return q.HasAggregates() || len(q.GroupBy) > 0
}

// String renders the query in canonical form; parsing the result yields an
// equivalent query.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, s := range q.Select {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.String())
	}
	b.WriteString(" FROM ")
	b.WriteString(QuoteIdent(q.From))
	if q.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(q.Where.String())
	}
	if len(q.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, g := range q.GroupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(QuoteIdent(g))
		}
	}
	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.String())
		}
	}
	if q.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*q.Limit))
	}
	return b.String()
}

// QuoteIdent returns name as written in query text, double-quoted when it is
// not a plain identifier.
func QuoteIdent(name string) string {
	plain := name != "" && !isDigit(name[0])
	for i := 0; i < len(name) && plain; i++ {
		plain = isLetter(name[i]) || isDigit(name[i])
	}
	if plain && lookupIdent(name) == TokenIdent {
		return name
	}
	return `"` + name + `"`
}

func formatLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	}
	return "'" + strings.ReplaceAll(dataset.ToString(v), "'", "''") + "'"
}
