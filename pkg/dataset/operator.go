package dataset

import (
	"fmt"
	"strings"
)

// Operator is a comparison between a cell and a literal.
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpGt      Operator = ">"
	OpLt      Operator = "<"
	OpGe      Operator = ">="
	OpLe      Operator = "<="
	OpLike    Operator = "LIKE"
	OpNotLike Operator = "NOT LIKE"
)

// ParseOperator accepts the textual operator forms, including "<>".
func ParseOperator(s string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "=", "==":
		return OpEq, nil
	case "!=", "<>":
		return OpNe, nil
	case ">":
		return OpGt, nil
	case "<":
		return OpLt, nil
	case ">=":
		return OpGe, nil
	case "<=":
		return OpLe, nil
	case "LIKE":
		return OpLike, nil
	case "NOT LIKE":
		return OpNotLike, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// Apply evaluates cell <op> literal. A null cell never satisfies a comparison,
// and ordering operators require both sides to be numeric.
func (o Operator) Apply(cell, literal any) bool {
	if IsNull(cell) {
		return false
	}
	switch o {
	case OpEq:
		return Equal(cell, literal)
	case OpNe:
		if IsNull(literal) {
			return false
		}
		return !Equal(cell, literal)
	case OpLike:
		return like(ToString(cell), ToString(literal))
	case OpNotLike:
		return !like(ToString(cell), ToString(literal))
	}
	a, okA := ToFloat(cell)
	b, okB := ToFloat(literal)
	if !okA || !okB {
		return false
	}
	switch o {
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	}
	return false
}

// Determinate reports whether cell <op> literal has a definite truth value.
// Null operands, and non-numeric operands of ordering operators, leave the
// comparison unknown, so negating it must not make it true.
func (o Operator) Determinate(cell, literal any) bool {
	if IsNull(cell) || IsNull(literal) {
		return false
	}
	switch o {
	case OpEq, OpNe, OpLike, OpNotLike:
		return true
	}
	_, okA := ToFloat(cell)
	_, okB := ToFloat(literal)
	return okA && okB
}

// like is case-insensitive containment; the pieces between % and _
// wildcards must appear in order.
func like(value, pattern string) bool {
	value = strings.ToLower(value)
	parts := strings.FieldsFunc(strings.ToLower(pattern), func(r rune) bool {
		return r == '%' || r == '_'
	})
	pos := 0
	for _, part := range parts {
		i := strings.Index(value[pos:], part)
		if i < 0 {
			return false
		}
		pos += i + len(part)
	}
	return true
}
