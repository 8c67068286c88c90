package query

import (
	"fmt"
	"strings"
)

// SyntaxError is returned when query text does not match the grammar.
type SyntaxError struct {
	Pos     Position
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Pos.Line == 0 {
		return fmt.Sprintf("syntax error: %s", e.Message)
	}
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// UnknownColumnError is returned when a query references a column the
// dataset does not have.
type UnknownColumnError struct {
	Column    string
	Available []string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q (available: %s)", e.Column, strings.Join(e.Available, ", "))
}

// DisallowedKeywordError is returned for text containing a mutating statement keyword.
type DisallowedKeywordError struct {
	Keyword string
}

func (e *DisallowedKeywordError) Error() string {
	return fmt.Sprintf("disallowed keyword %s: only SELECT queries are supported", e.Keyword)
}

// ExecutionError wraps a failure while evaluating a parsed query.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("execution error: %s", e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

const (
	errUnexpectedToken = "unexpected %s %q, expected %s"
	errUnsupportedFunc = "unsupported function %s"
	errInvalidLimit    = "LIMIT must be a non-negative integer"
)
