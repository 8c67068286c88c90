package pipeline

import (
	"context"
	"errors"

	"github.com/malbeclabs/nlquery/pkg/query"
)

// ErrorKind classifies why a question could not be answered by a generated query.
type ErrorKind string

const (
	KindAmbiguousQuestion ErrorKind = "AmbiguousQuestion"
	KindNoUsableQuery     ErrorKind = "NoUsableQuery"
	KindUnknownColumn     ErrorKind = "UnknownColumn"
	KindSyntaxError       ErrorKind = "SyntaxError"
	KindEmptyResultSet    ErrorKind = "EmptyResultSet"
	KindLLMUnavailable    ErrorKind = "LLMUnavailable"
	KindExecutionError    ErrorKind = "ExecutionError"
)

var (
	ErrLLMUnavailable = errors.New("llm unavailable")
	ErrNoUsableQuery  = errors.New("no usable query")
)

// KindOf maps an error from generation, validation or execution to its kind.
func KindOf(err error) ErrorKind {
	var (
		colErr    *query.UnknownColumnError
		syntaxErr *query.SyntaxError
		kwErr     *query.DisallowedKeywordError
		execErr   *query.ExecutionError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLLMUnavailable):
		return KindLLMUnavailable
	case errors.Is(err, ErrNoUsableQuery):
		return KindNoUsableQuery
	case errors.As(err, &colErr):
		return KindUnknownColumn
	case errors.As(err, &syntaxErr), errors.As(err, &kwErr):
		return KindSyntaxError
	case errors.As(err, &execErr):
		return KindExecutionError
	case errors.Is(err, context.DeadlineExceeded):
		return KindLLMUnavailable
	}
	return KindExecutionError
}
