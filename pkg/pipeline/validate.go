package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/query"
)

// DryRunResult is the outcome of executing a query over a bounded sample.
type DryRunResult struct {
	Query       *query.Query
	SampleRows  int
	EmptySample bool
	Warning     string
}

// ValidationError reports a query that failed the dry run, with a suggestion
// naming the real columns.
type ValidationError struct {
	Kind       ErrorKind
	Suggestion string
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("query failed validation: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DryRun parses text and executes it over the first sampleSize rows. A query
// that is valid but matches nothing in the sample passes with a warning.
func DryRun(ctx context.Context, text string, ds *dataset.Dataset, sampleSize int) (*DryRunResult, error) {
	q, err := query.Parse(text)
	if err != nil {
		return nil, validationError(err, ds)
	}

	sample := dataset.New(ds.ID, ds.Head(sampleSize), ds.Columns)
	res, err := query.Execute(ctx, q, sample, query.Options{})
	if err != nil {
		return nil, validationError(err, ds)
	}

	out := &DryRunResult{Query: q, SampleRows: sample.Len()}
	if res.Empty() {
		out.EmptySample = true
		out.Warning = fmt.Sprintf("The query matched no rows in the first %d rows; the answer may be less reliable.", sample.Len())
	}
	return out, nil
}

func validationError(err error, ds *dataset.Dataset) error {
	kind := KindOf(err)
	var colErr *query.UnknownColumnError
	suggestion := "Available columns: " + strings.Join(ds.Columns, ", ")
	if errors.As(err, &colErr) {
		suggestion = fmt.Sprintf("Column %q does not exist. %s", colErr.Column, suggestion)
	}
	return &ValidationError{Kind: kind, Suggestion: suggestion, Err: err}
}
