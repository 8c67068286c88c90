package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/pipeline"
	"github.com/malbeclabs/nlquery/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAnswer(t *testing.T) {
	t.Parallel()

	t.Run("scalar", func(t *testing.T) {
		t.Parallel()
		p := newPipeline(t, pipeline.Config{})
		res := &query.Result{Columns: []string{"avg_sales"}, Rows: []dataset.Row{{"avg_sales": 11.6666667}}}
		require.Equal(t, "The avg sales is 11.67.", p.FormatAnswer(t.Context(), "q", res, 3))

		res = &query.Result{Columns: []string{"max_price"}, Rows: []dataset.Row{{"max_price": nil}}}
		require.Equal(t, "The max price is not available (no data).", p.FormatAnswer(t.Context(), "q", res, 3))
	})

	t.Run("list", func(t *testing.T) {
		t.Parallel()
		p := newPipeline(t, pipeline.Config{})
		res := &query.Result{Columns: []string{"region"}, Rows: []dataset.Row{{"region": "east"}, {"region": "west"}}}
		require.Equal(t, "2 region:\n1. east\n2. west", p.FormatAnswer(t.Context(), "q", res, 3))
	})

	t.Run("summary", func(t *testing.T) {
		t.Parallel()
		var userPrompt string
		llm := &mockLLM{CompleteFunc: func(_ context.Context, _, user string) (string, error) {
			userPrompt = user
			return strings.Repeat("word ", 200), nil
		}}
		p := newPipeline(t, pipeline.Config{LLM: llm, SummaryRows: 2, MaxSummaryWords: 10})

		var rows []dataset.Row
		for i := range 12 {
			rows = append(rows, dataset.Row{"n": i, "m": i * 2})
		}
		res := &query.Result{Columns: []string{"n", "m"}, Rows: rows}

		answer := p.FormatAnswer(t.Context(), "list n and m", res, 40)
		assert.True(t, strings.HasPrefix(answer, strings.Repeat("word ", 9)+"word..."), answer)
		assert.Contains(t, answer, "(12 result rows from 40 dataset rows.)")
		assert.Contains(t, userPrompt, "all 40 dataset rows and returned 12 result rows")
		assert.Contains(t, userPrompt, `{"n": 1, "m": 2}`)
		assert.NotContains(t, userPrompt, `{"n": 2, "m": 4}`)
	})

	t.Run("summary states the dataset row count", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			summary string
			want    string
		}{
			{"result count only", "The 12 groups show steady growth.", "The 12 groups show steady growth. (12 result rows from 5000 dataset rows.)"},
			{"digits inside a larger number", "Revenue reached 150001 overall.", "Revenue reached 150001 overall. (12 result rows from 5000 dataset rows.)"},
			{"plain count", "All 5000 rows were analyzed.", "All 5000 rows were analyzed."},
			{"grouped count", "Across 5,000 rows, 12 groups stand out.", "Across 5,000 rows, 12 groups stand out."},
			{"count ends a sentence", "12 groups came from 5000.", "12 groups came from 5000."},
		}
		var rows []dataset.Row
		for i := range 12 {
			rows = append(rows, dataset.Row{"g": i, "total": i * 10})
		}
		res := &query.Result{Columns: []string{"g", "total"}, Rows: rows}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				llm := &mockLLM{CompleteFunc: func(context.Context, string, string) (string, error) {
					return tt.summary, nil
				}}
				p := newPipeline(t, pipeline.Config{LLM: llm})
				require.Equal(t, tt.want, p.FormatAnswer(t.Context(), "growth by group", res, 5000))
			})
		}
	})
}
