package pipeline_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/pipeline"
	"github.com/stretchr/testify/require"
)

type mockLLM struct {
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	calls        atomic.Int32
}

func (m *mockLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls.Add(1)
	return m.CompleteFunc(ctx, systemPrompt, userPrompt)
}

func isSummaryPrompt(systemPrompt string) bool {
	return strings.HasPrefix(systemPrompt, "You summarize")
}

// queryLLM answers every generation prompt with the same JSON response and
// every summary prompt with summary.
func queryLLM(sql, summary string) *mockLLM {
	return &mockLLM{
		CompleteFunc: func(_ context.Context, systemPrompt, _ string) (string, error) {
			if isSummaryPrompt(systemPrompt) {
				return summary, nil
			}
			return `{"sql": "` + sql + `", "explanation": "Computed from the data."}`, nil
		},
	}
}

func salesRows() []dataset.Row {
	return []dataset.Row{
		{"region": "east", "sales": 10},
		{"region": "east", "sales": 20},
		{"region": "west", "sales": 5},
	}
}

func productRows() []dataset.Row {
	return []dataset.Row{
		{"product": "widget", "revenue": 1200.5, "rating": 4.5},
		{"product": "gadget", "revenue": 800, "rating": 4.9},
		{"product": "gizmo", "revenue": 450, "rating": 3.2},
	}
}

func newPipeline(t *testing.T, cfg pipeline.Config) *pipeline.Pipeline {
	t.Helper()
	cfg.Logger = logger
	p, err := pipeline.New(cfg)
	require.NoError(t, err)
	return p
}
