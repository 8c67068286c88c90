package pipeline

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/malbeclabs/nlquery/pkg/dataset"
)

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// HistoryEntry is a previously asked question and the query that answered it.
type HistoryEntry struct {
	Question   string  `json:"question" yaml:"question"`
	Query      string  `json:"query" yaml:"query"`
	Success    bool    `json:"success" yaml:"success"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Request is a single question over an in-memory dataset.
type Request struct {
	Question  string
	Rows      []dataset.Row
	Columns   []string
	DatasetID string
	History   []HistoryEntry
}

// Method names how an answer was produced.
type Method string

const (
	MethodGenerated   Method = "generated"
	MethodAggregation Method = "aggregation"
	MethodStatistical Method = "statistical"
)

// Result is the outcome of answering a question. Every request produces one.
type Result struct {
	Success                bool                `json:"success"`
	Answer                 string              `json:"answer"`
	Data                   []dataset.Row       `json:"data,omitempty"`
	Columns                []string            `json:"columns,omitempty"`
	RowCount               int                 `json:"rowCount"`
	Query                  string              `json:"query,omitempty"`
	Confidence             float64             `json:"confidence"`
	Method                 Method              `json:"method,omitempty"`
	Explanation            string              `json:"explanation"`
	NeedsClarification     bool                `json:"needsClarification,omitempty"`
	ClarificationQuestions []string            `json:"clarificationQuestions,omitempty"`
	Warnings               []string            `json:"warnings,omitempty"`
	ErrorKind              ErrorKind           `json:"errorKind,omitempty"`
	Classification         *ClassifiedQuestion `json:"classification,omitempty"`
}

// QuestionType is the coarse intent of a question.
type QuestionType string

const (
	TypeStatistical QuestionType = "statistical"
	TypeAggregation QuestionType = "aggregation"
	TypeComparison  QuestionType = "comparison"
	TypeTrend       QuestionType = "trend"
	TypeCorrelation QuestionType = "correlation"
	TypeFilter      QuestionType = "filter"
	TypeSimple      QuestionType = "simple"
)

// KeywordSet is an unordered set of question keywords.
type KeywordSet map[string]struct{}

func NewKeywordSet(words ...string) KeywordSet {
	s := make(KeywordSet, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

func (s KeywordSet) Has(w string) bool {
	_, ok := s[w]
	return ok
}

func (s KeywordSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func (s KeywordSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *KeywordSet) UnmarshalJSON(data []byte) error {
	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return err
	}
	*s = NewKeywordSet(words...)
	return nil
}

type ClassifiedQuestion struct {
	Type     QuestionType `json:"type"`
	Keywords KeywordSet   `json:"keywords"`
	Intent   string       `json:"intent"`
}

// Clarification asks the caller to disambiguate a question.
type Clarification struct {
	Reason    string
	Questions []string
}
