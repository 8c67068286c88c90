package pipeline

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Jaccard returns |a∩b| / |a∪b| over two keyword sets, 0 when both are empty.
func Jaccard(a, b KeywordSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b.Has(w) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

type scoredEntry struct {
	entry HistoryEntry
	score float64
}

// SimilarExamples returns up to max successful history entries whose keyword
// similarity to the question is at least threshold, most similar first.
func SimilarExamples(keywords KeywordSet, history []HistoryEntry, threshold float64, max int) []HistoryEntry {
	var scored []scoredEntry
	for _, h := range history {
		if !h.Success || h.Query == "" {
			continue
		}
		s := Jaccard(keywords, ExtractKeywords(h.Question))
		if s >= threshold && s > 0 {
			scored = append(scored, scoredEntry{entry: h, score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].entry.Confidence > scored[j].entry.Confidence
	})
	if len(scored) > max {
		scored = scored[:max]
	}
	out := make([]HistoryEntry, len(scored))
	for i, s := range scored {
		out[i] = s.entry
	}
	return out
}

type historyFile struct {
	History []HistoryEntry `yaml:"history"`
}

// LoadHistory reads a YAML file of prior questions. Both a top-level list and
// a document with a "history" key are accepted.
func LoadHistory(path string) ([]HistoryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return ParseHistory(data)
}

func ParseHistory(data []byte) ([]HistoryEntry, error) {
	var list []HistoryEntry
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc historyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return doc.History, nil
}
