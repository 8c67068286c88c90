package pipeline

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/pipeline/prompts"
)

// Prompts contains the pipeline prompts loaded from embedded files.
type Prompts struct {
	Generate  string // Prompt for query generation
	Summarize string // Prompt for multi-row answer summaries
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Generate, err = loadPrompt("GENERATE.md"); err != nil {
		return nil, fmt.Errorf("failed to load GENERATE: %w", err)
	}
	if p.Summarize, err = loadPrompt("SUMMARIZE.md"); err != nil {
		return nil, fmt.Errorf("failed to load SUMMARIZE: %w", err)
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
