// Package prompts embeds the LLM prompt templates used by the pipeline.
package prompts

import "embed"

//go:embed *.md
var PromptsFS embed.FS
