package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alitto/pond/v2"
	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/metadata"
	"github.com/malbeclabs/nlquery/pkg/metrics"
	"github.com/malbeclabs/nlquery/pkg/query"
)

const (
	baseConfidence       = 0.5
	structuralBonus      = 0.2
	consensusWeight      = 0.2
	historicalMatchBonus = 0.1
	maxConfidence        = 0.99
)

const maxExplanationRunes = 500

var sentinels = []string{"NO_ANSWER", "CANNOT_ANSWER"}

// GenerateResponse is the expected JSON response from the generate step.
type GenerateResponse struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// Candidate is one sampled completion reduced to a query.
type Candidate struct {
	Index       int
	Query       string
	Normalized  string
	Explanation string
	// ParsedOK is set when the query parses; Bound additionally requires
	// every column to exist in the dataset.
	ParsedOK          bool
	Bound             bool
	Sentinel          bool
	ValidatedBySample bool
	Err               error
}

// Consensus is the majority query across sampled candidates.
type Consensus struct {
	Query             string
	Explanation       string
	Votes             int
	Total             int
	ConsensusRatio    float64
	Confidence        float64
	StructurallyValid bool
	HistoricalMatch   bool
	Sentinel          bool
	TimedOut          bool
	Winner            int
	Candidates        []Candidate
}

// Generate samples the LLM Samples times under a single deadline and votes on
// the returned queries. Candidates that completed before the deadline still
// count when it expires.
func (p *Pipeline) Generate(ctx context.Context, question string, md *metadata.DatasetMetadata, ds *dataset.Dataset, examples []HistoryEntry) (*Consensus, error) {
	systemPrompt := buildGeneratePrompt(p.cfg.Prompts.Generate, DescribeSchema(md), examples)
	userPrompt := fmt.Sprintf("Question: %s", question)

	gctx, cancel := context.WithTimeout(ctx, p.cfg.GenerationTimeout)
	defer cancel()

	n := p.cfg.Samples
	pool := pond.NewPool(p.cfg.Parallelism, pond.WithContext(gctx))
	defer pool.Stop()

	results := make(chan Candidate, n)
	for i := range n {
		pool.Submit(func() {
			results <- p.sample(gctx, i, systemPrompt, userPrompt, ds)
		})
	}

	candidates := make([]Candidate, 0, n)
collect:
	for len(candidates) < n {
		select {
		case c := <-results:
			candidates = append(candidates, c)
		case <-gctx.Done():
			break collect
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Index < candidates[j].Index })
	timedOut := len(candidates) < n || gctx.Err() != nil

	if timedOut {
		p.log.Warn("pipeline: generation deadline reached", "completed", len(candidates), "requested", n)
	}

	cons, err := Vote(candidates, len(examples) > 0)
	if err != nil {
		if timedOut && len(candidates) == 0 {
			return nil, fmt.Errorf("%w: no completions before deadline: %w", ErrLLMUnavailable, gctx.Err())
		}
		return nil, err
	}
	cons.TimedOut = timedOut
	metrics.ConsensusRatio.Observe(cons.ConsensusRatio)
	return cons, nil
}

func (p *Pipeline) sample(ctx context.Context, i int, systemPrompt, userPrompt string, ds *dataset.Dataset) Candidate {
	c := Candidate{Index: i}
	response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		p.log.Debug("pipeline: completion failed", "sample", i, "error", err)
		c.Err = fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
		return c
	}
	return candidateFromResponse(i, response, ds)
}

func candidateFromResponse(i int, response string, ds *dataset.Dataset) Candidate {
	c := Candidate{Index: i}
	if isSentinel(response) {
		c.Sentinel = true
		c.Normalized = normalizeQuery(response)
		c.Explanation = sentinelExplanation(response)
		return c
	}

	text, explanation, err := parseGenerateResponse(response)
	if err != nil {
		c.Err = fmt.Errorf("%w: %w", ErrNoUsableQuery, err)
		return c
	}
	c.Query = text
	c.Explanation = explanation
	c.Normalized = normalizeQuery(text)
	if isSentinel(text) {
		c.Sentinel = true
		return c
	}

	q, err := query.Parse(text)
	if err != nil {
		return c
	}
	c.ParsedOK = true
	c.Bound = ds == nil || query.Validate(q, ds) == nil
	return c
}

// Vote reduces candidates to the most frequent normalized query. Only
// parseable or sentinel candidates vote unless none exist; ties go to the
// earliest candidate.
func Vote(candidates []Candidate, historicalMatch bool) (*Consensus, error) {
	var completed []Candidate
	llmFailures := 0
	for _, c := range candidates {
		if c.Err == nil {
			completed = append(completed, c)
		} else if errors.Is(c.Err, ErrLLMUnavailable) {
			llmFailures++
		}
	}
	if len(completed) == 0 {
		if llmFailures == len(candidates) {
			return nil, fmt.Errorf("%w: all %d completions failed", ErrLLMUnavailable, len(candidates))
		}
		return nil, fmt.Errorf("%w: no candidate contained a query", ErrNoUsableQuery)
	}

	var voters []Candidate
	for _, c := range completed {
		if c.ParsedOK || c.Sentinel {
			voters = append(voters, c)
		}
	}
	if len(voters) == 0 {
		voters = completed
	}

	counts := make(map[string]int, len(voters))
	for _, c := range voters {
		counts[c.Normalized]++
	}
	winner := voters[0]
	for _, c := range voters[1:] {
		if counts[c.Normalized] > counts[winner.Normalized] {
			winner = c
		}
	}

	cons := &Consensus{
		Query:           winner.Query,
		Explanation:     winner.Explanation,
		Votes:           counts[winner.Normalized],
		Total:           len(completed),
		HistoricalMatch: historicalMatch,
		Sentinel:        winner.Sentinel,
		Winner:          winner.Index,
		Candidates:      candidates,
	}
	cons.ConsensusRatio = float64(cons.Votes) / float64(cons.Total)
	if cons.Sentinel {
		cons.Query = ""
		if cons.Explanation == "" {
			cons.Explanation = "The question cannot be answered from the columns in this dataset."
		}
		return cons, nil
	}

	cons.StructurallyValid = winner.ParsedOK && winner.Bound
	cons.Confidence = scoreConfidence(cons.StructurallyValid, cons.ConsensusRatio, historicalMatch)
	return cons, nil
}

func scoreConfidence(valid bool, ratio float64, historical bool) float64 {
	score := baseConfidence + consensusWeight*ratio
	if valid {
		score += structuralBonus
	}
	if historical {
		score += historicalMatchBonus
	}
	return min(score, maxConfidence)
}

var whitespace = regexp.MustCompile(`\s+`)

// normalizeQuery produces the de-duplication key for a query: trimmed,
// without a trailing semicolon, single-spaced and upper case.
func normalizeQuery(text string) string {
	text = cleanSQL(text)
	text = whitespace.ReplaceAllString(text, " ")
	return strings.ToUpper(text)
}

func isSentinel(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, s := range sentinels {
		if upper == s || strings.HasPrefix(upper, s+":") || strings.HasPrefix(upper, s+" ") {
			return true
		}
	}
	// A JSON response whose sql field is a sentinel.
	if jsonStr := extractJSON(text); jsonStr != "" {
		var parsed GenerateResponse
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil {
			sql := strings.ToUpper(strings.TrimSpace(parsed.SQL))
			for _, s := range sentinels {
				if sql == s {
					return true
				}
			}
		}
	}
	return false
}

func sentinelExplanation(response string) string {
	if jsonStr := extractJSON(response); jsonStr != "" {
		var parsed GenerateResponse
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil {
			return parsed.Explanation
		}
	}
	text := strings.TrimSpace(response)
	for _, s := range sentinels {
		if len(text) >= len(s) && strings.EqualFold(text[:len(s)], s) {
			return strings.TrimSpace(strings.TrimLeft(text[len(s):], ": "))
		}
	}
	return ""
}

// parseGenerateResponse extracts the query and explanation from the LLM response.
func parseGenerateResponse(response string) (sql, explanation string, err error) {
	response = strings.TrimSpace(response)

	if jsonStr := extractJSON(response); jsonStr != "" {
		var parsed GenerateResponse
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil && parsed.SQL != "" {
			return cleanSQL(parsed.SQL), parsed.Explanation, nil
		}
	}

	if sql = extractSQLFromCodeBlocks(response); sql != "" {
		return sql, extractExplanation(response), nil
	}

	if looksLikeSQL(response) {
		return cleanSQL(response), "", nil
	}

	return "", "", fmt.Errorf("could not extract query from response")
}

// extractJSON finds a JSON object in a fenced block or inline in the response.
func extractJSON(response string) string {
	blocks := fencedBlocks(response)
	for _, f := range blocks {
		if f.lang == "json" {
			return f.body
		}
	}
	for _, f := range blocks {
		if f.lang == "" && strings.HasPrefix(f.body, "{") {
			return f.body
		}
	}
	if start := strings.Index(response, "{"); start != -1 {
		return extractJSONObject(response, start)
	}
	return ""
}

// extractJSONObject returns the balanced object starting at start, ignoring
// braces inside strings.
func extractJSONObject(s string, start int) string {
	if start >= len(s) || s[start] != '{' {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func extractSQLFromCodeBlocks(response string) string {
	blocks := fencedBlocks(response)
	for _, f := range blocks {
		if f.lang == "sql" {
			return cleanSQL(f.body)
		}
	}
	for _, f := range blocks {
		if looksLikeSQL(f.body) {
			return cleanSQL(f.body)
		}
	}
	return ""
}

// fence is a complete ``` block. lang is the info string of the opening
// line, lowercased, and empty when the block has none.
type fence struct {
	lang       string
	body       string
	start, end int
}

// fencedBlocks returns the complete fenced blocks of text in order. An
// unterminated fence ends the scan.
func fencedBlocks(text string) []fence {
	var out []fence
	for pos := 0; ; {
		open := strings.Index(text[pos:], "```")
		if open < 0 {
			return out
		}
		open += pos
		inner := text[open+3:]
		closing := strings.Index(inner, "```")
		if closing < 0 {
			return out
		}
		inner = inner[:closing]

		f := fence{start: open, end: open + 3 + closing + 3, body: inner}
		if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
			if info := strings.TrimSpace(inner[:nl]); isInfoString(info) && !looksLikeSQL(info) {
				f.lang = strings.ToLower(info)
				f.body = inner[nl+1:]
			}
		}
		f.body = strings.TrimSpace(f.body)
		out = append(out, f)
		pos = f.end
	}
}

func isInfoString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// looksLikeSQL matches statement keywords, including mutating ones, so that
// unsafe candidates reach the parser's safety check instead of being dropped.
func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, kw := range []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP", "TRUNCATE"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

func cleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}

// extractExplanation returns the response text outside fenced blocks, capped
// at maxExplanationRunes.
func extractExplanation(response string) string {
	var sb strings.Builder
	pos := 0
	for _, f := range fencedBlocks(response) {
		sb.WriteString(response[pos:f.start])
		pos = f.end
	}
	sb.WriteString(response[pos:])
	return truncateRunes(strings.TrimSpace(sb.String()), maxExplanationRunes)
}

// truncateRunes cuts s after n runes so a multi-byte character is never split.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for j := range s {
		if i == n {
			return s[:j] + truncatedSuffix
		}
		i++
	}
	return s
}

// buildGeneratePrompt combines the static prompt with the dataset schema and
// similar past questions.
func buildGeneratePrompt(staticPrompt, schema string, examples []HistoryEntry) string {
	var sb strings.Builder
	sb.WriteString(staticPrompt)
	sb.WriteString("\n\n## Dataset Schema\n\n```\n")
	sb.WriteString(schema)
	sb.WriteString("```")
	if len(examples) > 0 {
		sb.WriteString("\n\n## Similar Questions That Worked\n")
		for _, ex := range examples {
			fmt.Fprintf(&sb, "\nQuestion: %s\nQuery: %s\n", ex.Question, ex.Query)
		}
	}
	return sb.String()
}
