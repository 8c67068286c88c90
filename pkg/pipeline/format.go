package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/query"
)

const (
	maxListRows     = 10
	rawPreviewRows  = 5
	noDataPhrase    = "not available (no data)"
	truncatedSuffix = "..."
)

// FormatAnswer renders a non-empty result as a sentence, a numbered list, or
// an LLM summary. datasetRows is the number of rows the query ran over.
func (p *Pipeline) FormatAnswer(ctx context.Context, question string, res *query.Result, datasetRows int) string {
	if v, ok := res.Scalar(); ok {
		return formatScalar(res.Columns[0], v)
	}
	if len(res.Columns) == 1 && len(res.Rows) <= maxListRows {
		return formatList(res)
	}

	if p.cfg.LLM == nil {
		return formatRaw(res)
	}
	summary, err := p.summarize(ctx, question, res, datasetRows)
	if err != nil {
		p.log.Warn("pipeline: summary failed, using raw rows", "error", err)
		return formatRaw(res)
	}
	return summary
}

func formatScalar(column string, v any) string {
	return fmt.Sprintf("The %s is %s.", humanize(column), formatValue(v))
}

func formatList(res *query.Result) string {
	col := res.Columns[0]
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %s:", len(res.Rows), humanize(col))
	for i, row := range res.Rows {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, formatValue(row[col]))
	}
	return sb.String()
}

// formatRaw lists the first rows as JSON objects.
func formatRaw(res *query.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d rows.", len(res.Rows))
	n := min(len(res.Rows), rawPreviewRows)
	if n < len(res.Rows) {
		fmt.Fprintf(&sb, " First %d:", n)
	}
	for _, row := range res.Rows[:n] {
		sb.WriteString("\n")
		sb.WriteString(rowJSON(res.Columns, row))
	}
	return sb.String()
}

func (p *Pipeline) summarize(ctx context.Context, question string, res *query.Result, datasetRows int) (string, error) {
	n := min(len(res.Rows), p.cfg.SummaryRows)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", question)
	fmt.Fprintf(&sb, "The query ran over all %d dataset rows and returned %d result rows with %d columns (%s).\n",
		datasetRows, len(res.Rows), len(res.Columns), strings.Join(res.Columns, ", "))
	fmt.Fprintf(&sb, "First %d result rows:\n", n)
	for _, row := range res.Rows[:n] {
		sb.WriteString(rowJSON(res.Columns, row))
		sb.WriteString("\n")
	}

	response, err := p.cfg.LLM.Complete(ctx, p.cfg.Prompts.Summarize, sb.String())
	if err != nil {
		return "", fmt.Errorf("LLM completion failed: %w", err)
	}
	summary := truncateWords(strings.TrimSpace(response), p.cfg.MaxSummaryWords)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	if !mentionsCount(summary, datasetRows) {
		summary += fmt.Sprintf(" (%d result rows from %d dataset rows.)", len(res.Rows), datasetRows)
	}
	return summary, nil
}

// mentionsCount reports whether text states n as a whole number, plain or
// with thousands separators.
func mentionsCount(text string, n int) bool {
	forms := []string{strconv.Itoa(n)}
	if grouped := groupThousands(n); grouped != forms[0] {
		forms = append(forms, regexp.QuoteMeta(grouped))
	}
	re := regexp.MustCompile(`(?:^|[^\d.,])(?:` + strings.Join(forms, "|") + `)(?:$|[^\d.,]|[.,](?:$|\D))`)
	return re.MatchString(text)
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	if n < 0 || len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func truncateWords(s string, limit int) string {
	words := strings.Fields(s)
	if limit <= 0 || len(words) <= limit {
		return s
	}
	return strings.Join(words[:limit], " ") + truncatedSuffix
}

// rowJSON encodes a row with keys in column order.
func rowJSON(columns []string, row dataset.Row) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		k, _ := json.Marshal(c)
		v, err := json.Marshal(row[c])
		if err != nil {
			v, _ = json.Marshal(dataset.ToString(row[c]))
		}
		sb.Write(k)
		sb.WriteString(": ")
		sb.Write(v)
	}
	sb.WriteByte('}')
	return sb.String()
}

func formatValue(v any) string {
	if dataset.IsNull(v) {
		return noDataPhrase
	}
	if f, ok := v.(float64); ok {
		return formatNumber(f)
	}
	return dataset.ToString(v)
}

func humanize(column string) string {
	return strings.ReplaceAll(column, "_", " ")
}
