package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/indexer"
	"github.com/malbeclabs/nlquery/pkg/metadata"
	"github.com/malbeclabs/nlquery/pkg/query"
)

const (
	fallbackConfidence = 0.3
	fallbackTable      = "data"
)

var (
	avgCue     = regexp.MustCompile(`\b(average|avg|mean)\b`)
	countCue   = regexp.MustCompile(`\b(count|how many|number of)\b`)
	maxCue     = regexp.MustCompile(`\b(max|maximum|highest|most|largest|biggest|top)\b`)
	minCue     = regexp.MustCompile(`\b(min|minimum|lowest|least|smallest|fewest|bottom)\b`)
	rankingCue = regexp.MustCompile(`\b(top|bottom|best|worst)\s+(\d+)\b`)
	groupCue   = regexp.MustCompile(`\b(?:by|per|each|across)\s+([a-z0-9_]+(?:\s+[a-z0-9_]+)?)`)
	nonIdent   = regexp.MustCompile(`[^a-z0-9_]+`)
)

// FallbackPlan is a keyword-derived aggregation used when no generated query
// can be trusted.
type FallbackPlan struct {
	Query  *query.Query
	Metric string
	Group  string
	Func   query.AggFunc
}

// PlanFallback picks the most keyword-relevant numeric column, an aggregate
// from the question's cues, and an optional grouping column.
func PlanFallback(question string, keywords KeywordSet, md *metadata.DatasetMetadata) (*FallbackPlan, error) {
	if len(md.Columns) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}
	lower := strings.ToLower(question)

	fn := query.AggSum
	switch {
	case avgCue.MatchString(lower):
		fn = query.AggAvg
	case countCue.MatchString(lower):
		fn = query.AggCount
	}

	rank := rankingCue.FindStringSubmatch(lower)
	group := groupColumn(lower, md, rank != nil)
	metric := metricColumn(keywords, md, group)

	if metric == "" {
		fn = query.AggCount
	}
	if rank == nil && fn == query.AggSum {
		switch {
		case maxCue.MatchString(lower):
			fn = query.AggMax
		case minCue.MatchString(lower):
			fn = query.AggMin
		}
	}

	item := query.SelectItem{Func: fn, Column: metric, Alias: fallbackAlias(fn, metric)}
	if fn == query.AggCount {
		item = query.SelectItem{Func: query.AggCount, Star: true}
	}

	q := &query.Query{From: fallbackTable}
	if group != "" {
		q.Select = append(q.Select, query.SelectItem{Column: group})
		q.GroupBy = []string{group}
	}
	q.Select = append(q.Select, item)

	if rank != nil && group != "" {
		desc := rank[1] == "top" || rank[1] == "best"
		q.OrderBy = []query.OrderItem{{Column: item.OutputName(), Desc: desc}}
		if n, err := strconv.Atoi(rank[2]); err == nil {
			q.Limit = &n
		}
	}

	return &FallbackPlan{Query: q, Metric: metric, Group: group, Func: fn}, nil
}

func fallbackAlias(fn query.AggFunc, column string) string {
	name := strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(column), "_"), "_")
	switch fn {
	case query.AggSum:
		return "total_" + name
	case query.AggAvg:
		return "average_" + name
	case query.AggMin:
		return "min_" + name
	case query.AggMax:
		return "max_" + name
	}
	return ""
}

// groupColumn returns the categorical column named after by/per/each/across,
// or with a ranking cue any categorical column the question mentions.
func groupColumn(lower string, md *metadata.DatasetMetadata, ranking bool) string {
	cats := md.CategoricalColumns()
	for _, m := range groupCue.FindAllStringSubmatch(lower, -1) {
		words := strings.Fields(m[1])
		for n := len(words); n > 0; n-- {
			if c := matchColumn(strings.Join(words[:n], " "), cats); c != "" {
				return c
			}
		}
	}
	if ranking {
		for _, c := range cats {
			if mentionsAny(lower, []string{c}) || mentionsAny(lower, []string{singular(strings.ToLower(c))}) {
				return c
			}
		}
	}
	return ""
}

func matchColumn(phrase string, columns []string) string {
	for _, candidate := range []string{phrase, singular(phrase)} {
		for _, c := range columns {
			name := strings.ToLower(c)
			if name == candidate || strings.ReplaceAll(name, "_", " ") == candidate || singular(name) == candidate {
				return c
			}
		}
	}
	return ""
}

func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

// metricColumn scores numeric columns by keyword overlap with their name
// tokens. The first numeric column wins ties, including a zero score.
func metricColumn(keywords KeywordSet, md *metadata.DatasetMetadata, exclude string) string {
	best, bestScore := "", -1
	for _, c := range md.NumericColumns() {
		if c == exclude {
			continue
		}
		score := 0
		for _, tok := range nonIdent.Split(strings.ToLower(c), -1) {
			for _, part := range strings.Split(tok, "_") {
				if part == "" {
					continue
				}
				if keywords.Has(part) || keywords.Has(part+"s") || keywords.Has(singular(part)) {
					score++
				}
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// runFallback answers with a keyword-derived aggregation, or for statistical
// questions with a summary of the metric column and its outliers.
func (p *Pipeline) runFallback(ctx context.Context, question string, cq ClassifiedQuestion, md *metadata.DatasetMetadata, ds *dataset.Dataset, idx *indexer.DatasetIndex) (*outcome, error) {
	if cq.Type == TypeStatistical {
		out, err := p.statisticalAnswer(ctx, cq, md, ds)
		if err == nil {
			return out, nil
		}
		p.log.Debug("pipeline: statistical fallback unavailable", "error", err)
	}

	plan, err := PlanFallback(question, cq.Keywords, md)
	if err != nil {
		return nil, err
	}
	text := plan.Query.String()
	res, err := query.Run(ctx, text, ds, query.Options{Index: idx})
	if err != nil {
		return nil, fmt.Errorf("fallback query failed: %w", err)
	}

	computed := "the row count"
	if plan.Metric != "" {
		computed = fmt.Sprintf("%s of %s", plan.Func, plan.Metric)
	}
	if plan.Group != "" {
		computed += " by " + plan.Group
	}

	return &outcome{
		result:      res,
		text:        text,
		method:      MethodAggregation,
		confidence:  fallbackConfidence,
		explanation: fmt.Sprintf("Computed %s from question keywords because no generated query could be used.", computed),
	}, nil
}

func (p *Pipeline) statisticalAnswer(ctx context.Context, cq ClassifiedQuestion, md *metadata.DatasetMetadata, ds *dataset.Dataset) (*outcome, error) {
	col := metricColumn(cq.Keywords, md, "")
	if col == "" {
		return nil, fmt.Errorf("no numeric column")
	}
	cm, _ := md.Column(col)
	s := cm.Numeric
	if s == nil || s.Count == 0 {
		return nil, fmt.Errorf("column %s has no numeric values", col)
	}

	lo, hi := s.OutlierBounds()
	q := &query.Query{
		Select: []query.SelectItem{{Star: true}},
		From:   fallbackTable,
		Where: &query.Or{
			Left:  &query.Compare{Column: col, Op: dataset.OpLt, Value: lo},
			Right: &query.Compare{Column: col, Op: dataset.OpGt, Value: hi},
		},
	}
	text := q.String()
	res, err := query.Run(ctx, text, ds, query.Options{})
	if err != nil {
		return nil, fmt.Errorf("outlier query failed: %w", err)
	}

	answer := fmt.Sprintf("%s across %d values: mean %s, median %s, standard deviation %s, range %s to %s. %d rows fall outside %s to %s (1.5 x IQR).",
		col, s.Count, formatNumber(s.Mean), formatNumber(s.Median), formatNumber(s.StdDev),
		formatNumber(s.Min), formatNumber(s.Max), res.RowCountBeforeLimit, formatNumber(lo), formatNumber(hi))

	return &outcome{
		result:      res,
		text:        text,
		method:      MethodStatistical,
		confidence:  fallbackConfidence,
		explanation: fmt.Sprintf("Summarized %s from column statistics because no generated query could be used.", col),
		answer:      answer,
	}, nil
}
