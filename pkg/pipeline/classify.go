package pipeline

import (
	"regexp"
	"strings"
	"unicode"
)

type classifierRule struct {
	typ  QuestionType
	cues []string
}

// Rules are checked in order; statistical cues win over generic aggregation.
var classifierRules = []classifierRule{
	{TypeStatistical, []string{"anomaly", "anomalies", "outlier", "outliers", "unusual", "distribution", "variance", "deviation", "stddev", "median", "percentile", "quartile", "quartiles", "statistics", "statistical", "skew"}},
	{TypeAggregation, []string{"total", "sum", "average", "avg", "mean", "count", "how many", "number of", "maximum", "minimum", "max", "min", "overall"}},
	{TypeComparison, []string{"compare", "comparison", "versus", "vs", "difference", "between"}},
	{TypeTrend, []string{"trend", "trends", "over time", "growth", "increase", "decrease", "change", "monthly", "weekly", "daily", "yearly", "per month", "by month"}},
	{TypeCorrelation, []string{"correlation", "correlate", "correlated", "relationship", "related", "impact", "affect"}},
	{TypeFilter, []string{"where", "which", "show", "list", "find", "filter", "only", "greater than", "less than", "above", "below", "equal to"}},
}

var classifierPatterns = func() [][]*regexp.Regexp {
	out := make([][]*regexp.Regexp, len(classifierRules))
	for i, rule := range classifierRules {
		for _, cue := range rule.cues {
			out[i] = append(out[i], wordPattern(cue))
		}
	}
	return out
}()

func wordPattern(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
}

var stopWords = NewKeywordSet(
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can", "was", "were", "has", "have", "had",
	"what", "whats", "which", "who", "whom", "this", "that", "these", "those", "with", "from", "into", "over",
	"show", "give", "tell", "list", "how", "many", "much", "per", "each", "please", "does", "did", "there",
	"their", "they", "them", "then", "than", "when", "where", "why", "will", "would", "could", "should",
	"about", "also", "some", "our", "out", "its", "get", "find", "value", "values", "data", "dataset", "rows",
	"row", "records", "record", "table", "across",
)

// Classify assigns exactly one question type using ordered cue rules.
func Classify(question string) ClassifiedQuestion {
	lower := strings.ToLower(question)
	cq := ClassifiedQuestion{
		Type:     TypeSimple,
		Keywords: ExtractKeywords(question),
		Intent:   string(TypeSimple),
	}
	for i, rule := range classifierRules {
		for j, re := range classifierPatterns[i] {
			if re.MatchString(lower) {
				cq.Type = rule.typ
				cq.Intent = string(rule.typ) + ":" + rule.cues[j]
				return cq
			}
		}
	}
	return cq
}

// ExtractKeywords lowercases, strips punctuation, splits on whitespace and
// drops short tokens and stop words.
func ExtractKeywords(question string) KeywordSet {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, question)
	out := make(KeywordSet)
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 || stopWords.Has(tok) {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}
