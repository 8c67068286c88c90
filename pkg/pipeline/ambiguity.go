package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/metadata"
)

var (
	superlativePattern  = regexp.MustCompile(`\b(best|top|worst|greatest|highest|lowest)\b`)
	vagueTimePattern    = regexp.MustCompile(`\b(recent|recently|lately)\b`)
	relativeTimePattern = regexp.MustCompile(`\b(latest|today|yesterday|(this|last|past|previous) (day|week|month|quarter|year))\b`)
	comparePattern      = regexp.MustCompile(`\b(compare|comparison|comparing)\b`)
	versusPattern       = regexp.MustCompile(`\b(vs|versus)\b\.?`)
	compareSidesPattern = regexp.MustCompile(`\b(and|vs|versus|to|with|against|than|between|by|per|each|across)\b`)
)

// DetectAmbiguity returns a clarification when the question is under-specified
// for the dataset, or nil when it can be answered as asked.
func DetectAmbiguity(question string, cq ClassifiedQuestion, md *metadata.DatasetMetadata) *Clarification {
	lower := strings.ToLower(question)

	if m := superlativePattern.FindString(lower); m != "" {
		numeric := md.NumericColumns()
		if len(numeric) > 1 && !mentionsAny(lower, numeric) {
			return &Clarification{
				Reason: fmt.Sprintf("%q can be measured by more than one metric", m),
				Questions: []string{
					fmt.Sprintf("Which metric should define %q: %s?", m, joinOr(numeric)),
				},
			}
		}
	}

	temporal := md.TemporalColumns()
	if m := vagueTimePattern.FindString(lower); m != "" {
		q := fmt.Sprintf("What time window should %q cover (for example the last 7 days, 30 days or a specific month)?", m)
		if len(temporal) > 0 {
			q = fmt.Sprintf("What time window should %q cover, based on %s (for example the last 7 days, 30 days or a specific month)?", m, joinOr(temporal))
		}
		clar := &Clarification{Reason: "the time window is not stated", Questions: []string{q}}
		if len(temporal) == 0 {
			clar.Questions = append(clar.Questions, "The dataset has no date or time column. Which column should be used to order records in time?")
		}
		return clar
	}
	if m := relativeTimePattern.FindString(lower); m != "" && len(temporal) == 0 {
		return &Clarification{
			Reason: "the question refers to time but the dataset has no date or time column",
			Questions: []string{
				fmt.Sprintf("The dataset has no date or time column. Which column should be used to determine %q?", m),
			},
		}
	}

	if comparePattern.MatchString(lower) {
		loc := comparePattern.FindStringIndex(lower)
		if !compareSidesPattern.MatchString(lower[loc[1]:]) {
			return compareClarification(md)
		}
	} else if loc := versusPattern.FindStringIndex(lower); loc != nil {
		before := strings.TrimSpace(lower[:loc[0]])
		after := strings.Trim(lower[loc[1]:], " ?.!")
		if before == "" || after == "" {
			return compareClarification(md)
		}
	}
	return nil
}

func compareClarification(md *metadata.DatasetMetadata) *Clarification {
	q := "What two things should be compared?"
	if cats := md.CategoricalColumns(); len(cats) > 0 {
		q = fmt.Sprintf("What two things should be compared? For example two values of %s, or every group of %s.", joinOr(cats), cats[0])
	}
	return &Clarification{Reason: "the items to compare are not named", Questions: []string{q}}
}

// mentionsAny reports whether the text names any of the columns, matching
// underscores as spaces.
func mentionsAny(lower string, columns []string) bool {
	for _, c := range columns {
		name := strings.ToLower(c)
		if wordPattern(name).MatchString(lower) {
			return true
		}
		if spaced := strings.ReplaceAll(name, "_", " "); spaced != name && wordPattern(spaced).MatchString(lower) {
			return true
		}
	}
	return false
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}
