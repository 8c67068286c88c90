package query

import (
	"regexp"
	"strings"
)

var disallowedKeywords = regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|ALTER|CREATE|TRUNCATE)\b`)

// CheckSafety rejects text containing any mutating statement keyword,
// wherever it appears.
func CheckSafety(text string) error {
	if m := disallowedKeywords.FindString(text); m != "" {
		return &DisallowedKeywordError{Keyword: strings.ToUpper(m)}
	}
	return nil
}
