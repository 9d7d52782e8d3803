package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// collapses runs of whitespace into single spaces, used for
// cell text pulled out of rendered html
func CollapseSpace(s string) string {
	s = strings.TrimSpace(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// KeywordScore counts how many of the keywords occur in the
// normalized form of name. Repeated occurrences of the same keyword
// only count once, so the score is bounded by len(keywords).
func KeywordScore(name string, keywords []string) int {
	name = NormalizeName(name)
	score := 0
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(name, NormalizeName(k)) {
			score++
		}
	}
	return score
}
