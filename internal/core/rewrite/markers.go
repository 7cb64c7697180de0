package rewrite

import (
	"regexp"
	"strings"
	"unicode"
)

var comparisonWords = map[string]struct{}{
	"compare":      {},
	"compared":     {},
	"comparing":    {},
	"comparison":   {},
	"difference":   {},
	"differences":  {},
	"differ":       {},
	"differs":      {},
	"versus":       {},
	"vs":           {},
	"and":          {},
	"respectively": {},
}

var comparisonCJK = []string{"对比", "差异", "分别", "和", "与"}

var timeWords = map[string]struct{}{
	"today":     {},
	"yesterday": {},
	"tomorrow":  {},
	"tonight":   {},
	"ago":       {},
	"recent":    {},
	"recently":  {},
	"latest":    {},
	"day":       {},
	"days":      {},
	"week":      {},
	"weeks":     {},
	"month":     {},
	"months":    {},
	"year":      {},
	"years":     {},
	"quarter":   {},
	"weekly":    {},
	"monthly":   {},
	"yearly":    {},
	"annual":    {},
}

var timeCJK = []string{"年", "月", "昨天", "今天", "明天", "上周", "上个月"}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

var timelineMarkers = []string{"timeline", "milestones", "时间线"}

// words splits text into lowercase runs of ASCII letters.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r > unicode.MaxASCII || !unicode.IsLetter(r)
	})
}

func hasWord(text string, set map[string]struct{}) bool {
	for _, w := range words(text) {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// HasComparison reports a contrast or conjunction marker.
func HasComparison(query string) bool {
	return hasWord(query, comparisonWords) || containsAny(query, comparisonCJK)
}

// HasTimeReference reports a year, a relative time word or a date unit.
func HasTimeReference(query string) bool {
	return yearPattern.MatchString(query) || hasWord(query, timeWords) || containsAny(query, timeCJK)
}

func hasTimeline(query string) bool {
	return containsAny(strings.ToLower(query), timelineMarkers)
}
