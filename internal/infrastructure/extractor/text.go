// Package extractor turns fetched web pages into plain text for generation.
package extractor

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	spaceRun       = regexp.MustCompile(`\s+`)
	disallowedText = regexp.MustCompile(`[^\x{4e00}-\x{9fa5}\w\s.,!?;:()\[\]{}"'\-，。！？；：、“”‘’（）《》]`)
	keywordNoise   = regexp.MustCompile(`[^\x{4e00}-\x{9fa5}\w\s]`)
)

const (
	cjkThreshold   = 0.3
	latinThreshold = 0.5
	minKeywordLen  = 3
)

func collapseSpaces(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// cleanText normalizes whitespace and keeps letters, digits, CJK and basic punctuation.
func cleanText(s string) string {
	return collapseSpaces(disallowedText.ReplaceAllString(collapseSpaces(s), ""))
}

// Keywords returns the n most frequent tokens longer than two runes. Ties keep
// first-seen order.
func Keywords(content string, n int) []string {
	tokens := strings.Fields(keywordNoise.ReplaceAllString(strings.ToLower(content), " "))

	counts := map[string]int{}
	var order []string
	for _, token := range tokens {
		if utf8.RuneCountInString(token) < minKeywordLen {
			continue
		}
		if _, seen := counts[token]; !seen {
			order = append(order, token)
		}
		counts[token]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// DetectLanguage classifies text as zh, en or other by script ratios.
func DetectLanguage(content string) string {
	total, cjk, latin := 0, 0, 0
	for _, r := range content {
		total++
		switch {
		case r >= 0x4e00 && r <= 0x9fa5:
			cjk++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			latin++
		}
	}
	if total == 0 {
		return "other"
	}
	if float64(cjk)/float64(total) > cjkThreshold {
		return "zh"
	}
	if float64(latin)/float64(total) > latinThreshold {
		return "en"
	}
	return "other"
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
