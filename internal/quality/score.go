package quality

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/cjhyy/interview-QA-help/internal/domain"
)

const (
	healthyMin = 5
	healthyMax = 15
	minimum    = 3
	farAbove   = 20

	emptyFloor = 2.0
)

// ItemScore rates a single pair on a 1..5 scale.
func ItemScore(item domain.QAItem) float64 {
	score := 3.0
	question := strings.TrimSpace(item.Question)
	if utf8.RuneCountInString(question) > 10 {
		score += 0.5
	}
	if strings.HasSuffix(question, "?") || strings.HasSuffix(question, "？") {
		score += 0.3
	}
	answerLen := utf8.RuneCountInString(strings.TrimSpace(item.Answer))
	if answerLen >= 50 {
		score += 0.5
	}
	if answerLen >= 200 {
		score += 0.5
	}
	if len(item.Tags) > 0 {
		score += 0.2
	}
	return round1(clamp(score, 1, 5))
}

// Aggregate rates the whole set on a 0..5 scale.
func Aggregate(items []domain.QAItem) float64 {
	if len(items) == 0 {
		return emptyFloor
	}

	score := 3.0
	count := len(items)
	switch {
	case count >= healthyMin && count <= healthyMax:
		score++
	case count < minimum:
		score--
	case count > farAbove:
		score -= 0.5
	}

	valid := 0
	for _, item := range items {
		if strings.TrimSpace(item.Question) != "" && strings.TrimSpace(item.Answer) != "" {
			valid++
		}
	}
	ratio := float64(valid) / float64(count)
	if ratio >= 0.9 {
		score += 0.5
	} else if ratio < 0.7 {
		score -= 0.5
	}

	return round1(clamp(score, 0, 5))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
