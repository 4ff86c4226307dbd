package synthesis

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cjhyy/interview-QA-help/internal/domain"
)

const defaultItemScore = 3

var typeAliases = map[string]domain.QAType{
	"concept":        domain.QATypeConcept,
	"conceptual":     domain.QATypeConcept,
	"definition":     domain.QATypeConcept,
	"概念":             domain.QATypeConcept,
	"概念理解":           domain.QATypeConcept,
	"implementation": domain.QATypeImplementation,
	"coding":         domain.QATypeImplementation,
	"实现":             domain.QATypeImplementation,
	"实现细节":           domain.QATypeImplementation,
	"application":    domain.QATypeApplication,
	"usage":          domain.QATypeApplication,
	"应用":             domain.QATypeApplication,
	"应用场景":           domain.QATypeApplication,
	"tradeoffs":      domain.QATypeTradeoffs,
	"tradeoff":       domain.QATypeTradeoffs,
	"trade-offs":     domain.QATypeTradeoffs,
	"trade-off":      domain.QATypeTradeoffs,
	"权衡":             domain.QATypeTradeoffs,
	"优缺点":            domain.QATypeTradeoffs,
	"comparison":     domain.QATypeComparison,
	"compare":        domain.QATypeComparison,
	"对比":             domain.QATypeComparison,
	"比较":             domain.QATypeComparison,
	"experience":     domain.QATypeExperience,
	"practice":       domain.QATypeExperience,
	"经验":             domain.QATypeExperience,
	"实践经验":           domain.QATypeExperience,
	"other":          domain.QATypeOther,
}

var difficultyAliases = map[string]domain.Difficulty{
	"basic":        domain.DifficultyBasic,
	"easy":         domain.DifficultyBasic,
	"beginner":     domain.DifficultyBasic,
	"初级":           domain.DifficultyBasic,
	"基础":           domain.DifficultyBasic,
	"简单":           domain.DifficultyBasic,
	"intermediate": domain.DifficultyIntermediate,
	"medium":       domain.DifficultyIntermediate,
	"中级":           domain.DifficultyIntermediate,
	"中等":           domain.DifficultyIntermediate,
	"advanced":     domain.DifficultyAdvanced,
	"hard":         domain.DifficultyAdvanced,
	"expert":       domain.DifficultyAdvanced,
	"高级":           domain.DifficultyAdvanced,
	"困难":           domain.DifficultyAdvanced,
}

// normalizeItem decodes one element and coerces it into a QA item. Elements
// that are not objects or lack a question or answer are rejected.
func normalizeItem(raw json.RawMessage) (domain.QAItem, bool) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.QAItem{}, false
	}

	question := strings.TrimSpace(scalarString(fields["question"]))
	answer := strings.TrimSpace(scalarString(fields["answer"]))
	if question == "" || answer == "" {
		return domain.QAItem{}, false
	}

	return domain.QAItem{
		Question:   domain.Truncate(question, domain.MaxQuestionLength),
		Answer:     domain.Truncate(answer, domain.MaxAnswerLength),
		Type:       NormalizeType(scalarString(fields["type"])),
		Difficulty: NormalizeDifficulty(scalarString(fields["difficulty"])),
		Tags:       coerceTags(fields["tags"]),
		Score:      coerceScore(fields["score"]),
	}, true
}

// NormalizeType maps labels onto the QA taxonomy; unknown labels become other.
func NormalizeType(label string) domain.QAType {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(label))]; ok {
		return t
	}
	return domain.QATypeOther
}

// NormalizeDifficulty maps labels onto the difficulty scale, defaulting to intermediate.
func NormalizeDifficulty(label string) domain.Difficulty {
	if d, ok := difficultyAliases[strings.ToLower(strings.TrimSpace(label))]; ok {
		return d
	}
	return domain.DifficultyIntermediate
}

func coerceTags(value any) []string {
	var raw []any
	switch v := value.(type) {
	case nil:
		return []string{}
	case []any:
		raw = v
	default:
		raw = []any{v}
	}

	tags := make([]string, 0, len(raw))
	seen := map[string]struct{}{}
	for _, entry := range raw {
		tag := strings.TrimSpace(scalarString(entry))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func coerceScore(value any) float64 {
	var score float64
	switch v := value.(type) {
	case float64:
		score = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultItemScore
		}
		score = parsed
	default:
		return defaultItemScore
	}
	if math.IsNaN(score) {
		return defaultItemScore
	}
	return math.Max(1, math.Min(5, score))
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	case []any, map[string]any:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
