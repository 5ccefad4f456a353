package resolver

import (
	"strings"

	"bwhelper/internal/config"
	"bwhelper/internal/quiz"
)

// CannotDetermine 填空题的通用兜底答案
const CannotDetermine = "The answer cannot be determined with certainty."

// Rule 题目关键词匹配时使用的固定答案
type Rule struct {
	Kind     quiz.Kind
	Keywords []string
	Answer   string
}

// Matches 题型一致且题干包含任一关键词
func (r Rule) Matches(q *quiz.Question) bool {
	if r.Kind != q.Kind {
		return false
	}
	text := strings.ToLower(q.Text)
	for _, kw := range r.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// RulesFromConfig 转换配置中的兜底规则
func RulesFromConfig(rules []config.FallbackRule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, Rule{Kind: quiz.Kind(r.Kind), Keywords: r.Keywords, Answer: r.Answer})
	}
	return out
}

// DefaultAnswer 各题型的通用兜底答案
func DefaultAnswer(kind quiz.Kind) (string, bool) {
	switch kind {
	case quiz.KindMultipleChoice:
		return "1", true
	case quiz.KindFreeText:
		return CannotDetermine, true
	case quiz.KindDragWords:
		return "[]", true
	}
	return "", false
}

// fallbackFor 先匹配规则表，再退回通用答案
func fallbackFor(rules []Rule, q *quiz.Question) (string, string, bool) {
	for _, r := range rules {
		if r.Matches(q) {
			return r.Answer, "rule", true
		}
	}
	answer, ok := DefaultAnswer(q.Kind)
	return answer, "default", ok
}
