package resolver

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"bwhelper/internal/quiz"
)

var (
	firstNumber  = regexp.MustCompile(`\d+`)
	numberedLine = regexp.MustCompile(`^\s*(\d+)\s*[.):\-]\s*(.+?)\s*$`)
)

// ParseAnswer 按题型解析模型回复，无法解析时返回 false
func ParseAnswer(kind quiz.Kind, raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}

	switch kind {
	case quiz.KindMultipleChoice:
		if m := firstNumber.FindString(text); m != "" {
			n, err := strconv.Atoi(m)
			if err == nil {
				return strconv.Itoa(n), true
			}
		}
		return text, true
	case quiz.KindDragWords:
		words := parseWordList(text)
		if len(words) == 0 {
			return "", false
		}
		data, err := json.Marshal(words)
		if err != nil {
			return "", false
		}
		return string(data), true
	default:
		return text, true
	}
}

// parseWordList 依次尝试编号列表、JSON 数组、逗号分隔
func parseWordList(text string) []string {
	var words []string
	for _, line := range strings.Split(text, "\n") {
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			if w := cleanWord(m[2]); w != "" {
				words = append(words, w)
			}
		}
	}
	if len(words) > 0 {
		return words
	}

	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		var arr []string
		if err := json.Unmarshal([]byte(text[start:end+1]), &arr); err == nil {
			for _, w := range arr {
				if w = cleanWord(w); w != "" {
					words = append(words, w)
				}
			}
			if len(words) > 0 {
				return words
			}
		}
	}

	if !strings.Contains(text, "\n") && strings.Contains(text, ",") {
		for _, part := range strings.Split(text, ",") {
			if w := cleanWord(part); w != "" {
				words = append(words, w)
			}
		}
	}
	return words
}

func cleanWord(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "\"'`*."))
}

// DecodeWords 解析拖词题答案
func DecodeWords(answer string) ([]string, error) {
	var words []string
	if err := json.Unmarshal([]byte(answer), &words); err != nil {
		return nil, err
	}
	return words, nil
}
