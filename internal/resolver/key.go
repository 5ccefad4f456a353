package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Key 缓存键
type Key string

var (
	questionMarker = regexp.MustCompile(`(?i)^\s*(question|vraag)\s*\d+\s*[☆★:.)\-]*\s*`)
	parenPrefix    = regexp.MustCompile(`^\s*\([^)]*\)\s*`)
)

// CleanQuestion 去掉开头的 "Question N" / "VRAAG N" 标记和括号前缀，保留大小写
func CleanQuestion(text string) string {
	s := questionMarker.ReplaceAllString(text, "")
	s = parenPrefix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Normalize 计算缓存键使用的规范化题干
func Normalize(text string) string {
	return strings.ToLower(CleanQuestion(text))
}

// DeriveKey 由规范化题干和选项数量计算缓存键
func DeriveKey(text string, optionCount int) (Key, error) {
	n := Normalize(text)
	if n == "" {
		return "", ErrEmptyKey
	}
	sum := sha256.Sum256([]byte(n))
	return Key(fmt.Sprintf("%s-o%d", hex.EncodeToString(sum[:8]), optionCount)), nil
}
