package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Locator 定位策略：从页面状态中找出一个元素，找不到时返回 false
type Locator struct {
	Name   string
	Locate func(root *goquery.Selection) (*goquery.Selection, bool)
}

// Chain 按顺序尝试的定位策略列表
type Chain []Locator

// First 返回第一个成功的策略结果
func (c Chain) First(root *goquery.Selection) (*goquery.Selection, string, bool) {
	for _, l := range c {
		if s, ok := l.Locate(root); ok {
			return s, l.Name, true
		}
	}
	return nil, "", false
}

// BySelector 选择器匹配的第一个可见元素
func BySelector(sel string) Locator {
	return Locator{
		Name: sel,
		Locate: func(root *goquery.Selection) (*goquery.Selection, bool) {
			var found *goquery.Selection
			root.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if Visible(s) {
					found = s
					return false
				}
				return true
			})
			return found, found != nil
		},
	}
}

// ByText 选择器匹配的第一个文本足够长的可见元素
func ByText(sel string, minLen int) Locator {
	return Locator{
		Name: sel,
		Locate: func(root *goquery.Selection) (*goquery.Selection, bool) {
			var found *goquery.Selection
			root.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if Visible(s) && utf8.RuneCountInString(CleanText(s.Text())) > minLen {
					found = s
					return false
				}
				return true
			})
			return found, found != nil
		},
	}
}

// ByQuestionLikeName 扫描所有可见元素，class、id 或属性名包含 "question" 的第一个元素
func ByQuestionLikeName() Locator {
	return Locator{
		Name: "scan:question-like",
		Locate: func(root *goquery.Selection) (*goquery.Selection, bool) {
			var found *goquery.Selection
			root.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if looksLikeQuestion(s.Get(0)) && Visible(s) {
					found = s
					return false
				}
				return true
			})
			return found, found != nil
		},
	}
}

func looksLikeQuestion(n *html.Node) bool {
	for _, a := range n.Attr {
		if strings.Contains(strings.ToLower(a.Key), "question") {
			return true
		}
		if (a.Key == "class" || a.Key == "id") && strings.Contains(strings.ToLower(a.Val), "question") {
			return true
		}
	}
	return false
}

// CleanText 合并空白
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
