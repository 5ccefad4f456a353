package extractor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"bwhelper/internal/quiz"
)

const (
	// HiddenAttr 浏览器根据 getComputedStyle 写入的隐藏标记
	HiddenAttr = "data-bwh-hidden"
	// IDAttr 浏览器为元素分配的稳定编号，拖放移动节点后仍然有效
	IDAttr = "data-bwh-id"
)

// HandleOf 计算元素的引用：有编号时用编号，否则用 CSS 路径
func HandleOf(s *goquery.Selection) quiz.Handle {
	if s == nil || s.Length() == 0 {
		return ""
	}
	if id, ok := s.First().Attr(IDAttr); ok && id != "" {
		return quiz.Handle(fmt.Sprintf(`[%s="%s"]`, IDAttr, id))
	}
	var parts []string
	for n := s.Get(0); n != nil && n.Type == html.ElementNode; n = n.Parent {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			parts = append(parts, n.Data)
			break
		}
		idx := 1
		for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode {
				idx++
			}
		}
		parts = append(parts, fmt.Sprintf("%s:nth-child(%d)", n.Data, idx))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return quiz.Handle(strings.Join(parts, " > "))
}

// Visible 元素及其祖先都未被隐藏
func Visible(s *goquery.Selection) bool {
	if s == nil || s.Length() == 0 {
		return false
	}
	return !nodeHidden(s.Get(0))
}

func nodeHidden(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && selfHidden(n) {
			return true
		}
	}
	return false
}

func selfHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden", HiddenAttr:
			return true
		case "aria-hidden":
			if a.Val == "true" {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		case "class":
			for _, c := range strings.Fields(a.Val) {
				if c == "hidden" {
					return true
				}
			}
		case "type":
			if n.Data == "input" && a.Val == "hidden" {
				return true
			}
		}
	}
	return false
}

func skippedElement(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "script", "style", "noscript", "template":
		return true
	}
	return selfHidden(n)
}

// firstTextNode 深度优先查找第一个足够长的文本节点
func firstTextNode(n *html.Node, minLen int) string {
	if skippedElement(n) {
		return ""
	}
	if n.Type == html.TextNode {
		if t := CleanText(n.Data); utf8.RuneCountInString(t) > minLen {
			return t
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := firstTextNode(c, minLen); t != "" {
			return t
		}
	}
	return ""
}

// blankedText 容器文本，放置区替换为 ___，跳过词库中的词
func blankedText(root *html.Node, zones, words map[*html.Node]bool) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if skippedElement(n) || words[n] {
			return
		}
		if zones[n] {
			b.WriteString(" ___ ")
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return CleanText(b.String())
}

func nodeSet(s *goquery.Selection) map[*html.Node]bool {
	set := make(map[*html.Node]bool, s.Length())
	for _, n := range s.Nodes {
		set[n] = true
	}
	return set
}
