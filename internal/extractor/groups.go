package extractor

import (
	"github.com/PuerkitoBio/goquery"

	"bwhelper/internal/quiz"
)

// ChoiceGroups 扫描整个页面中类似选项的控件，按所属容器分组
func ChoiceGroups(doc *goquery.Document) [][]quiz.Handle {
	var (
		order  []string
		groups = make(map[string][]quiz.Handle)
	)

	doc.Find(choiceSelector + ", " + optionSelector).Each(func(_ int, s *goquery.Selection) {
		if !controlVisible(s) {
			return
		}
		// 包含 input 的选项容器由 input 本身代表
		if !s.Is(choiceSelector) && s.Find(choiceSelector).Length() > 0 {
			return
		}

		var key string
		if name, ok := s.Attr("name"); ok && name != "" && s.Is("input") {
			key = "name:" + name
		} else {
			unit := s.Closest("label, " + optionSelector)
			if unit.Length() == 0 {
				unit = s
			}
			key = string(HandleOf(unit.Parent()))
		}

		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], HandleOf(s))
	})

	out := make([][]quiz.Handle, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}
