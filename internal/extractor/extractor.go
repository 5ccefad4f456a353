package extractor

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bwhelper/internal/quiz"
)

// ErrNoQuestion 当前页面没有可见题目
var ErrNoQuestion = errors.New("no question")

const minTextLen = 5

// 页面元素选择器
const (
	textInputSelector = `input[type="text"], input:not([type]), textarea, [contenteditable="true"]`
	choiceSelector    = `input[type="radio"], input[type="checkbox"], [role="radio"], [role="checkbox"]`
	optionSelector    = `.option, .choice, .bw-option`
	wordSelector      = `[draggable="true"], .bw-draggable, .draggable, [class*="drag-word"], [class*="dragword"], .word-bank .word`
	zoneSelector      = `.bw-dropzone, .dropzone, .drop-zone, [class*="drop-zone"], [class*="dropzone"], [class*="drop-target"], [data-drop-zone]`
)

// DefaultContainers 题目容器定位策略
func DefaultContainers() Chain {
	return Chain{
		BySelector(".question.active"),
		BySelector(".question-container.active"),
		BySelector(".current-question"),
		BySelector(".visible-question"),
		BySelector(`.active[class*="question"]`),
		BySelector(".question:not(.hidden)"),
		BySelector(".question-container:not(.hidden)"),
		BySelector(`[class*="question"]:not([style*="display: none"])`),
		BySelector(".bw-question-wrapper:not(.hidden)"),
		ByQuestionLikeName(),
	}
}

// DefaultTexts 题干文本定位策略
func DefaultTexts() Chain {
	sels := []string{
		"p", "h2", "h3", ".question-text", `[class*="question-text"]`,
		".bw-question-title", ".bw-fill-in-the-blanks-question-text",
	}
	chain := make(Chain, 0, len(sels))
	for _, sel := range sels {
		chain = append(chain, ByText(sel, minTextLen))
	}
	return chain
}

// kindCues 没有输入控件时根据题干措辞推断题型
var kindCues = []struct {
	kind quiz.Kind
	cues []string
}{
	{quiz.KindDragWords, []string{"drag the", "drag each", "drag and drop", "sleep de", "sleep het", "sleep elk"}},
	{quiz.KindFreeText, []string{"fill in", "type the", "write down", "write the", "what is the name", "name of the", "vul in", "vul het", "schrijf"}},
}

// Extractor 题目提取器
type Extractor struct {
	Containers Chain
	Texts      Chain
}

// New 创建使用默认策略的提取器
func New() *Extractor {
	return &Extractor{
		Containers: DefaultContainers(),
		Texts:      DefaultTexts(),
	}
}

// Extract 提取当前可见的题目
func (e *Extractor) Extract(doc *goquery.Document) (*quiz.Question, error) {
	root := doc.Selection

	container, via, ok := e.Containers.First(root)
	if !ok {
		slog.Debug("未找到题目容器")
		return nil, ErrNoQuestion
	}
	slog.Debug("找到题目容器", "locator", via, "handle", HandleOf(container))

	q := &quiz.Question{Container: HandleOf(container)}

	if el, via, ok := e.Texts.First(container); ok {
		q.Text = CleanText(el.Text())
		slog.Debug("找到题干", "locator", via)
	} else {
		q.Text = firstTextNode(container.Get(0), minTextLen)
		slog.Debug("使用文本节点作为题干")
	}

	words, zones := dragElements(container)
	textInputs := visibleOnly(container.Find(textInputSelector))
	choices := container.Find(choiceSelector).FilterFunction(func(_ int, c *goquery.Selection) bool {
		return controlVisible(c)
	})

	switch {
	case words.Length() > 0 && zones.Length() > 0:
		q.Kind = quiz.KindDragWords
		fillDragWords(q, container, words, zones)
	case textInputs.Length() > 0:
		q.Kind = quiz.KindFreeText
		q.Input = HandleOf(textInputs.First())
	case choices.Length() > 0:
		q.Kind = quiz.KindMultipleChoice
		fillChoices(q, root, container, choices)
	default:
		q.Kind = inferKind(q.Text)
		if q.Kind == quiz.KindMultipleChoice {
			fillOptionElements(q, container)
		}
	}

	if q.Text == "" {
		slog.Debug("题干为空")
		return nil, ErrNoQuestion
	}

	slog.Debug("提取题目完成", "kind", q.Kind, "options", len(q.Options), "zones", len(q.ZoneHandles))
	return q, nil
}

func inferKind(text string) quiz.Kind {
	lower := strings.ToLower(text)
	for _, kc := range kindCues {
		for _, cue := range kc.cues {
			if strings.Contains(lower, cue) {
				return kc.kind
			}
		}
	}
	return quiz.KindMultipleChoice
}

// controlVisible 自定义样式的 radio/checkbox 常被隐藏，以其父元素的可见性为准
func controlVisible(s *goquery.Selection) bool {
	if s.Is("input") {
		return Visible(s.Parent())
	}
	return Visible(s)
}

func visibleOnly(s *goquery.Selection) *goquery.Selection {
	return s.FilterFunction(func(_ int, el *goquery.Selection) bool {
		return Visible(el)
	})
}

// dragElements 词库中尚未放置的词，以及最外层的放置区
func dragElements(container *goquery.Selection) (*goquery.Selection, *goquery.Selection) {
	zones := visibleOnly(container.Find(zoneSelector)).FilterFunction(func(_ int, z *goquery.Selection) bool {
		return z.ParentsFiltered(zoneSelector).Length() == 0
	})
	words := visibleOnly(container.Find(wordSelector)).FilterFunction(func(_ int, w *goquery.Selection) bool {
		return w.Find(wordSelector).Length() == 0 &&
			w.ParentsFiltered(zoneSelector).Length() == 0 &&
			!w.Is(zoneSelector)
	})
	return words, zones
}

func fillDragWords(q *quiz.Question, container, words, zones *goquery.Selection) {
	words.Each(func(_ int, w *goquery.Selection) {
		q.Words = append(q.Words, CleanText(w.Text()))
		q.WordHandles = append(q.WordHandles, HandleOf(w))
	})
	zones.Each(func(_ int, z *goquery.Selection) {
		q.ZoneHandles = append(q.ZoneHandles, HandleOf(z))
	})
	q.Sentence = blankedText(container.Get(0), nodeSet(zones), nodeSet(words))
	if q.Text == "" {
		q.Text = q.Sentence
	}
}

func fillChoices(q *quiz.Question, root, container, choices *goquery.Selection) {
	labels := make([]string, 0, choices.Length())
	found := false
	choices.Each(func(_ int, c *goquery.Selection) {
		q.Choices = append(q.Choices, HandleOf(c))
		l := choiceLabel(root, container, c)
		if l != "" {
			found = true
		}
		labels = append(labels, l)
	})

	if found {
		for i, l := range labels {
			if l == "" {
				labels[i] = CleanText(choices.Eq(i).Parent().Text())
			}
		}
		q.Options = labels
		return
	}

	var opts []string
	visibleOnly(container.Find(optionSelector)).Each(func(_ int, o *goquery.Selection) {
		if t := CleanText(o.Text()); t != "" {
			opts = append(opts, t)
		}
	})
	if len(opts) > 0 {
		q.Options = opts
		return
	}

	choices.Each(func(_ int, c *goquery.Selection) {
		q.Options = append(q.Options, CleanText(c.Parent().Text()))
	})
}

// fillOptionElements 没有 radio/checkbox 时把选项元素本身作为可点击的选项
func fillOptionElements(q *quiz.Question, container *goquery.Selection) {
	visibleOnly(container.Find(optionSelector)).Each(func(_ int, o *goquery.Selection) {
		if t := CleanText(o.Text()); t != "" {
			q.Options = append(q.Options, t)
			q.Choices = append(q.Choices, HandleOf(o))
		}
	})
}

// choiceLabel 选项对应的标签文本
func choiceLabel(root, container, c *goquery.Selection) string {
	if !c.Is("input") {
		return CleanText(c.Text())
	}
	if id, ok := c.Attr("id"); ok && id != "" {
		for _, scope := range []*goquery.Selection{container, root} {
			var text string
			scope.Find("label[for]").EachWithBreak(func(_ int, l *goquery.Selection) bool {
				if f, _ := l.Attr("for"); f == id {
					text = CleanText(l.Text())
					return false
				}
				return true
			})
			if text != "" {
				return text
			}
		}
	}
	if l := c.Closest("label"); l.Length() > 0 {
		if t := CleanText(l.Text()); t != "" {
			return t
		}
	}
	if w := c.Closest(optionSelector); w.Length() > 0 {
		return CleanText(w.Text())
	}
	return ""
}
