package quiz

// Kind 题目类型
type Kind string

const (
	KindFreeText       Kind = "free-text"
	KindMultipleChoice Kind = "multiple-choice"
	KindDragWords      Kind = "drag-words"
)

// Valid 检查题型是否受支持
func (k Kind) Valid() bool {
	switch k {
	case KindFreeText, KindMultipleChoice, KindDragWords:
		return true
	}
	return false
}

// Handle 页面元素引用，是一条能在快照和真实页面中定位同一元素的 CSS 路径
type Handle string

// Question 当前可见的题目
type Question struct {
	Text      string `json:"text"`
	Kind      Kind   `json:"kind"`
	Container Handle `json:"container"`

	// 选择题
	Options []string `json:"options,omitempty"`
	Choices []Handle `json:"choices,omitempty"`

	// 填空题
	Input Handle `json:"input,omitempty"`

	// 拖词题
	Sentence    string   `json:"sentence,omitempty"`
	Words       []string `json:"words,omitempty"`
	WordHandles []Handle `json:"word_handles,omitempty"`
	ZoneHandles []Handle `json:"zone_handles,omitempty"`
}

// OptionCount 参与缓存键计算的选项数量
func (q *Question) OptionCount() int {
	switch q.Kind {
	case KindDragWords:
		return len(q.Words)
	default:
		return len(q.Options)
	}
}
