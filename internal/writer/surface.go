package writer

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"

	"bwhelper/internal/quiz"
)

// MarkerClass 标记元素的 class
const MarkerClass = "bwh-marker"

// ErrNotFound 引用的元素不存在
var ErrNotFound = errors.New("element not found")

// Marker 标记元素的样式
type Marker struct {
	Title  string
	Color  string
	SizePx int
}

// Surface 可读写的页面
type Surface interface {
	// Snapshot 当前页面的 DOM 快照，隐藏元素已标注
	Snapshot(ctx context.Context) (*goquery.Document, error)
	// SetValue 设置输入框的值并触发 input/change
	SetValue(ctx context.Context, h quiz.Handle, value string) error
	// Select 选中单选/多选控件并触发 change
	Select(ctx context.Context, h quiz.Handle) error
	// Drag 模拟拖放，返回页面是否响应
	Drag(ctx context.Context, word, zone quiz.Handle) (bool, error)
	// Relocate 把词复制到放置区并隐藏原词
	Relocate(ctx context.Context, word, zone quiz.Handle) error
	// InsertMarker 在目标后插入标记，父元素已有标记时不插入
	InsertMarker(ctx context.Context, h quiz.Handle, m Marker) error
	// SetStatus 显示状态文本
	SetStatus(ctx context.Context, text string) error
}
