package writer

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"bwhelper/internal/quiz"
)

// DocumentSurface 基于 goquery 的离线页面
type DocumentSurface struct {
	mu       sync.Mutex
	doc      *goquery.Document
	statuses []string
}

// NewDocumentSurface 包装已解析的文档
func NewDocumentSurface(doc *goquery.Document) *DocumentSurface {
	return &DocumentSurface{doc: doc}
}

// NewDocumentSurfaceFromHTML 解析 HTML 并包装
func NewDocumentSurfaceFromHTML(page string) (*DocumentSurface, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败: %w", err)
	}
	return NewDocumentSurface(doc), nil
}

func (d *DocumentSurface) find(h quiz.Handle) (*goquery.Selection, error) {
	if h == "" {
		return nil, ErrNotFound
	}
	sel := d.doc.Find(string(h))
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	return sel.First(), nil
}

// Snapshot 返回底层文档，写入会直接反映在其中
func (d *DocumentSurface) Snapshot(ctx context.Context) (*goquery.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc, nil
}

// SetValue 输入框写 value 属性，textarea 和 contenteditable 写文本
func (d *DocumentSurface) SetValue(ctx context.Context, h quiz.Handle, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel, err := d.find(h)
	if err != nil {
		return err
	}
	if goquery.NodeName(sel) == "input" {
		sel.SetAttr("value", value)
		return nil
	}
	sel.SetText(value)
	return nil
}

// Select 同名单选框互斥
func (d *DocumentSurface) Select(ctx context.Context, h quiz.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel, err := d.find(h)
	if err != nil {
		return err
	}

	if goquery.NodeName(sel) == "input" {
		typ, _ := sel.Attr("type")
		if strings.EqualFold(typ, "radio") {
			if name, ok := sel.Attr("name"); ok && name != "" {
				d.doc.Find(fmt.Sprintf(`input[type="radio"][name="%s"]`, name)).RemoveAttr("checked")
			}
		}
		sel.SetAttr("checked", "checked")
		return nil
	}

	switch role, _ := sel.Attr("role"); role {
	case "radio":
		sel.Parent().ChildrenFiltered(`[role="radio"]`).SetAttr("aria-checked", "false")
		sel.SetAttr("aria-checked", "true")
	case "checkbox":
		sel.SetAttr("aria-checked", "true")
	default:
		sel.SetAttr("aria-selected", "true")
		sel.AddClass("selected")
	}
	return nil
}

// Drag 离线文档没有事件处理，总是返回 false
func (d *DocumentSurface) Drag(ctx context.Context, word, zone quiz.Handle) (bool, error) {
	return false, nil
}

// Relocate 复制词到放置区，隐藏原词
func (d *DocumentSurface) Relocate(ctx context.Context, word, zone quiz.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, err := d.find(word)
	if err != nil {
		return err
	}
	z, err := d.find(zone)
	if err != nil {
		return err
	}
	z.AppendSelection(w.Clone())
	w.SetAttr("style", "display: none")
	return nil
}

// InsertMarker 在目标后插入标记，目标后已有标记时跳过
func (d *DocumentSurface) InsertMarker(ctx context.Context, h quiz.Handle, m Marker) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel, err := d.find(h)
	if err != nil {
		return err
	}
	// 同一父元素下可能有多组选项，只看目标自己后面是否已有标记
	if sel.Next().Is("." + MarkerClass) {
		return nil
	}
	sel.AfterHtml(markerHTML(m))
	return nil
}

// SetStatus 记录状态文本
func (d *DocumentSurface) SetStatus(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, text)
	return nil
}

// Statuses 已显示的状态文本
func (d *DocumentSurface) Statuses() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.statuses...)
}

// HTML 序列化当前页面
func (d *DocumentSurface) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

func markerHTML(m Marker) string {
	size := m.SizePx
	if size <= 0 {
		size = 8
	}
	color := m.Color
	if color == "" {
		color = "#43a047"
	}
	return fmt.Sprintf(
		`<span class="%s" title="%s" style="display:inline-block;width:%dpx;height:%dpx;margin-left:4px;border-radius:50%%;background:%s"></span>`,
		MarkerClass, html.EscapeString(m.Title), size, size, html.EscapeString(color),
	)
}
