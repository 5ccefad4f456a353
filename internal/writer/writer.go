package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"bwhelper/internal/config"
	"bwhelper/internal/extractor"
	"bwhelper/internal/quiz"
)

var (
	// ErrNoTarget 题目没有可写入的元素
	ErrNoTarget = errors.New("no target element")
	// ErrUnsupportedKind 未知题型
	ErrUnsupportedKind = errors.New("unsupported question kind")
)

// Options 写入方式
type Options struct {
	Fill bool
	Mark bool
}

// Result 写入结果
type Result struct {
	OK        bool        `json:"ok"`
	Filled    int         `json:"filled"`
	Target    quiz.Handle `json:"target,omitempty"`
	Emergency bool        `json:"emergency"`
	Error     string      `json:"error,omitempty"`
}

// Writer 把答案写回页面
type Writer struct {
	style config.Marker
}

// New 创建 Writer
func New(style config.Marker) *Writer {
	return &Writer{style: style}
}

func (w *Writer) marker(title string) Marker {
	return Marker{Title: "BW: " + title, Color: w.style.Color, SizePx: w.style.SizePx}
}

// Write 写入答案，从不返回错误；失败时执行紧急兜底
func (w *Writer) Write(ctx context.Context, s Surface, q *quiz.Question, answer string, opts Options) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("写入答案时发生异常", "panic", r)
			res = w.safeEmergency(ctx, s, answer, opts)
			res.Error = fmt.Sprint(r)
		}
	}()

	var err error
	switch q.Kind {
	case quiz.KindFreeText:
		res, err = w.writeText(ctx, s, q, answer, opts)
	case quiz.KindMultipleChoice:
		res, err = w.writeChoice(ctx, s, q, answer, opts)
	case quiz.KindDragWords:
		res, err = w.writeDrag(ctx, s, q, answer, opts)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedKind, q.Kind)
	}
	if err == nil && res.OK {
		return res
	}

	slog.Warn("结构化写入失败，执行紧急兜底", "kind", q.Kind, "error", err)
	res = w.safeEmergency(ctx, s, answer, opts)
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (w *Writer) writeText(ctx context.Context, s Surface, q *quiz.Question, answer string, opts Options) (Result, error) {
	if q.Input == "" {
		return Result{}, ErrNoTarget
	}
	if opts.Fill {
		if err := s.SetValue(ctx, q.Input, answer); err != nil {
			return Result{}, fmt.Errorf("填写答案失败: %w", err)
		}
	}
	if opts.Mark {
		w.mark(ctx, s, q.Input, answer)
	}
	return Result{OK: true, Filled: 1, Target: q.Input}, nil
}

func (w *Writer) writeChoice(ctx context.Context, s Surface, q *quiz.Question, answer string, opts Options) (Result, error) {
	if len(q.Choices) == 0 {
		return Result{}, ErrNoTarget
	}
	idx := ChoiceIndex(q.Options, len(q.Choices), answer)
	target := q.Choices[idx]

	if opts.Fill {
		if err := s.Select(ctx, target); err != nil {
			return Result{}, fmt.Errorf("选择选项 %d 失败: %w", idx+1, err)
		}
	}
	if opts.Mark {
		title := answer
		if idx < len(q.Options) {
			title = q.Options[idx]
		}
		w.mark(ctx, s, target, title)
	}
	return Result{OK: true, Filled: 1, Target: target}, nil
}

func (w *Writer) writeDrag(ctx context.Context, s Surface, q *quiz.Question, answer string, opts Options) (Result, error) {
	if len(q.ZoneHandles) == 0 || len(q.WordHandles) == 0 {
		return Result{}, ErrNoTarget
	}
	var words []string
	if err := json.Unmarshal([]byte(answer), &words); err != nil {
		return Result{}, fmt.Errorf("解析拖词答案失败: %w", err)
	}

	res := Result{}
	used := make(map[int]bool)
	for i, zone := range q.ZoneHandles {
		if i >= len(words) {
			break
		}
		j := matchWord(q.Words, used, words[i])
		if j < 0 || j >= len(q.WordHandles) {
			slog.Debug("没有匹配的可拖动词", "zone", i+1, "word", words[i])
			continue
		}
		used[j] = true

		if opts.Fill {
			if err := w.place(ctx, s, q.WordHandles[j], zone); err != nil {
				slog.Warn("放置词失败", "zone", i+1, "word", words[i], "error", err)
				continue
			}
		}
		res.Filled++
		if res.Target == "" {
			res.Target = zone
		}
	}

	res.OK = res.Filled > 0
	if res.OK && opts.Mark {
		w.mark(ctx, s, res.Target, strings.Join(words, ", "))
	}
	return res, nil
}

// place 先模拟拖放，页面未响应时直接移动元素
func (w *Writer) place(ctx context.Context, s Surface, word, zone quiz.Handle) error {
	moved, err := s.Drag(ctx, word, zone)
	if err == nil && moved {
		return nil
	}
	if err != nil {
		slog.Debug("模拟拖放失败，改为直接移动", "error", err)
	}
	return s.Relocate(ctx, word, zone)
}

func (w *Writer) mark(ctx context.Context, s Surface, h quiz.Handle, title string) {
	if err := s.InsertMarker(ctx, h, w.marker(title)); err != nil {
		slog.Warn("插入标记失败", "target", h, "error", err)
	}
}

func (w *Writer) safeEmergency(ctx context.Context, s Surface, answer string, opts Options) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("紧急兜底发生异常", "panic", r)
			res = Result{Emergency: true, Error: fmt.Sprint(r)}
		}
	}()
	return w.emergency(ctx, s, answer, opts)
}

// emergency 扫描整个页面的选项控件，每组选中并标记一个
func (w *Writer) emergency(ctx context.Context, s Surface, answer string, opts Options) Result {
	res := Result{Emergency: true}
	if ctx.Err() != nil {
		res.Error = ctx.Err().Error()
		return res
	}

	doc, err := s.Snapshot(ctx)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	groups := extractor.ChoiceGroups(doc)
	targets := make([]quiz.Handle, 0, len(groups))
	for _, group := range groups {
		target := group[ChoiceIndex(nil, len(group), answer)]
		if opts.Fill {
			if err := s.Select(ctx, target); err != nil {
				slog.Debug("紧急兜底选择失败", "target", target, "error", err)
				continue
			}
		}
		targets = append(targets, target)
	}

	// 倒序插入，前面元素的路径不受影响
	if opts.Mark {
		for i := len(targets) - 1; i >= 0; i-- {
			w.mark(ctx, s, targets[i], "emergency")
		}
	}

	res.Filled = len(targets)
	res.OK = len(targets) > 0
	if res.OK {
		res.Target = targets[0]
	}
	slog.Info("紧急兜底完成", "groups", len(groups), "selected", len(targets))
	return res
}

// ChoiceIndex 选出答案对应的选项下标（从 0 开始）
// 依次尝试：范围内的序号、双向包含匹配、第一个选项
func ChoiceIndex(options []string, n int, answer string) int {
	a := strings.TrimSpace(answer)
	if v, err := strconv.Atoi(a); err == nil && v >= 1 && v <= n {
		return v - 1
	}

	a = strings.ToLower(a)
	if a != "" {
		for i, opt := range options {
			if i >= n {
				break
			}
			o := strings.ToLower(strings.TrimSpace(opt))
			if o != "" && (strings.Contains(o, a) || strings.Contains(a, o)) {
				return i
			}
		}
	}
	return 0
}

func matchWord(words []string, used map[int]bool, want string) int {
	want = strings.ToLower(strings.TrimSpace(want))
	for i, w := range words {
		if !used[i] && strings.ToLower(strings.TrimSpace(w)) == want {
			return i
		}
	}
	return -1
}
