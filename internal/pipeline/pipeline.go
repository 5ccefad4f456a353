package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bwhelper/internal/config"
	"bwhelper/internal/extractor"
	"bwhelper/internal/quiz"
	"bwhelper/internal/resolver"
	"bwhelper/internal/writer"
)

// 页面状态文本
const (
	StatusReady      = "Ready"
	StatusScanning   = "Scanning..."
	StatusNoQuestion = "No question"
	StatusProcessing = "Processing..."
	StatusBusy       = "Busy"
	StatusAIFailed   = "AI failed"
	StatusFilled     = "Filled ✓"
	StatusMarked     = "Marked ✓"
	StatusFillFailed = "Fill failed"
	StatusNavigation = "Nav"
)

// LivePage 能通知翻页的页面
type LivePage interface {
	writer.Surface
	InstallNavHooks(ctx context.Context) error
	WaitNavigation(ctx context.Context) error
}

// Outcome 一次处理的结果
type Outcome struct {
	Question *quiz.Question `json:"question,omitempty"`
	Answer   resolver.Answer `json:"answer"`
	Result   writer.Result   `json:"result"`
	Status   string          `json:"status"`
}

// Event 进度事件
type Event struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// ProgressCallback 进度回调函数类型
type ProgressCallback func(event Event)

// Options 流水线参数
type Options struct {
	SettleDelay   time.Duration
	FillDelay     time.Duration
	MarkByDefault bool
	Callback      ProgressCallback
}

// Pipeline 对当前可见题目依次执行 提取 → 解析 → 写入
type Pipeline struct {
	extractor *extractor.Extractor
	resolver  *resolver.Resolver
	writer    *writer.Writer
	marked    *MarkedSet
	opts      Options
}

// New 创建流水线
func New(ex *extractor.Extractor, res *resolver.Resolver, wr *writer.Writer, opts Options) *Pipeline {
	return &Pipeline{
		extractor: ex,
		resolver:  res,
		writer:    wr,
		marked:    NewMarkedSet(),
		opts:      opts,
	}
}

// FromConfig 按配置组装流水线
func FromConfig(cfg *config.Config, gen resolver.Generator, callback ProgressCallback) *Pipeline {
	style := cfg.MarkerStyle()
	return New(
		extractor.New(),
		resolver.New(gen, resolver.RulesFromConfig(cfg.Fallbacks())),
		writer.New(style),
		Options{
			SettleDelay:   cfg.SettleDelay(),
			FillDelay:     cfg.FillDelay(),
			MarkByDefault: style.Enabled,
			Callback:      callback,
		},
	)
}

// Resolver 返回流水线使用的解析器
func (p *Pipeline) Resolver() *resolver.Resolver {
	return p.resolver
}

// Marked 返回已标记集合
func (p *Pipeline) Marked() *MarkedSet {
	return p.marked
}

func (p *Pipeline) emit(eventType, message string, outcome *Outcome) {
	if p.opts.Callback != nil {
		p.opts.Callback(Event{Type: eventType, Message: message, Outcome: outcome})
	}
}

func (p *Pipeline) status(ctx context.Context, page writer.Surface, text string) {
	if err := page.SetStatus(ctx, text); err != nil {
		slog.Debug("更新页面状态失败", "status", text, "error", err)
	}
}

// finish 显示最终状态并发送事件
func (p *Pipeline) finish(ctx context.Context, page writer.Surface, out Outcome) Outcome {
	p.status(ctx, page, out.Status)
	p.emit("question", out.Status, &out)
	return out
}

// ProcessCurrent 处理当前可见的题目
func (p *Pipeline) ProcessCurrent(ctx context.Context, page writer.Surface, action Action, model string) (Outcome, error) {
	p.status(ctx, page, StatusScanning)
	if err := sleep(ctx, p.opts.SettleDelay); err != nil {
		return Outcome{}, err
	}

	doc, err := page.Snapshot(ctx)
	if err != nil {
		return p.finish(ctx, page, Outcome{Status: StatusNoQuestion}), fmt.Errorf("获取页面快照失败: %w", err)
	}

	q, err := p.extractor.Extract(doc)
	if err != nil {
		slog.Info("当前页面没有题目")
		return p.finish(ctx, page, Outcome{Status: StatusNoQuestion}), err
	}
	slog.Info("找到题目", "kind", q.Kind, "text", excerpt(q.Text, 40))

	p.status(ctx, page, StatusProcessing)
	ans, err := p.resolver.Resolve(ctx, q, model)
	if err != nil {
		status := StatusAIFailed
		if errors.Is(err, resolver.ErrBusy) {
			status = StatusBusy
		}
		slog.Warn("解析答案失败", "key", ans.Key, "error", err)
		return p.finish(ctx, page, Outcome{Question: q, Answer: ans, Status: status}), err
	}
	slog.Info("得到答案", "key", ans.Key, "answer", excerpt(ans.Text, 60), "cached", ans.Cached, "fallback", ans.Fallback)

	opts := action.Options(p.opts.MarkByDefault)
	if opts.Mark && p.marked.Has(ans.Key) {
		slog.Debug("题目已标记，跳过标记", "key", ans.Key)
		opts.Mark = false
		if !opts.Fill {
			return p.finish(ctx, page, Outcome{Question: q, Answer: ans, Status: StatusMarked,
				Result: writer.Result{OK: true}}), nil
		}
	}

	if err := sleep(ctx, p.opts.FillDelay); err != nil {
		return Outcome{Question: q, Answer: ans}, err
	}

	res := p.writer.Write(ctx, page, q, ans.Text, opts)
	if res.OK && opts.Mark {
		p.marked.Add(ans.Key)
	}

	out := Outcome{Question: q, Answer: ans, Result: res}
	switch {
	case !res.OK:
		out.Status = StatusFillFailed
	case opts.Fill:
		out.Status = StatusFilled
	default:
		out.Status = StatusMarked
	}
	return p.finish(ctx, page, out), nil
}

// Watch 处理当前题目，然后每次翻页后再处理，直到 ctx 结束
// 翻页前发出的请求仍会写入，可能写到已过期的页面
func (p *Pipeline) Watch(ctx context.Context, page LivePage, action Action, model string) error {
	if err := page.InstallNavHooks(ctx); err != nil {
		return fmt.Errorf("安装翻页监听失败: %w", err)
	}
	p.status(ctx, page, StatusReady)
	p.emit("log", "已开始监听翻页", nil)

	for {
		if _, err := p.ProcessCurrent(ctx, page, action, model); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("本次处理未完成", "error", err)
		}

		if err := page.WaitNavigation(ctx); err != nil {
			return err
		}
		p.status(ctx, page, StatusNavigation)
		p.emit("log", "检测到翻页", nil)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
