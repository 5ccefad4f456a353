package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"bwhelper/internal/config"
	"bwhelper/internal/extractor"
	"bwhelper/internal/processor"
	"bwhelper/internal/quiz"
	"bwhelper/internal/writer"
)

const (
	// 翻页按钮
	navSelector = `.nextarrow, .move-forward, [aria-label="Volgende vraag"], .bw-icon-angle-right, .next, .forward, ` +
		`.prevarrow, [aria-label="Vorige vraag"], .bw-icon-angle-left, .prev, .previous, .back, .navbutton, [class*="arrow"]`

	pageLoadWaitTime = 30 * time.Second
	pollInterval     = 300 * time.Millisecond
)

// ErrNotStarted 浏览器尚未启动
var ErrNotStarted = errors.New("browser session not started")

// Session 由 chromedp 驱动的真实页面
type Session struct {
	opts config.Browser

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	navSeen     int

	PollInterval time.Duration
}

// NewSession 创建浏览器会话
func NewSession(opts config.Browser) *Session {
	return &Session{opts: opts, PollInterval: pollInterval}
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(processor.UserAgent),
	)
	if s.opts.ChromeBinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.ChromeBinaryPath))
	}
	if s.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.opts.UserDataDir))
	}
	return opts
}

// Start 启动浏览器
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return nil
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	s.ctx, s.cancel = chromedp.NewContext(s.allocCtx)

	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		if e, ok := ev.(*runtime.EventConsoleAPICalled); ok {
			var parts []string
			for _, arg := range e.Args {
				if len(arg.Value) > 0 {
					parts = append(parts, strings.Trim(string(arg.Value), `"`))
				} else if arg.Description != "" {
					parts = append(parts, arg.Description)
				}
			}
			slog.Debug("页面控制台", "type", e.Type, "message", strings.Join(parts, " "))
		}
	})

	// 首次 Run 分配浏览器进程，生命周期绑定在会话 context 上
	if err := chromedp.Run(s.ctx); err != nil {
		s.stopLocked()
		return fmt.Errorf("启动浏览器失败: %w", err)
	}
	slog.Info("浏览器已启动", "headless", s.opts.Headless)
	return nil
}

// Stop 关闭浏览器
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	if s.ctx != nil {
		slog.Debug("浏览器已关闭")
	}
	s.ctx = nil
	s.allocCtx = nil
}

// Running 浏览器是否已启动
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

// run 在会话上执行动作，调用方 ctx 取消时中止
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		return ErrNotStarted
	}

	runCtx, cancel := context.WithCancel(base)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) call(ctx context.Context, res interface{}, fn string, args ...interface{}) error {
	expr, err := callExpr(fn, args...)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.Evaluate(expr, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// callExpr 把参数编码为 JSON 拼成立即调用表达式
func callExpr(fn string, args ...interface{}) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("序列化脚本参数失败: %w", err)
		}
		encoded[i] = string(data)
	}
	return fmt.Sprintf("(%s)(%s)", fn, strings.Join(encoded, ", ")), nil
}

func (s *Session) callBool(ctx context.Context, h quiz.Handle, fn string, args ...interface{}) error {
	var ok bool
	if err := s.call(ctx, &ok, fn, args...); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", writer.ErrNotFound, h)
	}
	return nil
}

// Navigate 打开页面并等待 body 就绪
func (s *Session) Navigate(ctx context.Context, url string) error {
	waitCtx, cancel := context.WithTimeout(ctx, pageLoadWaitTime)
	defer cancel()
	if err := s.run(waitCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("加载页面失败: %w", err)
	}
	s.mu.Lock()
	s.navSeen = 0
	s.mu.Unlock()
	return nil
}

// ApplyCookies 把配置中的 cookie 写入浏览器
func (s *Session) ApplyCookies(ctx context.Context, cookie, url string) error {
	cookies := processor.ParseCookies(cookie)
	if len(cookies) == 0 {
		return nil
	}
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			if err := network.SetCookie(c.Name, c.Value).WithURL(url).Do(ctx); err != nil {
				return fmt.Errorf("设置Cookie %s 失败: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// Cookies 读取当前页面的 cookie，格式为 "a=b; c=d"
func (s *Session) Cookies(ctx context.Context) (string, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("获取Cookie失败: %w", err)
	}

	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, fmt.Sprintf("%s=%s", c.Name, c.Value))
	}
	return strings.Join(parts, "; "), nil
}

// Snapshot 标注隐藏元素和编号后读取整页 HTML
func (s *Session) Snapshot(ctx context.Context) (*goquery.Document, error) {
	var seq int
	if err := s.call(ctx, &seq, annotateJS, extractor.HiddenAttr, extractor.IDAttr); err != nil {
		return nil, fmt.Errorf("标注页面失败: %w", err)
	}

	var page string
	if err := s.run(ctx, chromedp.OuterHTML("html", &page, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("获取页面内容失败: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("解析页面失败: %w", err)
	}
	return doc, nil
}

// SetValue 设置值并触发 input/change
func (s *Session) SetValue(ctx context.Context, h quiz.Handle, value string) error {
	return s.callBool(ctx, h, setValueJS, string(h), value)
}

// Select 点击选项
func (s *Session) Select(ctx context.Context, h quiz.Handle) error {
	return s.callBool(ctx, h, selectJS, string(h))
}

type dragResult struct {
	Found bool `json:"found"`
	Moved bool `json:"moved"`
}

// Drag 派发拖放事件序列，返回放置区内容是否变化
func (s *Session) Drag(ctx context.Context, word, zone quiz.Handle) (bool, error) {
	var res dragResult
	if err := s.call(ctx, &res, dragJS, string(word), string(zone)); err != nil {
		return false, err
	}
	if !res.Found {
		return false, fmt.Errorf("%w: %s -> %s", writer.ErrNotFound, word, zone)
	}
	return res.Moved, nil
}

// Relocate 复制词到放置区并隐藏原词
func (s *Session) Relocate(ctx context.Context, word, zone quiz.Handle) error {
	return s.callBool(ctx, word, relocateJS, string(word), string(zone))
}

type markerArg struct {
	Title string `json:"title"`
	Color string `json:"color"`
	Size  int    `json:"size"`
}

// InsertMarker 在目标后插入标记
func (s *Session) InsertMarker(ctx context.Context, h quiz.Handle, m writer.Marker) error {
	size := m.SizePx
	if size <= 0 {
		size = 8
	}
	return s.callBool(ctx, h, markerJS, string(h), markerArg{Title: m.Title, Color: m.Color, Size: size})
}

// SetStatus 更新右上角的状态条
func (s *Session) SetStatus(ctx context.Context, text string) error {
	var ok bool
	return s.call(ctx, &ok, statusJS, text, statusColor(text))
}

// statusColor 按状态文本选择背景色
func statusColor(text string) string {
	switch text {
	case "No question", "AI failed", "Fill failed":
		return "#e53935"
	case "Filled ✓", "Marked ✓":
		return "#43a047"
	case "Busy":
		return "#ff9800"
	default:
		return "#333"
	}
}

// InstallNavHooks 监听翻页按钮点击、方向键和新增的按钮
func (s *Session) InstallNavHooks(ctx context.Context) error {
	var installed bool
	if err := s.call(ctx, &installed, navHooksJS, navSelector); err != nil {
		return err
	}
	if installed {
		s.mu.Lock()
		s.navSeen = 0
		s.mu.Unlock()
		slog.Debug("已安装翻页监听")
	}
	return nil
}

type navState struct {
	Hooked bool `json:"hooked"`
	Count  int  `json:"count"`
}

// observe 比较翻页计数；页面重新加载后监听丢失，需要重新安装
func (s *Session) observe(st navState) (changed, reinstall bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !st.Hooked {
		s.navSeen = 0
		return true, true
	}
	if st.Count != s.navSeen {
		s.navSeen = st.Count
		return true, false
	}
	return false, false
}

// WaitNavigation 阻塞直到发生翻页
func (s *Session) WaitNavigation(ctx context.Context) error {
	interval := s.PollInterval
	if interval <= 0 {
		interval = pollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var st navState
		if err := s.run(ctx, chromedp.Evaluate(navStateJS, &st)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("读取翻页状态失败", "error", err)
			continue
		}

		changed, reinstall := s.observe(st)
		if reinstall {
			if err := s.InstallNavHooks(ctx); err != nil {
				return err
			}
		}
		if changed {
			return nil
		}
	}
}
