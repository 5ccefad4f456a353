package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"bwhelper/internal/config"
	"bwhelper/internal/models"
	"bwhelper/internal/pipeline"
	"bwhelper/internal/quiz"
	"bwhelper/internal/resolver"
)

const modelTestTimeout = 30 * time.Second

// Browser 控制端驱动的页面
type Browser interface {
	pipeline.LivePage
	Start() error
	Stop()
	Running() bool
	Navigate(ctx context.Context, url string) error
}

// ProgressEvent 推送给 SSE 客户端的事件
type ProgressEvent struct {
	Type      string            `json:"type"` // log, question, complete, cancelled, error
	Message   string            `json:"message"`
	Processed int               `json:"processed"`
	Outcome   *pipeline.Outcome `json:"outcome,omitempty"`
}

// Status 当前状态
type Status struct {
	Running   bool   `json:"running"`
	Action    string `json:"action,omitempty"`
	Message   string `json:"message"`
	Processed int    `json:"processed"`
	LastKey   string `json:"lastKey,omitempty"`
}

// Server 控制端 HTTP 服务
type Server struct {
	mu         sync.RWMutex
	cfg        *config.Config
	page       Browser
	gen        resolver.Generator
	pipe       *pipeline.Pipeline
	status     *Status
	sseClients map[chan ProgressEvent]bool
	sseMu      sync.RWMutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// NewServer 创建服务器
func NewServer(cfg *config.Config, page Browser, gen resolver.Generator) *Server {
	s := &Server{
		cfg:  cfg,
		page: page,
		gen:  gen,
		status: &Status{
			Running: false,
			Message: "就绪",
		},
		sseClients: make(map[chan ProgressEvent]bool),
	}
	s.pipe = pipeline.FromConfig(cfg, gen, s.progressCallback)
	return s
}

// Pipeline 返回服务使用的流水线
func (s *Server) Pipeline() *pipeline.Pipeline {
	return s.pipe
}

// Router 构建路由
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.ServerOptions().AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/message", s.handleMessage)
		r.Post("/stop", s.handleStop)
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleSSE)
		r.Get("/config", s.handleConfig)
		r.Post("/config", s.handleSaveConfig)
		r.Get("/models", s.handleModels)
		r.Post("/models/test", s.handleTestModel)
		r.Post("/generate", s.handleGenerate)
	})
	return r
}

// ListenAndServe 启动服务，ctx 结束时优雅关闭
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("服务器已启动", "addr", "http://"+srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Shutdown 停止监听并关闭浏览器
func (s *Server) Shutdown() {
	s.stopWatch()
	if s.page != nil && s.page.Running() {
		s.page.Stop()
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type messageRequest struct {
	Action string `json:"action"`
	Model  string `json:"model,omitempty"`
	URL    string `json:"url,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleMessage 处理控制端动作
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Error: "请求格式错误: " + err.Error()})
		return
	}

	action, err := pipeline.ParseAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Error: err.Error()})
		return
	}

	// 自动答题必须有可用模型，否则每道题都会缓存兜底答案
	if action.Watches() {
		if ready, msg := s.cfg.IsReady(); !ready {
			writeJSON(w, http.StatusOK, messageResponse{Error: "配置未就绪: " + msg})
			return
		}
		if m, ok := s.gen.(interface{ HasAvailableModel() bool }); ok && !m.HasAvailableModel() {
			writeJSON(w, http.StatusOK, messageResponse{Error: models.ErrNoModel.Error()})
			return
		}
	}

	model := req.Model
	if model == "" {
		model = s.cfg.DefaultModel()
	}

	if err := s.preparePage(r.Context(), req.URL); err != nil {
		writeJSON(w, http.StatusOK, messageResponse{Error: err.Error()})
		return
	}

	if action.Watches() {
		s.startWatch(action, model)
		writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Auto helper activated"})
		return
	}

	out, err := s.pipe.ProcessCurrent(r.Context(), s.page, action, model)
	if err != nil || !out.Result.OK {
		msg := out.Status
		if err != nil {
			msg = fmt.Sprintf("%s: %v", out.Status, err)
		}
		writeJSON(w, http.StatusOK, messageResponse{Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: out.Status})
}

// preparePage 确保浏览器已启动，必要时打开页面
func (s *Server) preparePage(ctx context.Context, url string) error {
	if s.page == nil {
		return errors.New("没有可用的浏览器")
	}
	if !s.page.Running() {
		s.sendSSEEvent(ProgressEvent{Type: "log", Message: "正在启动浏览器..."})
		if err := s.page.Start(); err != nil {
			return err
		}
	}
	if url == "" {
		return nil
	}
	s.stopWatch()
	return s.page.Navigate(ctx, url)
}

// startWatch 启动（或重启）翻页监听
func (s *Server) startWatch(action pipeline.Action, model string) {
	s.stopWatch()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancelFunc = cancel
	s.done = done
	s.status.Running = true
	s.status.Action = string(action)
	s.status.Message = "正在监听翻页..."
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.status.Running = false
			s.status.Action = ""
			s.mu.Unlock()
		}()

		err := s.pipe.Watch(ctx, s.page, action, model)
		if ctx.Err() != nil {
			s.sendSSEEvent(ProgressEvent{Type: "cancelled", Message: "任务已取消"})
			s.mu.Lock()
			s.status.Message = "已停止"
			s.mu.Unlock()
			return
		}
		if err != nil {
			slog.Error("监听翻页失败", "error", err)
			s.sendSSEEvent(ProgressEvent{Type: "error", Message: fmt.Sprintf("错误: %v", err)})
			s.mu.Lock()
			s.status.Message = fmt.Sprintf("错误: %v", err)
			s.mu.Unlock()
		}
	}()
}

// stopWatch 取消监听并等待退出
func (s *Server) stopWatch() {
	s.mu.Lock()
	cancel, done := s.cancelFunc, s.done
	s.cancelFunc, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// progressCallback 流水线进度回调
func (s *Server) progressCallback(event pipeline.Event) {
	s.mu.Lock()
	if event.Type == "question" {
		s.status.Processed++
		if event.Outcome != nil {
			s.status.LastKey = string(event.Outcome.Answer.Key)
		}
	}
	s.status.Message = event.Message
	processed := s.status.Processed
	s.mu.Unlock()

	s.sendSSEEvent(ProgressEvent{
		Type:      event.Type,
		Message:   event.Message,
		Processed: processed,
		Outcome:   event.Outcome,
	})
}

// handleStop 停止监听
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.stopWatch()

	s.mu.Lock()
	s.status.Running = false
	s.status.Message = "已停止"
	s.mu.Unlock()

	s.sendSSEEvent(ProgressEvent{Type: "log", Message: "任务已停止"})
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "已停止"})
}

// handleStatus 获取状态
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := *s.status
	s.mu.RUnlock()

	// 不在运行时返回配置就绪状态
	if !status.Running {
		_, status.Message = s.cfg.IsReady()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSSE SSE事件流
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan ProgressEvent, 100)

	s.sseMu.Lock()
	s.sseClients[clientChan] = true
	s.sseMu.Unlock()

	defer func() {
		s.sseMu.Lock()
		delete(s.sseClients, clientChan)
		close(clientChan)
		s.sseMu.Unlock()
	}()

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"message\":\"SSE连接成功\"}\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	for {
		select {
		case event, ok := <-clientChan:
			if !ok {
				return
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// sendSSEEvent 向所有SSE客户端发送事件
func (s *Server) sendSSEEvent(event ProgressEvent) {
	s.sseMu.RLock()
	defer s.sseMu.RUnlock()

	for clientChan := range s.sseClients {
		select {
		case clientChan <- event:
		default:
			// 通道满了，跳过
		}
	}
}

// handleConfig 获取配置（API Key 脱敏）
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Snapshot()
	ready, message := s.cfg.IsReady()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_key":       s.cfg.GetMaskedAPIKey(),
		"has_api_key":   snap.APIKey != "",
		"default_model": snap.DefaultModel,
		"has_cookie":    snap.Cookie != "",
		"delays":        snap.Delays,
		"marker":        snap.Marker,
		"ready":         ready,
		"message":       message,
	})
}

// handleSaveConfig 保存 API Key 和默认模型
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey       string `json:"api_key"`
		DefaultModel string `json:"default_model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Error: err.Error()})
		return
	}

	if req.APIKey != "" {
		if err := s.cfg.UpdateAPIKey(req.APIKey); err != nil {
			writeJSON(w, http.StatusInternalServerError, messageResponse{Error: err.Error()})
			return
		}
	}
	if req.DefaultModel != "" {
		if err := s.cfg.UpdateDefaultModel(req.DefaultModel); err != nil {
			writeJSON(w, http.StatusInternalServerError, messageResponse{Error: err.Error()})
			return
		}
	}
	// 之前因没有模型得到的兜底答案作废，下次重新请求
	if n := s.pipe.Resolver().Cache().ForgetFallbacks(); n > 0 {
		slog.Info("配置已更新，清除兜底答案", "count", n)
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "配置保存成功"})
}

// handleModels 获取模型配置（不返回 API Key 明文）
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Snapshot()
	list := make([]map[string]interface{}, len(snap.Models))
	for i, m := range snap.Models {
		list[i] = map[string]interface{}{
			"name":        m.Name,
			"enabled":     m.Enabled,
			"backend":     m.Backend,
			"base_url":    m.BaseURL,
			"model":       m.Model,
			"has_api_key": m.APIKey != "" || snap.APIKey != "",
		}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleTestModel 测试模型连接
func (s *Server) handleTestModel(w http.ResponseWriter, r *http.Request) {
	var req config.ModelConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Error: err.Error()})
		return
	}

	// 没有传 API Key 时使用已保存的配置
	if req.APIKey == "" {
		for _, m := range s.cfg.Snapshot().Models {
			if m.Name == req.Name {
				req.APIKey = m.APIKey
				break
			}
		}
	}
	if req.APIKey == "" {
		req.APIKey = s.cfg.APIKey()
	}

	if req.BaseURL == "" || req.Model == "" || req.APIKey == "" {
		writeJSON(w, http.StatusOK, messageResponse{Error: "请填写完整的配置（Base URL、模型名称、API Key）"})
		return
	}

	model, err := models.NewModel(req)
	if err != nil {
		writeJSON(w, http.StatusOK, messageResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), modelTestTimeout)
	defer cancel()

	answer, err := model.GetAnswer(ctx, "Reply with: OK")
	if err != nil {
		writeJSON(w, http.StatusOK, messageResponse{Error: fmt.Sprintf("连接失败: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "连接成功",
		"reply":   answer,
	})
}

type generateRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Kind     string   `json:"kind,omitempty"`
	Model    string   `json:"model,omitempty"`
}

// handleGenerate 不经过页面直接解析一道题
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Error: err.Error()})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Error: "缺少必要参数: question"})
		return
	}

	q := &quiz.Question{Text: req.Question, Kind: quiz.Kind(req.Kind)}
	switch {
	case req.Kind == "" && len(req.Options) > 0:
		q.Kind = quiz.KindMultipleChoice
	case req.Kind == "":
		q.Kind = quiz.KindFreeText
	}
	if q.Kind == quiz.KindDragWords {
		q.Words = req.Options
	} else {
		q.Options = req.Options
	}

	model := req.Model
	if model == "" {
		model = s.cfg.DefaultModel()
	}

	ans, err := s.pipe.Resolver().Resolve(r.Context(), q, model)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, resolver.ErrBusy) {
			status = http.StatusConflict
		} else if errors.Is(err, resolver.ErrNoFallback) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, messageResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"answer":   ans.Text,
		"key":      ans.Key,
		"cached":   ans.Cached,
		"fallback": ans.Fallback,
	})
}
