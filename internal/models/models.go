package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"bwhelper/internal/config"
)

const (
	httpTimeout = 60 * time.Second

	// 错误响应体在日志中保留的长度
	bodyExcerptLen = 200
)

var (
	sharedHTTPClient *http.Client
	httpClientOnce   sync.Once
)

// getHTTPClient 获取共享的 HTTP 客户端
func getHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		sharedHTTPClient = &http.Client{
			Timeout: httpTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	})
	return sharedHTTPClient
}

// Model 单个文本生成模型
type Model interface {
	Name() string
	GetAnswer(ctx context.Context, prompt string) (string, error)
}

// GenerateRequest generateContent 请求结构
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// GenerateResponse generateContent 响应结构
type GenerateResponse struct {
	Candidates []struct {
		Content      *Content `json:"content"`
		FinishReason string   `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// RESTModel 直接调用 Gemini generateContent 接口
type RESTModel struct {
	cfg    config.ModelConfig
	client *http.Client
}

// NewRESTModel 创建 REST 模型
func NewRESTModel(cfg config.ModelConfig) *RESTModel {
	return &RESTModel{
		cfg:    cfg,
		client: getHTTPClient(),
	}
}

// endpoint 构建请求地址
// 用户可以配置完整路径（以 :generateContent 结尾）或只配置基础 URL
func (m *RESTModel) endpoint() string {
	baseURL := strings.TrimSuffix(m.cfg.BaseURL, "/")
	if strings.HasSuffix(baseURL, ":generateContent") {
		return baseURL
	}
	return fmt.Sprintf("%s/models/%s:generateContent", baseURL, m.cfg.Model)
}

// GetAnswer 获取答案
func (m *RESTModel) GetAnswer(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("提示词为空")
	}

	reqBody := GenerateRequest{
		Contents: []Content{{Parts: []Part{{Text: prompt}}}},
		GenerationConfig: GenerationConfig{
			Temperature:     m.cfg.Temperature,
			MaxOutputTokens: m.cfg.MaxOutputTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint(), bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", m.cfg.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &ErrUnavailable{Model: m.cfg.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("模型接口返回错误", "model", m.cfg.Name, "status", resp.StatusCode, "body", excerpt(body))
		return "", &APIError{Model: m.cfg.Name, StatusCode: resp.StatusCode, Body: excerpt(body)}
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", &ErrInvalidResponse{Model: m.cfg.Name, Err: fmt.Errorf("解析响应失败: %w", err)}
	}
	if genResp.Error != nil {
		return "", &APIError{Model: m.cfg.Name, StatusCode: genResp.Error.Code, Body: genResp.Error.Message}
	}

	if len(genResp.Candidates) == 0 || genResp.Candidates[0].Content == nil || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", &ErrInvalidResponse{Model: m.cfg.Name, Err: fmt.Errorf("响应缺少 candidates[0].content.parts[0]")}
	}

	text := strings.TrimSpace(genResp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", &ErrInvalidResponse{Model: m.cfg.Name, Err: fmt.Errorf("没有返回答案")}
	}
	return text, nil
}

// Name 获取模型名称
func (m *RESTModel) Name() string {
	return m.cfg.Name
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodyExcerptLen {
		return s[:bodyExcerptLen]
	}
	return s
}

// NewModel 按后端类型创建模型
func NewModel(cfg config.ModelConfig) (Model, error) {
	switch cfg.Backend {
	case config.BackendREST, "":
		return NewRESTModel(cfg), nil
	case config.BackendGenAI:
		return NewGenAIModel(cfg), nil
	case config.BackendOpenAI:
		return NewOpenAIModel(cfg), nil
	default:
		return nil, fmt.Errorf("未知的模型后端: %s", cfg.Backend)
	}
}

// ModelManager 模型管理器
type ModelManager struct {
	models []Model
}

// NewModelManager 根据配置创建模型管理器
func NewModelManager(cfg *config.Config) *ModelManager {
	enabled := cfg.GetEnabledModels()
	manager := &ModelManager{
		models: make([]Model, 0, len(enabled)),
	}

	for _, modelCfg := range enabled {
		model, err := NewModel(modelCfg)
		if err != nil {
			slog.Warn("跳过模型", "name", modelCfg.Name, "error", err)
			continue
		}
		manager.models = append(manager.models, model)
	}

	return manager
}

// NewModelManagerWith 使用给定模型创建管理器
func NewModelManagerWith(models ...Model) *ModelManager {
	return &ModelManager{models: models}
}

// ConfigManager 每次调用都按当前配置重新创建模型管理器
// 通过控制端保存的 API Key 和模型配置立即生效
type ConfigManager struct {
	cfg *config.Config
}

// NewConfigManager 创建跟随配置的模型管理器
func NewConfigManager(cfg *config.Config) *ConfigManager {
	return &ConfigManager{cfg: cfg}
}

// GetAnswer 获取答案
func (m *ConfigManager) GetAnswer(ctx context.Context, selection, prompt string) (string, error) {
	return NewModelManager(m.cfg).GetAnswer(ctx, selection, prompt)
}

// HasAvailableModel 检查当前配置是否有可用模型
func (m *ConfigManager) HasAvailableModel() bool {
	return len(m.cfg.GetEnabledModels()) > 0
}

// ordered 选中的模型排在最前，其余按配置顺序
func (m *ModelManager) ordered(selection string) []Model {
	if selection == "" {
		return m.models
	}
	out := make([]Model, 0, len(m.models))
	for _, model := range m.models {
		if model.Name() == selection {
			out = append(out, model)
		}
	}
	for _, model := range m.models {
		if model.Name() != selection {
			out = append(out, model)
		}
	}
	return out
}

// GetAnswer 获取答案（自动fallback到下一个模型）
func (m *ModelManager) GetAnswer(ctx context.Context, selection, prompt string) (string, error) {
	if len(m.models) == 0 {
		return "", ErrNoModel
	}

	var lastErr error
	for _, model := range m.ordered(selection) {
		answer, err := model.GetAnswer(ctx, prompt)
		if err == nil && answer != "" {
			return answer, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Debug("模型调用失败，尝试下一个", "model", model.Name(), "error", err)
		lastErr = err
	}

	return "", fmt.Errorf("所有模型都调用失败: %w", lastErr)
}

// HasAvailableModel 检查是否有可用模型
func (m *ModelManager) HasAvailableModel() bool {
	return len(m.models) > 0
}

// GetModelNames 获取可用模型名称列表
func (m *ModelManager) GetModelNames() []string {
	names := make([]string, len(m.models))
	for i, model := range m.models {
		names[i] = model.Name()
	}
	return names
}
