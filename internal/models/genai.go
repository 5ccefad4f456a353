package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"bwhelper/internal/config"
)

// GenAIModel 通过 Google GenAI SDK 调用 Gemini
type GenAIModel struct {
	cfg config.ModelConfig

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGenAIModel 创建 SDK 模型，客户端在第一次调用时初始化
func NewGenAIModel(cfg config.ModelConfig) *GenAIModel {
	return &GenAIModel{cfg: cfg}
}

func (m *GenAIModel) getClient(ctx context.Context) (*genai.Client, error) {
	m.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:  m.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if m.cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: m.cfg.BaseURL}
		}
		m.client, m.clientErr = genai.NewClient(ctx, cc)
	})
	if m.clientErr != nil {
		return nil, fmt.Errorf("创建 GenAI 客户端失败: %w", m.clientErr)
	}
	return m.client, nil
}

// GetAnswer 获取答案
func (m *GenAIModel) GetAnswer(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("提示词为空")
	}

	client, err := m.getClient(ctx)
	if err != nil {
		return "", err
	}

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(m.cfg.Temperature)),
		MaxOutputTokens: int32(m.cfg.MaxOutputTokens),
	}

	result, err := client.Models.GenerateContent(ctx, m.cfg.Model, genai.Text(prompt), gc)
	if err != nil {
		return "", m.mapError(err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", &ErrInvalidResponse{Model: m.cfg.Name, Err: fmt.Errorf("没有返回答案")}
	}
	return text, nil
}

func (m *GenAIModel) mapError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Model: m.cfg.Name, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	return &ErrUnavailable{Model: m.cfg.Name, Err: err}
}

// Name 获取模型名称
func (m *GenAIModel) Name() string {
	return m.cfg.Name
}
