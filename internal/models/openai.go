package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"bwhelper/internal/config"
)

// OpenAIModel 兼容 OpenAI Chat Completions 的模型（DeepSeek、通义千问、Ollama 等）
type OpenAIModel struct {
	cfg    config.ModelConfig
	client *openai.Client
}

// NewOpenAIModel 创建 OpenAI 兼容模型
func NewOpenAIModel(cfg config.ModelConfig) *OpenAIModel {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	oc.HTTPClient = getHTTPClient()
	return &OpenAIModel{
		cfg:    cfg,
		client: openai.NewClientWithConfig(oc),
	}
}

// GetAnswer 获取答案
func (m *OpenAIModel) GetAnswer(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("提示词为空")
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(m.cfg.Temperature),
		MaxTokens:   m.cfg.MaxOutputTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &APIError{Model: m.cfg.Name, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &APIError{Model: m.cfg.Name, StatusCode: reqErr.HTTPStatusCode, Body: excerpt([]byte(reqErr.Error()))}
		}
		return "", &ErrUnavailable{Model: m.cfg.Name, Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &ErrInvalidResponse{Model: m.cfg.Name, Err: fmt.Errorf("没有返回答案")}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &ErrInvalidResponse{Model: m.cfg.Name, Err: fmt.Errorf("没有返回答案")}
	}
	return text, nil
}

// Name 获取模型名称
func (m *OpenAIModel) Name() string {
	return m.cfg.Name
}
