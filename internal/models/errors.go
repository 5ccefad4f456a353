package models

import (
	"errors"
	"fmt"
)

// ErrNoModel 没有可用的模型
var ErrNoModel = errors.New("没有可用的模型，请先配置 API Key")

// APIError 接口返回非 2xx 状态码
type APIError struct {
	Model      string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("模型 %s 接口错误 (HTTP %d): %s", e.Model, e.StatusCode, e.Body)
}

// ErrInvalidResponse 响应结构不符合预期
type ErrInvalidResponse struct {
	Model string
	Err   error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("模型 %s 响应无效: %v", e.Model, e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrUnavailable 请求未能到达模型服务
type ErrUnavailable struct {
	Model string
	Err   error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("模型 %s 不可用: %v", e.Model, e.Err)
}

func (e *ErrUnavailable) Unwrap() error { return e.Err }
