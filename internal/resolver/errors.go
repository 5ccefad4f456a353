package resolver

import "errors"

var (
	// ErrBusy 同一个键已有解析在进行
	ErrBusy = errors.New("resolution already in flight")
	// ErrEmptyKey 规范化后的题干为空
	ErrEmptyKey = errors.New("empty question key")
	// ErrNoFallback 题型没有可用的兜底答案
	ErrNoFallback = errors.New("no fallback answer")
	// ErrUnparsable 模型回复无法解析
	ErrUnparsable = errors.New("unparsable model reply")
)
