package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"bwhelper/internal/quiz"
)

// Generator 远程模型
type Generator interface {
	GetAnswer(ctx context.Context, model, prompt string) (string, error)
}

// Answer 解析结果
type Answer struct {
	Key      Key    `json:"key"`
	Text     string `json:"text"`
	Cached   bool   `json:"cached"`
	Fallback bool   `json:"fallback"`
}

// Resolver 把题目解析为答案，每个键最多请求一次远程模型
type Resolver struct {
	gen   Generator
	cache *Cache
	rules []Rule
}

// New 创建解析器
func New(gen Generator, rules []Rule) *Resolver {
	return &Resolver{gen: gen, cache: NewCache(), rules: rules}
}

// Cache 返回解析器使用的缓存
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve 解析题目；同一键正在解析时返回 ErrBusy
func (r *Resolver) Resolve(ctx context.Context, q *quiz.Question, model string) (Answer, error) {
	if q == nil || !q.Kind.Valid() {
		kind := quiz.Kind("")
		if q != nil {
			kind = q.Kind
		}
		return Answer{}, fmt.Errorf("%w: 题型 %q", ErrNoFallback, kind)
	}

	key, err := DeriveKey(q.Text, q.OptionCount())
	cacheable := err == nil
	if !cacheable {
		id, uerr := uuid.NewV7()
		if uerr != nil {
			id = uuid.New()
		}
		key = Key("tmp-" + id.String())
		slog.Warn("题干为空，使用临时键且不缓存", "key", key)
	}

	if cacheable {
		answer, st := r.cache.begin(key)
		switch st {
		case stateResolved:
			slog.Debug("命中缓存", "key", key)
			return Answer{Key: key, Text: answer, Cached: true}, nil
		case stateInFlight:
			return Answer{Key: key}, ErrBusy
		}
	}

	text, remoteErr := r.ask(ctx, q, model)
	if remoteErr == nil {
		if cacheable {
			r.cache.complete(key, text, false)
		}
		return Answer{Key: key, Text: text}, nil
	}

	if ctx.Err() != nil {
		if cacheable {
			r.cache.abort(key)
		}
		return Answer{Key: key}, ctx.Err()
	}

	answer, source, ok := fallbackFor(r.rules, q)
	if !ok {
		if cacheable {
			r.cache.abort(key)
		}
		return Answer{Key: key}, fmt.Errorf("%w: %v", ErrNoFallback, remoteErr)
	}
	slog.Warn("远程模型失败，使用兜底答案", "key", key, "kind", q.Kind, "source", source, "error", remoteErr)
	if cacheable {
		r.cache.complete(key, answer, true)
	}
	return Answer{Key: key, Text: answer, Fallback: true}, nil
}

func (r *Resolver) ask(ctx context.Context, q *quiz.Question, model string) (string, error) {
	if r.gen == nil {
		return "", errors.New("没有可用的模型")
	}
	raw, err := r.gen.GetAnswer(ctx, model, BuildPrompt(q))
	if err != nil {
		return "", err
	}
	text, ok := ParseAnswer(q.Kind, raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnparsable, raw)
	}
	return text, nil
}
