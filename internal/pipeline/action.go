package pipeline

import (
	"errors"
	"fmt"

	"bwhelper/internal/writer"
)

// Action 控制端发来的动作
type Action string

const (
	ActionProcessQuiz    Action = "processQuiz"
	ActionProcessAndMark Action = "processAndMark"
	ActionMarkAnswers    Action = "markAnswers"
)

// ErrUnknownAction 不支持的动作
var ErrUnknownAction = errors.New("unknown action")

// ParseAction 解析动作名
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionProcessQuiz, ActionProcessAndMark, ActionMarkAnswers:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Options 动作对应的写入方式，markDefault 决定 processQuiz 是否顺带标记
func (a Action) Options(markDefault bool) writer.Options {
	switch a {
	case ActionProcessAndMark:
		return writer.Options{Fill: true, Mark: true}
	case ActionMarkAnswers:
		return writer.Options{Mark: true}
	default:
		return writer.Options{Fill: true, Mark: markDefault}
	}
}

// Watches 是否需要持续监听翻页
func (a Action) Watches() bool {
	return a == ActionProcessQuiz || a == ActionProcessAndMark
}
