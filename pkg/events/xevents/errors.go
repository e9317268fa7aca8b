package xevents

import (
	"errors"
	"fmt"
)

var (
	// ErrNilListener 表示传入的监听器为 nil。
	ErrNilListener = errors.New("xevents: listener cannot be nil")

	// ErrNilClient 表示传入的 Redis 客户端为 nil。
	ErrNilClient = errors.New("xevents: nil client")

	// ErrBusClosed 表示总线已关闭，不再接受新的监听或派发。
	ErrBusClosed = errors.New("xevents: bus closed")

	// ErrPromiseAborted 表示 AsPromise 在收到事件前因 ctx 取消而终止。
	ErrPromiseAborted = errors.New("xevents: asPromise aborted")
)

// ValidationError 表示 payload 未通过 EventMapSchema 校验。
type ValidationError struct {
	Event string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("xevents: event %q failed schema validation: %v", e.Event, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
