package console

import (
	"errors"
	"fmt"
)

// Kind 控制台操作错误分类
type Kind string

const (
	// KindConnectTimeout 连接超时（含连接后从未收到任何字节）
	KindConnectTimeout Kind = "CONNECT_TIMEOUT"
	// KindConnectionRefused 目标端口拒绝连接
	KindConnectionRefused Kind = "CONNECTION_REFUSED"
	// KindAuthFailed 登录认证失败（凭据被拒绝或重试次数耗尽）
	KindAuthFailed Kind = "AUTH_FAILED"
	// KindPromptTimeout 硬超时内未能解析出提示符
	KindPromptTimeout Kind = "PROMPT_TIMEOUT"
	// KindSessionFailed 会话已失效（I/O错误、已关闭或已进入Failed状态）
	KindSessionFailed Kind = "SESSION_FAILED"
	// KindNotFound 设备注册表中不存在该名称
	KindNotFound Kind = "NOT_FOUND"
)

// Error 带分类的控制台错误，保证跨越核心边界的错误都有kind标注
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 创建分类错误
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError 包装底层错误并附加分类
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf 提取错误分类；非本包错误统一归为SESSION_FAILED
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindSessionFailed
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
