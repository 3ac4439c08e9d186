package types

import "fmt"

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// 调用级致命错误：终止当前通话并上报
const (
	ErrConfigNotFound    ErrorCode = "CONFIG_NOT_FOUND"    // Agent 配置不存在
	ErrSecurityViolation ErrorCode = "SECURITY_VIOLATION"  // 租户隔离被破坏，永不吞掉
	ErrPipelineInit      ErrorCode = "PIPELINE_INIT"       // 语音管道构建失败
)

// 可降级错误：记录日志后以安全默认值继续
const (
	ErrTransientIO ErrorCode = "TRANSIENT_IO" // KB/转写/联系人存储的瞬时故障
	ErrExtraction  ErrorCode = "EXTRACTION"   // 联系人抽取失败，返回空结果
)

// 通用错误码
const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// CodeOf returns the ErrorCode of err if it is a *types.Error,
// otherwise ErrInternalError.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ErrInternalError
}

// IsFatal reports whether err must terminate the call instead of being
// degraded. Tenant isolation and pipeline construction failures are never
// swallowed; a missing persona is not fatal because the call proceeds on
// the fallback persona.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ErrSecurityViolation, ErrPipelineInit:
		return true
	}
	return false
}
