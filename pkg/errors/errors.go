package errors

import "fmt"

// ========== 错误码常量定义 ==========

// CodeSuccess 成功码
const (
	CodeSuccess = 200
)

// CodeProcessing AI分析处理中（非错误，提示客户端稍后轮询）
const (
	CodeProcessing = 202
)

// HTTP层错误码 (400-599)
const (
	CodeInvalidParam = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeInvalidState = 409
	CodeServerError  = 500
	CodeUpstream     = 502
)

// AppError 业务错误，携带错误码供处理器映射到统一返回格式
type AppError struct {
	Code    int
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ========== 业务错误构造方法 ==========

// NewValidation 参数校验错误（写入前拒绝）
func NewValidation(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeInvalidParam, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound 引用的记录不存在
func NewNotFound(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidState 状态或前置条件不满足
func NewInvalidState(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// NewUpstream 外部webhook不可达或返回非2xx
func NewUpstream(message string, cause error) *AppError {
	return &AppError{Code: CodeUpstream, Message: message, Cause: cause}
}

// NewServer 服务器内部错误
func NewServer(message string, cause error) *AppError {
	return &AppError{Code: CodeServerError, Message: message, Cause: cause}
}

// AsAppError 提取业务错误，非业务错误归为服务器内部错误
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return &AppError{Code: CodeServerError, Message: err.Error(), Cause: err}
}
