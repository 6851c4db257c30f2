package domain

import "errors"

var (
	// ErrNotFound 表示按编号查询的记录不存在。
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict 表示乐观锁版本不匹配，两个提交尝试在同一订单上竞争。
	// 该错误不可重试，调用方需要重新加载后再决定。
	ErrVersionConflict = errors.New("version conflict")
)

// ValidationError 表示请求本身不合法，立即失败且从不重试。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError 构造校验错误。
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// IsValidation 判断错误链中是否包含校验错误。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
