package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrCourseNotFound     = errors.New("course not found")
	ErrLessonNotFound     = errors.New("lesson not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrNotEnrolled        = errors.New("not enrolled in this course")
	ErrAlreadyEnrolled    = errors.New("already enrolled")
	ErrAlreadyCompleted   = errors.New("lesson already completed")
	ErrRemoteUnavailable  = errors.New("remote store unavailable")
	ErrCheckoutFailed     = errors.New("checkout failed for all items")
	ErrCartEmpty          = errors.New("cart is empty")
	ErrBadTransition      = errors.New("invalid checkout state transition")
	ErrRefreshInFlight    = errors.New("refresh already in flight")
)

// ValidationError 卡号/有效期/CVC/持卡人等字段级校验错误，
// 在发起任何存储调用之前返回。
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
