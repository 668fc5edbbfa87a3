package errors

import (
	"context"
	stderrors "errors"
)

// ErrorResponse is the JSON error envelope of the status API and of job
// error records.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the client visible part of an AppError. The cause is never
// serialized.
type ErrorBody struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse returns the response envelope for e.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Retryable,
		Details:   e.Details,
	}}
}

// IsAppError reports whether err wraps an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// From classifies any error as an AppError: AppErrors are returned as is,
// context errors become TIMEOUT or CANCELLED and the rest INTERNAL_ERROR.
// what names the interrupted operation. From(nil, ...) is nil.
func From(err error, what string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return Timeout(what).WithCause(err)
	case stderrors.Is(err, context.Canceled):
		return Cancelled(what).WithCause(err)
	default:
		return Internal(err)
	}
}
