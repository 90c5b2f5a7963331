package http

import (
	"fmt"
	"net/http"
)

// AppError is an error that knows its HTTP status and renders as one entry of the response data.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the cause. It is logged, never rendered.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NewAppError(status int, code, field, message string) *AppError {
	return &AppError{Code: code, Message: message, Field: field, Status: status}
}

func NotFoundError(message string) *AppError {
	return NewAppError(http.StatusNotFound, "ERR_NOT_FOUND", "", message)
}

func BadRequestError(message string) *AppError {
	return NewAppError(http.StatusBadRequest, "ERR_BAD_REQUEST", "", message)
}

// UnprocessableError is for well formed input the domain rejects.
func UnprocessableError(field, message string) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, "ERR_UNPROCESSABLE", field, message)
}

func InternalError(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, "ERR_INTERNAL", "", message)
}
