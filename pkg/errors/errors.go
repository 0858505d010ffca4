package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrArticleNotFound    = errors.New("article not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidIndex       = errors.New("invalid index input")
	ErrSnapshotMismatch   = errors.New("index references unknown articles")
	ErrDatasetUnavailable = errors.New("dataset unavailable")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// NotFound builds the error returned for an article id with no record.
func NotFound(id int64) *AppError {
	return Newf(ErrArticleNotFound, http.StatusNotFound, "no article with id %d", id)
}

// Message returns the client-facing text of err: the AppError message when
// there is one, otherwise the error string.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrArticleNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDatasetUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
