package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/simonepiga/synthpanel/internal/reliability"
)

// Error is the single failure contract of the gateway. Code is
// vendor-neutral; the wrapped cause keeps the original detail for logs.
type Error struct {
	Code      string
	Status    int
	Retryable bool
	cause     error
}

const (
	CodeTimeout     = "timeout"
	CodeCanceled    = "canceled"
	CodeNetwork     = "network"
	CodeRateLimited = "rate_limited"
	CodeUpstream    = "upstream_error"
	CodeBadRequest  = "bad_request"
	CodeMalformed   = "malformed_response"
)

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("provider: %s", e.Code)
	}
	return fmt.Sprintf("provider: %s: %v", e.Code, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// IsRetryable reports whether the orchestrator may retry this failure.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

func wrapTransport(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeTimeout, Retryable: true, cause: err}
	case errors.Is(err, context.Canceled):
		return &Error{Code: CodeCanceled, Retryable: false, cause: err}
	default:
		return &Error{Code: CodeNetwork, Retryable: true, cause: err}
	}
}

func wrapStatus(status int, detail string) *Error {
	code := CodeBadRequest
	switch {
	case status == 429:
		code = CodeRateLimited
	case status >= 500:
		code = CodeUpstream
	}
	return &Error{
		Code:      code,
		Status:    status,
		Retryable: reliability.IsRetryableHTTPStatus(status),
		cause:     fmt.Errorf("status %d: %s", status, detail),
	}
}

func wrapMalformed(err error) *Error {
	return &Error{Code: CodeMalformed, Retryable: false, cause: err}
}
