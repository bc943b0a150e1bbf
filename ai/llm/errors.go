package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Error is the typed error surfaced by the gateway. Transient errors
// (rate limits, connection failures, timeouts, 5xx) are retryable; the
// job fabric reschedules on them instead of consuming the job.
type Error struct {
	Op        string
	Err       error
	Transient bool
}

func (e *Error) Error() string {
	return "llm: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient gateway error.
func IsTransient(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Transient
}

// classify wraps err as a gateway error, marking it transient when a retry
// could plausibly succeed.
func classify(op string, err error) *Error {
	return &Error{Op: op, Err: err, Transient: isTransientCause(err)}
}

func isTransientCause(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "connection reset", "timeout", "temporarily unavailable", "rate limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
