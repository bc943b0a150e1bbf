package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error codes surfaced on the HTTP boundary.
const (
	CodeUnauthorized          = "unauthorized"
	CodeForbidden             = "forbidden"
	CodeNotFound              = "not_found"
	CodeValidation            = "validation_error"
	CodeRateLimitExceeded     = "rate_limit_exceeded"
	CodeRecallUnavailable     = "recall_unavailable"
	CodeExtractionUnavailable = "extraction_unavailable"
	CodeInternalError         = "internal_error"
)

var codeStatus = map[string]int{
	CodeUnauthorized:          http.StatusUnauthorized,
	CodeForbidden:             http.StatusForbidden,
	CodeNotFound:              http.StatusNotFound,
	CodeValidation:            http.StatusBadRequest,
	CodeRateLimitExceeded:     http.StatusTooManyRequests,
	CodeRecallUnavailable:     http.StatusServiceUnavailable,
	CodeExtractionUnavailable: http.StatusServiceUnavailable,
	CodeInternalError:         http.StatusInternalServerError,
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type errorPayload struct {
	Error errorBody `json:"error"`
}

// apiError sends the uniform error payload for a code. Unknown codes map to
// an internal error.
func apiError(c echo.Context, code, message string) error {
	return apiErrorDetails(c, code, message, "")
}

func apiErrorDetails(c echo.Context, code, message, details string) error {
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, &errorPayload{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}
