package objectclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cboudereau/gcs-rsync/internal/entry"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, objectclient.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("objectclient: bad request")
	ErrUnauthorized = errors.New("objectclient: unauthorized")
	ErrForbidden    = errors.New("objectclient: forbidden")
	ErrNotFound     = errors.New("objectclient: object not found")
	ErrPreconditionFailed = errors.New("objectclient: precondition failed")
	ErrThrottled    = errors.New("objectclient: throttled")
	ErrServerError  = errors.New("objectclient: server error")

	errProtocol = fmt.Errorf("%w", entry.ErrProtocol)
)

// ObjectError wraps a sentinel error with the HTTP status code and the raw
// JSON error body GCS returned, for diagnostics. It satisfies errors.Is via
// Unwrap, and errors.Is(err, entry.ErrRemoteStatus) always succeeds for it.
type ObjectError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("objectclient: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *ObjectError) Unwrap() []error {
	return []error{e.Err, entry.ErrRemoteStatus}
}

// classifyStatus maps an HTTP status code to a sentinel error. Returns nil
// for codes without a sentinel of their own, including 2xx and 408.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried,
// per the GCS-tuned retry set in the run configuration: 408, 429, and 5xx.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return code >= http.StatusInternalServerError
	}
}
