package reference

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/sentio/pkg/repository"
)

var (
	// ErrPersistence wraps a failed write or load of reference samples.
	ErrPersistence = errors.New("reference persistence failed")
	// ErrInvalidRequest indicates a malformed adjustment request.
	ErrInvalidRequest = errors.New("invalid reference request")
)

// MapHTTPStatus maps reference errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case repository.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
