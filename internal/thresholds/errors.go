package thresholds

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JaimeStill/sentio/pkg/repository"
)

var (
	// ErrInvalidFeedback is matched by every *ValidationError.
	ErrInvalidFeedback = errors.New("invalid feedback")
	ErrUnknownModality = errors.New("unknown modality")
	ErrPersistence     = errors.New("threshold persistence failed")
)

// ValidationError describes why a feedback triple was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFeedback
}

// MapHTTPStatus maps threshold errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case repository.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnknownModality):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidFeedback):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
