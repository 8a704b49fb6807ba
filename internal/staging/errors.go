package staging

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/sentio/pkg/repository"
)

var (
	ErrInvalidModality   = errors.New("invalid modality")
	ErrInvalidLabel      = errors.New("invalid classification")
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
	// ErrNotFound covers a missing record and a finalize that lost a race.
	ErrNotFound     = errors.New("no pending record for staged file")
	ErrFileNotFound = errors.New("source file not found")
	ErrDuplicate    = errors.New("staged file already recorded")
	ErrPersistence  = errors.New("staging persistence failed")
)

// MapHTTPStatus maps staging errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case repository.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidModality),
		errors.Is(err, ErrInvalidLabel),
		errors.Is(err, ErrInvalidConfidence):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
