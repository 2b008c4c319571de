package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned (or wrapped) when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is wrapped by rejections caused by an existing record.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidStateError reports an operation that is illegal for the current
// lifecycle state.
type InvalidStateError struct {
	From  SubscriberStatus
	Event Event
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a subscriber in status %s", e.Event, e.From)
}

// ExternalServiceError wraps a failure of an email or persistence dependency.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// HTTPStatus maps an error from any layer to the status code the HTTP
// boundary should use. Unknown errors are internal.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		state      *InvalidStateError
		external   *ExternalServiceError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation), errors.As(err, &state):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.As(err, &external):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
