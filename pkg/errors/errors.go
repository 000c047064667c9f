package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones match their template.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for the booking desk taxonomy.
var (
	ErrInvalidInput         = New("INVALID_INPUT", http.StatusBadRequest, "invalid input")
	ErrInvalidFormat        = New("INVALID_FORMAT", http.StatusBadRequest, "invalid enrollment code format")
	ErrNotFound             = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrInactiveStudent      = New("INACTIVE_STUDENT", http.StatusUnprocessableEntity, "student is not active")
	ErrCourseMismatch       = New("COURSE_MISMATCH", http.StatusUnprocessableEntity, "discipline does not belong to the student's course")
	ErrEnrollmentLimit      = New("ENROLLMENT_LIMIT_EXCEEDED", http.StatusUnprocessableEntity, "enrollment limit reached")
	ErrNoSeats              = New("NO_SEATS_AVAILABLE", http.StatusConflict, "discipline has no seats available")
	ErrBookUnavailable      = New("BOOK_UNAVAILABLE", http.StatusConflict, "book is not available for reservation")
	ErrDuplicateEnrollment  = New("DUPLICATE_ENROLLMENT", http.StatusConflict, "student already enrolled in discipline")
	ErrDuplicateReservation = New("DUPLICATE_RESERVATION", http.StatusConflict, "student already reserved this book")
	ErrUpstreamUnavailable  = New("UPSTREAM_UNAVAILABLE", http.StatusBadGateway, "remote catalog unavailable")
	ErrPersistenceFailed    = New("PERSISTENCE_FAILED", http.StatusInternalServerError, "failed to persist booking")
	ErrCacheMiss            = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrInternal             = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	clone.Details = copyDetails(err.Details)
	return &clone
}

// WithDetails returns a copy of err carrying the supplied structured context.
func WithDetails(err *Error, message string, details map[string]interface{}) *Error {
	clone := Clone(err, message)
	if clone == nil {
		return nil
	}
	if clone.Details == nil {
		clone.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		clone.Details[k] = v
	}
	return clone
}

// CodeOf returns the code of err when it is an *Error, otherwise ErrInternal's code.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Code
}

func copyDetails(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
