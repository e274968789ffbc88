package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed domain error that knows its HTTP status.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so that clones and wrapped copies compare equal to the
// predefined sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches a cause to a copy of base.
func Wrap(base *Error, err error) *Error {
	clone := *base
	clone.Err = err
	return &clone
}

// Clone returns a copy of err with an optional message override.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetail returns a copy of err carrying an extra detail field.
func WithDetail(err *Error, key string, value any) *Error {
	clone := *err
	clone.Details = make(map[string]any, len(err.Details)+1)
	for k, v := range err.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

var (
	ErrBeaconInactive      = New("BEACON_INACTIVE", http.StatusConflict, "beacon not active")
	ErrLocationExpired     = New("LOCATION_EXPIRED", http.StatusConflict, "faculty location expired, ask the teacher to refresh")
	ErrLocationUnavailable = New("LOCATION_UNAVAILABLE", http.StatusUnprocessableEntity, "location unavailable")
	ErrProximityTooClose   = New("PROXIMITY_TOO_CLOSE", http.StatusUnprocessableEntity, "too close to the beacon")
	ErrProximityTooFar     = New("PROXIMITY_TOO_FAR", http.StatusUnprocessableEntity, "too far from the beacon")
	ErrInvalidOCRPayload   = New("INVALID_OCR_PAYLOAD", http.StatusUnprocessableEntity, "could not extract timetable data")
	ErrEnrollmentRequired  = New("ENROLLMENT_REQUIRED", http.StatusPreconditionRequired, "student must enroll first")
	ErrAlreadyEnrolled     = New("ALREADY_ENROLLED", http.StatusConflict, "student is already enrolled")
	ErrCaptureInProgress   = New("CAPTURE_IN_PROGRESS", http.StatusConflict, "another capture is already in progress")
	ErrUpstream            = New("UPSTREAM_ERROR", http.StatusBadGateway, "upstream service failed")
	ErrNotFound            = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation          = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUnauthorized        = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden           = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrRateLimited         = New("RATE_LIMITED", http.StatusTooManyRequests, "rate limit exceeded")
	ErrInternal            = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
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
	return Wrap(ErrInternal, err)
}

// Expected reports whether err is a steady-state outcome of a capture attempt
// rather than a provider or system fault.
func Expected(err error) bool {
	return errors.Is(err, ErrBeaconInactive) ||
		errors.Is(err, ErrLocationExpired) ||
		errors.Is(err, ErrProximityTooClose) ||
		errors.Is(err, ErrProximityTooFar)
}
