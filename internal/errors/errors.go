package errors

import (
	"errors"
	"fmt"
)

// Custom error types for the traffic statistics application

// ErrUserNotFound is returned when a user id doesn't exist in the database
var ErrUserNotFound = errors.New("user not found")

// ErrNoData is returned when a report window contains no tracked requests
var ErrNoData = errors.New("no traffic data for period")

// ErrInvalidPeriod is returned when a date/week/month/year query parameter cannot be parsed
var ErrInvalidPeriod = errors.New("invalid period format")

// ErrInvalidFilter is returned when a request log filter (start_date, end_date) is malformed
var ErrInvalidFilter = errors.New("invalid filter")

// ErrInvalidPage is returned when the requested page is not an integer or out of range
var ErrInvalidPage = errors.New("invalid page")

// ErrInvalidActivityTime is returned when an activity ping carries a bad timestamp
var ErrInvalidActivityTime = errors.New("invalid activity time")

// ErrTrackingFailed is returned when a request could not be recorded
type ErrTrackingFailed struct {
	Path   string
	Reason string
}

func (e ErrTrackingFailed) Error() string {
	return fmt.Sprintf("failed to record request %s: %s", e.Path, e.Reason)
}

// UserError wraps a sentinel with the message shown to API clients.
type UserError struct {
	Kind    error
	Message string
}

func (e *UserError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *UserError) Unwrap() error {
	return e.Kind
}

// NewUserError builds a UserError for the given sentinel.
func NewUserError(kind error, format string, args ...any) *UserError {
	return &UserError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message extracts the client-facing message from err, or fallback when err carries none.
func Message(err error, fallback string) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return fallback
}
