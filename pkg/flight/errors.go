package flight

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for errors.Is checks. The typed errors below match them
// through their Is methods.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrUnknownFlight   = errors.New("unknown flight")
	ErrRemote          = errors.New("remote backend error")
	ErrFlightCompleted = errors.New("flight is completed")
	ErrTransition      = errors.New("illegal status transition")
)

// ValidationError reports the first malformed or out-of-range field of a
// tracking record or flight.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError is returned when a flight has no samples, or when a query
// time precedes the first sample of the path.
type NotFoundError struct {
	FlightNumber string

	// At is the queried time, nil for "current position" lookups
	At *time.Time
}

func (e *NotFoundError) Error() string {
	if e.At != nil {
		return fmt.Sprintf("no position for flight %s at or before %s",
			e.FlightNumber, e.At.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("no position for flight %s", e.FlightNumber)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UnknownFlightError is returned by lifecycle operations on a flight that
// was never fetched by this client.
type UnknownFlightError struct {
	FlightNumber string
}

func (e *UnknownFlightError) Error() string {
	return fmt.Sprintf("unknown flight %s", e.FlightNumber)
}

func (e *UnknownFlightError) Is(target error) bool { return target == ErrUnknownFlight }

// TransitionError is returned when a status change would move a flight
// backwards in its lifecycle.
type TransitionError struct {
	FlightNumber string
	From, To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("flight %s cannot move from %s to %s", e.FlightNumber, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrTransition }

// RemoteError wraps a backend or network failure.
// StatusCode is 0 when the request never got a response.
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error

	// RetryAfter is the delay the backend asked for, 0 when not given
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: backend returned %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Operation, e.StatusCode)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// IsNotFound reports whether the backend answered 404.
func (e *RemoteError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// Temporary reports whether re-issuing the request may succeed: transport
// failures, rate limiting and 5xx responses.
func (e *RemoteError) Temporary() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Message returns the text shown to the user for err. Every error in the
// taxonomy is non-fatal; the UI shows this and lets the user retry.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return err.Error()
}
