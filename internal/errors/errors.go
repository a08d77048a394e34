// Package errors defines the error taxonomy for aggregation passes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	// ErrIdentityUnavailable is the one terminal failure mode of a pass:
	// without an identity there is nothing to aggregate for.
	ErrIdentityUnavailable = errors.New("identity unavailable")

	ErrTimeout          = errors.New("timeout")
	ErrConnectionFailed = errors.New("connection failed")
	ErrInternalError    = errors.New("internal error")
)

// ErrorType represents the category of a fetch error.
type ErrorType string

const (
	ErrorTypeQuery      ErrorType = "query"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeInternal   ErrorType = "internal"
)

// FetchError is a structured error for a single domain fetch. It never
// escapes the domain boundary: the aggregator records it and degrades
// that one domain to a zero contribution.
type FetchError struct {
	Type      ErrorType
	Op        string // operation that failed (e.g. "fetch_blog", "fetch_book_views")
	Domain    string // domain the fetch belonged to
	Err       error  // underlying error
	Timestamp time.Time
}

func (e *FetchError) Error() string {
	if e.Domain != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Domain, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for the base error types.
func (e *FetchError) Is(target error) bool {
	if target == nil {
		return false
	}
	switch target {
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	}
	return errors.Is(e.Err, target)
}

// NewFetchError creates a FetchError, classifying context deadline errors
// as timeouts so a slow domain and a broken one record distinct types.
func NewFetchError(op, domain string, err error) *FetchError {
	errorType := ErrorTypeQuery
	if errors.Is(err, context.DeadlineExceeded) {
		errorType = ErrorTypeTimeout
	}
	return &FetchError{
		Type:      errorType,
		Op:        op,
		Domain:    domain,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// IsTimeout reports whether err is, or wraps, a timeout-classified error.
func IsTimeout(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeTimeout
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout)
}
