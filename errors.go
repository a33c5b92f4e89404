package remparo

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the expected rejection outcomes
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("remparo: circuit open")

	// ErrRateLimited is returned when a request is denied due to rate limiting
	ErrRateLimited = errors.New("remparo: rate limited")

	// ErrTimeout is returned when an operation exceeds its wall-clock bound
	ErrTimeout = errors.New("remparo: operation timed out")
)

// RateLimitError carries the quota and retry hint for a rejected request.
// It matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	Limit      int
	Window     time.Duration
	RetryAfter int // seconds until the oldest counted request ages out
}

// Error implements error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("remparo: rate limited: max %d requests per %s, retry after %ds",
		e.Limit, e.Window, e.RetryAfter)
}

// Is reports equivalence with the ErrRateLimited sentinel.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsRecoverable reports whether err is one of the expected, retryable
// outcomes of the resilience layers (quota exceeded, circuit open, timeout).
// Callers map these to "try again" responses; anything else is a genuine
// failure of the wrapped operation.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrTimeout)
}
