package xapi

import (
	"fmt"
	"time"
)

// AuthError means the bearer token was rejected. Permanent until the
// operator intervenes.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return e.Msg }

// RateLimitError means the upstream returned 429. Reset is the instant the
// budget reopens, when the upstream reported one.
type RateLimitError struct {
	Reset     time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return "search API rate limit exceeded"
	}
	return fmt.Sprintf("search API rate limit exceeded, resets at %s", e.Reset.UTC().Format(time.TimeOnly))
}

// TransportError wraps timeouts and connection failures. Retriable on the
// next poll.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-retriable upstream rejection other than auth or rate
// limiting.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string { return fmt.Sprintf("search API error: status %d", e.Status) }
