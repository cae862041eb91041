package tovala

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a 404 from the vendor API. The status fetcher uses it to
// advance through endpoint candidates; everything else treats it as fatal.
var ErrNotFound = errors.New("not found")

// AuthError means the credentials themselves were rejected (or are missing).
// Retrying another host cannot fix it; the user has to re-authenticate.
type AuthError struct {
	Msg string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Msg, e.Err)
	}
	return "auth: " + e.Msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitedError means the vendor returned HTTP 429. It is terminal for the
// whole login attempt: hammering the remaining hosts only risks a lockout.
type RateLimitedError struct {
	Host string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s", e.Host)
}

// APIError covers transport failures and unexpected HTTP statuses. The poller
// retries these on its normal cadence.
type APIError struct {
	Msg    string
	Status int
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("api: %s (HTTP %d): %v", e.Msg, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("api: %s (HTTP %d)", e.Msg, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("api: %s: %v", e.Msg, e.Err)
	default:
		return "api: " + e.Msg
	}
}

func (e *APIError) Unwrap() error { return e.Err }
