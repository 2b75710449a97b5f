package privvy

import (
	"errors"
	"fmt"
)

// ErrNoToken means the login response carried neither token field.
var ErrNoToken = errors.New("login response contained no token")

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// AuthError is returned when a login against the provider fails.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("privvy authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Phase names the sync phase the error belongs to
func (e *AuthError) Phase() string { return "authentication" }

// FetchError is returned when the merchant list cannot be retrieved.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("privvy merchant fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Phase names the sync phase the error belongs to
func (e *FetchError) Phase() string { return "fetch" }

// IsUnauthorized reports whether err is a 401 from the provider
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 401
}
