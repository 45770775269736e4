package guard

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy rejects a submission while another one is still with the
	// provider.
	ErrBusy = errors.New("a login attempt is already in progress")
	// ErrProviderUnavailable means the provider could not be reached. It is
	// not counted as a failed attempt.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrInvalidInput rejects empty email or password before any provider
	// call.
	ErrInvalidInput = errors.New("email and password are required")
)

// RateLimitedError is returned while the guard is Locked.
type RateLimitedError struct {
	SecondsRemaining int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %d seconds", e.SecondsRemaining)
}

// AuthFailedError is a provider rejection that was counted against the
// client.
type AuthFailedError struct {
	ProviderMessage   string
	AttemptsRemaining int
	Err               error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("login failed: %s (%d attempts remaining)", e.ProviderMessage, e.AttemptsRemaining)
}

func (e *AuthFailedError) Unwrap() error {
	return e.Err
}
