package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable covers transport failures and provider outages.
	ErrUnavailable = errors.New("identity provider unavailable")
	// ErrThrottled is returned when the provider asks the caller to slow down.
	ErrThrottled = errors.New("identity provider throttled the request")
	// ErrNoSession is returned for operations that need a signed-in account.
	ErrNoSession = errors.New("no signed-in session")
)

// ProviderError is a definitive rejection by the provider, e.g. a wrong
// password or an unknown email.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" || e.Message == e.Code {
		return fmt.Sprintf("identity provider rejected request: %s", e.Code)
	}
	return fmt.Sprintf("identity provider rejected request: %s: %s", e.Code, e.Message)
}

// UserMessage returns a short text fit for showing on the login form.
func (e *ProviderError) UserMessage() string {
	switch e.Code {
	case CodeEmailNotFound, CodeInvalidPassword, CodeInvalidLoginCredentials:
		return "Invalid email or password."
	case CodeUserDisabled:
		return "This account has been disabled."
	case CodeEmailExists:
		return "An account with this email already exists."
	case CodeWeakPassword:
		return "Password is too weak."
	case CodeInvalidEmail:
		return "Email address is not valid."
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Provider error codes understood by this package.
const (
	CodeEmailNotFound           = "EMAIL_NOT_FOUND"
	CodeInvalidPassword         = "INVALID_PASSWORD"
	CodeInvalidLoginCredentials = "INVALID_LOGIN_CREDENTIALS"
	CodeUserDisabled            = "USER_DISABLED"
	CodeEmailExists             = "EMAIL_EXISTS"
	CodeWeakPassword            = "WEAK_PASSWORD"
	CodeInvalidEmail            = "INVALID_EMAIL"
	CodeTooManyAttempts         = "TOO_MANY_ATTEMPTS_TRY_LATER"
	CodeInvalidIDToken          = "INVALID_ID_TOKEN"
	CodeTokenExpired            = "TOKEN_EXPIRED"
)
