package identity

import "context"

// Provider performs credential checks and account operations against the
// external identity service. Every call is a single attempt; retries belong
// to the caller.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SendVerification(ctx context.Context, s *Session) error
	Reload(ctx context.Context, s *Session) (*Session, error)
}
