// Package verification blocks protected functionality until the signed-in
// account has confirmed its email address.
package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"login-guard/internal/identity"
	"login-guard/internal/util"
)

var (
	// ErrRefreshFailed means the provider reload failed; the cached status
	// is left as it was.
	ErrRefreshFailed = errors.New("could not refresh verification status")
	// ErrResendThrottled asks the user to wait before requesting another
	// verification email.
	ErrResendThrottled = errors.New("verification email requested too recently")
	ErrResendFailed    = errors.New("could not send verification email")
	ErrUnverified      = errors.New("email address not verified")
)

type Status int

const (
	StatusUnverified Status = iota
	StatusVerified
)

func (s Status) String() string {
	if s == StatusVerified {
		return "verified"
	}
	return "unverified"
}

// Verifier is the slice of the identity client the gate needs.
type Verifier interface {
	Reload(ctx context.Context, s *identity.Session) (*identity.Session, error)
	SendVerification(ctx context.Context, s *identity.Session) error
}

// Gate caches the last emailVerified flag read from the provider. It keeps
// no other state apart from the optional resend throttle.
type Gate struct {
	verifier       Verifier
	logger         *zap.Logger
	now            func() time.Time
	resendCooldown time.Duration

	mu         sync.Mutex
	verified   bool
	lastResend time.Time
}

type Option func(*Gate)

// WithResendCooldown adds a client-side minimum gap between resends on top
// of whatever the provider enforces. Zero disables it.
func WithResendCooldown(d time.Duration) Option {
	return func(g *Gate) { g.resendCooldown = d }
}

func WithNow(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.logger = util.OrNop(l) }
}

func NewGate(v Verifier, opts ...Option) *Gate {
	g := &Gate{
		verifier: v,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Observe caches the flag carried by s, e.g. right after sign-in. A nil
// session means signed out.
func (g *Gate) Observe(s *identity.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified = s != nil && s.EmailVerified
}

func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

// Require returns ErrUnverified unless the cached status is Verified.
func (g *Gate) Require() error {
	if g.Status() != StatusVerified {
		return ErrUnverified
	}
	return nil
}

// RefreshStatus reloads the account and caches its emailVerified flag. On
// failure it returns the previous status alongside ErrRefreshFailed.
func (g *Gate) RefreshStatus(ctx context.Context, s *identity.Session) (Status, error) {
	if s == nil {
		return g.Status(), fmt.Errorf("%w: %w", ErrRefreshFailed, identity.ErrNoSession)
	}

	fresh, err := g.verifier.Reload(ctx, s)
	if err != nil {
		g.logger.Warn("Verification status refresh failed", zap.Error(err))
		return g.Status(), fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	g.mu.Lock()
	was := g.verified
	g.verified = fresh.EmailVerified
	st := g.statusLocked()
	g.mu.Unlock()

	if !was && fresh.EmailVerified {
		g.logger.Info("Email verified", zap.String("user_id", fresh.UserID))
	}
	return st, nil
}

// ResendVerification asks the provider to send another verification email.
// Throttling, local or provider-side, yields ErrResendThrottled.
func (g *Gate) ResendVerification(ctx context.Context, s *identity.Session) error {
	if s == nil {
		return fmt.Errorf("%w: %w", ErrResendFailed, identity.ErrNoSession)
	}

	g.mu.Lock()
	if g.resendCooldown > 0 && !g.lastResend.IsZero() {
		if wait := g.lastResend.Add(g.resendCooldown).Sub(g.now()); wait > 0 {
			g.mu.Unlock()
			return fmt.Errorf("%w: retry in %s", ErrResendThrottled, wait.Round(time.Second))
		}
	}
	g.mu.Unlock()

	if err := g.verifier.SendVerification(ctx, s); err != nil {
		if errors.Is(err, identity.ErrThrottled) {
			g.logger.Info("Verification resend throttled by provider", zap.String("user_id", s.UserID))
			return fmt.Errorf("%w: %w", ErrResendThrottled, err)
		}
		g.logger.Warn("Verification resend failed", zap.String("user_id", s.UserID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrResendFailed, err)
	}

	g.mu.Lock()
	g.lastResend = g.now()
	g.mu.Unlock()
	g.logger.Info("Verification email sent", zap.String("user_id", s.UserID))
	return nil
}

func (g *Gate) statusLocked() Status {
	if g.verified {
		return StatusVerified
	}
	return StatusUnverified
}
