package identity

import (
	"context"

	"go.uber.org/zap"

	"login-guard/internal/util"
)

// Client binds a Provider to the auth state of a single browser client.
type Client struct {
	provider Provider
	state    *AuthState
	logger   *zap.Logger
}

func NewClient(provider Provider, logger *zap.Logger) *Client {
	return &Client{
		provider: provider,
		state:    NewAuthState(),
		logger:   util.OrNop(logger),
	}
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	s, err := c.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.state.Set(s)
	c.logger.Debug("Signed in", zap.String("user_id", s.UserID))
	return s.Clone(), nil
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	s, err := c.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.state.Set(s)
	c.logger.Debug("Signed up", zap.String("user_id", s.UserID))
	return s.Clone(), nil
}

// SignOut forgets the current session. Tokens issued by the provider simply
// expire; there is nothing to revoke remotely.
func (c *Client) SignOut(context.Context) error {
	c.state.Set(nil)
	return nil
}

func (c *Client) SendVerification(ctx context.Context, s *Session) error {
	if s == nil {
		return ErrNoSession
	}
	return c.provider.SendVerification(ctx, s)
}

// Reload fetches a fresh copy of the account record. When s is the current
// session the stored copy is replaced too.
func (c *Client) Reload(ctx context.Context, s *Session) (*Session, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	fresh, err := c.provider.Reload(ctx, s)
	if err != nil {
		return nil, err
	}
	if cur := c.state.Current(); cur != nil && cur.UserID == fresh.UserID {
		c.state.Set(fresh)
	}
	return fresh.Clone(), nil
}

func (c *Client) Current() *Session {
	return c.state.Current()
}

func (c *Client) Subscribe(fn Listener) *Subscription {
	return c.state.Subscribe(fn)
}
