package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"login-guard/internal/bucketing"
	"login-guard/internal/guard"
	"login-guard/internal/identity"
	"login-guard/internal/repository"
	"login-guard/internal/util"
	"login-guard/internal/verification"
)

var (
	ErrNotSignedIn     = errors.New("not signed in")
	ErrInvalidClientID = errors.New("invalid client id")
	ErrServiceClosed   = errors.New("login service closed")
)

// Backend is the application API the login screen talks to after sign-in.
type Backend interface {
	FetchPublic(ctx context.Context) (string, error)
	FetchProtected(ctx context.Context, idToken string) (string, error)
}

// Options configures a LoginService. Provider, Store and Backend are
// required.
type Options struct {
	Provider       identity.Provider
	Store          repository.Store
	Backend        Backend
	Events         guard.EventPublisher
	Guard          guard.Config
	ResendCooldown time.Duration
	TickInterval   time.Duration
	IdleTTL        time.Duration
	Shards         int
	Clock          guard.Clock
	Logger         *zap.Logger
}

// ClientSession is everything the login screen of one browser client needs.
type ClientSession struct {
	ID       string
	Identity *identity.Client
	Guard    *guard.Guard
	Gate     *verification.Gate

	sub *identity.Subscription

	mu   sync.Mutex
	seen time.Time
}

func (cs *ClientSession) touch(now time.Time) {
	cs.mu.Lock()
	cs.seen = now
	cs.mu.Unlock()
}

func (cs *ClientSession) lastSeen() time.Time {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.seen
}

// close releases the auth-state subscription.
func (cs *ClientSession) close() {
	cs.sub.Unsubscribe()
}

// SessionView is the signed-in state reported to the UI.
type SessionView struct {
	SignedIn     bool              `json:"signed_in"`
	Session      *identity.Session `json:"session,omitempty"`
	Verification string            `json:"verification"`
}

// LoginService owns per-client guards, gates and auth state.
type LoginService struct {
	opts     Options
	logger   *zap.Logger
	clock    guard.Clock
	registry *registry

	closeOnce sync.Once
	closed    chan struct{}
}

func NewLoginService(opts Options) (*LoginService, error) {
	if opts.Provider == nil || opts.Store == nil || opts.Backend == nil {
		return nil, errors.New("service: provider, store and backend are required")
	}
	if err := opts.Guard.Validate(); err != nil {
		return nil, err
	}
	if opts.Shards <= 0 {
		opts.Shards = 16
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	clock := opts.Clock
	if clock == nil {
		clock = guard.SystemClock
	}
	return &LoginService{
		opts:     opts,
		logger:   util.OrNop(opts.Logger),
		clock:    clock,
		registry: newRegistry(bucketing.NewManager(opts.Shards)),
		closed:   make(chan struct{}),
	}, nil
}

// Session returns the live session for clientID, restoring its guard from
// the store on first use.
func (s *LoginService) Session(ctx context.Context, clientID string) (*ClientSession, error) {
	if clientID == "" {
		return nil, ErrInvalidClientID
	}
	select {
	case <-s.closed:
		return nil, ErrServiceClosed
	default:
	}

	cs, err := s.registry.getOrCreate(clientID, func() (*ClientSession, error) {
		return s.newClientSession(ctx, clientID)
	})
	if err != nil {
		return nil, err
	}
	cs.touch(s.clock.Now())
	return cs, nil
}

func (s *LoginService) newClientSession(ctx context.Context, clientID string) (*ClientSession, error) {
	logger := s.logger.With(zap.String("client_id", clientID))
	idc := identity.NewClient(s.opts.Provider, logger)

	g, err := guard.New(ctx, s.opts.Guard, idc, repository.NewScoped(s.opts.Store, "client:"+clientID),
		guard.WithClock(s.clock),
		guard.WithLogger(logger),
		guard.WithEventPublisher(s.opts.Events),
		guard.WithSubject(clientID))
	if err != nil {
		return nil, fmt.Errorf("create guard: %w", err)
	}

	gate := verification.NewGate(idc,
		verification.WithResendCooldown(s.opts.ResendCooldown),
		verification.WithNow(s.clock.Now),
		verification.WithLogger(logger))

	cs := &ClientSession{ID: clientID, Identity: idc, Guard: g, Gate: gate}
	cs.sub = idc.Subscribe(func(sess *identity.Session) {
		gate.Observe(sess)
		if sess == nil {
			logger.Info("Auth state changed: signed out")
			return
		}
		logger.Info("Auth state changed: signed in",
			zap.String("user_id", sess.UserID),
			zap.Bool("email_verified", sess.EmailVerified))
	})
	return cs, nil
}

func (s *LoginService) Login(ctx context.Context, clientID, email, password string) (*identity.Session, error) {
	cs, err := s.Session(ctx, clientID)
	if err != nil {
		return nil, err
	}
	sess, err := cs.Guard.AttemptLogin(ctx, guard.Credentials{
		Email:    util.NormalizeEmail(email),
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	// Auth state stays silent when the same account signs in again.
	cs.Gate.Observe(sess)
	return sess, nil
}

// SignUp creates the account and immediately dispatches the first
// verification email. A failed dispatch is logged; the account exists and
// the user can resend from the verification screen.
func (s *LoginService) SignUp(ctx context.Context, clientID, email, password string) (*identity.Session, error) {
	cs, err := s.Session(ctx, clientID)
	if err != nil {
		return nil, err
	}
	email = util.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, guard.ErrInvalidInput
	}
	sess, err := cs.Identity.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := cs.Gate.ResendVerification(ctx, sess); err != nil {
		s.logger.Warn("Initial verification email not sent",
			zap.String("client_id", clientID),
			zap.String("email", util.MaskEmail(email)),
			zap.Error(err))
	}
	return sess, nil
}

// Logout signs the client out. Attempt history is kept.
func (s *LoginService) Logout(ctx context.Context, clientID string) error {
	cs, err := s.Session(ctx, clientID)
	if err != nil {
		return err
	}
	return cs.Identity.SignOut(ctx)
}

func (s *LoginService) LockoutStatus(ctx context.Context, clientID string) (guard.Status, error) {
	cs, err := s.Session(ctx, clientID)
	if err != nil {
		return guard.Status{}, err
	}
	return cs.Guard.Status(), nil
}

func (s *LoginService) CurrentSession(ctx context.Context, clientID string) (SessionView, error) {
	cs, err := s.Session(ctx, clientID)
	if err != nil {
		return SessionView{}, err
	}
	sess := cs.Identity.Current()
	return SessionView{
		SignedIn:     sess != nil,
		Session:      sess,
		Verification: cs.Gate.Status().String(),
	}, nil
}

func (s *LoginService) RefreshVerification(ctx context.Context, clientID string) (verification.Status, error) {
	cs, err := s.Session(ctx, clientID)
	if err != nil {
		return verification.StatusUnverified, err
	}
	sess := cs.Identity.Current()
	if sess == nil {
		return cs.Gate.Status(), ErrNotSignedIn
	}
	return cs.Gate.RefreshStatus(ctx, sess)
}

func (s *LoginService) ResendVerification(ctx context.Context, clientID string) error {
	cs, err := s.Session(ctx, clientID)
	if err != nil {
		return err
	}
	sess := cs.Identity.Current()
	if sess == nil {
		return ErrNotSignedIn
	}
	return cs.Gate.ResendVerification(ctx, sess)
}

func (s *LoginService) PublicMessage(ctx context.Context) (string, error) {
	return s.opts.Backend.FetchPublic(ctx)
}

// ProtectedMessage is only forwarded for a signed-in, verified account.
func (s *LoginService) ProtectedMessage(ctx context.Context, clientID string) (string, error) {
	cs, err := s.Session(ctx, clientID)
	if err != nil {
		return "", err
	}
	sess := cs.Identity.Current()
	if sess == nil {
		return "", ErrNotSignedIn
	}
	if err := cs.Gate.Require(); err != nil {
		return "", err
	}
	return s.opts.Backend.FetchProtected(ctx, sess.IDToken)
}

// Run ticks every guard once per TickInterval and evicts idle clients until
// ctx is done or the service is closed.
func (s *LoginService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *LoginService) sweep(ctx context.Context) {
	s.registry.each(func(cs *ClientSession) {
		cs.Guard.Tick(ctx)
	})

	evicted := s.registry.evictIdle(s.clock.Now().Add(-s.opts.IdleTTL))
	for _, cs := range evicted {
		cs.close()
	}
	if len(evicted) > 0 {
		s.logger.Debug("Evicted idle clients", zap.Int("count", len(evicted)))
	}
}

// ActiveClients reports how many client sessions are held in memory.
func (s *LoginService) ActiveClients() int {
	return s.registry.len()
}

// Close releases every client subscription. Attempt state stays in the
// store.
func (s *LoginService) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		for _, cs := range s.registry.drain() {
			cs.close()
		}
	})
}
