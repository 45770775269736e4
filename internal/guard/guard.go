package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"login-guard/internal/identity"
	"login-guard/internal/repository"
	"login-guard/internal/util"
)

// storeTimeout bounds each read or write of persisted attempt state.
const storeTimeout = 5 * time.Second

// Authenticator is the slice of the identity client the guard forwards to.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
}

// Credentials are passed through to the provider untouched.
type Credentials struct {
	Email    string
	Password string
}

// Status is a point-in-time view for rendering the login form.
type Status struct {
	State             State     `json:"-"`
	StateName         string    `json:"state"`
	FailureCount      int       `json:"failure_count"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	SecondsRemaining  int       `json:"seconds_remaining"`
	LockoutUntil      time.Time `json:"lockout_until,omitzero"`
}

// Guard mediates login attempts for one client. All methods are safe for
// concurrent use; at most one provider call is in flight at a time.
type Guard struct {
	cfg      Config
	auth     Authenticator
	store    repository.Store
	clock    Clock
	events   EventPublisher
	subject  string
	logger   *zap.Logger
	inflight *semaphore.Weighted

	mu       sync.Mutex
	state    AttemptState
	degraded bool
}

type Option func(*Guard)

func WithClock(c Clock) Option {
	return func(g *Guard) { g.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) { g.logger = util.OrNop(l) }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(g *Guard) { g.events = p }
}

// WithSubject tags log lines and events with the owning client id.
func WithSubject(id string) Option {
	return func(g *Guard) { g.subject = id }
}

// New restores persisted attempt state and returns a ready guard. A store
// that cannot be read degrades the guard to memory-only tracking instead of
// failing construction.
func New(ctx context.Context, cfg Config, auth Authenticator, store repository.Store, opts ...Option) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, errors.New("guard: authenticator is required")
	}
	g := &Guard{
		cfg:      cfg,
		auth:     auth,
		store:    store,
		clock:    SystemClock,
		logger:   zap.NewNop(),
		inflight: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("subject", g.subject))
	if g.store == nil {
		g.degraded = true
	}

	g.mu.Lock()
	g.restore(ctx)
	evs := g.expire(ctx, g.clock.Now())
	status := g.statusLocked(g.clock.Now())
	g.mu.Unlock()
	g.emit(ctx, evs)

	g.logger.Debug("Login guard restored",
		zap.Stringer("state", status.State),
		zap.Int("failure_count", status.FailureCount),
		zap.Int("seconds_remaining", status.SecondsRemaining))
	return g, nil
}

func (g *Guard) restore(ctx context.Context) {
	if g.degraded {
		return
	}
	sctx, cancel := storeContext(ctx)
	st, err := loadState(sctx, g.store)
	cancel()
	switch {
	case err == nil:
		g.state = st
	case errors.Is(err, errCorruptState):
		g.logger.Warn("Discarding corrupt attempt state", zap.Error(err))
		g.persist(ctx)
	default:
		g.degrade(err)
	}
}

// AttemptLogin forwards creds to the provider unless the guard is Locked or
// another attempt is pending.
//
// Errors: ErrInvalidInput, ErrBusy, *RateLimitedError, *AuthFailedError,
// ErrProviderUnavailable. Only *AuthFailedError counts as a failed attempt.
func (g *Guard) AttemptLogin(ctx context.Context, creds Credentials) (*identity.Session, error) {
	if creds.Email == "" || creds.Password == "" {
		return nil, ErrInvalidInput
	}
	if !g.inflight.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer g.inflight.Release(1)

	g.mu.Lock()
	now := g.clock.Now()
	evs := g.expire(ctx, now)
	if g.state.lockedAt(now) {
		secs := g.state.secondsRemaining(now)
		evs = append(evs, g.event(EventRateLimited, now))
		g.mu.Unlock()
		g.emit(ctx, evs)
		return nil, &RateLimitedError{SecondsRemaining: secs}
	}
	g.mu.Unlock()
	g.emit(ctx, evs)

	session, err := g.auth.SignIn(ctx, creds.Email, creds.Password)
	if err == nil {
		g.recordSuccess(ctx)
		return session, nil
	}

	if errors.Is(err, identity.ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		g.logger.Warn("Login attempt not counted, provider unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	remaining := g.recordFailure(ctx)
	return nil, &AuthFailedError{
		ProviderMessage:   providerMessage(err),
		AttemptsRemaining: remaining,
		Err:               err,
	}
}

func (g *Guard) recordSuccess(ctx context.Context) {
	g.mu.Lock()
	now := g.clock.Now()
	g.state = AttemptState{}
	g.persist(ctx)
	ev := g.event(EventLoginSucceeded, now)
	g.mu.Unlock()

	g.logger.Info("Login succeeded, attempt history cleared")
	g.emit(ctx, []Event{ev})
}

func (g *Guard) recordFailure(ctx context.Context) int {
	g.mu.Lock()
	now := g.clock.Now()
	g.state.FailureCount++
	evs := []Event{g.event(EventLoginFailed, now)}
	if g.state.FailureCount >= g.cfg.MaxAttempts {
		g.state.LockoutUntil = now.Add(g.cfg.cooldown())
		evs = append(evs, g.event(EventLockoutStarted, now))
		g.logger.Warn("Login locked out",
			zap.Int("failure_count", g.state.FailureCount),
			zap.Time("lockout_until", g.state.LockoutUntil))
	}
	g.persist(ctx)
	remaining := max(0, g.cfg.MaxAttempts-g.state.FailureCount)
	g.mu.Unlock()

	g.emit(ctx, evs)
	return remaining
}

// Tick applies the Locked -> Open transition once the deadline has passed.
// It never contacts the provider.
func (g *Guard) Tick(ctx context.Context) State {
	g.mu.Lock()
	now := g.clock.Now()
	evs := g.expire(ctx, now)
	st := g.stateAt(now)
	g.mu.Unlock()
	g.emit(ctx, evs)
	return st
}

// Run calls Tick every interval until ctx is done.
func (g *Guard) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Tick(ctx)
		}
	}
}

// Reset forces the guard Open with no recorded failures. Sign-out does not
// call this; attempt history survives logout.
func (g *Guard) Reset(ctx context.Context) {
	g.mu.Lock()
	now := g.clock.Now()
	g.state = AttemptState{}
	g.persist(ctx)
	ev := g.event(EventReset, now)
	g.mu.Unlock()
	g.emit(ctx, []Event{ev})
}

// SecondsRemaining is 0 when Open, otherwise the lockout time left rounded
// up to whole seconds.
func (g *Guard) SecondsRemaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.secondsRemaining(g.clock.Now())
}

// AttemptsRemaining counts a lapsed lockout as already reset.
func (g *Guard) AttemptsRemaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked(g.clock.Now()).AttemptsRemaining
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateAt(g.clock.Now())
}

func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked(g.clock.Now())
}

// Degraded reports whether the guard has fallen back to memory-only
// tracking.
func (g *Guard) Degraded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded
}

func (g *Guard) stateAt(now time.Time) State {
	if g.state.lockedAt(now) {
		return StateLocked
	}
	return StateOpen
}

func (g *Guard) statusLocked(now time.Time) Status {
	st := g.state
	if st.lapsedAt(now) {
		st = AttemptState{}
	}
	state := g.stateAt(now)
	return Status{
		State:             state,
		StateName:         state.String(),
		FailureCount:      st.FailureCount,
		AttemptsRemaining: max(0, g.cfg.MaxAttempts-st.FailureCount),
		SecondsRemaining:  st.secondsRemaining(now),
		LockoutUntil:      st.LockoutUntil,
	}
}

// expire must be called with mu held.
func (g *Guard) expire(ctx context.Context, now time.Time) []Event {
	if !g.state.lapsedAt(now) {
		return nil
	}
	g.state = AttemptState{}
	g.persist(ctx)
	g.logger.Info("Lockout expired")
	return []Event{g.event(EventLockoutExpired, now)}
}

// persist must be called with mu held. After the first write failure the
// guard stops touching the store for the rest of its life.
func (g *Guard) persist(ctx context.Context) {
	if g.degraded {
		return
	}
	sctx, cancel := storeContext(ctx)
	defer cancel()
	if err := saveState(sctx, g.store, g.state); err != nil {
		g.degrade(err)
	}
}

// storeContext detaches store I/O from the caller so a dropped request
// cannot abort a write and be mistaken for a storage outage.
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

func (g *Guard) degrade(err error) {
	if g.degraded {
		return
	}
	g.degraded = true
	g.logger.Warn("Attempt state storage unavailable, tracking in memory only", zap.Error(err))
}

func (g *Guard) event(t EventType, now time.Time) Event {
	return Event{
		Type:         t,
		Subject:      g.subject,
		FailureCount: g.state.FailureCount,
		LockoutUntil: g.state.LockoutUntil,
		At:           now,
	}
}

func (g *Guard) emit(ctx context.Context, evs []Event) {
	if g.events == nil {
		return
	}
	for _, ev := range evs {
		if err := g.events.Publish(ctx, ev); err != nil {
			g.logger.Warn("Failed to publish guard event",
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
	}
}

func providerMessage(err error) string {
	var pe *identity.ProviderError
	if errors.As(err, &pe) {
		return pe.UserMessage()
	}
	if errors.Is(err, identity.ErrThrottled) {
		return "Too many requests. Please wait before retrying."
	}
	return err.Error()
}
