package identity

import "sync"

// Listener receives the signed-in session, or nil after sign-out.
type Listener func(*Session)

// AuthState holds the current session of one client and fans out identity
// changes to subscribers.
type AuthState struct {
	mu        sync.Mutex
	current   *Session
	nextID    uint64
	listeners map[uint64]Listener
}

func NewAuthState() *AuthState {
	return &AuthState{listeners: make(map[uint64]Listener)}
}

// Current returns a copy of the signed-in session, or nil.
func (a *AuthState) Current() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Clone()
}

// Set stores s as the current session. Subscribers are notified only when
// the signed-in identity changes; refreshing the same account is silent.
func (a *AuthState) Set(s *Session) {
	a.mu.Lock()
	prev := a.current
	a.current = s.Clone()
	changed := identityOf(prev) != identityOf(s)
	var targets []Listener
	if changed {
		targets = make([]Listener, 0, len(a.listeners))
		for _, l := range a.listeners {
			targets = append(targets, l)
		}
	}
	a.mu.Unlock()

	for _, l := range targets {
		l(s.Clone())
	}
}

// Subscribe registers fn and returns a handle whose Unsubscribe must run on
// teardown.
func (a *AuthState) Subscribe(fn Listener) *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return &Subscription{state: a, id: id}
}

// Subscribers reports how many listeners are registered.
func (a *AuthState) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

func (a *AuthState) remove(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.listeners, id)
}

// Subscription is the release handle returned by AuthState.Subscribe.
type Subscription struct {
	state *AuthState
	id    uint64
	once  sync.Once
}

// Unsubscribe detaches the listener. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.state.remove(s.id) })
}

func identityOf(s *Session) string {
	if s == nil {
		return ""
	}
	return s.UserID
}
