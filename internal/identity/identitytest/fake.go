// Package identitytest provides an in-memory identity provider for tests.
package identitytest

import (
	"context"
	"fmt"
	"sync"

	"login-guard/internal/identity"
)

type account struct {
	uid      string
	password string
	verified bool
}

// Fake is a scriptable identity.Provider. Zero errors means the fake behaves
// like a healthy provider backed by its account table.
type Fake struct {
	mu        sync.Mutex
	accounts  map[string]*account
	nextID    int
	signInErr error
	reloadErr error
	sendErr   error
	signUpErr error
	gate      chan struct{}
	entered   chan struct{}

	signInCalls int
	reloadCalls int
	sendCalls   int
}

var _ identity.Provider = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{accounts: make(map[string]*account)}
}

// AddAccount registers an account and returns its user id.
func (f *Fake) AddAccount(email, password string, verified bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	uid := fmt.Sprintf("uid-%d", f.nextID)
	f.accounts[email] = &account{uid: uid, password: password, verified: verified}
	return uid
}

func (f *Fake) SetVerified(email string, verified bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[email]; ok {
		a.verified = verified
	}
}

// FailSignIn makes every SignIn return err until cleared with nil.
func (f *Fake) FailSignIn(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInErr = err
}

func (f *Fake) FailReload(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloadErr = err
}

func (f *Fake) FailSend(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *Fake) FailSignUp(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUpErr = err
}

// BlockSignIn parks the next SignIn calls until release is called. entered
// receives once per parked call.
func (f *Fake) BlockSignIn() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 16)
	gate := f.gate
	var once sync.Once
	return f.entered, func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *Fake) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	f.mu.Lock()
	f.signInCalls++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	a, ok := f.accounts[email]
	if !ok {
		return nil, &identity.ProviderError{Code: identity.CodeEmailNotFound}
	}
	if a.password != password {
		return nil, &identity.ProviderError{Code: identity.CodeInvalidPassword}
	}
	return f.session(email, a), nil
}

func (f *Fake) SignUp(_ context.Context, email, password string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	if _, ok := f.accounts[email]; ok {
		return nil, &identity.ProviderError{Code: identity.CodeEmailExists}
	}
	f.nextID++
	a := &account{uid: fmt.Sprintf("uid-%d", f.nextID), password: password}
	f.accounts[email] = a
	return f.session(email, a), nil
}

func (f *Fake) SendVerification(_ context.Context, s *identity.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	return f.sendErr
}

func (f *Fake) Reload(_ context.Context, s *identity.Session) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloadCalls++
	if f.reloadErr != nil {
		return nil, f.reloadErr
	}
	a, ok := f.accounts[s.Email]
	if !ok {
		return nil, &identity.ProviderError{Code: "USER_NOT_FOUND"}
	}
	return f.session(s.Email, a), nil
}

func (f *Fake) SignInCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signInCalls
}

func (f *Fake) ReloadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloadCalls
}

func (f *Fake) SendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

func (f *Fake) session(email string, a *account) *identity.Session {
	return &identity.Session{
		UserID:        a.uid,
		Email:         email,
		EmailVerified: a.verified,
		IDToken:       "token-" + a.uid,
	}
}
