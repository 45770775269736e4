package identity

import "time"

// Session is the provider's view of a signed-in account. Guard and gate code
// only read it; a fresh copy comes back from Provider.Reload.
type Session struct {
	UserID        string    `json:"user_id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	IDToken       string    `json:"-"`
	RefreshToken  string    `json:"-"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Clone returns a copy so cached sessions are never mutated through aliases.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
