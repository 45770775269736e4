package guard

import (
	"context"
	"time"
)

type EventType string

const (
	EventLoginSucceeded EventType = "login_succeeded"
	EventLoginFailed    EventType = "login_failed"
	EventLockoutStarted EventType = "lockout_started"
	EventLockoutExpired EventType = "lockout_expired"
	EventRateLimited    EventType = "rate_limited"
	EventReset          EventType = "reset"
)

// Event describes one guard transition.
type Event struct {
	Type         EventType `json:"type"`
	Subject      string    `json:"subject"`
	FailureCount int       `json:"failure_count"`
	LockoutUntil time.Time `json:"lockout_until,omitzero"`
	At           time.Time `json:"at"`
}

// EventPublisher receives guard events. Errors are logged by the guard and
// never change the outcome of a login attempt.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
