package guard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"login-guard/internal/repository"
)

const (
	keyFailureCount = "failureCount"
	keyLockoutUntil = "lockoutUntil"
)

var errCorruptState = errors.New("corrupt attempt state")

// State is the externally visible guard state.
type State int

const (
	StateOpen State = iota
	StateLocked
)

func (s State) String() string {
	if s == StateLocked {
		return "locked"
	}
	return "open"
}

// AttemptState is the persisted bookkeeping. A zero LockoutUntil means no
// lockout.
type AttemptState struct {
	FailureCount int
	LockoutUntil time.Time
}

// lockedAt treats now == LockoutUntil as expired.
func (a AttemptState) lockedAt(now time.Time) bool {
	return !a.LockoutUntil.IsZero() && now.Before(a.LockoutUntil)
}

// lapsedAt reports a lockout whose deadline has passed but is still recorded.
func (a AttemptState) lapsedAt(now time.Time) bool {
	return !a.LockoutUntil.IsZero() && !now.Before(a.LockoutUntil)
}

func (a AttemptState) secondsRemaining(now time.Time) int {
	if !a.lockedAt(now) {
		return 0
	}
	d := a.LockoutUntil.Sub(now)
	return int((d + time.Second - 1) / time.Second)
}

func loadState(ctx context.Context, store repository.Store) (AttemptState, error) {
	var st AttemptState

	raw, ok, err := store.Get(ctx, keyFailureCount)
	if err != nil {
		return AttemptState{}, fmt.Errorf("read %s: %w", keyFailureCount, err)
	}
	if ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return AttemptState{}, fmt.Errorf("%w: %s=%q", errCorruptState, keyFailureCount, raw)
		}
		st.FailureCount = n
	}

	raw, ok, err = store.Get(ctx, keyLockoutUntil)
	if err != nil {
		return AttemptState{}, fmt.Errorf("read %s: %w", keyLockoutUntil, err)
	}
	if ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return AttemptState{}, fmt.Errorf("%w: %s=%q", errCorruptState, keyLockoutUntil, raw)
		}
		st.LockoutUntil = time.UnixMilli(ms)
	}
	return st, nil
}

func saveState(ctx context.Context, store repository.Store, st AttemptState) error {
	if st.FailureCount == 0 && st.LockoutUntil.IsZero() {
		return clearState(ctx, store)
	}
	if err := store.Set(ctx, keyFailureCount, strconv.Itoa(st.FailureCount)); err != nil {
		return err
	}
	if st.LockoutUntil.IsZero() {
		return store.Remove(ctx, keyLockoutUntil)
	}
	return store.Set(ctx, keyLockoutUntil, strconv.FormatInt(st.LockoutUntil.UnixMilli(), 10))
}

func clearState(ctx context.Context, store repository.Store) error {
	if err := store.Remove(ctx, keyFailureCount); err != nil {
		return err
	}
	return store.Remove(ctx, keyLockoutUntil)
}
