package guard

import (
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts     = 3
	DefaultCooldownSeconds = 30
)

// Config is fixed for the lifetime of a Guard.
type Config struct {
	MaxAttempts     int
	CooldownSeconds int
}

func DefaultConfig() Config {
	return Config{MaxAttempts: DefaultMaxAttempts, CooldownSeconds: DefaultCooldownSeconds}
}

func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("guard: MaxAttempts must be positive, got %d", c.MaxAttempts)
	}
	if c.CooldownSeconds <= 0 {
		return fmt.Errorf("guard: CooldownSeconds must be positive, got %d", c.CooldownSeconds)
	}
	return nil
}

func (c Config) cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}
