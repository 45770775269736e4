package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"login-guard/internal/client"
	"login-guard/internal/util"
)

// AttemptStore keeps guard state in Redis so every server instance sees the
// same counters for a client.
type AttemptStore struct {
	client    *client.RedisClient
	prefix    string
	opTimeout time.Duration
	logger    *zap.Logger
}

func NewAttemptStore(c *client.RedisClient, prefix string, logger *zap.Logger) *AttemptStore {
	return &AttemptStore{
		client:    c,
		prefix:    prefix + ":",
		opTimeout: 3 * time.Second,
		logger:    util.OrNop(logger),
	}
}

func (s *AttemptStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	val, ok, err := s.client.Get(ctx, s.prefix+key)
	if err != nil {
		s.logger.Error("Failed to read attempt state", zap.String("key", key), zap.Error(err))
		return "", false, fmt.Errorf("failed to read attempt state: %w", err)
	}
	return val, ok, nil
}

// Set writes without expiry; lockout expiry is decided by the guard from the
// stored deadline, not by key TTL.
func (s *AttemptStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, value, 0); err != nil {
		s.logger.Error("Failed to write attempt state", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to write attempt state: %w", err)
	}
	s.logger.Debug("Attempt state written", zap.String("key", key))
	return nil
}

func (s *AttemptStore) Remove(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.prefix+key); err != nil {
		s.logger.Error("Failed to remove attempt state", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to remove attempt state: %w", err)
	}
	return nil
}
