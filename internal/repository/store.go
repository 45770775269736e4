// Package repository defines the durable key-value store that keeps login
// attempt state across restarts, scoped per browser client.
package repository

import "context"

// Store is string key-value persistence. Implementations must make a single
// Set or Remove atomic; no cross-key transactions are required.
type Store interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Scoped prefixes every key with scope, giving each client its own view of
// a shared Store.
type Scoped struct {
	store Store
	scope string
}

func NewScoped(store Store, scope string) *Scoped {
	return &Scoped{store: store, scope: scope}
}

func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, s.key(key))
}

func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.key(key), value)
}

func (s *Scoped) Remove(ctx context.Context, key string) error {
	return s.store.Remove(ctx, s.key(key))
}

func (s *Scoped) key(k string) string {
	return s.scope + ":" + k
}
