// Package bucketing maps client ids onto a fixed number of shards with
// murmur3, so the same id always lands in the same shard.
package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

type Manager struct {
	buckets    int
	hasherPool sync.Pool
}

// NewManager panics if buckets is not positive; callers validate config
// before wiring.
func NewManager(buckets int) *Manager {
	if buckets <= 0 {
		panic("bucketing: buckets must be positive")
	}
	return &Manager{
		buckets: buckets,
		hasherPool: sync.Pool{
			New: func() any { return murmur3.New64() },
		},
	}
}

// Bucket returns a stable bucket in [0, Buckets()).
func (m *Manager) Bucket(key string) int {
	return int(m.hash(key) % uint64(m.buckets))
}

func (m *Manager) Buckets() int {
	return m.buckets
}

func (m *Manager) hash(key string) uint64 {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)
	h.Reset()
	h.Write([]byte(key))
	return h.Sum64()
}
