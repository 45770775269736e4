package service

import (
	"sync"
	"time"

	"login-guard/internal/bucketing"
)

type shard struct {
	mu      sync.Mutex
	clients map[string]*ClientSession
}

// registry holds live client sessions split across shards so unrelated
// clients do not contend on one lock.
type registry struct {
	buckets *bucketing.Manager
	shards  []*shard
}

func newRegistry(buckets *bucketing.Manager) *registry {
	r := &registry{buckets: buckets, shards: make([]*shard, buckets.Buckets())}
	for i := range r.shards {
		r.shards[i] = &shard{clients: make(map[string]*ClientSession)}
	}
	return r
}

// getOrCreate returns the session for id, building it with create when
// absent. create runs under the shard lock.
func (r *registry) getOrCreate(id string, create func() (*ClientSession, error)) (*ClientSession, error) {
	s := r.shards[r.buckets.Bucket(id)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.clients[id]; ok {
		return cs, nil
	}
	cs, err := create()
	if err != nil {
		return nil, err
	}
	s.clients[id] = cs
	return cs, nil
}

func (r *registry) each(fn func(*ClientSession)) {
	for _, s := range r.shards {
		s.mu.Lock()
		list := make([]*ClientSession, 0, len(s.clients))
		for _, cs := range s.clients {
			list = append(list, cs)
		}
		s.mu.Unlock()
		for _, cs := range list {
			fn(cs)
		}
	}
}

// evictIdle removes sessions not touched since cutoff and returns them.
func (r *registry) evictIdle(cutoff time.Time) []*ClientSession {
	var evicted []*ClientSession
	for _, s := range r.shards {
		s.mu.Lock()
		for id, cs := range s.clients {
			if cs.lastSeen().Before(cutoff) {
				delete(s.clients, id)
				evicted = append(evicted, cs)
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

func (r *registry) drain() []*ClientSession {
	var all []*ClientSession
	for _, s := range r.shards {
		s.mu.Lock()
		for id, cs := range s.clients {
			delete(s.clients, id)
			all = append(all, cs)
		}
		s.mu.Unlock()
	}
	return all
}

func (r *registry) len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.clients)
		s.mu.Unlock()
	}
	return n
}
