// Package performance holds the throughput layer: a sharded concurrent
// unit map, priority signal batching, and atomic counters shared by the
// orchestrator's hot paths.
package performance

import (
	"sync"
	"sync/atomic"

	"github.com/2lab-ai/hal9go/core"
)

const shardCount = 16

// ShardedMap is a concurrent map keyed by unit ID, split across 16 shards
// each guarded by its own readers-writer lock. Reads on different shards
// never contend; the length counter is a single atomic so Len never takes
// a lock at all.
type ShardedMap[V any] struct {
	shards [shardCount]mapShard[V]
	size   atomic.Int64
}

type mapShard[V any] struct {
	mu    sync.RWMutex
	items map[core.UnitID]V
}

// NewShardedMap creates a map with a capacity hint spread across shards.
func NewShardedMap[V any](capacity int) *ShardedMap[V] {
	m := &ShardedMap[V]{}
	perShard := capacity / shardCount
	if perShard < 1 {
		perShard = 1
	}
	for i := range m.shards {
		m.shards[i].items = make(map[core.UnitID]V, perShard)
	}
	return m
}

func (m *ShardedMap[V]) shard(id core.UnitID) *mapShard[V] {
	return &m.shards[id.Value()%shardCount]
}

// Insert stores a value, returning the previous value if one was replaced.
func (m *ShardedMap[V]) Insert(id core.UnitID, value V) (previous V, replaced bool) {
	s := m.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, replaced = s.items[id]
	s.items[id] = value
	if !replaced {
		m.size.Add(1)
	}
	return previous, replaced
}

// Get fetches a value under a shared shard lock.
func (m *ShardedMap[V]) Get(id core.UnitID) (V, bool) {
	s := m.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	return v, ok
}

// Remove drops a value, returning it if present.
func (m *ShardedMap[V]) Remove(id core.UnitID) (V, bool) {
	s := m.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[id]
	if ok {
		delete(s.items, id)
		m.size.Add(-1)
	}
	return v, ok
}

// Contains reports key presence.
func (m *ShardedMap[V]) Contains(id core.UnitID) bool {
	s := m.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Len returns the element count without locking.
func (m *ShardedMap[V]) Len() int {
	return int(m.size.Load())
}

// Range calls fn over a per-shard snapshot of the map. Iteration sees each
// shard at one instant but not the whole map at one instant; callers
// needing a global point-in-time view take a topology snapshot instead.
func (m *ShardedMap[V]) Range(fn func(id core.UnitID, value V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		snapshot := make(map[core.UnitID]V, len(s.items))
		for k, v := range s.items {
			snapshot[k] = v
		}
		s.mu.RUnlock()

		for k, v := range snapshot {
			if !fn(k, v) {
				return
			}
		}
	}
}

// Clear empties every shard.
func (m *ShardedMap[V]) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		s.items = make(map[core.UnitID]V)
		s.mu.Unlock()
	}
	m.size.Store(0)
}
