// Package store persists orchestrator state for collaborators that opt
// into persistence: one record per unit, edge and gradient. The in-memory
// implementation backs tests and single-process runs; the Redis
// implementation backs shared deployments.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/2lab-ai/hal9go/cognitive"
	"github.com/2lab-ai/hal9go/core"
	"github.com/2lab-ai/hal9go/topology"
)

// MemoryStore keeps persisted records in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	units     map[uint32]cognitive.StateSnapshot
	edges     map[string]topology.EdgeSnapshot
	gradients []core.Gradient
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units: make(map[uint32]cognitive.StateSnapshot),
		edges: make(map[string]topology.EdgeSnapshot),
	}
}

// SaveUnit upserts a unit snapshot.
func (s *MemoryStore) SaveUnit(ctx context.Context, snapshot cognitive.StateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[snapshot.UnitID.Value()] = snapshot
	return nil
}

// SaveEdge upserts an edge record keyed by its endpoints.
func (s *MemoryStore) SaveEdge(ctx context.Context, edge topology.EdgeSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edgeKey(edge.From, edge.To)] = edge
	return nil
}

// SaveGradient appends a gradient record.
func (s *MemoryStore) SaveGradient(ctx context.Context, gradient *core.Gradient) error {
	if gradient == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gradients = append(s.gradients, *gradient)
	return nil
}

// DeleteUnit removes a unit record.
func (s *MemoryStore) DeleteUnit(ctx context.Context, id core.UnitID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.units, id.Value())
	return nil
}

// Unit fetches a persisted unit snapshot.
func (s *MemoryStore) Unit(id core.UnitID) (cognitive.StateSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.units[id.Value()]
	return snapshot, ok
}

// Counts reports how many records of each kind are held.
func (s *MemoryStore) Counts() (units, edges, gradients int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units), len(s.edges), len(s.gradients)
}

func edgeKey(from, to core.UnitID) string {
	return fmt.Sprintf("%d->%d", from.Value(), to.Value())
}
