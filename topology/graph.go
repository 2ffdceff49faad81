// Package topology maintains the directed graph of cognitive units: edge
// insertion under the adjacency rule, per-edge connection weights, shortest
// path routing with QoS hints, and the spatial index backing neighbour
// discovery.
package topology

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/2lab-ai/hal9go/core"
)

// ConnectionWeight tracks how well one directed connection performs.
// Weight stays inside [0,1]; successes raise it, failures lower it, and
// time decays it back toward the 0.5 neutral point.
type ConnectionWeight struct {
	mu           sync.Mutex
	weight       float64
	successCount uint64
	failureCount uint64
	lastAdjusted time.Time
	adjustFactor float64
}

// NewConnectionWeight starts a weight at the given value with the given
// adjustment factor (how strongly success/failure move the weight).
func NewConnectionWeight(initial, adjustFactor float64) *ConnectionWeight {
	if initial <= 0 {
		initial = 0.5
	}
	if adjustFactor <= 0 {
		adjustFactor = 0.9
	}
	return &ConnectionWeight{
		weight:       core.Clamp01(initial),
		lastAdjusted: time.Now().UTC(),
		adjustFactor: adjustFactor,
	}
}

// Weight returns the current weight.
func (w *ConnectionWeight) Weight() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.weight
}

// RecordSuccess raises the weight by 0.1 × factor, capped at 1.
func (w *ConnectionWeight) RecordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.successCount++
	w.weight = core.Clamp01(w.weight + 0.1*w.adjustFactor)
	w.lastAdjusted = time.Now().UTC()
}

// RecordFailure lowers the weight by 0.2 × factor, floored at 0. Failure
// moves weights twice as fast as success: losing trust is quick, earning
// it back is slow.
func (w *ConnectionWeight) RecordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failureCount++
	w.weight = core.Clamp01(w.weight - 0.2*w.adjustFactor)
	w.lastAdjusted = time.Now().UTC()
}

// Decay relaxes the weight toward neutral 0.5 given the elapsed time and a
// per-interval decay rate.
func (w *ConnectionWeight) Decay(now time.Time, interval time.Duration, rate float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if interval <= 0 || rate <= 0 || rate >= 1 {
		return
	}
	elapsed := now.Sub(w.lastAdjusted)
	if elapsed <= 0 {
		return
	}
	steps := float64(elapsed) / float64(interval)
	factor := math.Pow(rate, steps)
	w.weight = w.weight*factor + 0.5*(1-factor)
}

// Counts reports the success and failure tallies.
func (w *ConnectionWeight) Counts() (successes, failures uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.successCount, w.failureCount
}

// LastAdjusted reports when the weight last moved.
func (w *ConnectionWeight) LastAdjusted() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastAdjusted
}

// Edge is a directed connection between two units.
type Edge struct {
	From   core.UnitID
	To     core.UnitID
	Weight *ConnectionWeight
}

// EdgeSnapshot is the immutable view exposed by snapshots.
type EdgeSnapshot struct {
	From         core.UnitID `json:"from"`
	To           core.UnitID `json:"to"`
	Weight       float64     `json:"weight"`
	SuccessCount uint64      `json:"success_count"`
	FailureCount uint64      `json:"failure_count"`
	LastAdjusted time.Time   `json:"last_adjusted"`
}

// Graph is the directed graph over unit ids. Edge insertion enforces
// the adjacency rule (layer depths differ by at most one) and rejects
// self-loops, dangling endpoints and a second edge between the same
// ordered pair. One writer mutates at a time; reads
// longer than a single lookup take a snapshot copy.
type Graph struct {
	mu     sync.RWMutex
	layers map[core.UnitID]core.CognitiveLayer
	// out[from][to] and in[to][from] share the same *Edge values.
	out map[core.UnitID]map[core.UnitID]*Edge
	in  map[core.UnitID]map[core.UnitID]*Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		layers: make(map[core.UnitID]core.CognitiveLayer),
		out:    make(map[core.UnitID]map[core.UnitID]*Edge),
		in:     make(map[core.UnitID]map[core.UnitID]*Edge),
	}
}

// AddUnit registers a unit and its layer. Duplicate registration is
// rejected so stale ids cannot silently change layer.
func (g *Graph) AddUnit(id core.UnitID, layer core.CognitiveLayer) error {
	if !layer.Valid() {
		return fmt.Errorf("unit %d layer %q: %w", id.Value(), layer, core.ErrRuleViolation)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.layers[id]; exists {
		return fmt.Errorf("unit %d: %w", id.Value(), core.ErrDuplicate)
	}
	g.layers[id] = layer
	return nil
}

// RemoveUnit drops a unit and every edge touching it.
func (g *Graph) RemoveUnit(id core.UnitID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.layers[id]; !exists {
		return fmt.Errorf("unit %d: %w", id.Value(), core.ErrUnitNotFound)
	}
	delete(g.layers, id)
	for to := range g.out[id] {
		delete(g.in[to], id)
	}
	delete(g.out, id)
	for from := range g.in[id] {
		delete(g.out[from], id)
	}
	delete(g.in, id)
	return nil
}

// Layer returns a unit's layer.
func (g *Graph) Layer(id core.UnitID) (core.CognitiveLayer, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	layer, ok := g.layers[id]
	if !ok {
		return "", fmt.Errorf("unit %d: %w", id.Value(), core.ErrUnitNotFound)
	}
	return layer, nil
}

// Connect inserts a directed edge. The invariants checked here, in order:
// both endpoints exist, no self-loop, layers adjacent, no duplicate edge.
// Nothing mutates unless every check passes.
func (g *Graph) Connect(from, to core.UnitID, initialWeight float64) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fromLayer, ok := g.layers[from]
	if !ok {
		return nil, fmt.Errorf("unit %d: %w", from.Value(), core.ErrUnitNotFound)
	}
	toLayer, ok := g.layers[to]
	if !ok {
		return nil, fmt.Errorf("unit %d: %w", to.Value(), core.ErrUnitNotFound)
	}
	if from == to {
		return nil, fmt.Errorf("unit %d: %w", from.Value(), core.ErrSelfLoop)
	}
	if !fromLayer.Adjacent(toLayer) {
		return nil, fmt.Errorf("%s(depth %d) -> %s(depth %d): %w",
			fromLayer, fromLayer.Depth(), toLayer, toLayer.Depth(), core.ErrLayerAdjacency)
	}
	if _, exists := g.out[from][to]; exists {
		return nil, fmt.Errorf("edge %d->%d: %w", from.Value(), to.Value(), core.ErrDuplicate)
	}

	edge := &Edge{From: from, To: to, Weight: NewConnectionWeight(initialWeight, 0.9)}
	if g.out[from] == nil {
		g.out[from] = make(map[core.UnitID]*Edge)
	}
	if g.in[to] == nil {
		g.in[to] = make(map[core.UnitID]*Edge)
	}
	g.out[from][to] = edge
	g.in[to][from] = edge
	return edge, nil
}

// Disconnect removes a directed edge.
func (g *Graph) Disconnect(from, to core.UnitID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.out[from][to]; !exists {
		return fmt.Errorf("edge %d->%d: %w", from.Value(), to.Value(), core.ErrEdgeNotFound)
	}
	delete(g.out[from], to)
	delete(g.in[to], from)
	return nil
}

// EdgeBetween returns the directed edge, if present.
func (g *Graph) EdgeBetween(from, to core.UnitID) (*Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edge, ok := g.out[from][to]
	return edge, ok
}

// Successors returns the targets of a unit's outgoing edges.
func (g *Graph) Successors(id core.UnitID) []core.UnitID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	result := make([]core.UnitID, 0, len(g.out[id]))
	for to := range g.out[id] {
		result = append(result, to)
	}
	return result
}

// Predecessors returns the sources of a unit's incoming edges. These are
// the upstream neighbours gradients propagate to.
func (g *Graph) Predecessors(id core.UnitID) []core.UnitID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	result := make([]core.UnitID, 0, len(g.in[id]))
	for from := range g.in[id] {
		result = append(result, from)
	}
	return result
}

// OutDegree returns the number of outgoing edges.
func (g *Graph) OutDegree(id core.UnitID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.out[id])
}

// UnitCount returns how many units are registered.
func (g *Graph) UnitCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.layers)
}

// Snapshot returns an immutable point-in-time copy of units and edges.
func (g *Graph) Snapshot() ([]UnitSnapshot, []EdgeSnapshot) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	units := make([]UnitSnapshot, 0, len(g.layers))
	for id, layer := range g.layers {
		units = append(units, UnitSnapshot{ID: id, Layer: layer})
	}
	edges := make([]EdgeSnapshot, 0)
	for _, targets := range g.out {
		for _, edge := range targets {
			s, f := edge.Weight.Counts()
			edges = append(edges, EdgeSnapshot{
				From:         edge.From,
				To:           edge.To,
				Weight:       edge.Weight.Weight(),
				SuccessCount: s,
				FailureCount: f,
				LastAdjusted: edge.Weight.LastAdjusted(),
			})
		}
	}
	return units, edges
}

// UnitSnapshot pairs a unit with its layer in topology snapshots.
type UnitSnapshot struct {
	ID    core.UnitID         `json:"id"`
	Layer core.CognitiveLayer `json:"layer"`
}

// DecayAll relaxes every edge weight toward neutral. Called periodically
// by the orchestrator's maintenance loop.
func (g *Graph) DecayAll(now time.Time, interval time.Duration, rate float64) {
	g.mu.RLock()
	edges := make([]*Edge, 0)
	for _, targets := range g.out {
		for _, edge := range targets {
			edges = append(edges, edge)
		}
	}
	g.mu.RUnlock()

	for _, edge := range edges {
		edge.Weight.Decay(now, interval, rate)
	}
}
