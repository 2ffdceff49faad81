package topology

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/2lab-ai/hal9go/core"
)

// QoS constrains how a signal may be routed.
type QoS struct {
	// MaxLatencyMs caps the path's estimated latency. Each hop is estimated
	// at 1/weight milliseconds, so unreliable edges count as slow ones.
	MaxLatencyMs float64 `json:"max_latency_ms,omitempty"`
	// MinReliability excludes edges whose weight is below the floor.
	MinReliability float64 `json:"min_reliability,omitempty"`
	// OrderedDelivery requests in-order delivery along the path. It is
	// carried with the hints only: neither path search nor the
	// orchestrator's delivery reads it.
	OrderedDelivery bool `json:"ordered_delivery,omitempty"`
}

// RoutingHints constrain path search beyond plain shortest-path.
type RoutingHints struct {
	// PreferredPath is used verbatim when it starts at the source, every
	// edge exists and satisfies the hints, and it ends at an acceptable
	// unit. Otherwise it is discarded whole and search runs from the source.
	PreferredPath []core.UnitID `json:"preferred_path,omitempty"`
	// AvoidUnits are excluded from the path entirely.
	AvoidUnits []core.UnitID `json:"avoid_units,omitempty"`
	// MaxHops caps path length. 0 falls back to the router's configured
	// default.
	MaxHops int `json:"max_hops,omitempty"`
	QoS     QoS `json:"qos,omitempty"`
}

// Router computes next hops over the topology graph using Dijkstra over
// 1/weight edge cost with a lazy-decrease-key heap. Ties break toward the
// higher raw weight, then the lower out-degree so load spreads away from
// hubs.
type Router struct {
	graph   *Graph
	maxHops int
	logger  core.Logger
}

// NewRouter creates a router over a graph with a default hop bound.
func NewRouter(graph *Graph, maxHops int, logger core.Logger) *Router {
	if maxHops <= 0 {
		maxHops = 8
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Router{graph: graph, maxHops: maxHops, logger: logger}
}

// Route returns the full path for a signal, honouring hints. The path
// starts at the signal's source and ends at its target unit, or at the
// nearest unit of the signal's target layer for layer-addressed signals.
func (r *Router) Route(signal *core.Signal, hints RoutingHints) ([]core.UnitID, error) {
	if signal == nil {
		return nil, fmt.Errorf("nil signal: %w", core.ErrRuleViolation)
	}
	if _, err := r.graph.Layer(signal.Source); err != nil {
		return nil, err
	}

	accept, err := r.acceptanceFor(signal)
	if err != nil {
		return nil, err
	}

	if len(hints.PreferredPath) > 0 {
		if path, ok := r.tryPreferred(signal.Source, hints, accept); ok {
			return path, nil
		}
	}

	return r.shortestPath(signal.Source, accept, hints)
}

// acceptanceFor builds the goal predicate: a specific target unit, or any
// unit of the target layer.
func (r *Router) acceptanceFor(signal *core.Signal) (func(core.UnitID) bool, error) {
	if !signal.Target.IsZero() {
		if _, err := r.graph.Layer(signal.Target); err != nil {
			return nil, err
		}
		target := signal.Target
		return func(id core.UnitID) bool { return id == target }, nil
	}
	if signal.TargetLayer == "" {
		return nil, fmt.Errorf("signal needs a target unit or layer: %w", core.ErrRuleViolation)
	}
	layer := signal.TargetLayer
	return func(id core.UnitID) bool {
		l, err := r.graph.Layer(id)
		return err == nil && l == layer
	}, nil
}

// tryPreferred walks the preferred path and accepts it when every edge
// exists, satisfies the QoS, avoids nothing forbidden, and starts at the
// source.
func (r *Router) tryPreferred(source core.UnitID, hints RoutingHints, accept func(core.UnitID) bool) ([]core.UnitID, bool) {
	path := hints.PreferredPath
	if len(path) < 2 || path[0] != source {
		return nil, false
	}
	maxHops := hints.MaxHops
	if maxHops <= 0 {
		maxHops = r.maxHops
	}
	if len(path)-1 > maxHops {
		return nil, false
	}

	avoid := avoidSet(hints.AvoidUnits)
	latency := 0.0
	for i := 1; i < len(path); i++ {
		if _, banned := avoid[path[i]]; banned {
			return nil, false
		}
		edge, ok := r.graph.EdgeBetween(path[i-1], path[i])
		if !ok {
			return nil, false
		}
		w := edge.Weight.Weight()
		if !edgeUsable(w, hints.QoS) {
			return nil, false
		}
		latency += 1 / w
	}
	if hints.QoS.MaxLatencyMs > 0 && latency > hints.QoS.MaxLatencyMs {
		return nil, false
	}
	if !accept(path[len(path)-1]) {
		return nil, false
	}
	return path, true
}

// shortestPath runs Dijkstra from the source until the first acceptable
// unit is finalised.
func (r *Router) shortestPath(source core.UnitID, accept func(core.UnitID) bool, hints RoutingHints) ([]core.UnitID, error) {
	maxHops := hints.MaxHops
	if maxHops <= 0 {
		maxHops = r.maxHops
	}
	avoid := avoidSet(hints.AvoidUnits)

	dist := map[core.UnitID]float64{source: 0}
	hops := map[core.UnitID]int{source: 0}
	prev := map[core.UnitID]core.UnitID{}
	visited := map[core.UnitID]bool{}
	// tieWeight remembers the raw weight of the edge that set prev[v], so
	// equal-cost alternatives can be compared.
	tieWeight := map[core.UnitID]float64{}

	pq := &routePQ{}
	heap.Init(pq)
	heap.Push(pq, &routeItem{id: source, dist: 0})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*routeItem)
		u := item.id
		if visited[u] {
			continue
		}
		visited[u] = true

		if u != source && accept(u) {
			return rebuildPath(prev, source, u), nil
		}
		if hops[u] >= maxHops {
			continue
		}

		for _, v := range r.graph.Successors(u) {
			if visited[v] {
				continue
			}
			if _, banned := avoid[v]; banned {
				continue
			}
			edge, ok := r.graph.EdgeBetween(u, v)
			if !ok {
				continue
			}
			w := edge.Weight.Weight()
			if !edgeUsable(w, hints.QoS) {
				continue
			}

			newDist := dist[u] + 1/w
			if hints.QoS.MaxLatencyMs > 0 && newDist > hints.QoS.MaxLatencyMs {
				continue
			}

			current, seen := dist[v]
			switch {
			case !seen || newDist < current-distEpsilon:
				dist[v] = newDist
				hops[v] = hops[u] + 1
				prev[v] = u
				tieWeight[v] = w
				heap.Push(pq, &routeItem{id: v, dist: newDist})
			case math.Abs(newDist-current) <= distEpsilon:
				// Equal cost: prefer the heavier edge, then the less
				// loaded predecessor.
				if w > tieWeight[v] ||
					(w == tieWeight[v] && r.graph.OutDegree(u) < r.graph.OutDegree(prev[v])) {
					hops[v] = hops[u] + 1
					prev[v] = u
					tieWeight[v] = w
				}
			}
		}
	}

	return nil, fmt.Errorf("from unit %d: %w", source.Value(), core.ErrNoRoute)
}

const distEpsilon = 1e-12

func edgeUsable(weight float64, qos QoS) bool {
	if weight <= 0 {
		return false
	}
	if qos.MinReliability > 0 && weight < qos.MinReliability {
		return false
	}
	return true
}

func avoidSet(ids []core.UnitID) map[core.UnitID]struct{} {
	set := make(map[core.UnitID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func rebuildPath(prev map[core.UnitID]core.UnitID, source, target core.UnitID) []core.UnitID {
	path := []core.UnitID{target}
	for cur := target; cur != source; {
		cur = prev[cur]
		path = append(path, cur)
	}
	// Reverse in place.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// routeItem and routePQ implement the lazy-decrease-key min-heap: shorter
// distances pop first, stale entries are skipped via the visited set.
type routeItem struct {
	id   core.UnitID
	dist float64
}

type routePQ []*routeItem

func (pq routePQ) Len() int            { return len(pq) }
func (pq routePQ) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq routePQ) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *routePQ) Push(x interface{}) { *pq = append(*pq, x.(*routeItem)) }
func (pq *routePQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
