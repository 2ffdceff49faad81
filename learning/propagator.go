package learning

import (
	"github.com/2lab-ai/hal9go/core"
)

// UpstreamFunc returns the upstream neighbours of a unit - the sources of
// its incoming connections. Supplied by the topology layer.
type UpstreamFunc func(id core.UnitID) []core.UnitID

// ApplyFunc delivers a gradient to one unit's learn operation.
type ApplyFunc func(id core.UnitID, g *core.Gradient) error

// Propagator walks gradients backward through the hierarchy. Each hop
// multiplies the magnitude by the decay factor; the walk stops at a unit
// once the magnitude falls under epsilon or the depth limit is reached.
// Units are visited at most once per propagation so cycles cannot loop.
type Propagator struct {
	decay    float64
	epsilon  float64
	maxDepth int
	upstream UpstreamFunc
	apply    ApplyFunc
	logger   core.Logger

	// OnPropagated, when set, observes every delivered hop. The
	// orchestrator uses it to publish gradient events.
	OnPropagated func(g *core.Gradient)
}

// NewPropagator wires a propagator over the given topology accessors.
func NewPropagator(cfg core.LearningConfig, upstream UpstreamFunc, apply ApplyFunc, logger core.Logger) *Propagator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	decay := cfg.GradientDecay
	if decay <= 0 || decay > 1 {
		decay = 0.9
	}
	epsilon := cfg.GradientEpsilon
	if epsilon <= 0 {
		epsilon = 1e-3
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}
	return &Propagator{
		decay:    decay,
		epsilon:  epsilon,
		maxDepth: maxDepth,
		upstream: upstream,
		apply:    apply,
		logger:   logger,
	}
}

// Propagate delivers the gradient to its target and then walks it up
// through the target's upstream neighbours, decaying at each hop. It
// returns how many units learned from the gradient.
func (p *Propagator) Propagate(g *core.Gradient) int {
	if g == nil {
		return 0
	}

	visited := map[core.UnitID]struct{}{g.Source: {}}
	applied := 0

	// Deliver to the direct target first, then fan upstream.
	frontier := []*core.Gradient{g}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		if _, seen := visited[current.Target]; seen {
			continue
		}
		visited[current.Target] = struct{}{}

		if err := p.apply(current.Target, current); err != nil {
			p.logger.Warn("gradient application failed", map[string]interface{}{
				"unit":  current.Target.Value(),
				"kind":  string(current.Kind),
				"error": err.Error(),
			})
			continue
		}
		applied++
		if p.OnPropagated != nil {
			p.OnPropagated(current)
		}

		if current.Depth+1 >= p.maxDepth {
			continue
		}
		nextMagnitude := current.Magnitude * p.decay
		if nextMagnitude < p.epsilon {
			continue
		}
		for _, up := range p.upstream(current.Target) {
			if _, seen := visited[up]; seen {
				continue
			}
			frontier = append(frontier, current.Propagate(up, p.decay))
		}
	}
	return applied
}

// Trace returns the magnitudes a gradient would carry over the given
// number of hops, without delivering anything. Useful for budgeting and
// introspection.
func (p *Propagator) Trace(initial float64, hops int) []float64 {
	magnitudes := make([]float64, 0, hops)
	m := initial
	for i := 0; i < hops; i++ {
		if i > 0 {
			m *= p.decay
		}
		if m < p.epsilon {
			break
		}
		magnitudes = append(magnitudes, m)
	}
	return magnitudes
}
