package learning

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2lab-ai/hal9go/core"
)

func TestGradientDecayOverFiveHops(t *testing.T) {
	// A chain u1 <- u2 <- u3 <- u4 <- u5: each unit's upstream is the
	// next one along.
	ids := make([]core.UnitID, 6)
	for i := range ids {
		ids[i] = core.NewUnitID(uint32(i + 1))
	}
	upstream := func(id core.UnitID) []core.UnitID {
		for i := 1; i < len(ids)-1; i++ {
			if ids[i] == id {
				return []core.UnitID{ids[i+1]}
			}
		}
		return nil
	}

	var mu sync.Mutex
	var magnitudes []float64
	apply := func(id core.UnitID, g *core.Gradient) error {
		mu.Lock()
		defer mu.Unlock()
		magnitudes = append(magnitudes, g.Magnitude)
		return nil
	}

	p := NewPropagator(core.LearningConfig{
		GradientDecay:   0.9,
		GradientEpsilon: 1e-3,
		MaxDepth:        5,
	}, upstream, apply, nil)

	g := core.NewGradient(core.ErrorKindTaskFailed, ids[0], ids[1], core.GradientContext{})
	g.Magnitude = 1.0
	applied := p.Propagate(g)

	assert.Equal(t, 5, applied)
	expected := []float64{1.0, 0.9, 0.81, 0.729, 0.6561}
	require.Len(t, magnitudes, len(expected))
	for i := range expected {
		assert.InDelta(t, expected[i], magnitudes[i], 1e-9, "hop %d", i)
	}
}

func TestPropagationStopsAtEpsilon(t *testing.T) {
	ids := make([]core.UnitID, 20)
	for i := range ids {
		ids[i] = core.NewUnitID(uint32(i + 1))
	}
	upstream := func(id core.UnitID) []core.UnitID {
		for i := 1; i < len(ids)-1; i++ {
			if ids[i] == id {
				return []core.UnitID{ids[i+1]}
			}
		}
		return nil
	}

	applied := 0
	p := NewPropagator(core.LearningConfig{
		GradientDecay:   0.5,
		GradientEpsilon: 0.1,
		MaxDepth:        100,
	}, upstream, func(core.UnitID, *core.Gradient) error {
		applied++
		return nil
	}, nil)

	g := core.NewGradient(core.ErrorKindTaskFailed, ids[0], ids[1], core.GradientContext{})
	g.Magnitude = 1.0
	p.Propagate(g)

	// 1.0, 0.5, 0.25, 0.125 are at or above epsilon 0.1; the next hop
	// would carry 0.0625 and is never delivered.
	assert.Equal(t, 4, applied)
}

func TestPropagationVisitsUnitsOnce(t *testing.T) {
	// a <-> b cycle must not loop.
	a, b := core.NewUnitID(1), core.NewUnitID(2)
	upstream := func(id core.UnitID) []core.UnitID {
		if id == a {
			return []core.UnitID{b}
		}
		return []core.UnitID{a}
	}

	seen := map[uint32]int{}
	p := NewPropagator(core.LearningConfig{GradientDecay: 0.99, GradientEpsilon: 1e-6, MaxDepth: 50},
		upstream, func(id core.UnitID, g *core.Gradient) error {
			seen[id.Value()]++
			return nil
		}, nil)

	g := core.NewGradient(core.ErrorKindTaskFailed, core.NewUnitID(9), a, core.GradientContext{})
	p.Propagate(g)
	for id, count := range seen {
		assert.Equal(t, 1, count, "unit %d", id)
	}
}

func TestTraceMagnitudes(t *testing.T) {
	p := NewPropagator(core.LearningConfig{GradientDecay: 0.9, GradientEpsilon: 1e-3, MaxDepth: 5},
		func(core.UnitID) []core.UnitID { return nil },
		func(core.UnitID, *core.Gradient) error { return nil }, nil)

	trace := p.Trace(1.0, 5)
	expected := []float64{1.0, 0.9, 0.81, 0.729, 0.6561}
	require.Len(t, trace, 5)
	for i := range expected {
		assert.InDelta(t, expected[i], trace[i], 1e-9)
	}
}

func TestTimeoutAdjustmentSynthesis(t *testing.T) {
	g := core.NewGradient(core.ErrorKindTimeout, core.NewUnitID(1), core.NewUnitID(2), core.GradientContext{
		Factors: map[string]interface{}{"timeout_ms": 500.0},
	})
	SynthesiseAdjustments(g)

	require.Len(t, g.Adjustments, 2)
	timeout := g.Adjustments[0]
	assert.Equal(t, "processing_timeout", timeout.Parameter)
	assert.Equal(t, 1000.0, timeout.SuggestedValue)
	assert.InDelta(t, 0.8, timeout.Confidence, 1e-9)

	complexity := g.Adjustments[1]
	assert.Equal(t, "task_complexity_limit", complexity.Parameter)
	assert.InDelta(t, 0.6, complexity.Confidence, 1e-9)
}

func TestToolFailureAdjustmentNamesTool(t *testing.T) {
	g := core.NewGradient(core.ErrorKindToolExecutionFailed, core.NewUnitID(1), core.NewUnitID(2), core.GradientContext{
		Factors: map[string]interface{}{"tool": "compiler"},
	})
	SynthesiseAdjustments(g)

	require.Len(t, g.Adjustments, 1)
	assert.Equal(t, "tool_compiler_validation", g.Adjustments[0].Parameter)
	assert.Equal(t, true, g.Adjustments[0].SuggestedValue)
	assert.InDelta(t, 0.9, g.Adjustments[0].Confidence, 1e-9)
}

func TestCostExhaustionSuggestsDegradedMode(t *testing.T) {
	g := core.NewGradient(core.ErrorKindResourceExhausted, core.NewUnitID(1), core.NewUnitID(2), core.GradientContext{
		Factors: map[string]interface{}{"resource": "cost: monthly budget"},
	})
	SynthesiseAdjustments(g)

	require.Len(t, g.Adjustments, 1)
	adj := g.Adjustments[0]
	assert.Equal(t, "degraded_mode", adj.Parameter)
	assert.Equal(t, true, adj.SuggestedValue)
	assert.GreaterOrEqual(t, adj.Confidence, 0.9)
}

func TestAdjusterRollbackRebuildsFromBase(t *testing.T) {
	adjuster := NewAdjuster(map[string]float64{"threshold": 0.5})

	adjuster.Apply(core.ErrorKindTimeout, core.Adjustment{
		Parameter: "threshold", SuggestedValue: 0.9, Confidence: 0.8,
	})
	adjuster.Apply(core.ErrorKindTimeout, core.Adjustment{
		Parameter: "retries", SuggestedValue: 5.0, Confidence: 0.7,
	})
	assert.Equal(t, 0.9, adjuster.Parameters()["threshold"])
	assert.Equal(t, 5.0, adjuster.Parameters()["retries"])

	// Both adjustments turn out ineffective.
	adjuster.RecordEffectiveness(0.1)
	rolledBack := adjuster.RollbackIneffective(0.3)
	assert.Equal(t, 2, rolledBack)

	params := adjuster.Parameters()
	assert.Equal(t, 0.5, params["threshold"])
	_, hasRetries := params["retries"]
	assert.False(t, hasRetries, "rolled-back parameter must vanish entirely")
	assert.Empty(t, adjuster.Applied())
}

func TestAdjusterKeepsEffectiveAdjustments(t *testing.T) {
	adjuster := NewAdjuster(map[string]float64{})
	adjuster.Apply(core.ErrorKindTimeout, core.Adjustment{
		Parameter: "processing_timeout", SuggestedValue: 2000.0, Confidence: 0.8,
	})
	adjuster.RecordEffectiveness(0.9)

	assert.Equal(t, 0, adjuster.RollbackIneffective(0.3))
	assert.Equal(t, 2000.0, adjuster.Parameters()["processing_timeout"])
}

func TestAdjusterUnmeasuredAdjustmentsSurviveRollback(t *testing.T) {
	adjuster := NewAdjuster(map[string]float64{})
	adjuster.Apply(core.ErrorKindTaskFailed, core.Adjustment{
		Parameter: "caution", SuggestedValue: 1.0, Confidence: 0.5,
	})
	assert.Equal(t, 0, adjuster.RollbackIneffective(0.9))
	assert.Equal(t, 1.0, adjuster.Parameters()["caution"])
}

func TestGradientFromError(t *testing.T) {
	g := GradientFromError(core.ErrTimeout, core.NewUnitID(3), core.NewUnitID(2),
		"summarise report", "template expansion")
	assert.Equal(t, core.ErrorKindTimeout, g.Kind)
	assert.Equal(t, "summarise report", g.Context.OriginalTask)
	assert.NotEmpty(t, g.Adjustments)
}
