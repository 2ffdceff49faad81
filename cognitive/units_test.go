package cognitive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2lab-ai/hal9go/core"
)

func unitConfig(id uint32) Config {
	return Config{ID: core.NewUnitID(id)}
}

func TestReflexivePatternHit(t *testing.T) {
	u := NewReflexiveUnit(unitConfig(1), map[string]string{"ping": "pong"})
	require.Equal(t, StateReady, u.State())

	out, err := u.Process(Input{Content: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", out.Content)
	assert.True(t, out.Metadata["pattern_hit"].(bool))
	assert.Empty(t, out.TargetLayers)
	assert.Equal(t, StateReady, u.State())
}

func TestReflexiveMissEscalatesUpward(t *testing.T) {
	u := NewReflexiveUnit(unitConfig(1), nil)
	out, err := u.Process(Input{Content: "never seen this"})
	require.NoError(t, err)
	assert.False(t, out.Metadata["pattern_hit"].(bool))
	assert.Less(t, out.Confidence, 0.2)
	assert.Equal(t, []core.CognitiveLayer{core.LayerImplementation}, out.TargetLayers)
}

func TestReflexiveLearnWeakensPattern(t *testing.T) {
	u := NewReflexiveUnit(unitConfig(1), nil)
	u.AddPattern("greet", "hello", 0.9)

	g := core.NewGradient(core.ErrorKindIncorrectOutput, core.NewUnitID(2), u.ID(), core.GradientContext{
		Factors: map[string]interface{}{"trigger": "greet"},
	})
	require.NoError(t, u.Learn(g))

	out, err := u.Process(Input{Content: "greet"})
	require.NoError(t, err)
	assert.Less(t, out.Confidence, 0.9)
}

func TestImplementationTemplateSubstitution(t *testing.T) {
	u := NewImplementationUnit(unitConfig(2), map[string]string{
		"handler": "func handle() { retries = {{retries}} } // {{task}}",
	})
	u.mu.Lock()
	u.params["retries"] = 3
	u.mu.Unlock()

	out, err := u.Process(Input{Content: "build the handler module"})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "retries = 3")
	assert.Contains(t, out.Content, "build the handler module")
	assert.Equal(t, "handler", out.Metadata["template"])
	assert.Equal(t, []core.CognitiveLayer{core.LayerReflexive}, out.TargetLayers)
}

func TestImplementationFallbackEscalates(t *testing.T) {
	u := NewImplementationUnit(unitConfig(2), nil)
	out, err := u.Process(Input{Content: "something novel"})
	require.NoError(t, err)
	assert.Equal(t, "default", out.Metadata["template"])
	assert.Equal(t, []core.CognitiveLayer{core.LayerOperational}, out.TargetLayers)
	assert.Less(t, out.Confidence, 0.5)
}

func TestOperationalDecompositionBounds(t *testing.T) {
	u := NewOperationalUnit(Config{ID: core.NewUnitID(3), FanOut: 3})

	out, err := u.Process(Input{Content: "parse input. validate schema. write output. publish metrics. archive logs"})
	require.NoError(t, err)
	subtasks := out.Metadata["subtasks"].([]string)
	assert.GreaterOrEqual(t, len(subtasks), 1)
	assert.LessOrEqual(t, len(subtasks), 3)

	// A request with no boundaries still yields one sub-task.
	out, err = u.Process(Input{Content: "single"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Metadata["subtask_count"])
	assert.Equal(t, []core.CognitiveLayer{core.LayerImplementation}, out.TargetLayers)
}

func TestTacticalPlanShape(t *testing.T) {
	u := NewTacticalUnit(unitConfig(4))
	out, err := u.Process(Input{Content: "migrate the storage backend"})
	require.NoError(t, err)

	goals := out.Metadata["sub_goals"].([]SubGoal)
	require.GreaterOrEqual(t, len(goals), 3)
	for i, g := range goals {
		assert.Equal(t, i+1, g.Order)
		assert.NotEmpty(t, g.SuccessCriteria)
	}
	assert.Equal(t, []core.CognitiveLayer{core.LayerOperational}, out.TargetLayers)
}

func TestStrategicVision(t *testing.T) {
	u := NewStrategicUnit(unitConfig(5))
	out, err := u.Process(Input{Content: "system reliability"})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "vision:")
	assert.Equal(t, []core.CognitiveLayer{core.LayerTactical}, out.TargetLayers)
	assert.Equal(t, 1, out.Metadata["goal_count"])

	_, err = u.Process(Input{Content: "cost control"})
	require.NoError(t, err)
	assert.Equal(t, 2, u.Introspect().Extensions["goal_count"])
}

func TestStateMachineTransitions(t *testing.T) {
	u := NewReflexiveUnit(unitConfig(6), nil)
	assert.Equal(t, StateReady, u.State())

	_, err := u.Process(Input{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, u.State())

	u.Stop()
	assert.Equal(t, StateStopped, u.State())

	_, err = u.Process(Input{Content: "x"})
	require.Error(t, err)

	err = u.Learn(core.NewGradient(core.ErrorKindTaskFailed, core.NewUnitID(1), u.ID(), core.GradientContext{}))
	assert.Error(t, err)
}

func TestLearnQueuesWhileProcessing(t *testing.T) {
	u := NewReflexiveUnit(unitConfig(7), nil)

	// Force the Processing state directly and verify the gradient queues
	// rather than applying.
	require.NoError(t, u.beginProcess())
	g := core.NewGradient(core.ErrorKindTaskFailed, core.NewUnitID(1), u.ID(), core.GradientContext{})
	g.AddAdjustment(core.Adjustment{Parameter: "caution", SuggestedValue: 1.0, Confidence: 1.0})
	require.NoError(t, u.Learn(g))

	_, hasParam := u.Parameter("caution")
	assert.False(t, hasParam, "gradient must not apply while processing")

	// Ending the processing run drains the queue.
	for _, queued := range u.endProcess(time.Now(), false, false) {
		u.applyGradient(queued)
	}
	_, hasParam = u.Parameter("caution")
	assert.True(t, hasParam)
	assert.Equal(t, StateReady, u.State())
}

func TestMetricsAccumulate(t *testing.T) {
	u := NewOperationalUnit(unitConfig(8))
	for i := 0; i < 5; i++ {
		_, err := u.Process(Input{Content: "work item"})
		require.NoError(t, err)
	}
	snap := u.Introspect()
	assert.Equal(t, uint64(5), snap.Metrics.ActivationsProcessed)
	assert.True(t, snap.Healthy())
}

func TestResetRestoresBaseParameters(t *testing.T) {
	u := NewTacticalUnit(Config{ID: core.NewUnitID(9), Parameters: map[string]float64{"risk_budget": 0.5}})

	g := core.NewGradient(core.ErrorKindTaskFailed, core.NewUnitID(1), u.ID(), core.GradientContext{})
	g.AddAdjustment(core.Adjustment{Parameter: "risk_budget", SuggestedValue: 0.0, Confidence: 1.0})
	require.NoError(t, u.Learn(g))
	changed, _ := u.Parameter("risk_budget")
	assert.NotEqual(t, 0.5, changed)

	require.NoError(t, u.Reset())
	restored, ok := u.Parameter("risk_budget")
	require.True(t, ok)
	assert.Equal(t, 0.5, restored)
	assert.Equal(t, uint64(0), u.Introspect().Metrics.LearningIterations)
}

func TestFactoryCreatesEveryLayer(t *testing.T) {
	factory := NewDefaultFactory(nil)
	var gen core.IDGenerator
	for _, layer := range core.AllLayers {
		unit, err := factory.CreateUnit(layer, Config{ID: gen.Next()})
		require.NoError(t, err, "%s", layer)
		assert.Equal(t, layer, unit.Layer())
		assert.Equal(t, StateReady, unit.State())
	}
}

func TestFactoryRejectsBadInput(t *testing.T) {
	factory := NewDefaultFactory(nil)
	_, err := factory.CreateUnit("bogus", Config{ID: core.NewUnitID(1)})
	require.Error(t, err)
	assert.True(t, core.IsRuleViolation(err))

	_, err = factory.CreateUnit(core.LayerReflexive, Config{})
	require.Error(t, err)
	assert.True(t, core.IsRuleViolation(err))
}
