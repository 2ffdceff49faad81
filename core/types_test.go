package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLayerDepthOrdering(t *testing.T) {
	depths := make(map[int]bool)
	for _, layer := range AllLayers {
		d := layer.Depth()
		assert.True(t, layer.Valid())
		assert.False(t, depths[d], "duplicate depth %d", d)
		depths[d] = true
	}
	assert.Equal(t, 1, LayerReflexive.Depth())
	assert.Equal(t, 5, LayerStrategic.Depth())
	assert.Equal(t, 0, CognitiveLayer("bogus").Depth())
}

func TestLayerAdjacency(t *testing.T) {
	tests := []struct {
		a, b     CognitiveLayer
		adjacent bool
	}{
		{LayerReflexive, LayerReflexive, true},
		{LayerReflexive, LayerImplementation, true},
		{LayerImplementation, LayerReflexive, true},
		{LayerReflexive, LayerOperational, false},
		{LayerReflexive, LayerStrategic, false},
		{LayerTactical, LayerStrategic, true},
		{LayerOperational, LayerStrategic, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.adjacent, tt.a.Adjacent(tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestLayerAboveBelow(t *testing.T) {
	assert.Equal(t, LayerImplementation, LayerReflexive.Above())
	assert.Equal(t, CognitiveLayer(""), LayerStrategic.Above())
	assert.Equal(t, LayerTactical, LayerStrategic.Below())
	assert.Equal(t, CognitiveLayer(""), LayerReflexive.Below())
}

func TestLayerCharacteristics(t *testing.T) {
	reflexive := LayerReflexive.Characteristics()
	assert.Equal(t, 100*time.Millisecond, reflexive.TimeHorizon)
	assert.InDelta(t, 0.1, reflexive.LearningRate, 1e-9)

	strategic := LayerStrategic.Characteristics()
	assert.Equal(t, time.Hour, strategic.TimeHorizon)
	assert.InDelta(t, 0.005, strategic.LearningRate, 1e-9)

	// Abstraction rises monotonically with depth.
	prev := -1.0
	for _, layer := range AllLayers {
		ch := layer.Characteristics()
		assert.Greater(t, ch.AbstractionLevel, prev)
		prev = ch.AbstractionLevel
	}
}

func TestIDGeneratorNeverReuses(t *testing.T) {
	var gen IDGenerator
	const goroutines = 8
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[uint32]bool)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]UnitID, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				local = append(local, gen.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if seen[id.Value()] {
					t.Errorf("id %d issued twice", id.Value())
				}
				seen[id.Value()] = true
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestUnitIDJSONRoundTrip(t *testing.T) {
	id := NewUnitID(42)
	data, err := id.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, "42", string(data))

	var decoded UnitID
	assert.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, id, decoded)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.25, Clamp01(0.25))
}
