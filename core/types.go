// Package core provides the shared kernel of the hierarchical cognitive
// orchestrator: unit and layer identity, signals, learning gradients, the
// error taxonomy, logging and telemetry interfaces, configuration, and the
// host substrate (scheduler, transport, resource accounting).
//
// All other packages in this repository depend on core; core depends on
// nothing above the standard library except uuid, yaml and x/sync.
package core

import (
	"strconv"
	"sync/atomic"
	"time"
)

// UnitID identifies a cognitive unit. IDs are compact 32-bit values handed
// out monotonically by an IDGenerator and are never re-used within a process
// lifetime. The wrapper type keeps callers from doing arithmetic on them.
type UnitID struct {
	value uint32
}

// NewUnitID wraps a raw value. Mostly useful in tests; production code
// should obtain IDs from an IDGenerator.
func NewUnitID(value uint32) UnitID {
	return UnitID{value: value}
}

// Value returns the raw numeric value, e.g. for shard selection.
func (id UnitID) Value() uint32 {
	return id.value
}

// IsZero reports whether the ID is the zero (unassigned) value.
func (id UnitID) IsZero() bool {
	return id.value == 0
}

// MarshalJSON encodes the ID as its bare number.
func (id UnitID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(id.value), 10)), nil
}

// UnmarshalJSON decodes the bare-number form.
func (id *UnitID) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseUint(string(data), 10, 32)
	if err != nil {
		return err
	}
	id.value = uint32(v)
	return nil
}

// String formats the ID for logs.
func (id UnitID) String() string {
	return "unit-" + strconv.FormatUint(uint64(id.value), 10)
}

// IDGenerator hands out process-unique unit IDs. The zero value is ready to
// use; the first ID issued is 1 so that the zero UnitID stays available as
// an "unassigned" marker.
type IDGenerator struct {
	counter atomic.Uint32
}

// Next returns a fresh, never-before-issued UnitID.
func (g *IDGenerator) Next() UnitID {
	return UnitID{value: g.counter.Add(1)}
}

// CognitiveLayer is a fixed level in the processing hierarchy.
type CognitiveLayer string

const (
	// LayerReflexive reacts immediately from a pattern table.
	LayerReflexive CognitiveLayer = "reflexive"
	// LayerImplementation turns task descriptions into concrete artefacts.
	LayerImplementation CognitiveLayer = "implementation"
	// LayerOperational decomposes requests into sub-tasks.
	LayerOperational CognitiveLayer = "operational"
	// LayerTactical produces plans of ordered sub-goals.
	LayerTactical CognitiveLayer = "tactical"
	// LayerStrategic emits vision and long-horizon goals.
	LayerStrategic CognitiveLayer = "strategic"
)

// AllLayers lists the layers in depth order.
var AllLayers = []CognitiveLayer{
	LayerReflexive,
	LayerImplementation,
	LayerOperational,
	LayerTactical,
	LayerStrategic,
}

// Depth returns the layer's position in the hierarchy, 1 (reflexive)
// through 5 (strategic). Unknown layers report depth 0.
func (l CognitiveLayer) Depth() int {
	switch l {
	case LayerReflexive:
		return 1
	case LayerImplementation:
		return 2
	case LayerOperational:
		return 3
	case LayerTactical:
		return 4
	case LayerStrategic:
		return 5
	default:
		return 0
	}
}

// Valid reports whether the layer is one of the five known levels.
func (l CognitiveLayer) Valid() bool {
	return l.Depth() != 0
}

// Adjacent reports whether two layers may exchange signals or hold an
// edge: their depths differ by at most one.
func (l CognitiveLayer) Adjacent(other CognitiveLayer) bool {
	d := l.Depth() - other.Depth()
	if d < 0 {
		d = -d
	}
	return d <= 1
}

// Above returns the next layer up, or "" at the top.
func (l CognitiveLayer) Above() CognitiveLayer {
	d := l.Depth()
	if d == 0 || d >= len(AllLayers) {
		return ""
	}
	return AllLayers[d] // AllLayers is zero-indexed, depth is one-indexed
}

// Below returns the next layer down, or "" at the bottom.
func (l CognitiveLayer) Below() CognitiveLayer {
	d := l.Depth()
	if d <= 1 {
		return ""
	}
	return AllLayers[d-2]
}

// LayerCharacteristics describes how a layer processes information.
type LayerCharacteristics struct {
	// AbstractionLevel runs from 0 (concrete) to 1 (abstract).
	AbstractionLevel float64 `json:"abstraction_level"`
	// TimeHorizon is how far ahead the layer considers.
	TimeHorizon time.Duration `json:"time_horizon"`
	// ComplexityThreshold is the point at which work is delegated down.
	ComplexityThreshold float64 `json:"complexity_threshold"`
	// LearningRate scales how strongly gradients adjust parameters.
	LearningRate float64 `json:"learning_rate"`
}

// Characteristics returns the fixed processing characteristics of a layer.
func (l CognitiveLayer) Characteristics() LayerCharacteristics {
	switch l {
	case LayerReflexive:
		return LayerCharacteristics{
			AbstractionLevel:    0.1,
			TimeHorizon:         100 * time.Millisecond,
			ComplexityThreshold: 0.2,
			LearningRate:        0.1,
		}
	case LayerImplementation:
		return LayerCharacteristics{
			AbstractionLevel:    0.3,
			TimeHorizon:         10 * time.Second,
			ComplexityThreshold: 0.4,
			LearningRate:        0.05,
		}
	case LayerOperational:
		return LayerCharacteristics{
			AbstractionLevel:    0.5,
			TimeHorizon:         time.Minute,
			ComplexityThreshold: 0.6,
			LearningRate:        0.02,
		}
	case LayerTactical:
		return LayerCharacteristics{
			AbstractionLevel:    0.7,
			TimeHorizon:         5 * time.Minute,
			ComplexityThreshold: 0.8,
			LearningRate:        0.01,
		}
	case LayerStrategic:
		return LayerCharacteristics{
			AbstractionLevel:    0.9,
			TimeHorizon:         time.Hour,
			ComplexityThreshold: 0.95,
			LearningRate:        0.005,
		}
	default:
		return LayerCharacteristics{}
	}
}

// Clamp01 bounds v to [0,1]. Shared by compatibility scoring, signal
// strengths and connection weights.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
