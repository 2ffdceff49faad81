// Package cognitive implements the per-layer processing units of the
// hierarchy. All units share one contract - process, learn, introspect,
// reset - and differ in what their layer does with an input: L1 reacts
// from a pattern table, L2 builds artefacts from templates, L3 decomposes
// work, L4 plans, L5 sets direction.
package cognitive

import (
	"fmt"
	"sync"
	"time"

	"github.com/2lab-ai/hal9go/core"
)

// UnitState is the lifecycle state of a unit.
type UnitState string

const (
	StateInitialising UnitState = "initialising"
	StateReady        UnitState = "ready"
	StateProcessing   UnitState = "processing"
	StateFailed       UnitState = "failed"
	StateStopped      UnitState = "stopped"
)

// Input is what a unit processes: content plus the context accumulated by
// upstream layers.
type Input struct {
	Content     string                 `json:"content"`
	Context     map[string]interface{} `json:"context,omitempty"`
	SourceLayer core.CognitiveLayer    `json:"source_layer,omitempty"`
}

// Output is what a unit produces. Confidence is in [0,1]; a unit whose
// confidence falls under its layer's threshold still answers and also
// escalates upward by naming the layer above. TargetLayers names where the output should be routed next.
type Output struct {
	Content      string                 `json:"content"`
	Confidence   float64                `json:"confidence"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	TargetLayers []core.CognitiveLayer  `json:"target_layers,omitempty"`
}

// StateMetrics are the counters and rolling averages every unit keeps.
// Only the unit's own task updates them.
type StateMetrics struct {
	ActivationsProcessed    uint64  `json:"activations_processed"`
	ErrorsEncountered       uint64  `json:"errors_encountered"`
	LearningIterations      uint64  `json:"learning_iterations"`
	AverageProcessingTimeMs float64 `json:"average_processing_time_ms"`
	MemoryUsageBytes        uint64  `json:"memory_usage_bytes"`
}

// StateSnapshot is the immutable view returned by Introspect. Extensions
// carries layer-specific state (pattern counts, template names, plan depth)
// without every layer needing its own snapshot type.
type StateSnapshot struct {
	UnitID     core.UnitID            `json:"unit_id"`
	Layer      core.CognitiveLayer    `json:"layer"`
	State      UnitState              `json:"state"`
	Metrics    StateMetrics           `json:"metrics"`
	Parameters map[string]float64     `json:"parameters"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Healthy reports whether the unit has at most one error per ten
// activations (activations/10, rounded down).
func (s StateSnapshot) Healthy() bool {
	return s.Metrics.ErrorsEncountered < s.Metrics.ActivationsProcessed/10+1
}

// Unit is the contract every cognitive unit satisfies. Process is the only
// operation that moves the unit between Ready and Processing; Learn is
// accepted in Ready and queued while Processing.
type Unit interface {
	ID() core.UnitID
	Layer() core.CognitiveLayer
	Process(input Input) (Output, error)
	Learn(gradient *core.Gradient) error
	Introspect() StateSnapshot
	Reset() error
	Stop()
	State() UnitState
}

// Config parameterises unit construction.
type Config struct {
	ID         core.UnitID
	Layer      core.CognitiveLayer
	Parameters map[string]float64
	// ConfidenceThreshold is the floor under which outputs escalate upward.
	ConfidenceThreshold float64
	// FanOut caps how many sub-tasks an operational unit produces.
	FanOut int
	// Deadline bounds a single Process call. Zero means the layer's time
	// horizon applies.
	Deadline time.Duration
	Logger   core.Logger
}

// baseUnit carries the state machine, metrics and parameter store shared
// by all five layers. The embedding layer supplies the actual processing
// in its own Process method, bracketed by beginProcess and endProcess.
type baseUnit struct {
	id     core.UnitID
	layer  core.CognitiveLayer
	chars  core.LayerCharacteristics
	logger core.Logger

	mu           sync.Mutex
	state        UnitState
	params       map[string]float64
	baseParams   map[string]float64
	metrics      StateMetrics
	pendingLearn []*core.Gradient

	confidenceThreshold float64
	deadline            time.Duration
}

func newBaseUnit(cfg Config) *baseUnit {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	params := make(map[string]float64, len(cfg.Parameters))
	base := make(map[string]float64, len(cfg.Parameters))
	for k, v := range cfg.Parameters {
		params[k] = v
		base[k] = v
	}
	chars := cfg.Layer.Characteristics()
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = chars.TimeHorizon
	}
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = chars.ComplexityThreshold
	}
	return &baseUnit{
		id:                  cfg.ID,
		layer:               cfg.Layer,
		chars:               chars,
		logger:              logger,
		state:               StateInitialising,
		params:              params,
		baseParams:          base,
		confidenceThreshold: threshold,
		deadline:            deadline,
	}
}

func (b *baseUnit) ID() core.UnitID            { return b.id }
func (b *baseUnit) Layer() core.CognitiveLayer { return b.layer }

func (b *baseUnit) State() UnitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ready moves Initialising → Ready. Called by the layer constructors once
// their internal tables are set up.
func (b *baseUnit) ready() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateInitialising {
		b.state = StateReady
	}
}

// beginProcess transitions Ready → Processing.
func (b *baseUnit) beginProcess() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateReady:
		b.state = StateProcessing
		return nil
	case StateFailed:
		return fmt.Errorf("unit %d: %w", b.id.Value(), core.ErrUnitFailed)
	case StateStopped:
		return fmt.Errorf("unit %d: %w", b.id.Value(), core.ErrShuttingDown)
	case StateInitialising:
		return fmt.Errorf("unit %d: %w", b.id.Value(), core.ErrNotInitialized)
	default:
		return fmt.Errorf("unit %d busy: %w", b.id.Value(), core.ErrInternal)
	}
}

// endProcess transitions Processing → Ready (or Failed on fatal error),
// records metrics, and drains any learning that queued during processing.
func (b *baseUnit) endProcess(started time.Time, fatal bool, failed bool) []*core.Gradient {
	elapsed := float64(time.Since(started).Microseconds()) / 1000.0

	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.ActivationsProcessed++
	if failed {
		b.metrics.ErrorsEncountered++
	}
	n := float64(b.metrics.ActivationsProcessed)
	b.metrics.AverageProcessingTimeMs = (b.metrics.AverageProcessingTimeMs*(n-1) + elapsed) / n

	if b.state == StateProcessing {
		if fatal {
			b.state = StateFailed
		} else {
			b.state = StateReady
		}
	}

	queued := b.pendingLearn
	b.pendingLearn = nil
	return queued
}

// Learn applies a gradient's suggested adjustments, scaled by the layer's
// learning rate. While the unit is Processing the gradient queues and is
// applied when processing ends.
func (b *baseUnit) Learn(gradient *core.Gradient) error {
	if gradient == nil {
		return fmt.Errorf("nil gradient: %w", core.ErrRuleViolation)
	}

	b.mu.Lock()
	if b.state == StateStopped {
		b.mu.Unlock()
		return fmt.Errorf("unit %d: %w", b.id.Value(), core.ErrShuttingDown)
	}
	if b.state == StateProcessing {
		b.pendingLearn = append(b.pendingLearn, gradient)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	b.applyGradient(gradient)
	return nil
}

// applyGradient mutates parameters from the gradient's adjustments.
func (b *baseUnit) applyGradient(gradient *core.Gradient) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, adj := range gradient.Adjustments {
		switch v := adj.SuggestedValue.(type) {
		case float64:
			current := b.params[adj.Parameter]
			delta := (v - current) * b.chars.LearningRate * adj.Confidence
			b.params[adj.Parameter] = current + delta
		case int:
			current := b.params[adj.Parameter]
			delta := (float64(v) - current) * b.chars.LearningRate * adj.Confidence
			b.params[adj.Parameter] = current + delta
		case bool:
			// Boolean switches flip outright once confidence clears 0.5;
			// a fractional flag is meaningless.
			if adj.Confidence > 0.5 {
				if v {
					b.params[adj.Parameter] = 1
				} else {
					b.params[adj.Parameter] = 0
				}
			}
		}
	}
	b.metrics.LearningIterations++
}

// Parameter returns the current value of one learned parameter.
func (b *baseUnit) Parameter(name string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.params[name]
	return v, ok
}

// snapshot builds the common part of a state snapshot.
func (b *baseUnit) snapshot(extensions map[string]interface{}) StateSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	params := make(map[string]float64, len(b.params))
	for k, v := range b.params {
		params[k] = v
	}
	return StateSnapshot{
		UnitID:     b.id,
		Layer:      b.layer,
		State:      b.state,
		Metrics:    b.metrics,
		Parameters: params,
		Extensions: extensions,
	}
}

// Reset restores base parameters and clears metrics. Pattern tables and
// other layer state are reset by the embedding layer.
func (b *baseUnit) resetBase() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.params = make(map[string]float64, len(b.baseParams))
	for k, v := range b.baseParams {
		b.params[k] = v
	}
	b.metrics = StateMetrics{}
	b.pendingLearn = nil
	if b.state != StateStopped {
		b.state = StateReady
	}
}

// Stop moves the unit to Stopped from any state.
func (b *baseUnit) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateStopped
}

// checkDeadline converts an overlong processing run into a timeout error
// that feeds the learning path.
func (b *baseUnit) checkDeadline(started time.Time) error {
	if b.deadline > 0 && time.Since(started) > b.deadline {
		return fmt.Errorf("unit %d exceeded %s: %w", b.id.Value(), b.deadline, core.ErrTimeout)
	}
	return nil
}
