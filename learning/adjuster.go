package learning

import (
	"sync"
	"time"

	"github.com/2lab-ai/hal9go/core"
)

// AppliedAdjustment is one adjustment a unit has taken on, with the
// effectiveness observed since.
type AppliedAdjustment struct {
	Adjustment    core.Adjustment
	TriggerKind   core.ErrorKind
	AppliedAt     time.Time
	Effectiveness *float64
}

// Adjuster tracks the adjustments applied to one unit's parameters and
// rolls back the ones that did not help. Rollback reconstructs the
// parameter map from the base values plus the surviving adjustments, in
// application order, so a bad adjustment leaves no residue.
type Adjuster struct {
	mu      sync.Mutex
	base    map[string]float64
	current map[string]float64
	applied []AppliedAdjustment

	// recentWindow is how many trailing adjustments an effectiveness
	// observation covers.
	recentWindow int
}

// NewAdjuster snapshots the base parameters of a unit.
func NewAdjuster(base map[string]float64) *Adjuster {
	b := make(map[string]float64, len(base))
	c := make(map[string]float64, len(base))
	for k, v := range base {
		b[k] = v
		c[k] = v
	}
	return &Adjuster{
		base:         b,
		current:      c,
		recentWindow: 3,
	}
}

// Apply records an adjustment and folds it into the current parameters.
func (a *Adjuster) Apply(kind core.ErrorKind, adj core.Adjustment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.applied = append(a.applied, AppliedAdjustment{
		Adjustment:  adj,
		TriggerKind: kind,
		AppliedAt:   time.Now().UTC(),
	})
	applyToParams(a.current, adj)
}

// Parameters returns a copy of the current parameter values.
func (a *Adjuster) Parameters() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]float64, len(a.current))
	for k, v := range a.current {
		out[k] = v
	}
	return out
}

// RecordEffectiveness marks the most recent adjustments with the observed
// success rate over the sliding window.
func (a *Adjuster) RecordEffectiveness(successRate float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := len(a.applied) - a.recentWindow
	if start < 0 {
		start = 0
	}
	for i := start; i < len(a.applied); i++ {
		rate := successRate
		a.applied[i].Effectiveness = &rate
	}
}

// RollbackIneffective drops every adjustment whose recorded effectiveness
// fell under the threshold and rebuilds the parameters from base plus the
// survivors. Adjustments with no recorded effectiveness yet are kept.
// Returns how many adjustments were rolled back.
func (a *Adjuster) RollbackIneffective(threshold float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.applied[:0:0]
	rolledBack := 0
	for _, adj := range a.applied {
		if adj.Effectiveness != nil && *adj.Effectiveness < threshold {
			rolledBack++
			continue
		}
		kept = append(kept, adj)
	}
	if rolledBack == 0 {
		return 0
	}
	a.applied = kept

	rebuilt := make(map[string]float64, len(a.base))
	for k, v := range a.base {
		rebuilt[k] = v
	}
	for _, adj := range a.applied {
		applyToParams(rebuilt, adj.Adjustment)
	}
	a.current = rebuilt
	return rolledBack
}

// Applied returns a copy of the adjustment history.
func (a *Adjuster) Applied() []AppliedAdjustment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AppliedAdjustment(nil), a.applied...)
}

// applyToParams folds one adjustment into a parameter map. Numeric
// suggestions replace the value outright; booleans map to 0/1; anything
// else (string advisories) leaves the numeric parameters alone.
func applyToParams(params map[string]float64, adj core.Adjustment) {
	switch v := adj.SuggestedValue.(type) {
	case float64:
		params[adj.Parameter] = v
	case int:
		params[adj.Parameter] = float64(v)
	case bool:
		if v {
			params[adj.Parameter] = 1
		} else {
			params[adj.Parameter] = 0
		}
	}
}
