package cognitive

import (
	"strings"
	"sync"
	"time"

	"github.com/2lab-ai/hal9go/core"
)

// patternEntry is one learned trigger → response mapping.
type patternEntry struct {
	response   string
	confidence float64
	hits       uint64
}

// ReflexiveUnit is the L1 unit: a constant-time pattern table with a
// default fallback. Matches return immediately; novel inputs escalate
// upward to the implementation layer.
type ReflexiveUnit struct {
	*baseUnit

	patternMu sync.RWMutex
	patterns  map[string]*patternEntry
	fallback  string
}

// NewReflexiveUnit creates an L1 unit, optionally pre-seeded with
// patterns.
func NewReflexiveUnit(cfg Config, seed map[string]string) *ReflexiveUnit {
	cfg.Layer = core.LayerReflexive
	u := &ReflexiveUnit{
		baseUnit: newBaseUnit(cfg),
		patterns: make(map[string]*patternEntry),
		fallback: "unrecognised stimulus",
	}
	for trigger, response := range seed {
		u.patterns[normaliseTrigger(trigger)] = &patternEntry{response: response, confidence: 0.5}
	}
	u.ready()
	return u
}

// AddPattern installs or refreshes a trigger → response mapping.
func (u *ReflexiveUnit) AddPattern(trigger, response string, confidence float64) {
	u.patternMu.Lock()
	defer u.patternMu.Unlock()
	u.patterns[normaliseTrigger(trigger)] = &patternEntry{
		response:   response,
		confidence: core.Clamp01(confidence),
	}
}

// Process looks the input up in the pattern table. Hits answer with the
// stored confidence; misses answer with the fallback at low confidence,
// targeting the implementation layer for escalation.
func (u *ReflexiveUnit) Process(input Input) (Output, error) {
	if err := u.beginProcess(); err != nil {
		return Output{}, err
	}
	started := time.Now()

	u.patternMu.RLock()
	entry, hit := u.patterns[normaliseTrigger(input.Content)]
	u.patternMu.RUnlock()

	var out Output
	if hit {
		entry.hits++
		out = Output{
			Content:    entry.response,
			Confidence: entry.confidence,
			Metadata:   map[string]interface{}{"pattern_hit": true},
		}
		// A match the table itself no longer trusts goes upward too.
		if entry.confidence < u.confidenceThreshold {
			out.TargetLayers = append(out.TargetLayers, core.LayerImplementation)
		}
	} else {
		out = Output{
			Content:      u.fallback,
			Confidence:   0.1,
			Metadata:     map[string]interface{}{"pattern_hit": false},
			TargetLayers: []core.CognitiveLayer{core.LayerImplementation},
		}
	}

	err := u.checkDeadline(started)
	for _, g := range u.endProcess(started, false, err != nil) {
		u.applyGradient(g)
	}
	if err != nil {
		return Output{}, err
	}
	return out, nil
}

// Learn reinforces or weakens pattern confidences in addition to the base
// parameter adjustments. Incorrect-output gradients naming a trigger in
// their context weaken that pattern directly.
func (u *ReflexiveUnit) Learn(gradient *core.Gradient) error {
	if gradient != nil && gradient.Kind == core.ErrorKindIncorrectOutput {
		if trigger, ok := gradient.Context.Factors["trigger"].(string); ok {
			u.patternMu.Lock()
			if entry, exists := u.patterns[normaliseTrigger(trigger)]; exists {
				entry.confidence = core.Clamp01(entry.confidence - u.chars.LearningRate*gradient.Magnitude)
			}
			u.patternMu.Unlock()
		}
	}
	return u.baseUnit.Learn(gradient)
}

// Introspect reports the base snapshot plus pattern table size.
func (u *ReflexiveUnit) Introspect() StateSnapshot {
	u.patternMu.RLock()
	count := len(u.patterns)
	u.patternMu.RUnlock()
	return u.snapshot(map[string]interface{}{"pattern_count": count})
}

// Reset clears learned patterns down to nothing and restores parameters.
func (u *ReflexiveUnit) Reset() error {
	u.patternMu.Lock()
	u.patterns = make(map[string]*patternEntry)
	u.patternMu.Unlock()
	u.resetBase()
	return nil
}

func normaliseTrigger(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
