package cognitive

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/2lab-ai/hal9go/core"
)

// StrategicUnit is the L5 unit: it emits vision and policy statements with
// long-horizon goals, destined for the tactical layer. It remembers the
// goals it has set so successive visions stay coherent.
type StrategicUnit struct {
	*baseUnit

	goalMu sync.Mutex
	goals  []string
}

// NewStrategicUnit creates an L5 unit.
func NewStrategicUnit(cfg Config) *StrategicUnit {
	cfg.Layer = core.LayerStrategic
	u := &StrategicUnit{baseUnit: newBaseUnit(cfg)}
	u.ready()
	return u
}

// Process frames the input as a long-horizon goal and derives the policy
// directions the tactical layer should plan against.
func (u *StrategicUnit) Process(input Input) (Output, error) {
	if err := u.beginProcess(); err != nil {
		return Output{}, err
	}
	started := time.Now()

	theme := strings.TrimSpace(input.Content)
	goal := "sustain and improve: " + theme

	u.goalMu.Lock()
	u.goals = append(u.goals, goal)
	if len(u.goals) > 16 {
		u.goals = u.goals[len(u.goals)-16:]
	}
	goalCount := len(u.goals)
	u.goalMu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "vision: %s\n", goal)
	fmt.Fprintf(&b, "policy: prefer reversible steps; delegate concrete work downward\n")
	fmt.Fprintf(&b, "horizon: %s\n", u.chars.TimeHorizon)

	out := Output{
		Content:    b.String(),
		Confidence: 0.6,
		Metadata: map[string]interface{}{
			"goal":        goal,
			"goal_count":  goalCount,
			"time_horizon": u.chars.TimeHorizon.String(),
		},
		TargetLayers: []core.CognitiveLayer{core.LayerTactical},
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

// Introspect reports the base snapshot plus active goal count.
func (u *StrategicUnit) Introspect() StateSnapshot {
	u.goalMu.Lock()
	count := len(u.goals)
	u.goalMu.Unlock()
	return u.snapshot(map[string]interface{}{"goal_count": count})
}

// Reset drops accumulated goals and restores base parameters.
func (u *StrategicUnit) Reset() error {
	u.goalMu.Lock()
	u.goals = nil
	u.goalMu.Unlock()
	u.resetBase()
	return nil
}
