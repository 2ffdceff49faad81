package cognitive

import (
	"fmt"
	"strings"
	"time"

	"github.com/2lab-ai/hal9go/core"
)

// SubGoal is one ordered step of a tactical plan.
type SubGoal struct {
	Order           int    `json:"order"`
	Description     string `json:"description"`
	SuccessCriteria string `json:"success_criteria"`
}

// TacticalUnit is the L4 unit: it takes an objective and produces a plan
// of ordered sub-goals, each with a success criterion, destined for the
// operational layer.
type TacticalUnit struct {
	*baseUnit
}

// NewTacticalUnit creates an L4 unit.
func NewTacticalUnit(cfg Config) *TacticalUnit {
	cfg.Layer = core.LayerTactical
	u := &TacticalUnit{baseUnit: newBaseUnit(cfg)}
	u.ready()
	return u
}

// Process builds a plan for the objective. The plan always includes an
// analysis step, the objective's own phases, and a verification step.
func (u *TacticalUnit) Process(input Input) (Output, error) {
	if err := u.beginProcess(); err != nil {
		return Output{}, err
	}
	started := time.Now()

	objective := strings.TrimSpace(input.Content)
	phases := decompose(objective, 3)

	goals := make([]SubGoal, 0, len(phases)+2)
	goals = append(goals, SubGoal{
		Order:           1,
		Description:     "analyse: " + objective,
		SuccessCriteria: "constraints and resources identified",
	})
	for i, phase := range phases {
		goals = append(goals, SubGoal{
			Order:           i + 2,
			Description:     "execute: " + phase,
			SuccessCriteria: "phase output accepted downstream",
		})
	}
	goals = append(goals, SubGoal{
		Order:           len(goals) + 1,
		Description:     "verify: " + objective,
		SuccessCriteria: "objective satisfied or gradient emitted",
	})

	var b strings.Builder
	for _, g := range goals {
		fmt.Fprintf(&b, "%d. %s [done when: %s]\n", g.Order, g.Description, g.SuccessCriteria)
	}

	out := Output{
		Content:    b.String(),
		Confidence: 0.65,
		Metadata: map[string]interface{}{
			"sub_goals": goals,
			"plan_size": len(goals),
		},
		TargetLayers: []core.CognitiveLayer{core.LayerOperational},
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

// Introspect reports the base snapshot.
func (u *TacticalUnit) Introspect() StateSnapshot {
	return u.snapshot(nil)
}

// Reset restores base parameters.
func (u *TacticalUnit) Reset() error {
	u.resetBase()
	return nil
}
