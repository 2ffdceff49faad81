package cognitive

import (
	"fmt"
	"strings"
	"time"

	"github.com/2lab-ai/hal9go/core"
)

// OperationalUnit is the L3 unit: it decomposes a request into between one
// and FanOut sub-tasks, each destined for the implementation layer.
type OperationalUnit struct {
	*baseUnit
	fanOut int
}

// NewOperationalUnit creates an L3 unit. FanOut defaults to 4.
func NewOperationalUnit(cfg Config) *OperationalUnit {
	cfg.Layer = core.LayerOperational
	fanOut := cfg.FanOut
	if fanOut <= 0 {
		fanOut = 4
	}
	u := &OperationalUnit{
		baseUnit: newBaseUnit(cfg),
		fanOut:   fanOut,
	}
	u.ready()
	return u
}

// Process splits the request into sub-tasks. Natural boundaries in the
// request (sentences, semicolons, "and") are used first; a request with no
// boundaries still yields at least one sub-task.
func (u *OperationalUnit) Process(input Input) (Output, error) {
	if err := u.beginProcess(); err != nil {
		return Output{}, err
	}
	started := time.Now()

	subtasks := decompose(input.Content, u.fanOut)

	var b strings.Builder
	for i, task := range subtasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, task)
	}

	out := Output{
		Content:    b.String(),
		Confidence: 0.7,
		Metadata: map[string]interface{}{
			"subtasks":      subtasks,
			"subtask_count": len(subtasks),
		},
		TargetLayers: []core.CognitiveLayer{core.LayerImplementation},
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

// decompose splits text into at most limit non-empty segments, always
// returning at least one.
func decompose(text string, limit int) []string {
	replacer := strings.NewReplacer(". ", "\n", "; ", "\n", " and ", "\n", ", ", "\n")
	parts := strings.Split(replacer.Replace(text), "\n")

	subtasks := make([]string, 0, limit)
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimSuffix(p, "."))
		if p == "" {
			continue
		}
		subtasks = append(subtasks, p)
		if len(subtasks) == limit {
			break
		}
	}
	if len(subtasks) == 0 {
		subtasks = append(subtasks, strings.TrimSpace(text))
	}
	return subtasks
}

// Introspect reports the base snapshot plus the configured fan-out.
func (u *OperationalUnit) Introspect() StateSnapshot {
	return u.snapshot(map[string]interface{}{"fan_out": u.fanOut})
}

// Reset restores base parameters.
func (u *OperationalUnit) Reset() error {
	u.resetBase()
	return nil
}
