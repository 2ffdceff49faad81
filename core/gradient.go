package core

import (
	"time"

	"github.com/google/uuid"
)

// ErrorKind classifies the failure that produced a learning gradient.
type ErrorKind string

const (
	ErrorKindTimeout             ErrorKind = "timeout"
	ErrorKindToolExecutionFailed ErrorKind = "tool_execution_failed"
	ErrorKindIncorrectOutput     ErrorKind = "incorrect_output"
	ErrorKindCommunicationError  ErrorKind = "communication_error"
	ErrorKindResourceExhausted   ErrorKind = "resource_exhausted"
	ErrorKindTaskFailed          ErrorKind = "task_failed"
)

// DefaultMagnitude returns the initial gradient magnitude for an error
// kind. Resource exhaustion and incorrect output weigh heaviest because
// they indicate systematic rather than transient problems.
func (k ErrorKind) DefaultMagnitude() float64 {
	switch k {
	case ErrorKindTimeout:
		return 0.6
	case ErrorKindToolExecutionFailed:
		return 0.7
	case ErrorKindIncorrectOutput:
		return 0.9
	case ErrorKindCommunicationError:
		return 0.5
	case ErrorKindResourceExhausted:
		return 1.0
	case ErrorKindTaskFailed:
		return 0.8
	default:
		return 0.5
	}
}

// GradientContext captures the circumstances of the failure.
type GradientContext struct {
	OriginalTask      string                 `json:"original_task"`
	AttemptedSolution string                 `json:"attempted_solution"`
	FailurePoint      string                 `json:"failure_point"`
	Factors           map[string]interface{} `json:"factors,omitempty"`
}

// Adjustment is a suggested parameter change attached to a gradient.
// Values are free-form primitives; units interpret the parameter names
// they recognise and ignore the rest.
type Adjustment struct {
	Parameter      string      `json:"parameter"`
	CurrentValue   interface{} `json:"current_value"`
	SuggestedValue interface{} `json:"suggested_value"`
	Confidence     float64     `json:"confidence"`
	Rationale      string      `json:"rationale"`
}

// Gradient is a structured error signal propagating upstream through the
// hierarchy. Each propagation hop multiplies Magnitude by the configured
// decay factor; propagation stops once the magnitude falls under epsilon
// or the depth limit is reached.
type Gradient struct {
	ID          string          `json:"id"`
	TraceID     string          `json:"trace_id"`
	Kind        ErrorKind       `json:"kind"`
	Magnitude   float64         `json:"magnitude"`
	Source      UnitID          `json:"source"`
	Target      UnitID          `json:"target"`
	Context     GradientContext `json:"context"`
	Adjustments []Adjustment    `json:"suggested_adjustments,omitempty"`
	Depth       int             `json:"propagation_depth"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewGradient creates a depth-zero gradient with the kind's default
// magnitude and a fresh ID.
func NewGradient(kind ErrorKind, source, target UnitID, gctx GradientContext) *Gradient {
	return &Gradient{
		ID:        uuid.NewString(),
		TraceID:   uuid.NewString(),
		Kind:      kind,
		Magnitude: kind.DefaultMagnitude(),
		Source:    source,
		Target:    target,
		Context:   gctx,
		Timestamp: time.Now().UTC(),
	}
}

// AddAdjustment appends a suggested parameter change.
func (g *Gradient) AddAdjustment(adj Adjustment) {
	g.Adjustments = append(g.Adjustments, adj)
}

// Propagate derives the gradient for the next upstream hop. The previous
// target becomes the source, depth increments and the magnitude decays by
// the given factor. The trace ID is preserved so related gradients can be
// correlated end to end.
func (g *Gradient) Propagate(target UnitID, decay float64) *Gradient {
	next := *g
	next.ID = uuid.NewString()
	next.Source = g.Target
	next.Target = target
	next.Depth = g.Depth + 1
	next.Magnitude = g.Magnitude * decay
	next.Timestamp = time.Now().UTC()
	return &next
}
