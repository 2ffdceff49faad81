package core

import (
	"time"

	"github.com/google/uuid"
)

// SignalPriority orders signal delivery.
type SignalPriority int

const (
	PriorityLow SignalPriority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the snake_case name used on the wire and in metrics labels.
func (p SignalPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// PayloadKind tags the variant held by a Payload.
type PayloadKind string

const (
	PayloadText       PayloadKind = "text"
	PayloadBytes      PayloadKind = "bytes"
	PayloadStructured PayloadKind = "structured"
)

// Payload is the tagged-variant content of a signal. Exactly one of Text,
// Bytes or Structured is meaningful, selected by Kind. Structured values
// are flat string→primitive maps; JSON appears only at external boundaries.
type Payload struct {
	Kind       PayloadKind            `json:"kind"`
	Text       string                 `json:"text,omitempty"`
	Bytes      []byte                 `json:"bytes,omitempty"`
	Structured map[string]interface{} `json:"structured,omitempty"`
}

// TextPayload wraps a string.
func TextPayload(text string) Payload {
	return Payload{Kind: PayloadText, Text: text}
}

// BytesPayload wraps a binary buffer.
func BytesPayload(b []byte) Payload {
	return Payload{Kind: PayloadBytes, Bytes: b}
}

// StructuredPayload wraps a flat key→primitive map.
func StructuredPayload(fields map[string]interface{}) Payload {
	return Payload{Kind: PayloadStructured, Structured: fields}
}

// Signal is the unit of communication between cognitive units. Signals form
// a forest via ParentID: descendants are produced by downstream layers
// decomposing the parent's task. Source and target must sit on adjacent
// layers; the orchestrator's SubmitSignal enforces this before queueing.
type Signal struct {
	ID       string         `json:"id"`
	TraceID  string         `json:"trace_id"`
	ParentID string         `json:"parent_id,omitempty"`
	Source   UnitID         `json:"source"`
	// Target is the destination unit. The zero UnitID addresses TargetLayer:
	// the signal goes to the one nearest unit of that layer, not to all.
	Target      UnitID         `json:"target"`
	TargetLayer CognitiveLayer `json:"target_layer,omitempty"`
	Content     Payload        `json:"content"`
	Strength    float64        `json:"strength"`
	Priority    SignalPriority `json:"priority"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewSignal creates a signal with a fresh ID and trace ID, normal priority
// and full strength.
func NewSignal(source, target UnitID, content Payload) *Signal {
	return &Signal{
		ID:        uuid.NewString(),
		TraceID:   uuid.NewString(),
		Source:    source,
		Target:    target,
		Content:   content,
		Strength:  1.0,
		Priority:  PriorityNormal,
		Timestamp: time.Now().UTC(),
	}
}

// Child derives a decomposition signal from s. The child keeps the parent's
// trace ID and priority, records s as its parent and gets a fresh ID.
func (s *Signal) Child(source, target UnitID, content Payload) *Signal {
	return &Signal{
		ID:        uuid.NewString(),
		TraceID:   s.TraceID,
		ParentID:  s.ID,
		Source:    source,
		Target:    target,
		Content:   content,
		Strength:  s.Strength,
		Priority:  s.Priority,
		Timestamp: time.Now().UTC(),
	}
}

// IsBroadcast reports whether the signal targets a whole layer rather than
// a single unit.
func (s *Signal) IsBroadcast() bool {
	return s.Target.IsZero() && s.TargetLayer != ""
}
