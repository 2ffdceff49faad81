package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelWrapping(t *testing.T) {
	err := fmt.Errorf("connect A->B: %w", ErrLayerAdjacency)
	if !errors.Is(err, ErrRuleViolation) {
		t.Error("adjacency error should be a rule violation")
	}
	if !IsRuleViolation(err) {
		t.Error("IsRuleViolation() = false, want true")
	}
	if IsRetryable(err) {
		t.Error("rule violations must not be retryable")
	}
}

func TestNotFoundPredicates(t *testing.T) {
	if !IsNotFound(fmt.Errorf("lookup: %w", ErrUnitNotFound)) {
		t.Error("unit not found should satisfy IsNotFound")
	}
	if !IsNotFound(ErrEdgeNotFound) {
		t.Error("edge not found should satisfy IsNotFound")
	}
	if IsNotFound(ErrTimeout) {
		t.Error("timeout should not satisfy IsNotFound")
	}
}

func TestRetryablePredicates(t *testing.T) {
	if !IsRetryable(ErrBackPressure) {
		t.Error("backpressure should be retryable")
	}
	if !IsRetryable(ErrTimeout) {
		t.Error("timeout should be retryable")
	}
	if IsRetryable(ErrResourceExhausted) {
		t.Error("resource exhaustion is hopeless short-term, not retryable")
	}
}

func TestOrchestratorError(t *testing.T) {
	base := NewOrchestratorError("topology.Connect", "topology", ErrSelfLoop)
	if !errors.Is(base, ErrRuleViolation) {
		t.Error("wrapped sentinel lost through OrchestratorError")
	}
	want := "topology.Connect: rule violation: self loop"
	if base.Error() != want {
		t.Errorf("Error() = %q, want %q", base.Error(), want)
	}

	withID := &OrchestratorError{Op: "unit.Process", ID: "unit-7", Err: ErrTimeout}
	if got := withID.Error(); got != "unit.Process [unit-7]: processing deadline exceeded" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{ErrTimeout, ErrorKindTimeout},
		{fmt.Errorf("alloc: %w", ErrResourceExhausted), ErrorKindResourceExhausted},
		{ErrBackPressure, ErrorKindCommunicationError},
		{ErrVersionMismatch, ErrorKindCommunicationError},
		{errors.New("mystery"), ErrorKindTaskFailed},
	}
	for _, tt := range tests {
		if got := ErrorKindOf(tt.err); got != tt.want {
			t.Errorf("ErrorKindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
