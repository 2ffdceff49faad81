// Package learning closes the feedback loop: it synthesises parameter
// adjustments from error gradients by rule, propagates gradients backward
// through the hierarchy with magnitude decay, and tracks how effective
// applied adjustments turn out so bad ones can be rolled back.
package learning

import (
	"fmt"
	"strings"

	"github.com/2lab-ai/hal9go/core"
)

// SynthesiseAdjustments attaches suggested parameter changes to a gradient
// based on its error kind. The rules are fixed, not learned: each kind
// maps to one or two deltas with a confidence and a human-readable
// rationale.
func SynthesiseAdjustments(g *core.Gradient) {
	switch g.Kind {
	case core.ErrorKindTimeout:
		currentTimeout := contextFloat(g, "timeout_ms", 1000)
		g.AddAdjustment(core.Adjustment{
			Parameter:      "processing_timeout",
			CurrentValue:   currentTimeout,
			SuggestedValue: currentTimeout * 2,
			Confidence:     0.8,
			Rationale:      "double timeout to prevent future timeouts",
		})
		g.AddAdjustment(core.Adjustment{
			Parameter:      "task_complexity_limit",
			CurrentValue:   nil,
			SuggestedValue: "medium",
			Confidence:     0.6,
			Rationale:      "limit task complexity to reduce processing time",
		})

	case core.ErrorKindToolExecutionFailed:
		tool := contextString(g, "tool", "unknown")
		g.AddAdjustment(core.Adjustment{
			Parameter:      fmt.Sprintf("tool_%s_validation", tool),
			CurrentValue:   false,
			SuggestedValue: true,
			Confidence:     0.9,
			Rationale:      fmt.Sprintf("enable validation for %s tool", tool),
		})

	case core.ErrorKindResourceExhausted:
		resource := contextString(g, "resource", "")
		if strings.Contains(resource, "cost") {
			g.AddAdjustment(core.Adjustment{
				Parameter:      "degraded_mode",
				CurrentValue:   false,
				SuggestedValue: true,
				Confidence:     0.95,
				Rationale:      "switch to degraded mode when approaching cost limits",
			})
		} else {
			g.AddAdjustment(core.Adjustment{
				Parameter:      "max_concurrency",
				CurrentValue:   nil,
				SuggestedValue: 1.0,
				Confidence:     0.7,
				Rationale:      "serialise work while resources are exhausted",
			})
		}

	case core.ErrorKindIncorrectOutput:
		g.AddAdjustment(core.Adjustment{
			Parameter:      "output_validation",
			CurrentValue:   false,
			SuggestedValue: true,
			Confidence:     0.85,
			Rationale:      "validate output format and content before returning",
		})

	case core.ErrorKindCommunicationError:
		g.AddAdjustment(core.Adjustment{
			Parameter:      "retry_with_jitter",
			CurrentValue:   false,
			SuggestedValue: true,
			Confidence:     0.75,
			Rationale:      "retry transient communication failures with jitter",
		})

	default:
		g.AddAdjustment(core.Adjustment{
			Parameter:      "error_handling_verbosity",
			CurrentValue:   "normal",
			SuggestedValue: "detailed",
			Confidence:     0.5,
			Rationale:      "increase verbosity to better diagnose errors",
		})
	}
}

// GradientFromError builds a fully-populated gradient from a unit error,
// classified through the core taxonomy with adjustments attached.
func GradientFromError(err error, source, target core.UnitID, task, attempted string) *core.Gradient {
	g := core.NewGradient(core.ErrorKindOf(err), source, target, core.GradientContext{
		OriginalTask:      task,
		AttemptedSolution: attempted,
		FailurePoint:      err.Error(),
	})
	SynthesiseAdjustments(g)
	return g
}

func contextString(g *core.Gradient, key, fallback string) string {
	if g.Context.Factors == nil {
		return fallback
	}
	if v, ok := g.Context.Factors[key].(string); ok {
		return v
	}
	return fallback
}

func contextFloat(g *core.Gradient, key string, fallback float64) float64 {
	if g.Context.Factors == nil {
		return fallback
	}
	switch v := g.Context.Factors[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}
