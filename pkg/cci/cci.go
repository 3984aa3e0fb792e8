// Package cci is the Coherence Engine: it derives the CCI score and its
// four components from the recent completed-action window.
package cci

import (
	"context"
	"math"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Window is the fixed lookback size, W=50, over completed actions.
const Window = 50

// MinQualifying is the minimum number of actions needed before CCI departs
// from the cold-start default.
const MinQualifying = 3

// Weights are the fixed aggregate weights; they never drift at runtime.
type Weights struct {
	Consistency        float64
	Stability          float64
	ContradictionRate  float64
	PredictiveAccuracy float64
}

// DefaultWeights mirrors the spec's fixed aggregate:
// CCI = 0.35·consistency + 0.25·stability + 0.25·(1−contradiction_rate) + 0.15·predictive_accuracy.
func DefaultWeights() Weights {
	return Weights{Consistency: 0.35, Stability: 0.25, ContradictionRate: 0.25, PredictiveAccuracy: 0.15}
}

// ActionSource supplies the recent completed-action window, oldest first.
type ActionSource interface {
	RecentActions(ctx context.Context, limit int) ([]pcetypes.CompletedAction, error)
}

// Engine computes CCI snapshots on demand.
type Engine struct {
	actions ActionSource
	weights Weights
}

func New(actions ActionSource, weights Weights) *Engine {
	return &Engine{actions: actions, weights: weights}
}

// Compute returns the current CCI snapshot. Fewer than MinQualifying
// actions in the window yields the cold-start default of 0.5 with every
// component marked unknown.
func (e *Engine) Compute(ctx context.Context) (pcetypes.CCISnapshot, error) {
	actions, err := e.actions.RecentActions(ctx, Window)
	if err != nil {
		return pcetypes.CCISnapshot{}, err
	}
	if len(actions) < MinQualifying {
		return pcetypes.CCISnapshot{
			CCI:        0.5,
			Components: pcetypes.CCIComponents{Unknown: true},
		}, nil
	}

	consistency := consistencyOf(actions)
	stability := stabilityOf(actions)
	contradiction := contradictionRateOf(actions)
	predictive, hasPredictive := predictiveAccuracyOf(actions)
	if !hasPredictive {
		predictive = 0.5
	}

	score := e.weights.Consistency*consistency +
		e.weights.Stability*stability +
		e.weights.ContradictionRate*(1-contradiction) +
		e.weights.PredictiveAccuracy*predictive

	return pcetypes.CCISnapshot{
		CCI: clamp01(score),
		Components: pcetypes.CCIComponents{
			Consistency:        consistency,
			Stability:          stability,
			ContradictionRate:  contradiction,
			PredictiveAccuracy: predictive,
		},
	}, nil
}

func consistencyOf(actions []pcetypes.CompletedAction) float64 {
	clean := 0
	for _, a := range actions {
		if len(a.Violations) == 0 {
			clean++
		}
	}
	return float64(clean) / float64(len(actions))
}

func contradictionRateOf(actions []pcetypes.CompletedAction) float64 {
	bad := 0
	for _, a := range actions {
		if len(a.Violations) > 0 {
			bad++
		}
	}
	return float64(bad) / float64(len(actions))
}

// stabilityOf is 1 - var(priority)/var_max, clamped to [0,1]. var_max is
// the variance of priorities split as far apart as possible within the
// observed range, which bounds the ratio without needing a fixed priority
// ceiling baked into the formula.
func stabilityOf(actions []pcetypes.CompletedAction) float64 {
	priorities := make([]float64, len(actions))
	minP, maxP := math.Inf(1), math.Inf(-1)
	for i, a := range actions {
		p := float64(a.Priority)
		priorities[i] = p
		if p < minP {
			minP = p
		}
		if p > maxP {
			maxP = p
		}
	}
	if maxP == minP {
		return 1.0
	}

	v := variance(priorities)
	half := (maxP - minP) / 2
	varMax := half * half
	if varMax == 0 {
		return 1.0
	}
	return clamp01(1 - v/varMax)
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	sq := 0.0
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return sq / float64(len(xs))
}

// predictiveAccuracyOf assumes every completed action carries both values:
// AO always populates observed_impact, falling back to expected_impact as a
// stand-in when a domain has no execution probe.
func predictiveAccuracyOf(actions []pcetypes.CompletedAction) (float64, bool) {
	var sum float64
	for _, a := range actions {
		sum += math.Abs(a.ExpectedImpact - a.ObservedImpact)
	}
	return clamp01(1 - sum/float64(len(actions))), true
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
