package robotics

import (
	"context"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Value scores os.robotics events on budget health, project phase, and
// declared risk.
//
// Grounded on
// original_source/pce-os/src/pce_os/plugins.py:OSRoboticsValueModelPlugin.
type Value struct{}

var riskPenalty = map[string]float64{"LOW": 0.0, "MEDIUM": 0.15, "HIGH": 0.35}

var phaseBonus = map[string]float64{
	"planning":    0.1,
	"procurement": 0.05,
	"integration": 0.0,
	"testing":     0.05,
}

func (Value) Value(_ context.Context, state pcetypes.State, _ *pcetypes.Event) (float64, []string, error) {
	twin := TwinFromState(state)

	budgetTotal := twin.BudgetTotal
	if budgetTotal <= 0 {
		budgetTotal = 1.0
	}
	budgetScore := clamp01(twin.BudgetRemaining / budgetTotal)

	penalty, ok := riskPenalty[twin.RiskLevel]
	if !ok {
		penalty = 0.1
	}
	bonus := phaseBonus[twin.Phase]

	score := clamp01(0.65*budgetScore + bonus - penalty + 0.25)

	var violations []string
	if twin.BudgetRemaining < 0 {
		violations = append(violations, "budget_negative")
	}
	if twin.RiskLevel == "HIGH" {
		violations = append(violations, "risk_high")
	}
	return score, violations, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
