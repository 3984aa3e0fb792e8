package rover

import (
	"context"
	"encoding/json"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Value scores rover observation/feedback events on obstacle safety, goal
// progress, and step efficiency.
//
// Grounded on
// original_source/src/pce/plugins/robotics/value_model.py:RoboticsValueModelPlugin.
type Value struct{}

func (Value) Value(_ context.Context, _ pcetypes.State, ev *pcetypes.Event) (float64, []string, error) {
	var payload struct {
		Sensors struct {
			Front int `json:"front"`
		} `json:"sensors"`
		Distance float64 `json:"distance"`
		Delta    struct {
			Manhattan float64 `json:"manhattan"`
		} `json:"delta"`
		Reward *float64 `json:"reward"`
	}
	_ = json.Unmarshal(ev.Payload, &payload)

	distance := payload.Distance
	if distance == 0 {
		distance = payload.Delta.Manhattan
	}
	stepReward := -0.01
	if payload.Reward != nil {
		stepReward = *payload.Reward
	}

	safety := 1.0
	if payload.Sensors.Front == 0 {
		safety = 0.0
	}
	progress := clamp01(1.0 - distance/20.0)
	efficiency := clamp01(1.0 + minFloat(0.0, stepReward))

	score := clamp01(0.5*safety + 0.35*progress + 0.15*efficiency)

	var violations []string
	if safety == 0.0 {
		violations = append(violations, "obstacle_ahead")
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

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
