// Package rover is the tabular Q-learning domain plugin for a discretized
// grid rover: epsilon-greedy action selection, a persisted Q-table, and a
// Q-update applied from each feedback.rover.* step result.
//
// Grounded on original_source/src/pce/robotics/rl.py and
// original_source/agents/rover/src/rover_plugins/{decision,adaptation,
// storage,value_model}.py. The Python package is named "robotics"/
// "rover_plugins" interchangeably across the retrieved sources; this port
// uses the spec's "rover" domain name throughout.
package rover

import (
	"math/rand"
	"strconv"
)

// Name is the domain dispatch key for this plugin.
const Name = "rover"

// RobotActions is the canonical discrete action set.
var RobotActions = [4]string{"FWD", "L", "R", "S"}

// Hyperparams are the tabular Q-learning update parameters, persisted
// alongside the Q-table so epsilon decay survives restarts.
type Hyperparams struct {
	Alpha        float64 `json:"alpha"`
	Gamma        float64 `json:"gamma"`
	Epsilon      float64 `json:"epsilon"`
	EpsilonDecay float64 `json:"epsilon_decay"`
	EpsilonMin   float64 `json:"epsilon_min"`
}

// DefaultHyperparams mirrors DEFAULT_HYPERPARAMS exactly.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{Alpha: 0.2, Gamma: 0.95, Epsilon: 1.0, EpsilonDecay: 0.9995, EpsilonMin: 0.05}
}

func bucketSensor(raw int) int {
	if raw < 0 {
		raw = 0
	}
	switch {
	case raw == 0:
		return 0
	case raw == 1:
		return 1
	case raw <= 3:
		return 2
	default:
		return 3
	}
}

func sign(raw int) int {
	switch {
	case raw > 0:
		return 1
	case raw < 0:
		return -1
	default:
		return 0
	}
}

// Observation is the rover sensor/robot/delta payload shape consumed by
// BuildStateKey.
type Observation struct {
	Robot struct {
		Dir int `json:"dir"`
	} `json:"robot"`
	Sensors struct {
		Front int `json:"front"`
		Left  int `json:"left"`
		Right int `json:"right"`
	} `json:"sensors"`
	Delta struct {
		DX int `json:"dx"`
		DY int `json:"dy"`
	} `json:"delta"`
}

// BuildStateKey creates a stable discretized state key from a rover
// observation payload, identical in shape to build_state_key.
func BuildStateKey(obs Observation) string {
	direction := ((obs.Robot.Dir % 4) + 4) % 4
	dxSign := sign(obs.Delta.DX)
	dySign := sign(obs.Delta.DY)
	front := bucketSensor(obs.Sensors.Front)
	left := bucketSensor(obs.Sensors.Left)
	right := bucketSensor(obs.Sensors.Right)
	return fmtStateKey(direction, dxSign, dySign, front, left, right)
}

func fmtStateKey(direction, dxSign, dySign, front, left, right int) string {
	return "d" + strconv.Itoa(direction) + "_dx" + strconv.Itoa(dxSign) + "_dy" + strconv.Itoa(dySign) +
		"_f" + strconv.Itoa(front) + "_l" + strconv.Itoa(left) + "_r" + strconv.Itoa(right)
}

// ChooseAction selects one action via epsilon-greedy selection over the
// persisted Q-values, returning the chosen action and its mode
// ("explore"|"exploit").
func ChooseAction(q map[string]float64, epsilon float64) (string, string) {
	if rand.Float64() < epsilon {
		return RobotActions[rand.Intn(len(RobotActions))], "explore"
	}
	best := RobotActions[0]
	bestQ := q[best]
	for _, a := range RobotActions[1:] {
		if v := q[a]; v > bestQ {
			best, bestQ = a, v
		}
	}
	return best, "exploit"
}

// BestAction returns the highest-valued action without exploration,
// surfaced in explain output alongside the actually-chosen action.
func BestAction(q map[string]float64) string {
	best, _ := ChooseAction(q, 0)
	return best
}

// ActionToCommand converts a compact RL action into a robot command
// payload.
func ActionToCommand(action string) map[string]any {
	switch action {
	case "FWD":
		return map[string]any{"type": "robot.move_forward", "amount": 1}
	case "L":
		return map[string]any{"type": "robot.turn_left"}
	case "R":
		return map[string]any{"type": "robot.turn_right"}
	default:
		return map[string]any{"type": "robot.stop"}
	}
}

// QLearningUpdate applies the tabular Q-learning update rule.
func QLearningUpdate(currentQ, reward, maxNextQ, alpha, gamma float64) float64 {
	target := reward + gamma*maxNextQ
	return currentQ + alpha*(target-currentQ)
}

// MaxQ returns the maximum Q-value across the canonical action set.
func MaxQ(q map[string]float64) float64 {
	max := q[RobotActions[0]]
	for _, a := range RobotActions[1:] {
		if v := q[a]; v > max {
			max = v
		}
	}
	return max
}
