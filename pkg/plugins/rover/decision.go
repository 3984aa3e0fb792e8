package rover

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

// Decision is the epsilon-greedy robotics decision plugin: it chooses one
// action from the persisted Q-table, records a pending transition for the
// adaptation stage, and emits a robot command.
//
// Grounded on
// original_source/src/pce/plugins/robotics/decision.py:RoboticsDecisionPlugin.
type Decision struct {
	Storage *Storage
}

func (d Decision) Decide(ctx context.Context, in plugins.DecisionInput) (pcetypes.ActionPlan, error) {
	payload := in.Event.PayloadMap()
	episodeID := stringOr(payload, "episode_id", "global")

	obs := resolveObservation(in.State, episodeID, in.Event)
	stateKey := BuildStateKey(obs)

	params, err := d.Storage.Params(ctx)
	if err != nil {
		return pcetypes.ActionPlan{}, fmt.Errorf("rover decision: load params: %w", err)
	}
	q, err := d.Storage.Q(ctx, stateKey)
	if err != nil {
		return pcetypes.ActionPlan{}, fmt.Errorf("rover decision: load q: %w", err)
	}
	action, mode := ChooseAction(q, params.Epsilon)
	best := BestAction(q)

	tick := 0
	if v, ok := payload["tick"].(float64); ok {
		tick = int(v)
	}

	plan := pcetypes.ActionPlan{
		ActionType: "robotics.action",
		Priority:   2,
		Rationale: fmt.Sprintf(
			"rover epsilon-greedy: episode=%s, mode=%s, chosen=%s, best=%s, epsilon=%.4f",
			episodeID, mode, action, best, params.Epsilon,
		),
		Domain: Name,
		Metadata: map[string]any{
			"action_payload": ActionToCommand(action),
			"rl": map[string]any{
				"state_key":   stateKey,
				"epsilon":     params.Epsilon,
				"q":           q,
				"policy_mode": mode,
				"best_action": best,
			},
		},
	}

	// The pending transition itself lives in state, set by the pipeline
	// after this call via SetEpisodePendingTransition — DecisionPlugin
	// cannot mutate state directly, only propose the ActionPlan.
	plan.Explain("de")["pending_transition"] = PendingTransition{
		EpisodeID: episodeID, StateKey: stateKey, Action: action, Tick: tick,
	}
	return plan, nil
}

func resolveObservation(state pcetypes.State, episodeID string, ev *pcetypes.Event) Observation {
	if raw := EpisodeLastObservation(state, episodeID); len(raw) > 0 {
		var fromState Observation
		if json.Unmarshal(raw, &fromState) == nil {
			return fromState
		}
	}
	var obs Observation
	_ = json.Unmarshal(ev.Payload, &obs)
	return obs
}

func stringOr(payload map[string]any, key, fallback string) string {
	if v, ok := payload[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
