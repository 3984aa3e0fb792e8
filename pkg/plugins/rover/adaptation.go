package rover

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Adaptation applies the tabular Q-update from the episode's pending
// transition once its reward arrives via a feedback.rover.* event.
//
// Grounded on
// original_source/agents/rover/src/rover_plugins/adaptation.py:RoboticsAdaptationPlugin.
type Adaptation struct {
	Storage *Storage
}

func (a Adaptation) Adapt(ctx context.Context, state pcetypes.State, ev *pcetypes.Event) (pcetypes.State, error) {
	payload := ev.PayloadMap()
	episodeID, _ := payload["episode_id"].(string)
	if episodeID == "" {
		return state, nil
	}

	transition, next := PopEpisodePendingTransition(state, episodeID)
	if transition == nil || transition.StateKey == "" {
		return next, nil
	}

	var nextObs Observation
	nextStateKey := transition.StateKey
	if raw, ok := payload["next_observation"]; ok {
		if rawJSON, err := json.Marshal(raw); err == nil {
			if json.Unmarshal(rawJSON, &nextObs) == nil {
				nextStateKey = BuildStateKey(nextObs)
			}
		}
	}

	reward, _ := payload["reward"].(float64)
	done, _ := payload["done"].(bool)

	params, err := a.Storage.Params(ctx)
	if err != nil {
		return next, fmt.Errorf("rover adaptation: load params: %w", err)
	}

	q, err := a.Storage.Q(ctx, transition.StateKey)
	if err != nil {
		return next, fmt.Errorf("rover adaptation: load q: %w", err)
	}
	oldQ := q[transition.Action]

	maxNext := 0.0
	if !done {
		qNext, err := a.Storage.Q(ctx, nextStateKey)
		if err != nil {
			return next, fmt.Errorf("rover adaptation: load next q: %w", err)
		}
		maxNext = MaxQ(qNext)
	}

	newQ := QLearningUpdate(oldQ, reward, maxNext, params.Alpha, params.Gamma)
	if err := a.Storage.SetQValue(ctx, transition.StateKey, transition.Action, newQ); err != nil {
		return next, fmt.Errorf("rover adaptation: save q: %w", err)
	}

	newEpsilon := params.Epsilon * params.EpsilonDecay
	if newEpsilon < params.EpsilonMin {
		newEpsilon = params.EpsilonMin
	}
	if err := a.Storage.SetEpsilon(ctx, newEpsilon); err != nil {
		return next, fmt.Errorf("rover adaptation: save epsilon: %w", err)
	}

	next = next.Clone()
	next.Set("rover_rl", map[string]any{
		"updated":        true,
		"state_key":      transition.StateKey,
		"action":         transition.Action,
		"reward":         reward,
		"old_q":          oldQ,
		"new_q":          newQ,
		"max_next":       maxNext,
		"next_state_key": nextStateKey,
		"epsilon":        newEpsilon,
		"done":           done,
	})
	return next, nil
}
