package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Adaptation folds a feedback.assistant.* event into the bandit's running
// statistics, the rolling reward window, and session preference/avoid
// notes.
//
// Grounded on
// original_source/src/pce/plugins/llm_assistant/adaptation.py:AssistantAdaptationPlugin.
type Adaptation struct {
	Storage *Storage
}

func (a Adaptation) Adapt(ctx context.Context, state pcetypes.State, ev *pcetypes.Event) (pcetypes.State, error) {
	payload := ev.PayloadMap()
	sessionID := strings.TrimSpace(ev.SessionID())
	if sessionID == "" {
		return state, nil
	}

	reward := RewardFromFeedback(payload)
	pending, err := a.Storage.PopPendingFeedback(ctx, sessionID)
	if err != nil {
		return state, fmt.Errorf("assistant adaptation: pop pending feedback: %w", err)
	}
	profileID := "P3"
	if pending != nil && pending.ProfileID != "" {
		profileID = pending.ProfileID
	}

	policyState, err := a.Storage.PolicyState(ctx)
	if err != nil {
		return state, fmt.Errorf("assistant adaptation: load policy: %w", err)
	}
	updated := UpdatePolicy(policyState, profileID, reward)
	if err := a.Storage.SavePolicyState(ctx, updated); err != nil {
		return state, fmt.Errorf("assistant adaptation: save policy: %w", err)
	}

	window, err := a.Storage.RewardWindow(ctx)
	if err != nil {
		return state, fmt.Errorf("assistant adaptation: load reward window: %w", err)
	}
	window = append(window, reward)
	if len(window) > rewardWindowCap {
		window = window[len(window)-rewardWindowCap:]
	}
	if err := a.Storage.SaveRewardWindow(ctx, window); err != nil {
		return state, fmt.Errorf("assistant adaptation: save reward window: %w", err)
	}

	count := float64(len(window))
	var sum float64
	var successes int
	for _, r := range window {
		sum += r
		if r > 0 {
			successes++
		}
	}
	metrics := Metrics{CountFeedbacks: count}
	if count > 0 {
		metrics.AvgReward = sum / count
		metrics.SuccessRate = float64(successes) / count
	}
	if err := a.Storage.SaveMetrics(ctx, metrics); err != nil {
		return state, fmt.Errorf("assistant adaptation: save metrics: %w", err)
	}

	notes, _ := payload["notes"].(string)
	notes = strings.TrimSpace(notes)
	wrotePreference, wroteAvoid := false, false
	if notes != "" && reward > 0 {
		if err := a.Storage.AddPreference(ctx, sessionID, notes); err != nil {
			return state, fmt.Errorf("assistant adaptation: add preference: %w", err)
		}
		wrotePreference = true
	}
	if notes != "" && reward < 0 {
		if err := a.Storage.AddAvoid(ctx, sessionID, notes); err != nil {
			return state, fmt.Errorf("assistant adaptation: add avoid: %w", err)
		}
		wroteAvoid = true
	}

	stats := updated.Profiles[profileID]
	next := state.Clone()
	next.Set("assistant_learning", map[string]any{
		"updated":          true,
		"epsilon":          updated.Epsilon,
		"count_feedbacks":  count,
		"avg_reward":       metrics.AvgReward,
		"success_rate":     metrics.SuccessRate,
		"profile_id":       profileID,
		"profile_count":    stats.Count,
		"profile_avg":      stats.AvgReward,
		"wrote_preference": wrotePreference,
		"wrote_avoid":      wroteAvoid,
	})
	return next, nil
}
