// Package assistant is the LLM-backed domain plugin: an epsilon-greedy
// bandit over discrete decoding profiles P0-P3, a deterministic safety
// override, an OpenRouter side channel, and per-session memory.
//
// Grounded on original_source/src/pce/plugins/llm_assistant/{policy,decision,storage}.py.
package assistant

import (
	"math/rand"
	"sort"
)

// Name is the domain dispatch key for this plugin.
const Name = "assistant"

// ProfileConfig is one discrete decoding profile.
type ProfileConfig struct {
	Temperature     float64
	TopP            float64
	PresencePenalty float64
}

// Profiles are the four fixed decoding profiles the bandit selects across.
var Profiles = map[string]ProfileConfig{
	"P0": {Temperature: 0.2, TopP: 0.8, PresencePenalty: 0.0},
	"P1": {Temperature: 0.7, TopP: 0.9, PresencePenalty: 0.1},
	"P2": {Temperature: 0.9, TopP: 0.95, PresencePenalty: 0.2},
	"P3": {Temperature: 0.4, TopP: 0.9, PresencePenalty: 0.0},
}

func sortedProfileIDs() []string {
	ids := make([]string, 0, len(Profiles))
	for id := range Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProfileStats are the bandit's per-profile running statistics.
type ProfileStats struct {
	Count     int     `json:"count"`
	AvgReward float64 `json:"avg_reward"`
}

// PolicyState is the persisted epsilon-greedy bandit state.
type PolicyState struct {
	Epsilon         float64                 `json:"epsilon"`
	FeedbackCount   int                     `json:"feedback_count"`
	SelectedProfile string                  `json:"selected_profile"`
	Profiles        map[string]ProfileStats `json:"profiles"`
}

// Default bandit parameters from the design-level spec.
const (
	EpsilonStart = 0.6
	EpsilonMin   = 0.05
	EpsilonDecay = 0.92
)

// DefaultPolicyState builds the initial bandit baseline.
func DefaultPolicyState() PolicyState {
	profiles := map[string]ProfileStats{}
	for _, id := range sortedProfileIDs() {
		profiles[id] = ProfileStats{}
	}
	return PolicyState{
		Epsilon:         EpsilonStart,
		SelectedProfile: "P3",
		Profiles:        profiles,
	}
}

// PolicyChoice is one bandit selection.
type PolicyChoice struct {
	ProfileID string
	Mode      string // "explore" | "exploit" | "override_safe"
	Epsilon   float64
	Config    ProfileConfig
}

// ChooseProfile selects one profile via epsilon-greedy selection.
func ChooseProfile(state PolicyState) PolicyChoice {
	ids := sortedProfileIDs()
	if rand.Float64() < state.Epsilon {
		id := ids[rand.Intn(len(ids))]
		return PolicyChoice{ProfileID: id, Mode: "explore", Epsilon: state.Epsilon, Config: Profiles[id]}
	}

	best := ids[0]
	bestReward := state.Profiles[best].AvgReward
	for _, id := range ids[1:] {
		if r := state.Profiles[id].AvgReward; r > bestReward {
			best, bestReward = id, r
		}
	}
	return PolicyChoice{ProfileID: best, Mode: "exploit", Epsilon: state.Epsilon, Config: Profiles[best]}
}

// ApplyProfileOverride replaces the bandit's choice with the safest
// variant when value_score or CCI falls below its floor, mirroring the
// deterministic override shared by the Decision Engine.
func ApplyProfileOverride(choice PolicyChoice, valueScore, cci, valueFloor, cciFloor float64) (PolicyChoice, string) {
	if valueScore < valueFloor || cci < cciFloor {
		safe := Profiles["P0"]
		if safe.Temperature > 0.3 {
			safe.Temperature = 0.3
		}
		if safe.TopP > 0.85 {
			safe.TopP = 0.85
		}
		safe.PresencePenalty = 0.0
		reason := "override_safe: value_score below floor"
		if valueScore >= valueFloor {
			reason = "override_safe: cci below floor"
		}
		return PolicyChoice{ProfileID: "P0", Mode: "override_safe", Epsilon: choice.Epsilon, Config: safe}, reason
	}
	return choice, ""
}

// RewardFromFeedback normalizes an accepted feedback payload into [-1, 1].
// Accepts reward (number), rating (1-5 int, centered at 3), or accepted
// (bool); unrecognized payloads normalize to neutral 0.
func RewardFromFeedback(payload map[string]any) float64 {
	if v, ok := payload["reward"]; ok {
		if f, ok := asFloat(v); ok {
			return clampUnit(f)
		}
	}
	if v, ok := payload["rating"]; ok {
		if f, ok := asFloat(v); ok {
			return clampUnit((f - 3.0) / 2.0)
		}
	}
	if v, ok := payload["accepted"].(bool); ok {
		if v {
			return 1.0
		}
		return -1.0
	}
	return 0.0
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func clampUnit(f float64) float64 {
	if f < -1 {
		return -1
	}
	if f > 1 {
		return 1
	}
	return f
}

// UpdatePolicy folds one observed reward into the bandit's running
// statistics for profileID and decays epsilon toward EpsilonMin.
func UpdatePolicy(state PolicyState, profileID string, reward float64) PolicyState {
	profiles := make(map[string]ProfileStats, len(state.Profiles))
	for k, v := range state.Profiles {
		profiles[k] = v
	}
	stats := profiles[profileID]
	stats.Count++
	stats.AvgReward += (reward - stats.AvgReward) / float64(stats.Count)
	profiles[profileID] = stats

	epsilon := state.Epsilon * EpsilonDecay
	if epsilon < EpsilonMin {
		epsilon = EpsilonMin
	}

	return PolicyState{
		Epsilon:         epsilon,
		FeedbackCount:   state.FeedbackCount + 1,
		SelectedProfile: profileID,
		Profiles:        profiles,
	}
}
