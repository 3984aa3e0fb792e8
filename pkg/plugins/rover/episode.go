package rover

import (
	"encoding/json"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// StateKey is the state slice rover per-episode bookkeeping lives under.
const StateKey = "rover"

// PendingTransition correlates a chosen action with the state key it was
// chosen from, awaiting the feedback event that carries its reward.
type PendingTransition struct {
	EpisodeID string `json:"episode_id"`
	StateKey  string `json:"state_key"`
	Action    string `json:"action"`
	Tick      int    `json:"tick"`
}

type episodeState struct {
	PendingTransition PendingTransition `json:"pending_transition"`
	LastAction        string            `json:"last_action"`
	LastObservation   json.RawMessage   `json:"last_observation,omitempty"`
}

// SetEpisodePendingTransition records transition as the episode's pending
// transition, returning the mutated state.
func SetEpisodePendingTransition(state pcetypes.State, episodeID string, transition PendingTransition) pcetypes.State {
	episodes := episodesFrom(state)
	ep := episodes[episodeID]
	ep.PendingTransition = transition
	ep.LastAction = transition.Action
	episodes[episodeID] = ep
	return withEpisodes(state, episodes)
}

// PopEpisodePendingTransition loads and clears the episode's pending
// transition, returning (nil, state) when there is none.
func PopEpisodePendingTransition(state pcetypes.State, episodeID string) (*PendingTransition, pcetypes.State) {
	episodes := episodesFrom(state)
	ep, ok := episodes[episodeID]
	if !ok || ep.PendingTransition.StateKey == "" {
		return nil, state
	}
	transition := ep.PendingTransition
	ep.PendingTransition = PendingTransition{}
	episodes[episodeID] = ep
	return &transition, withEpisodes(state, episodes)
}

func episodesFrom(state pcetypes.State) map[string]episodeState {
	var rover struct {
		Episodes map[string]episodeState `json:"episodes"`
	}
	if state.Get(StateKey, &rover) && rover.Episodes != nil {
		return rover.Episodes
	}
	return map[string]episodeState{}
}

func withEpisodes(state pcetypes.State, episodes map[string]episodeState) pcetypes.State {
	next := state.Clone()
	next.Set(StateKey, map[string]any{"episodes": episodes})
	return next
}

// SetEpisodeLastObservation records raw as the episode's last_observation,
// preserving any pending transition already recorded for it.
func SetEpisodeLastObservation(state pcetypes.State, episodeID string, raw json.RawMessage) pcetypes.State {
	episodes := episodesFrom(state)
	ep := episodes[episodeID]
	ep.LastObservation = raw
	episodes[episodeID] = ep
	return withEpisodes(state, episodes)
}

// EpisodeLastObservation returns the episode's last recorded observation
// payload, or nil if none has been recorded.
func EpisodeLastObservation(state pcetypes.State, episodeID string) json.RawMessage {
	episodes := episodesFrom(state)
	ep, ok := episodes[episodeID]
	if !ok {
		return nil
	}
	return ep.LastObservation
}
