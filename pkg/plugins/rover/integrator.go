package rover

import (
	"strings"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Integrator records each observation event as the episode's
// last_observation, so Decision can resolve the discretized state key even
// when payload.domain="rover" events arrive without a full observation
// (e.g. a bare tick signal).
type Integrator struct{}

func (Integrator) Integrate(state pcetypes.State, ev *pcetypes.Event) pcetypes.State {
	if ev.EventType == "" || !isObservation(ev.EventType) {
		return state
	}
	payload := ev.PayloadMap()
	episodeID := stringOr(payload, "episode_id", "global")
	return SetEpisodeLastObservation(state, episodeID, ev.Payload)
}

func isObservation(eventType string) bool {
	return strings.HasPrefix(eventType, "observation")
}
