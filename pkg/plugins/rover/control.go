package rover

import (
	"context"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// runningKey is the plugin_kv key the rover run/pause flag is persisted
// under, toggled by the start/stop control endpoints. PCE does not own the
// simulator loop itself (out of scope per the core/peripheral boundary);
// this flag only records operator intent so GET /v1/os/state can report it.
const runningKey = "running"

// SetRunning persists the operator's start/stop intent for the rover
// simulator.
func (s *Storage) SetRunning(ctx context.Context, running bool) error {
	return s.kv.PluginSetJSON(ctx, namespace, runningKey, running)
}

// Running reports the last intent set via SetRunning, defaulting to false
// (stopped) when never set.
func (s *Storage) Running(ctx context.Context) (bool, error) {
	var running bool
	_, err := s.kv.PluginGetJSON(ctx, namespace, runningKey, &running)
	if err != nil {
		return false, err
	}
	return running, nil
}

// ClearEpisodes drops every in-flight episode's pending transition and last
// observation, used by the reset control endpoint to start a fresh episode
// without touching the learned Q-table.
func ClearEpisodes(state pcetypes.State) pcetypes.State {
	return withEpisodes(state, map[string]episodeState{})
}
