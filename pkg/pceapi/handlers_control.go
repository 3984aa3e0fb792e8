package pceapi

import (
	"context"
	"net/http"

	"github.com/pcehq/pce/pkg/plugins/rover"
)

func (s *Server) handleAssistantClearMemory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		WriteNotFound(w, "assistant domain not configured")
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	cleared, err := s.deps.Assistant.ClearAll(ctx)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

// handleRoverControl builds the handler for one rover control action.
// start/stop toggle the operator-intent "running" flag (the simulator
// loop itself is out of scope, this only records intent for GET
// /v1/os/state to report); reset clears per-episode bookkeeping without
// touching the Q-table; reset_stats/clear_policy are already backed by
// rover.Storage.
func (s *Server) handleRoverControl(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Rover == nil {
			WriteNotFound(w, "rover domain not configured")
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()

		var err error
		switch action {
		case "start":
			err = s.deps.Rover.SetRunning(ctx, true)
		case "stop":
			err = s.deps.Rover.SetRunning(ctx, false)
		case "reset":
			err = s.resetRoverEpisodes(ctx)
		case "reset_stats":
			err = s.deps.Rover.ResetParams(ctx)
		case "clear_policy":
			err = s.deps.Rover.ClearPolicy(ctx)
		}
		if err != nil {
			WriteInternal(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"action": action, "ok": true})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) resetRoverEpisodes(ctx context.Context) error {
	state, err := s.deps.Store.LoadState(ctx)
	if err != nil {
		return err
	}
	return s.deps.Store.SaveState(ctx, rover.ClearEpisodes(state))
}
