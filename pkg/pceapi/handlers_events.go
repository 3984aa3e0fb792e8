package pceapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pcehq/pce/pkg/cci"
	"github.com/pcehq/pce/pkg/epl"
)

// ingestResponse is the wire shape for POST /events, POST /v1/events per
// the external interface contract.
type ingestResponse struct {
	EventID           string         `json:"event_id"`
	ValueScore        float64        `json:"value_score"`
	CCI               float64        `json:"cci"`
	CCIComponents     any            `json:"cci_components"`
	ActionType        string         `json:"action_type"`
	Action            any            `json:"action"`
	Metadata          map[string]any `json:"metadata"`
	Success           bool           `json:"success"`
	Epsilon           *float64       `json:"epsilon,omitempty"`
	AssistantLearning any            `json:"assistant_learning,omitempty"`
	RequiresApproval  bool           `json:"requires_approval,omitempty"`
	ApprovalID        string         `json:"approval_id,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		WriteBadRequest(w, "unable to read request body")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	result, err := s.deps.Pipeline.Ingest(ctx, raw)
	if err != nil {
		var verr *epl.ValidationError
		if errors.As(err, &verr) {
			WriteBadRequest(w, verr.Detail)
			return
		}
		WriteInternal(w, err)
		return
	}

	resp := ingestResponse{
		EventID:          result.Event.EventID,
		ValueScore:       result.ValueScore,
		CCI:              result.CCI,
		CCIComponents:    result.CCIComponents,
		ActionType:       result.Plan.ActionType,
		Action:           result.Plan,
		Metadata:         result.Plan.Metadata,
		RequiresApproval: result.RequiresApproval,
	}
	if result.Completed != nil {
		resp.Success = result.Completed.Success
	}
	if result.Approval != nil {
		resp.ApprovalID = result.Approval.ApprovalID
	}
	if eps, ok := epsilonFrom(result.Plan.Metadata); ok {
		resp.Epsilon = &eps
	}
	if state, err := s.deps.Store.LoadState(ctx); err == nil {
		var learning any
		if state.Get("assistant_learning", &learning) {
			resp.AssistantLearning = learning
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func epsilonFrom(metadata map[string]any) (float64, bool) {
	explain, ok := metadata["explain"].(map[string]any)
	if !ok {
		return 0, false
	}
	de, ok := explain["de"].(map[string]any)
	if !ok {
		return 0, false
	}
	eps, ok := de["epsilon"].(float64)
	return eps, ok
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	state, err := s.deps.Store.LoadState(ctx)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (s *Server) handleCCI(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	snap, err := s.deps.CCI.Compute(ctx)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cci": snap.CCI})
}

func (s *Server) handleCCIHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	history, err := s.deps.Store.CCIHistory(ctx, cci.Window)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	items := make([]map[string]any, 0, len(history))
	for _, snap := range history {
		items = append(items, map[string]any{
			"ts":         snap.TS,
			"cci":        snap.CCI,
			"components": snap.Components,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": items})
}

// handleContradictions aggregates violation tags across the recent
// completed-action window into per-tag counts, for operator dashboards
// that want to see which value is most often violated rather than just
// the aggregate contradiction_rate CCI component.
//
// Grounded on the original's StateManager.calculate_contradictions.
func (s *Server) handleContradictions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	actions, err := s.deps.Store.RecentActions(ctx, cci.Window)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	counts := map[string]int{}
	for _, a := range actions {
		for _, tag := range a.Violations {
			counts[tag]++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contradictions": counts})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
