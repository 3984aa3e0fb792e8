package pceapi

import (
	"net/http"

	"github.com/pcehq/pce/pkg/plugins/assistant"
	"github.com/pcehq/pce/pkg/plugins/robotics"
)

func (s *Server) handleRoboticsState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	state, err := s.deps.Store.LoadState(ctx)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	twin := robotics.TwinFromState(state)
	writeJSON(w, http.StatusOK, map[string]any{
		"robotics_twin": map[string]any{
			"phase":            twin.Phase,
			"budget_total":     twin.BudgetTotal,
			"budget_remaining": twin.BudgetRemaining,
			"risk_level":       twin.RiskLevel,
			"components":       twin.Components,
			"purchase_history": twin.PurchaseHistory,
			"audit_trail":      twin.PurchaseHistory,
			"tests":            twin.Tests,
			"simulations":      []any{},
		},
	})
}

// handleOSState serves GET /v1/os/state: a cross-domain snapshot combining
// the robotics twin, the assistant's rolling feedback metrics, the rover's
// bandit/Q-learning policy state, and a trimmed audit trail.
func (s *Server) handleOSState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	state, err := s.deps.Store.LoadState(ctx)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	twin := robotics.TwinFromState(state)

	var assistantMetrics assistant.Metrics
	if s.deps.Assistant != nil {
		assistantMetrics, _ = s.deps.Assistant.LoadMetrics(ctx)
	}

	policyState := map[string]any{}
	if s.deps.Assistant != nil {
		if ps, err := s.deps.Assistant.PolicyState(ctx); err == nil {
			policyState["assistant"] = ps
		}
	}
	if s.deps.Rover != nil {
		if params, err := s.deps.Rover.Params(ctx); err == nil {
			running, _ := s.deps.Rover.Running(ctx)
			policyState["rover"] = map[string]any{
				"hyperparams": params,
				"running":     running,
			}
		}
	}

	auditTrail := twin.PurchaseHistory
	const lastN = 20
	if len(auditTrail) > lastN {
		auditTrail = auditTrail[len(auditTrail)-lastN:]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"twin_snapshot":       twin,
		"os_metrics":          assistantMetrics,
		"policy_state":        policyState,
		"last_n_audit_trail": auditTrail,
	})
}
