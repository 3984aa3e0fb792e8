package robotics

import (
	"context"
	"fmt"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

// Decision plans the os.robotics lifecycle: BOM generation on project
// definition, plan updates on new candidate parts or test results, and the
// purchase request/completion bridge the Approval Gate gates on.
//
// Grounded on
// original_source/pce-os/src/pce_os/plugins.py:OSRoboticsDecisionPlugin.
type Decision struct{}

func (Decision) Decide(_ context.Context, in plugins.DecisionInput) (pcetypes.ActionPlan, error) {
	twin := TwinFromState(in.State)
	payload := in.Event.PayloadMap()
	projectedCost := projectedCostOf(payload, twin)
	riskLevel := stringOr(payload, "risk_level", twin.RiskLevel)

	explain := map[string]any{
		"value_dimensions": map[string]any{
			"value_score":      in.ValueScore,
			"cci":              in.CCI,
			"budget_remaining": twin.BudgetRemaining,
		},
		"risk_level": twin.RiskLevel,
		"budget_snapshot": map[string]any{
			"total":     twin.BudgetTotal,
			"remaining": twin.BudgetRemaining,
		},
		"gate_required": in.Event.EventType == "purchase.requested",
	}

	plan := pcetypes.ActionPlan{
		Domain:   Name,
		Metadata: map[string]any{"explain": explain, "projected_cost": projectedCost},
	}

	switch in.Event.EventType {
	case "project.goal.defined":
		plan.ActionType = "os.generate_bom"
		plan.Rationale = "project defined; generate initial BOM and cost/risk baseline"
		plan.Priority = 2
		plan.Metadata["risk_level"] = twin.RiskLevel
	case "part.candidate.added":
		plan.ActionType = "os.update_project_plan"
		plan.Rationale = "candidate component added; recompute projections"
		plan.Priority = 3
		plan.Metadata["risk_level"] = twin.RiskLevel
	case "purchase.requested":
		plan.ActionType = "os.request_purchase_approval"
		plan.Rationale = "purchase requested; waiting on mandatory human gate"
		plan.Priority = 1
		plan.Metadata["risk_level"] = riskLevel
		plan.Metadata["purchase_id"] = payload["purchase_id"]
	case "purchase.completed":
		plan.ActionType = "os.record_purchase"
		plan.Rationale = "purchase completed; record execution and update balance"
		plan.Priority = 1
		plan.Metadata["risk_level"] = twin.RiskLevel
	case "test.result.recorded":
		plan.ActionType = "os.update_project_plan"
		plan.Rationale = "test result recorded; update risk and cost projection"
		plan.Priority = 2
		plan.Metadata["risk_level"] = twin.RiskLevel
	default:
		plan.ActionType = "os.update_project_plan"
		plan.Rationale = "os event processed with incremental plan update"
		plan.Priority = 4
		plan.Metadata["risk_level"] = twin.RiskLevel
	}

	return plan, nil
}

func projectedCostOf(payload map[string]any, twin Twin) float64 {
	if v, ok := payload["projected_cost"]; ok {
		if f, ok := asFloat(v); ok {
			return f
		}
	}
	return twin.CostProjection.ProjectedTotalCost
}

func stringOr(payload map[string]any, key, fallback string) string {
	if v, ok := payload[key].(string); ok && v != "" {
		return v
	}
	return fallback
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

// GenerateBOM builds BOM line items from a project.goal.defined payload's
// "components" list (each {"name","category","quantity","unit_cost"}),
// assigns every line the registered supplier with the highest
// ReliabilityScore (suppliers carry no price, and no compatibility check is
// made), and refreshes the cost projection and budget baseline.
//
// Supplements the distilled spec's purchase-flow description with the
// original's BOM-generation step (pce_os/agents/procurement.py-adjacent
// behavior); Integrator.Integrate calls it on project.goal.defined.
func GenerateBOM(twin Twin, payload map[string]any) Twin {
	rawComponents, _ := payload["components"].([]any)
	next := twin
	next.Components = append([]Component{}, twin.Components...)

	var total float64
	for i, rc := range rawComponents {
		m, ok := rc.(map[string]any)
		if !ok {
			continue
		}
		qty := 1
		if q, ok := asFloat(m["quantity"]); ok && q > 0 {
			qty = int(q)
		}
		unitCost, _ := asFloat(m["unit_cost"])
		name, _ := m["name"].(string)
		category := stringOr(m, "category", "general")

		comp := Component{
			ComponentID:       fmt.Sprintf("c-%d", i+1),
			Name:              name,
			Category:          category,
			Quantity:          qty,
			EstimatedUnitCost: unitCost,
			Status:            "planned",
			RiskLevel:         "LOW",
		}
		if supplier := cheapestSupplier(twin.Suppliers); supplier != nil {
			comp.SelectedSupplierID = supplier.SupplierID
		}
		next.Components = append(next.Components, comp)
		total += unitCost * float64(qty)
	}

	next.Phase = "procurement"
	next.CostProjection.ProjectedTotalCost = total
	if next.BudgetTotal == 0 {
		next.BudgetTotal = total
	}
	if next.BudgetRemaining == 0 {
		next.BudgetRemaining = next.BudgetTotal
	}
	return next
}

func cheapestSupplier(suppliers []Supplier) *Supplier {
	if len(suppliers) == 0 {
		return nil
	}
	best := suppliers[0]
	for _, s := range suppliers[1:] {
		if s.ReliabilityScore > best.ReliabilityScore {
			best = s
		}
	}
	return &best
}
