package robotics

import (
	"fmt"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Integrator merges os.robotics domain events into the digital twin: BOM
// generation on project definition, candidate components on part proposals,
// budget debits on completed purchases, and risk/cost adjustments on test
// results.
//
// The original implementation split this across a decision plugin (BOM
// generation trigger) and an adaptation plugin (test-result risk shift);
// this port folds both into the State Integrator since ISI is the one
// stage every domain event passes through regardless of feedback-kind,
// while the design's Adaptive Feedback Stage is reserved for
// feedback.*-prefixed events (see pkg/afs).
type Integrator struct{}

func (Integrator) Integrate(state pcetypes.State, ev *pcetypes.Event) pcetypes.State {
	twin := TwinFromState(state)
	payload := ev.PayloadMap()

	switch ev.EventType {
	case "project.goal.defined":
		twin = GenerateBOM(twin, payload)
	case "part.candidate.added":
		twin = addCandidateComponent(twin, payload)
	case "purchase.completed":
		twin = recordPurchase(twin, payload)
	case "purchase.rejected":
		twin = rejectPurchase(twin, payload)
	case "test.result.recorded":
		twin = applyTestResult(twin, payload)
	}

	return WithTwin(state, twin)
}

func addCandidateComponent(twin Twin, payload map[string]any) Twin {
	name, _ := payload["name"].(string)
	if name == "" {
		return twin
	}
	qty := 1
	if q, ok := asFloat(payload["quantity"]); ok && q > 0 {
		qty = int(q)
	}
	unitCost, _ := asFloat(payload["unit_cost"])

	next := twin
	next.Components = append(append([]Component{}, twin.Components...), Component{
		ComponentID:       fmt.Sprintf("c-%d", len(twin.Components)+1),
		Name:              name,
		Category:          stringOr(payload, "category", "general"),
		Quantity:          qty,
		EstimatedUnitCost: unitCost,
		Status:            "candidate",
		RiskLevel:         "LOW",
	})

	var total float64
	for _, c := range next.Components {
		total += c.EstimatedUnitCost * float64(c.Quantity)
	}
	next.CostProjection.ProjectedTotalCost = total
	return next
}

func recordPurchase(twin Twin, payload map[string]any) Twin {
	purchaseID, _ := payload["purchase_id"].(string)
	componentID, _ := payload["component_id"].(string)
	cost, _ := asFloat(payload["cost"])

	next := twin
	next.BudgetRemaining -= cost
	next.PurchaseHistory = append(append([]PurchaseRecord{}, twin.PurchaseHistory...), PurchaseRecord{
		PurchaseID:  purchaseID,
		ComponentID: componentID,
		Cost:        cost,
		Status:      "completed",
	})
	next.Components = markComponentStatus(next.Components, componentID, "acquired")
	return next
}

func rejectPurchase(twin Twin, payload map[string]any) Twin {
	purchaseID, _ := payload["purchase_id"].(string)
	componentID, _ := payload["component_id"].(string)

	next := twin
	next.PurchaseHistory = append(append([]PurchaseRecord{}, twin.PurchaseHistory...), PurchaseRecord{
		PurchaseID:  purchaseID,
		ComponentID: componentID,
		Status:      "rejected",
	})
	return next
}

func markComponentStatus(components []Component, componentID, status string) []Component {
	next := make([]Component, len(components))
	for i, c := range components {
		if c.ComponentID == componentID {
			c.Status = status
		}
		next[i] = c
	}
	return next
}

func applyTestResult(twin Twin, payload map[string]any) Twin {
	passed, _ := payload["passed"].(bool)
	riskShift, costShift := 0.08, 0.04
	if passed {
		riskShift, costShift = -0.05, -0.02
	}

	next := twin
	conf := clamp(next.CostProjection.Confidence+riskShift, 0.1, 0.95)
	cost := next.CostProjection.ProjectedTotalCost * (1 + costShift)
	if cost < 0 {
		cost = 0
	}
	next.CostProjection.Confidence = round2(conf)
	next.CostProjection.ProjectedTotalCost = round2(cost)
	if passed {
		next.RiskLevel = "LOW"
	} else {
		next.RiskLevel = "MEDIUM"
	}

	result, _ := payload["test_id"].(string)
	componentID, _ := payload["component_id"].(string)
	if result != "" {
		next.Tests = append(append([]TestResult{}, twin.Tests...), TestResult{
			TestID:      result,
			ComponentID: componentID,
			Passed:      passed,
		})
	}
	return next
}

func clamp(f, min, max float64) float64 {
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
