package robotics

import (
	"context"
	"testing"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

func TestIntegratorGeneratesBOMOnProjectDefined(t *testing.T) {
	ev := &pcetypes.Event{
		EventType: "project.goal.defined",
		Payload: []byte(`{"domain":"os.robotics","components":[
			{"name":"chassis","unit_cost":120,"quantity":1},
			{"name":"motor","unit_cost":40,"quantity":4}
		]}`),
	}
	next := Integrator{}.Integrate(pcetypes.State{}, ev)
	twin := TwinFromState(next)
	if len(twin.Components) != 2 {
		t.Fatalf("Components = %d, want 2", len(twin.Components))
	}
	wantCost := 120.0 + 40.0*4
	if twin.CostProjection.ProjectedTotalCost != wantCost {
		t.Errorf("ProjectedTotalCost = %v, want %v", twin.CostProjection.ProjectedTotalCost, wantCost)
	}
	if twin.BudgetTotal != wantCost || twin.BudgetRemaining != wantCost {
		t.Errorf("budget not seeded from BOM total: total=%v remaining=%v", twin.BudgetTotal, twin.BudgetRemaining)
	}
}

func TestIntegratorRecordsPurchaseDebitsBudget(t *testing.T) {
	state := WithTwin(pcetypes.State{}, Twin{BudgetTotal: 500, BudgetRemaining: 500, Components: []Component{
		{ComponentID: "c-1", Status: "planned"},
	}})
	ev := &pcetypes.Event{
		EventType: "purchase.completed",
		Payload:   []byte(`{"domain":"os.robotics","purchase_id":"p-1","component_id":"c-1","cost":150}`),
	}
	next := Integrator{}.Integrate(state, ev)
	twin := TwinFromState(next)
	if twin.BudgetRemaining != 350 {
		t.Errorf("BudgetRemaining = %v, want 350", twin.BudgetRemaining)
	}
	if twin.Components[0].Status != "acquired" {
		t.Errorf("component status = %q, want acquired", twin.Components[0].Status)
	}
}

func TestIntegratorTestResultShiftsRisk(t *testing.T) {
	state := WithTwin(pcetypes.State{}, Twin{RiskLevel: "LOW", CostProjection: CostProjection{Confidence: 0.5, ProjectedTotalCost: 100}})
	ev := &pcetypes.Event{
		EventType: "test.result.recorded",
		Payload:   []byte(`{"domain":"os.robotics","test_id":"t1","component_id":"c-1","passed":false}`),
	}
	next := Integrator{}.Integrate(state, ev)
	twin := TwinFromState(next)
	if twin.RiskLevel != "MEDIUM" {
		t.Errorf("RiskLevel = %q, want MEDIUM after failed test", twin.RiskLevel)
	}
	if twin.CostProjection.ProjectedTotalCost <= 100 {
		t.Errorf("ProjectedTotalCost = %v, want increase after failed test", twin.CostProjection.ProjectedTotalCost)
	}
}

func TestValueRewardsHealthyBudget(t *testing.T) {
	state := WithTwin(pcetypes.State{}, Twin{BudgetTotal: 100, BudgetRemaining: 90, RiskLevel: "LOW", Phase: "planning"})
	score, violations, err := Value{}.Value(context.Background(), state, &pcetypes.Event{})
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("violations = %v, want none", violations)
	}
	if score <= 0.6 {
		t.Errorf("score = %v, want high score for healthy budget", score)
	}
}

func TestValueFlagsNegativeBudget(t *testing.T) {
	state := WithTwin(pcetypes.State{}, Twin{BudgetTotal: 100, BudgetRemaining: -10, RiskLevel: "HIGH"})
	_, violations, err := Value{}.Value(context.Background(), state, &pcetypes.Event{})
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if len(violations) != 2 {
		t.Errorf("violations = %v, want budget_negative and risk_high", violations)
	}
}

func TestDecisionRequestsPurchaseApproval(t *testing.T) {
	ev := &pcetypes.Event{
		EventType: "purchase.requested",
		Payload:   []byte(`{"domain":"os.robotics","purchase_id":"p-1","projected_cost":75}`),
	}
	plan, err := Decision{}.Decide(context.Background(), plugins.DecisionInput{Event: ev, State: pcetypes.State{}})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.ActionType != "os.request_purchase_approval" {
		t.Errorf("ActionType = %q, want os.request_purchase_approval", plan.ActionType)
	}
	if plan.Metadata["projected_cost"] != 75.0 {
		t.Errorf("projected_cost = %v, want 75", plan.Metadata["projected_cost"])
	}
}

func TestBudgetCheckerReadsTwinBalance(t *testing.T) {
	loader := fakeLoader{state: WithTwin(pcetypes.State{}, Twin{BudgetRemaining: 42})}
	bc := BudgetChecker{Loader: loader}
	remaining, err := bc.BudgetRemaining(context.Background())
	if err != nil {
		t.Fatalf("BudgetRemaining: %v", err)
	}
	if remaining != 42 {
		t.Errorf("remaining = %v, want 42", remaining)
	}
}

type fakeLoader struct{ state pcetypes.State }

func (f fakeLoader) LoadState(context.Context) (pcetypes.State, error) { return f.state, nil }
