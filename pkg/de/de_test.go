package de

import (
	"context"
	"testing"

	core "github.com/pcehq/pce/pkg/plugins/core"
	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

func newRegistry() *plugins.Registry {
	return plugins.NewRegistry(plugins.Domain{
		Name:     core.Name,
		Decision: core.Decision{},
	})
}

func TestDecideCoreDefault(t *testing.T) {
	eng, err := New(newRegistry(), Floors{ValueFloor: 0.2, CCIFloor: 0.3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ev := &pcetypes.Event{EventID: "e1", Payload: []byte(`{"domain":"core"}`)}
	plan, err := eng.Decide(context.Background(), plugins.DecisionInput{Event: ev, ValueScore: 0.9, CCI: 0.9})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.ActionType != "observe" {
		t.Errorf("ActionType = %q, want observe", plan.ActionType)
	}
	if plan.RequiresApproval {
		t.Error("core default should not require approval")
	}
}

func TestDecideOverridesBelowValueFloor(t *testing.T) {
	eng, err := New(newRegistry(), Floors{ValueFloor: 0.5, CCIFloor: 0.0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ev := &pcetypes.Event{EventID: "e1", Payload: []byte(`{"domain":"core"}`)}
	plan, err := eng.Decide(context.Background(), plugins.DecisionInput{Event: ev, ValueScore: 0.1, CCI: 0.9})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	explain := plan.Explain("de")
	if explain["override_reason"] != "deterministic_floor" {
		t.Errorf("override_reason = %v, want deterministic_floor", explain["override_reason"])
	}
}

func TestRequiresApprovalForRoboticsPurchase(t *testing.T) {
	plan := pcetypes.ActionPlan{
		Domain:     "os.robotics",
		ActionType: "os.request_purchase_approval",
		Metadata:   map[string]any{"explain": map[string]any{"gate_required": true}},
	}
	if !requiresApproval(plan) {
		t.Error("expected gate_required purchase action in os.robotics domain to require approval")
	}
}

func TestRequiresApprovalForRoboticsHighRisk(t *testing.T) {
	plan := pcetypes.ActionPlan{
		Domain:     "os.robotics",
		ActionType: "os.update_project_plan",
		Metadata:   map[string]any{"risk_level": "HIGH"},
	}
	if !requiresApproval(plan) {
		t.Error("expected HIGH risk_level in os.robotics domain to require approval")
	}
}

func TestRequiresApprovalFalseForRoboticsLowRiskNonGated(t *testing.T) {
	plan := pcetypes.ActionPlan{
		Domain:     "os.robotics",
		ActionType: "os.update_project_plan",
		Metadata:   map[string]any{"risk_level": "LOW", "explain": map[string]any{"gate_required": false}},
	}
	if requiresApproval(plan) {
		t.Error("expected LOW risk_level non-gated action not to require approval")
	}
}

func TestRequiresApprovalFalseForCoreObserve(t *testing.T) {
	plan := pcetypes.ActionPlan{Domain: "core", ActionType: "observe"}
	if requiresApproval(plan) {
		t.Error("core observe should never require approval")
	}
}
