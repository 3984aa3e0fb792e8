package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/pcehq/pce/pkg/afs"
	"github.com/pcehq/pce/pkg/ao"
	"github.com/pcehq/pce/pkg/approval"
	"github.com/pcehq/pce/pkg/cci"
	"github.com/pcehq/pce/pkg/de"
	"github.com/pcehq/pce/pkg/epl"
	"github.com/pcehq/pce/pkg/isi"
	"github.com/pcehq/pce/pkg/pcestore"
	core "github.com/pcehq/pce/pkg/plugins/core"
	"github.com/pcehq/pce/pkg/plugins/robotics"
	"github.com/pcehq/pce/pkg/plugins"
	"github.com/pcehq/pce/pkg/transcript"
	"github.com/pcehq/pce/pkg/vel"
)

func newTestPipeline(t *testing.T) (*Pipeline, *pcestore.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := pcestore.OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := plugins.NewRegistry(plugins.Domain{
		Name:       core.Name,
		Integrator: core.Integrator{},
		Value:      core.NewValue(core.DefaultStrategicValues()),
		Decision:   core.Decision{},
		Adaptation: core.Adaptation{},
	})
	registry.Register(robotics.New())

	validator, err := epl.New()
	if err != nil {
		t.Fatalf("epl.New: %v", err)
	}
	decision, err := de.New(registry, de.Floors{ValueFloor: 0, CCIFloor: 0})
	if err != nil {
		t.Fatalf("de.New: %v", err)
	}
	gate := approval.New(store, robotics.BudgetChecker{Loader: store}, 24*time.Hour)

	pl := New(Deps{
		Store:        store,
		Validator:    validator,
		Integrator:   isi.New(registry),
		Evaluator:    vel.New(registry),
		CCI:          cci.New(store, cci.DefaultWeights()),
		Decision:     decision,
		Gate:         gate,
		Orchestrator: ao.New(registry),
		Adapter:      afs.New(registry),
		Transcript:   transcript.New(store),
	})
	return pl, store
}

func TestIngestGeneratesBOMWithoutApproval(t *testing.T) {
	pl, store := newTestPipeline(t)
	ctx := context.Background()

	raw := []byte(`{"event_type":"project.goal.defined","source":"cli","payload":{
		"domain":"os.robotics",
		"components":[{"name":"motor","category":"actuator","quantity":2,"unit_cost":500}]
	}}`)
	result, err := pl.Ingest(ctx, raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.RequiresApproval {
		t.Fatal("project.goal.defined should not require approval")
	}
	if result.Plan.ActionType != "os.generate_bom" {
		t.Errorf("ActionType = %q, want os.generate_bom", result.Plan.ActionType)
	}
	if result.Completed == nil {
		t.Fatal("expected a completed action")
	}

	state, err := store.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	twin := robotics.TwinFromState(state)
	if twin.BudgetTotal != 1000 {
		t.Errorf("BudgetTotal = %v, want 1000", twin.BudgetTotal)
	}
	if twin.BudgetRemaining != 1000 {
		t.Errorf("BudgetRemaining = %v, want 1000", twin.BudgetRemaining)
	}
}

func TestIngestGatesPurchaseAndAppliesOnApproval(t *testing.T) {
	pl, store := newTestPipeline(t)
	ctx := context.Background()

	bomRaw := []byte(`{"event_type":"project.goal.defined","source":"cli","payload":{
		"domain":"os.robotics",
		"components":[{"name":"motor","category":"actuator","quantity":2,"unit_cost":500}]
	}}`)
	if _, err := pl.Ingest(ctx, bomRaw); err != nil {
		t.Fatalf("Ingest bom: %v", err)
	}

	purchaseRaw := []byte(`{"event_type":"purchase.requested","source":"cli","payload":{
		"domain":"os.robotics",
		"purchase_id":"p1",
		"component_id":"c-1",
		"cost":300,
		"projected_cost":300
	}}`)
	result, err := pl.Ingest(ctx, purchaseRaw)
	if err != nil {
		t.Fatalf("Ingest purchase: %v", err)
	}
	if !result.RequiresApproval {
		t.Fatal("purchase.requested should require approval")
	}
	if result.Approval == nil || result.Approval.ApprovalID == "" {
		t.Fatal("expected a created approval")
	}
	if result.Completed != nil {
		t.Error("a gated action must not produce a completed action")
	}

	state, err := store.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	twin := robotics.TwinFromState(state)
	if twin.BudgetRemaining != 1000 {
		t.Errorf("pending approval must not touch the twin: BudgetRemaining = %v, want 1000", twin.BudgetRemaining)
	}

	approved, err := pl.deps.Gate.Approve(ctx, result.Approval.ApprovalID, "ops", "looks fine")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != "approved" {
		t.Errorf("Status = %q, want approved", approved.Status)
	}

	state, err = store.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState after approve: %v", err)
	}
	twin = robotics.TwinFromState(state)
	if twin.BudgetRemaining != 700 {
		t.Errorf("BudgetRemaining after approval follow-up = %v, want 700", twin.BudgetRemaining)
	}
	if len(twin.PurchaseHistory) != 1 || twin.PurchaseHistory[0].Status != "completed" {
		t.Errorf("PurchaseHistory = %+v, want one completed record", twin.PurchaseHistory)
	}
}

func TestIngestRejectedPurchaseLeavesBudgetUntouched(t *testing.T) {
	pl, store := newTestPipeline(t)
	ctx := context.Background()

	bomRaw := []byte(`{"event_type":"project.goal.defined","source":"cli","payload":{
		"domain":"os.robotics",
		"components":[{"name":"motor","category":"actuator","quantity":2,"unit_cost":500}]
	}}`)
	if _, err := pl.Ingest(ctx, bomRaw); err != nil {
		t.Fatalf("Ingest bom: %v", err)
	}

	purchaseRaw := []byte(`{"event_type":"purchase.requested","source":"cli","payload":{
		"domain":"os.robotics",
		"purchase_id":"p2",
		"component_id":"c-1",
		"cost":300,
		"projected_cost":300
	}}`)
	result, err := pl.Ingest(ctx, purchaseRaw)
	if err != nil {
		t.Fatalf("Ingest purchase: %v", err)
	}

	if _, err := pl.deps.Gate.Reject(ctx, result.Approval.ApprovalID, "ops", "too risky"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	state, err := store.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	twin := robotics.TwinFromState(state)
	if twin.BudgetRemaining != 1000 {
		t.Errorf("BudgetRemaining after rejection = %v, want unchanged 1000", twin.BudgetRemaining)
	}
	if len(twin.PurchaseHistory) != 1 || twin.PurchaseHistory[0].Status != "rejected" {
		t.Errorf("PurchaseHistory = %+v, want one rejected record", twin.PurchaseHistory)
	}
}
