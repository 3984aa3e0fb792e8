package approval

import (
	"context"
	"testing"
	"time"

	"github.com/pcehq/pce/pkg/pcestore"
	"github.com/pcehq/pce/pkg/pcetypes"
)

type fakeBudget struct{ remaining float64 }

func (f fakeBudget) BudgetRemaining(context.Context) (float64, error) { return f.remaining, nil }

func newTestGate(t *testing.T, remaining float64) (*Gate, *pcestore.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := pcestore.OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, fakeBudget{remaining: remaining}, 24*time.Hour), store
}

func TestApproveFinancialWithinBudget(t *testing.T) {
	ctx := context.Background()
	gate, _ := newTestGate(t, 100)
	a, err := gate.Create(ctx, "dec-1", "corr-1", pcetypes.ActionPlan{ActionType: "purchase"}, 50, "MEDIUM", "buy part")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	resolved, err := gate.Approve(ctx, a.ApprovalID, "op1", "ok")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if resolved.Status != pcetypes.ApprovalApproved {
		t.Errorf("status = %s, want approved", resolved.Status)
	}
}

func TestApproveFinancialInsufficientBudget(t *testing.T) {
	ctx := context.Background()
	gate, _ := newTestGate(t, 10)
	a, err := gate.Create(ctx, "dec-1", "corr-1", pcetypes.ActionPlan{ActionType: "purchase"}, 50, "HIGH", "buy part")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = gate.Approve(ctx, a.ApprovalID, "op1", "ok")
	if err != ErrInsufficientBudget {
		t.Fatalf("Approve error = %v, want ErrInsufficientBudget", err)
	}
}

func TestApproveChecksBudgetForDomainSpecificPurchaseActionType(t *testing.T) {
	ctx := context.Background()
	gate, _ := newTestGate(t, 10)
	a, err := gate.Create(ctx, "dec-1", "corr-1", pcetypes.ActionPlan{ActionType: "os.request_purchase_approval"}, 240, "MEDIUM", "buy part")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = gate.Approve(ctx, a.ApprovalID, "op1", "ok")
	if err != ErrInsufficientBudget {
		t.Fatalf("Approve error = %v, want ErrInsufficientBudget for a robotics-shaped purchase action type", err)
	}
}

func TestOverrideBypassesBudgetCheck(t *testing.T) {
	ctx := context.Background()
	gate, _ := newTestGate(t, 0)
	a, err := gate.Create(ctx, "dec-1", "corr-1", pcetypes.ActionPlan{ActionType: "purchase"}, 999, "HIGH", "emergency")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	resolved, err := gate.Override(ctx, a.ApprovalID, "op1", "forced")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if !resolved.Override || resolved.Status != pcetypes.ApprovalOverridden {
		t.Errorf("expected overridden state, got %+v", resolved)
	}
}

func TestApproveAlreadyTerminalRejected(t *testing.T) {
	ctx := context.Background()
	gate, _ := newTestGate(t, 100)
	a, err := gate.Create(ctx, "dec-1", "corr-1", pcetypes.ActionPlan{ActionType: "observe"}, 0, "LOW", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := gate.Reject(ctx, a.ApprovalID, "op1", "no"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := gate.Approve(ctx, a.ApprovalID, "op1", "too late"); err != ErrAlreadyTerminal {
		t.Fatalf("Approve after reject = %v, want ErrAlreadyTerminal", err)
	}
}

func TestSweepExpiredMarksExpired(t *testing.T) {
	ctx := context.Background()
	store, err := pcestore.OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer store.Close()

	past := time.Now().Add(-48 * time.Hour)
	gate := New(store, fakeBudget{remaining: 0}, 24*time.Hour, WithClock(func() time.Time { return past }))
	a, err := gate.Create(ctx, "dec-1", "corr-1", pcetypes.ActionPlan{ActionType: "observe"}, 0, "LOW", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	nowGate := New(store, fakeBudget{remaining: 0}, 24*time.Hour)
	n, err := nowGate.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired count = %d, want 1", n)
	}
	got, err := nowGate.Get(ctx, a.ApprovalID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != pcetypes.ApprovalExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
}
