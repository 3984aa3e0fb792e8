// Package approval is the Approval Gate: a state machine over
// pending/approved/rejected/overridden/expired, persisted via pcestore,
// with a periodic TTL sweeper.
//
// Grounded on the escalation manager's clock-injected, status-guarded
// transition shape (CreateIntent/Approve/Deny/CheckTimeouts), generalized
// from an in-memory map to pcestore-backed persistence since approvals must
// survive a restart.
package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pcehq/pce/pkg/pcetypes"
)

var (
	ErrNotFound           = errors.New("approval_not_found")
	ErrAlreadyTerminal    = errors.New("approval_already_terminal")
	ErrInsufficientBudget = errors.New("insufficient_budget_for_purchase")
)

// Store is the subset of pcestore used by the gate.
type Store interface {
	PutApproval(ctx context.Context, a *pcetypes.PendingApproval) error
	GetApproval(ctx context.Context, id string) (*pcetypes.PendingApproval, error)
	PendingApprovals(ctx context.Context) ([]pcetypes.PendingApproval, error)
	AllApprovals(ctx context.Context) ([]pcetypes.PendingApproval, error)
}

// BudgetChecker reports whether the twin substate currently holds enough
// budget_remaining to cover a projected cost. Only purchase/budget_commit
// actions are checked.
type BudgetChecker interface {
	BudgetRemaining(ctx context.Context) (float64, error)
}

// IDGen generates approval ids; overridable for deterministic tests.
type IDGen func() string

// Gate implements the approval state machine.
type Gate struct {
	store  Store
	budget BudgetChecker
	idGen  IDGen
	clock  func() time.Time
	ttl    time.Duration

	// OnTerminal is invoked after approved/overridden/rejected resolves,
	// so the caller can synthesize and enqueue the follow-up
	// <action_type>.completed / <action_type>.rejected event through the
	// pipeline.
	OnTerminal func(ctx context.Context, a *pcetypes.PendingApproval)
}

// Option configures a Gate.
type Option func(*Gate)

func WithClock(clock func() time.Time) Option { return func(g *Gate) { g.clock = clock } }
func WithIDGen(gen IDGen) Option              { return func(g *Gate) { g.idGen = gen } }

// New builds a Gate with the given TTL (spec default 24h).
func New(store Store, budget BudgetChecker, ttl time.Duration, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		budget: budget,
		ttl:    ttl,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// isFinancial reports whether an action affects a financial state field.
// Domain plugins don't necessarily use the abstract "purchase"/
// "budget_commit" names verbatim in their action_type (robotics emits
// "os.request_purchase_approval"/"os.record_purchase"), so this matches by
// substring rather than exact value.
func isFinancial(actionType string) bool {
	return strings.Contains(actionType, "purchase") || strings.Contains(actionType, "budget_commit")
}

// Create records a new pending approval for a gated action plan.
func (g *Gate) Create(ctx context.Context, decisionID, correlationID string, action pcetypes.ActionPlan, projectedCost float64, risk, rationale string) (*pcetypes.PendingApproval, error) {
	id := "ap-" + uuid.NewString()
	if g.idGen != nil {
		id = g.idGen()
	}
	a := &pcetypes.PendingApproval{
		ApprovalID:    id,
		DecisionID:    decisionID,
		Status:        pcetypes.ApprovalPending,
		Action:        action,
		ProjectedCost: projectedCost,
		Risk:          risk,
		Rationale:     rationale,
		CreatedAt:     g.clock(),
		CorrelationID: correlationID,
	}
	if err := g.store.PutApproval(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns one approval by id.
func (g *Gate) Get(ctx context.Context, id string) (*pcetypes.PendingApproval, error) {
	a, err := g.store.GetApproval(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return a, nil
}

// Pending lists every approval still awaiting operator input.
func (g *Gate) Pending(ctx context.Context) ([]pcetypes.PendingApproval, error) {
	return g.store.PendingApprovals(ctx)
}

// All lists every approval regardless of status.
func (g *Gate) All(ctx context.Context) ([]pcetypes.PendingApproval, error) {
	return g.store.AllApprovals(ctx)
}

func (g *Gate) loadPending(ctx context.Context, id string) (*pcetypes.PendingApproval, error) {
	a, err := g.store.GetApproval(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if a.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	return a, nil
}

// Approve transitions pending -> approved. Financial actions
// (purchase/budget_commit) require budget_remaining >= projected_cost.
func (g *Gate) Approve(ctx context.Context, id, actor, notes string) (*pcetypes.PendingApproval, error) {
	a, err := g.loadPending(ctx, id)
	if err != nil {
		return nil, err
	}

	if isFinancial(a.Action.ActionType) {
		remaining, err := g.budget.BudgetRemaining(ctx)
		if err != nil {
			return nil, err
		}
		if remaining < a.ProjectedCost {
			return nil, ErrInsufficientBudget
		}
	}

	now := g.clock()
	a.Status = pcetypes.ApprovalApproved
	a.Actor = actor
	a.Notes = notes
	a.ResolvedAt = &now
	if err := g.store.PutApproval(ctx, a); err != nil {
		return nil, err
	}
	g.notifyTerminal(ctx, a)
	return a, nil
}

// Reject transitions pending -> rejected. No budget precondition.
func (g *Gate) Reject(ctx context.Context, id, actor, reason string) (*pcetypes.PendingApproval, error) {
	a, err := g.loadPending(ctx, id)
	if err != nil {
		return nil, err
	}
	now := g.clock()
	a.Status = pcetypes.ApprovalRejected
	a.Actor = actor
	a.Notes = reason
	a.ResolvedAt = &now
	if err := g.store.PutApproval(ctx, a); err != nil {
		return nil, err
	}
	g.notifyTerminal(ctx, a)
	return a, nil
}

// Override transitions pending -> overridden, bypassing the budget check.
func (g *Gate) Override(ctx context.Context, id, actor, notes string) (*pcetypes.PendingApproval, error) {
	a, err := g.loadPending(ctx, id)
	if err != nil {
		return nil, err
	}
	now := g.clock()
	a.Status = pcetypes.ApprovalOverridden
	a.Actor = actor
	a.Notes = notes
	a.Override = true
	a.ResolvedAt = &now
	if err := g.store.PutApproval(ctx, a); err != nil {
		return nil, err
	}
	g.notifyTerminal(ctx, a)
	return a, nil
}

// SweepExpired transitions every pending approval past its TTL to expired.
// Purely server-initiated; no action executes on expiry.
func (g *Gate) SweepExpired(ctx context.Context) (int, error) {
	pending, err := g.store.PendingApprovals(ctx)
	if err != nil {
		return 0, err
	}
	now := g.clock()
	expired := 0
	for i := range pending {
		a := &pending[i]
		if now.Sub(a.CreatedAt) < g.ttl {
			continue
		}
		a.Status = pcetypes.ApprovalExpired
		a.ResolvedAt = &now
		if err := g.store.PutApproval(ctx, a); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// RunSweeper starts a ticker-driven sweep loop until ctx is cancelled,
// mirroring the periodic TTL sweeper named in the concurrency model.
func (g *Gate) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = g.SweepExpired(ctx)
		}
	}
}

func (g *Gate) notifyTerminal(ctx context.Context, a *pcetypes.PendingApproval) {
	if g.OnTerminal != nil {
		g.OnTerminal(ctx, a)
	}
}
