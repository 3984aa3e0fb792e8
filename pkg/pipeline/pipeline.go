// Package pipeline wires the eight pipeline stages into the single
// per-event control flow: EPL -> ISI -> VEL -> CCI(before) -> DE ->
// [pending-mutation handoff] -> Approval Gate (maybe suspend) -> AO ->
// AFS -> persist state + action -> CCI(after) -> transcript append.
//
// Grounded on original_source/pce-core/src/pce_api/main.py's
// _run_pipeline, generalized from one hardcoded call chain into a struct
// of composed stage engines so the HTTP surface and the approval-terminal
// follow-up path share a single entry point.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pcehq/pce/pkg/afs"
	"github.com/pcehq/pce/pkg/ao"
	"github.com/pcehq/pce/pkg/approval"
	"github.com/pcehq/pce/pkg/cci"
	"github.com/pcehq/pce/pkg/de"
	"github.com/pcehq/pce/pkg/epl"
	"github.com/pcehq/pce/pkg/isi"
	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
	"github.com/pcehq/pce/pkg/plugins/rover"
	"github.com/pcehq/pce/pkg/plugins/trader"
	"github.com/pcehq/pce/pkg/transcript"
	"github.com/pcehq/pce/pkg/vel"
)

// Store is the persistence surface the pipeline drives directly. The
// individual stage engines (CCI, Approval Gate, Transcript) hold their
// own narrower view of the same concrete store.
type Store interface {
	LoadState(ctx context.Context) (pcetypes.State, error)
	SaveState(ctx context.Context, st pcetypes.State) error
	AppendEvent(ctx context.Context, ev *pcetypes.Event) error
	AppendAction(ctx context.Context, decisionID string, action *pcetypes.CompletedAction) error
	AppendCCI(ctx context.Context, snap pcetypes.CCISnapshot) error
}

// Deps bundles every stage engine the pipeline orchestrates. All fields
// are required except TraderStartingCash, which defaults to
// trader.DefaultConfig().StartingCash.
type Deps struct {
	Store        Store
	Validator    *epl.Validator
	Integrator   *isi.Integrator
	Evaluator    *vel.Evaluator
	CCI          *cci.Engine
	Decision     *de.Engine
	Gate         *approval.Gate
	Orchestrator *ao.Orchestrator
	Adapter      *afs.Adapter
	Transcript   *transcript.Broadcaster

	TraderStartingCash float64
}

// Pipeline runs the full control flow for one event at a time. It is
// safe for concurrent use; the underlying store serializes writes.
type Pipeline struct {
	deps Deps
}

// New wires deps into a Pipeline and registers the approval-terminal
// follow-up hook on deps.Gate.
func New(deps Deps) *Pipeline {
	p := &Pipeline{deps: deps}
	deps.Gate.OnTerminal = p.handleApprovalTerminal
	return p
}

// Result is the outcome of ingesting one event, shaped for the HTTP
// surface's response.
type Result struct {
	Event            *pcetypes.Event
	ValueScore       float64
	CCI              float64
	CCIComponents    pcetypes.CCIComponents
	Plan             pcetypes.ActionPlan
	Completed        *pcetypes.CompletedAction
	Approval         *pcetypes.PendingApproval
	RequiresApproval bool
}

// Ingest validates raw producer bytes and drives them through every
// pipeline stage. It never returns a plugin or LLM error as a pipeline
// failure — those downgrade to the core default inside VEL/DE/AFS — but
// a validation error or a store failure is returned as-is.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte) (Result, error) {
	ev, err := p.deps.Validator.Ingest(raw)
	if err != nil {
		return Result{}, err
	}

	if err := p.deps.Store.AppendEvent(ctx, ev); err != nil {
		return Result{}, fmt.Errorf("pipeline: append event: %w", err)
	}
	decisionID := ev.CorrelationID()
	p.appendTranscript(ctx, pcetypes.KindEventIngested, ev.CorrelationID(), decisionID, map[string]any{
		"event_id":   ev.EventID,
		"event_type": ev.EventType,
		"domain":     ev.Domain(),
	})

	state, err := p.deps.Store.LoadState(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: load state: %w", err)
	}
	candidate := p.deps.Integrator.Integrate(state, ev)

	valueScore, violations, _ := p.deps.Evaluator.Evaluate(ctx, candidate, ev)

	before, err := p.deps.CCI.Compute(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: compute cci: %w", err)
	}

	plan, err := p.deps.Decision.Decide(ctx, plugins.DecisionInput{
		State:      candidate,
		Event:      ev,
		ValueScore: valueScore,
		CCI:        before.CCI,
		Components: before.Components,
	})
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: decide: %w", err)
	}
	candidate = p.applyPendingMutation(candidate, plan)

	result := Result{
		Event:         ev,
		ValueScore:    valueScore,
		CCI:           before.CCI,
		CCIComponents: before.Components,
		Plan:          plan,
	}

	if plan.RequiresApproval {
		return p.gate(ctx, ev, decisionID, candidate, plan, result)
	}
	return p.execute(ctx, ev, decisionID, candidate, plan, violations, result)
}

// gate records a pending approval instead of executing the action. Per
// the approval invariant, the twin substate is never mutated by a
// pending action — robotics's ISI integrator has no case for
// "purchase.requested", so persisting the ISI-merged candidate here is
// safe regardless of the gate outcome.
func (p *Pipeline) gate(ctx context.Context, ev *pcetypes.Event, decisionID string, candidate pcetypes.State, plan pcetypes.ActionPlan, result Result) (Result, error) {
	if plan.Metadata == nil {
		plan.Metadata = map[string]any{}
	}
	plan.Metadata["source_event_type"] = ev.EventType
	plan.Metadata["source_payload"] = ev.PayloadMap()

	projectedCost, _ := plan.Metadata["projected_cost"].(float64)
	risk, _ := plan.Metadata["risk_level"].(string)

	pending, err := p.deps.Gate.Create(ctx, decisionID, ev.CorrelationID(), plan, projectedCost, risk, plan.Rationale)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: create approval: %w", err)
	}

	if err := p.deps.Store.SaveState(ctx, candidate); err != nil {
		return Result{}, fmt.Errorf("pipeline: save state: %w", err)
	}
	p.appendTranscript(ctx, pcetypes.KindApprovalCreated, ev.CorrelationID(), decisionID, map[string]any{
		"approval_id":    pending.ApprovalID,
		"action_type":    pending.Action.ActionType,
		"risk":           pending.Risk,
		"projected_cost": pending.ProjectedCost,
	})

	result.Plan = pending.Action
	result.Approval = pending
	result.RequiresApproval = true
	return result, nil
}

// execute runs AO then AFS (if the event is feedback-kind), persists the
// resulting state and completed action, and appends the post-action CCI
// snapshot.
func (p *Pipeline) execute(ctx context.Context, ev *pcetypes.Event, decisionID string, candidate pcetypes.State, plan pcetypes.ActionPlan, violations []string, result Result) (Result, error) {
	completed := p.deps.Orchestrator.Execute(ctx, candidate, ev, plan, violations)
	completed.ValueScore = result.ValueScore
	p.appendTranscript(ctx, pcetypes.KindActionsProposed, ev.CorrelationID(), decisionID, map[string]any{
		"action_type": plan.ActionType,
		"value_score": result.ValueScore,
		"action_id":   completed.ActionID,
	})

	next, err := p.deps.Adapter.Adapt(ctx, candidate, ev)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: adapt: %w", err)
	}

	if err := p.deps.Store.SaveState(ctx, next); err != nil {
		return Result{}, fmt.Errorf("pipeline: save state: %w", err)
	}
	if err := p.deps.Store.AppendAction(ctx, decisionID, &completed); err != nil {
		return Result{}, fmt.Errorf("pipeline: append action: %w", err)
	}
	p.appendTranscript(ctx, pcetypes.KindStateUpdated, ev.CorrelationID(), decisionID, map[string]any{
		"action_id": completed.ActionID,
		"success":   completed.Success,
	})

	after, err := p.deps.CCI.Compute(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: compute cci after: %w", err)
	}
	if err := p.deps.Store.AppendCCI(ctx, after); err != nil {
		return Result{}, fmt.Errorf("pipeline: append cci: %w", err)
	}

	result.CCI = after.CCI
	result.CCIComponents = after.Components
	result.Completed = &completed
	return result, nil
}

// applyPendingMutation applies the pending state mutation a
// DecisionPlugin stashed in metadata.explain.de, since DecisionPlugin is
// a pure function of state and ISI already ran before DE saw this event.
// Currently only rover (pending_transition) and trader (pending_update)
// use this handoff.
func (p *Pipeline) applyPendingMutation(state pcetypes.State, plan pcetypes.ActionPlan) pcetypes.State {
	explain, ok := plan.Metadata["explain"].(map[string]any)
	if !ok {
		return state
	}
	deExplain, ok := explain["de"].(map[string]any)
	if !ok {
		return state
	}
	if t, ok := deExplain["pending_transition"].(rover.PendingTransition); ok {
		return rover.SetEpisodePendingTransition(state, t.EpisodeID, t)
	}
	if u, ok := deExplain["pending_update"].(trader.PendingUpdate); ok {
		startingCash := p.deps.TraderStartingCash
		if startingCash == 0 {
			startingCash = trader.DefaultConfig().StartingCash
		}
		return trader.ApplyPendingUpdate(state, u, startingCash)
	}
	return state
}

// handleApprovalTerminal is registered on deps.Gate.OnTerminal. It
// records the approval_updated transcript entry and, for
// approved/overridden/rejected outcomes, synthesizes the
// <base>.completed / <base>.rejected follow-up event and re-enters
// Ingest so the twin substate picks up the deferred effect (budget
// debit, purchase history entry).
func (p *Pipeline) handleApprovalTerminal(ctx context.Context, a *pcetypes.PendingApproval) {
	p.appendTranscript(ctx, pcetypes.KindApprovalUpdated, a.CorrelationID, a.DecisionID, map[string]any{
		"approval_id": a.ApprovalID,
		"status":      string(a.Status),
		"actor":       a.Actor,
		"override":    a.Override,
	})

	base := strings.TrimSuffix(sourceEventType(a), ".requested")
	var eventType string
	switch a.Status {
	case pcetypes.ApprovalApproved, pcetypes.ApprovalOverridden:
		eventType = base + ".completed"
	case pcetypes.ApprovalRejected:
		eventType = base + ".rejected"
	default:
		return
	}

	payload := sourcePayload(a)
	payload["domain"] = a.Action.Domain
	payload["correlation_id"] = a.CorrelationID

	raw, err := json.Marshal(map[string]any{
		"event_type": eventType,
		"source":     "approval_gate",
		"payload":    payload,
	})
	if err != nil {
		slog.Error("pipeline: marshal synthesized event", "err", err, "approval_id", a.ApprovalID)
		return
	}
	if _, err := p.Ingest(ctx, raw); err != nil {
		slog.Error("pipeline: ingest synthesized event", "err", err, "event_type", eventType, "approval_id", a.ApprovalID)
	}
}

func sourceEventType(a *pcetypes.PendingApproval) string {
	if v, ok := a.Action.Metadata["source_event_type"].(string); ok && v != "" {
		return v
	}
	return a.Action.ActionType
}

func sourcePayload(a *pcetypes.PendingApproval) map[string]any {
	out := map[string]any{}
	if v, ok := a.Action.Metadata["source_payload"].(map[string]any); ok {
		for k, val := range v {
			out[k] = val
		}
	}
	return out
}

func (p *Pipeline) appendTranscript(ctx context.Context, kind pcetypes.TranscriptKind, correlationID, decisionID string, payload map[string]any) {
	item := pcetypes.TranscriptItem{
		TS:            time.Now().UTC(),
		Kind:          kind,
		Payload:       payload,
		CorrelationID: correlationID,
		DecisionID:    decisionID,
	}
	if _, err := p.deps.Transcript.Append(ctx, item); err != nil {
		slog.Error("pipeline: append transcript", "err", err, "kind", kind)
	}
}
