// Package ao is the Action Orchestrator: it executes non-gated actions
// synchronously and records a completed-action entry with observed impact.
package ao

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

// Clock is overridable for deterministic tests.
type Clock func() time.Time

// Orchestrator executes an ActionPlan that did not require approval.
type Orchestrator struct {
	registry *plugins.Registry
	clock    Clock
}

func New(registry *plugins.Registry) *Orchestrator {
	return &Orchestrator{registry: registry, clock: time.Now}
}

func (o *Orchestrator) WithClock(clock Clock) *Orchestrator {
	o.clock = clock
	return o
}

// Execute runs the domain's ExecutionProbe (if any) to compute observed
// impact, falling back to expected_impact as a stand-in, and returns the
// completed-action record the caller persists.
func (o *Orchestrator) Execute(ctx context.Context, state pcetypes.State, ev *pcetypes.Event, plan pcetypes.ActionPlan, violations []string) pcetypes.CompletedAction {
	completed := pcetypes.CompletedAction{
		ActionPlan:  plan,
		ActionID:    uuid.NewString(),
		EventID:     ev.EventID,
		Violations:  violations,
		CompletedAt: o.clock(),
		Success:     true,
	}

	d := o.registry.Resolve(ev.Domain())
	observed := plan.ExpectedImpact
	if d.Probe != nil {
		if v, err := d.Probe.Observe(ctx, state, completed); err == nil {
			observed = v
		} else {
			completed.Success = false
		}
	}
	completed.ObservedImpact = observed
	return completed
}
