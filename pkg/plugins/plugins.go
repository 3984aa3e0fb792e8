// Package plugins defines the per-domain capability interfaces dispatched
// by ISI, VEL, DE and AFS, and the registry that looks them up.
//
// Mirrors the first-match, exception-safe dispatch of the original
// PluginRegistry: a domain plugin is looked up by exact payload.domain
// match; a lookup miss or a panicking/erroring plugin call falls back to
// the core default rather than failing the pipeline.
package plugins

import (
	"context"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Integrator merges a normalized event into the current state snapshot for
// its domain and returns the candidate next snapshot slice for that domain
// key. It must be a total function: no error return, malformed input is
// clamped rather than rejected.
type Integrator interface {
	Integrate(state pcetypes.State, ev *pcetypes.Event) pcetypes.State
}

// ValuePlugin scores a candidate state + event in [0,1] and may report
// violation tags.
type ValuePlugin interface {
	Value(ctx context.Context, state pcetypes.State, ev *pcetypes.Event) (score float64, violations []string, err error)
}

// DecisionPlugin deliberates an ActionPlan from state, the VEL score and
// current CCI.
type DecisionPlugin interface {
	Decide(ctx context.Context, in DecisionInput) (pcetypes.ActionPlan, error)
}

// DecisionInput bundles everything a DecisionPlugin needs to deliberate.
type DecisionInput struct {
	State      pcetypes.State
	Event      *pcetypes.Event
	ValueScore float64
	CCI        float64
	Components pcetypes.CCIComponents
}

// ExecutionProbe computes the observed impact of an executed action, used
// by AO in place of echoing expected_impact when a domain has a real probe.
type ExecutionProbe interface {
	Observe(ctx context.Context, state pcetypes.State, action pcetypes.CompletedAction) (observedImpact float64, err error)
}

// AdaptationPlugin applies feedback to domain memory / adaptive parameters.
type AdaptationPlugin interface {
	Adapt(ctx context.Context, state pcetypes.State, ev *pcetypes.Event) (pcetypes.State, error)
}

// Domain bundles every capability a domain may register. Any field may be
// nil; the registry falls back to the core default for an absent capability.
type Domain struct {
	Name       string
	Integrator Integrator
	Value      ValuePlugin
	Decision   DecisionPlugin
	Probe      ExecutionProbe
	Adaptation AdaptationPlugin
}

// Registry dispatches by payload.domain to a registered Domain, falling
// back to a designated core Domain on miss or on capability error.
type Registry struct {
	core    Domain
	domains map[string]Domain
}

// NewRegistry builds a registry around the mandatory core default domain.
func NewRegistry(core Domain) *Registry {
	return &Registry{core: core, domains: map[string]Domain{}}
}

// Register adds or replaces the plugin bundle for a domain name. The core
// domain's name is reserved; registering under it is a no-op guard against
// accidentally shadowing the fallback path.
func (r *Registry) Register(d Domain) {
	if d.Name == "" || d.Name == r.core.Name {
		return
	}
	r.domains[d.Name] = d
}

// Resolve returns the Domain bundle registered for name, or the core
// default when name is empty or unregistered.
func (r *Registry) Resolve(name string) Domain {
	if name == "" {
		return r.core
	}
	if d, ok := r.domains[name]; ok {
		return d
	}
	return r.core
}

// Core returns the registry's core default domain.
func (r *Registry) Core() Domain { return r.core }
