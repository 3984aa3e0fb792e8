// Package isi is the State Integrator: it merges a normalized event into
// the current snapshot, dispatching to the domain's Integrator plugin (or
// the core default) via the plugin registry.
package isi

import (
	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

// Integrator wraps a plugin registry to produce candidate next snapshots.
// It never writes state itself; the caller persists the returned snapshot.
type Integrator struct {
	registry *plugins.Registry
}

func New(registry *plugins.Registry) *Integrator {
	return &Integrator{registry: registry}
}

// Integrate returns the candidate next state after merging ev. Integration
// is a total function by contract: a domain with no registered Integrator
// falls back to the core default rather than leaving the event unmerged.
func (i *Integrator) Integrate(state pcetypes.State, ev *pcetypes.Event) pcetypes.State {
	d := i.registry.Resolve(ev.Domain())
	integrator := d.Integrator
	if integrator == nil {
		integrator = i.registry.Core().Integrator
	}
	return integrator.Integrate(state, ev)
}
