// Package afs is the Adaptive Feedback Stage: it applies feedback-kind
// events to domain memory and adaptive parameters, dispatching to the
// domain's AdaptationPlugin or the core default per-session memory model.
package afs

import (
	"context"
	"strings"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

// Adapter wraps the plugin registry to run the feedback stage.
type Adapter struct {
	registry *plugins.Registry
}

func New(registry *plugins.Registry) *Adapter {
	return &Adapter{registry: registry}
}

// IsFeedback reports whether an event type is feedback-kind, e.g.
// "feedback.assistant.v1" or a rover reward event.
func IsFeedback(eventType string) bool {
	return strings.HasPrefix(eventType, "feedback.") || strings.Contains(eventType, "reward")
}

// Adapt dispatches to the domain's AdaptationPlugin (or the core default)
// when the event is feedback-kind; non-feedback events pass state through
// unchanged.
func (a *Adapter) Adapt(ctx context.Context, state pcetypes.State, ev *pcetypes.Event) (pcetypes.State, error) {
	if !IsFeedback(ev.EventType) {
		return state, nil
	}

	d := a.registry.Resolve(ev.Domain())
	adapter := d.Adaptation
	if adapter == nil {
		adapter = a.registry.Core().Adaptation
	}

	next, err := adapter.Adapt(ctx, state, ev)
	if err != nil {
		// plugin_error downgrades to the core default rather than failing
		// the pipeline, matching DE/VEL's failure semantics.
		return a.registry.Core().Adaptation.Adapt(ctx, state, ev)
	}
	return next, nil
}
