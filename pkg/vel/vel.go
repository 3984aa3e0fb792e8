// Package vel is the Value Evaluator: it scores a candidate state + event
// in [0,1] via the domain's ValuePlugin, falling back to the core default
// strategic values when no plugin is registered or the plugin errors.
package vel

import (
	"context"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

type Evaluator struct {
	registry *plugins.Registry
}

func New(registry *plugins.Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Evaluate returns a clamped [0,1] score and any violation tags. A plugin
// error downgrades to the core default rather than failing the pipeline,
// mirroring the design-level failure semantics shared with DE.
func (v *Evaluator) Evaluate(ctx context.Context, state pcetypes.State, ev *pcetypes.Event) (score float64, violations []string, usedCoreFallback bool) {
	d := v.registry.Resolve(ev.Domain())
	usedCoreFallback = d.Name == v.registry.Core().Name
	plugin := d.Value
	if plugin == nil {
		plugin = v.registry.Core().Value
		usedCoreFallback = true
	}

	score, violations, err := plugin.Value(ctx, state, ev)
	if err != nil && !usedCoreFallback {
		score, violations, err = v.registry.Core().Value.Value(ctx, state, ev)
		usedCoreFallback = true
	}
	if err != nil {
		return 0.5, nil, true
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, violations, usedCoreFallback
}
