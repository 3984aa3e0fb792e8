// Package de is the Decision Engine: it dispatches to the domain's
// DecisionPlugin, applies a CEL-compiled deterministic override predicate,
// and marks actions that require operator approval.
package de

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

// Floors are the deterministic override thresholds.
type Floors struct {
	ValueFloor float64
	CCIFloor   float64
}

// Engine deliberates one ActionPlan per event.
type Engine struct {
	registry *plugins.Registry
	floors   Floors
	override cel.Program
}

// New compiles the override predicate once at boot:
// value_score < value_floor || cci < cci_floor.
func New(registry *plugins.Registry, floors Floors) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("value_score", cel.DoubleType),
		cel.Variable("value_floor", cel.DoubleType),
		cel.Variable("cci", cel.DoubleType),
		cel.Variable("cci_floor", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("de: cel env: %w", err)
	}
	ast, issues := env.Compile(`value_score < value_floor || cci < cci_floor`)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("de: compile override predicate: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("de: build override program: %w", err)
	}
	return &Engine{registry: registry, floors: floors, override: prg}, nil
}

// Decide runs the plugin-dispatch → override → approval-marking sequence
// described for the Decision Engine. A plugin error downgrades to the core
// default with override_reason = "plugin_error"; it never fails the
// pipeline.
func (e *Engine) Decide(ctx context.Context, in plugins.DecisionInput) (pcetypes.ActionPlan, error) {
	d := e.registry.Resolve(in.Event.Domain())
	decider := d.Decision
	pluginErrored := false
	if decider == nil {
		decider = e.registry.Core().Decision
	}

	plan, err := decider.Decide(ctx, in)
	if err != nil {
		pluginErrored = true
		plan, err = e.registry.Core().Decision.Decide(ctx, in)
		if err != nil {
			return pcetypes.ActionPlan{}, fmt.Errorf("de: core default also failed: %w", err)
		}
	}
	if plan.Domain == "" {
		plan.Domain = in.Event.Domain()
	}

	explain := plan.Explain("de")
	if pluginErrored {
		explain["override_reason"] = "plugin_error"
	}

	overridden, err := e.shouldOverride(in.ValueScore, in.CCI)
	if err != nil {
		// CEL evaluation errors never surface to the caller; treat as no
		// override rather than failing the decision.
		overridden = false
	}
	// A domain plugin that already applies its own deterministic override
	// (assistant's bandit safety clamp) signals so via override_reason; DE
	// only falls back to its generic safe variant when the plugin didn't.
	if _, pluginOverrode := explain["override_reason"]; overridden && !pluginOverrode {
		e.applySafestVariant(&plan)
		explain["override_reason"] = "deterministic_floor"
	}

	plan.RequiresApproval = requiresApproval(plan)
	return plan, nil
}

func (e *Engine) shouldOverride(valueScore, cciScore float64) (bool, error) {
	out, _, err := e.override.Eval(map[string]any{
		"value_score": valueScore,
		"value_floor": e.floors.ValueFloor,
		"cci":         cciScore,
		"cci_floor":   e.floors.CCIFloor,
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}

// applySafestVariant replaces the plan's profile with the safest variant:
// lowest-priority observation, no approval-seeking side effects.
func (e *Engine) applySafestVariant(plan *pcetypes.ActionPlan) {
	plan.ActionType = "observe"
	plan.Priority = 1
	plan.Rationale = "deterministic override: value or coherence below floor"
	plan.Explain("de")["final_profile"] = "safe"
}

// requiresApproval mirrors the design-level rule: domain os.robotics and
// either the plugin declares its action affects a financial state field
// (explain.gate_required, set by the robotics decision plugin for
// purchase-requesting events) or the plan declares risk_level HIGH/MEDIUM.
func requiresApproval(plan pcetypes.ActionPlan) bool {
	if plan.Domain != "os.robotics" {
		return false
	}
	if explain, ok := plan.Metadata["explain"].(map[string]any); ok {
		if gated, ok := explain["gate_required"].(bool); ok && gated {
			return true
		}
	}
	risk, _ := plan.Metadata["risk_level"].(string)
	return risk == "HIGH" || risk == "MEDIUM"
}
