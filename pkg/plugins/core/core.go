// Package core implements the core default domain: the Integrator, Value,
// Decision and Adaptation behavior used whenever an event's payload.domain
// is "core" or otherwise unregistered.
package core

import (
	"context"
	"encoding/json"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

const Name = "core"

// Integrator performs the deterministic shallow merge: payload fields land
// into state[domain], tagged with the triggering event's id and type.
type Integrator struct{}

func (Integrator) Integrate(state pcetypes.State, ev *pcetypes.Event) pcetypes.State {
	next := state.Clone()

	domain := ev.Domain()
	if domain == "" {
		domain = "general"
	}

	var slice map[string]any
	next.Get(domain, &slice)
	if slice == nil {
		slice = map[string]any{}
	}
	for k, v := range ev.PayloadMap() {
		slice[k] = v
	}
	slice["last_event_id"] = ev.EventID
	slice["last_event_type"] = ev.EventType

	return next.Set(domain, slice)
}

// StrategicValues are the default VEL weights: consistency-of-tags,
// non-destructive-defaults, budget-positivity.
type StrategicValues struct {
	ConsistencyWeight float64
	NonDestructWeight float64
	BudgetWeight      float64
}

// DefaultStrategicValues mirrors the design-level defaults named in the
// value evaluator's spec: equal thirds.
func DefaultStrategicValues() StrategicValues {
	return StrategicValues{
		ConsistencyWeight: 1.0 / 3,
		NonDestructWeight: 1.0 / 3,
		BudgetWeight:      1.0 / 3,
	}
}

// Value scores a candidate state against the three default strategic
// values. Each sub-score is in [0,1]; the aggregate is their weighted sum,
// itself always in [0,1] since the weights sum to 1.
type Value struct {
	Weights StrategicValues
}

func NewValue(weights StrategicValues) Value { return Value{Weights: weights} }

func (v Value) Value(_ context.Context, state pcetypes.State, ev *pcetypes.Event) (float64, []string, error) {
	var violations []string

	consistency := consistencyOfTags(ev)
	nonDestructive := 1.0
	if destructive(ev) {
		nonDestructive = 0.0
		violations = append(violations, "destructive_default")
	}
	budgetPositive := budgetPositivity(state, ev)
	if budgetPositive < 1 {
		violations = append(violations, "budget_negative")
	}

	score := v.Weights.ConsistencyWeight*consistency +
		v.Weights.NonDestructWeight*nonDestructive +
		v.Weights.BudgetWeight*budgetPositive

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, violations, nil
}

func consistencyOfTags(ev *pcetypes.Event) float64 {
	tags := ev.Tags()
	if len(tags) == 0 {
		return 1.0
	}
	seen := map[string]struct{}{}
	dup := 0
	for t := range tags {
		if _, ok := seen[t]; ok {
			dup++
		}
		seen[t] = struct{}{}
	}
	if dup == 0 {
		return 1.0
	}
	return 1.0 - float64(dup)/float64(len(tags))
}

func destructive(ev *pcetypes.Event) bool {
	m := ev.PayloadMap()
	v, ok := m["destructive"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func budgetPositivity(state pcetypes.State, ev *pcetypes.Event) float64 {
	m := ev.PayloadMap()
	remaining, hasRemaining := m["budget_remaining"].(float64)
	if !hasRemaining {
		var twin struct {
			BudgetRemaining float64 `json:"budget_remaining"`
		}
		if state.Get("pce_os", &twin) {
			remaining = twin.BudgetRemaining
			hasRemaining = true
		}
	}
	if !hasRemaining {
		return 1.0
	}
	if remaining < 0 {
		return 0.0
	}
	return 1.0
}

// Decision is the core default decision plugin: always "observe", priority
// 1, never requires approval.
type Decision struct{}

func (Decision) Decide(_ context.Context, in plugins.DecisionInput) (pcetypes.ActionPlan, error) {
	plan := pcetypes.ActionPlan{
		ActionType:     "observe",
		Priority:       1,
		Rationale:      "core default: no domain plugin registered",
		ExpectedImpact: in.ValueScore,
		Domain:         "core",
	}
	plan.Explain("de")["selected_by_bandit"] = false
	plan.Explain("de")["final_profile"] = "observe"
	return plan, nil
}

// Adaptation is the core default: feedback events append to per-session
// preference/avoid lists, mirroring the design-level per-session memory
// model shared by every domain's AFS stage.
type Adaptation struct{}

func (Adaptation) Adapt(_ context.Context, state pcetypes.State, ev *pcetypes.Event) (pcetypes.State, error) {
	m := ev.PayloadMap()
	reward, _ := m["reward"].(float64)
	notes, _ := m["notes"].(string)
	if notes == "" {
		return state, nil
	}
	sessionID := ev.SessionID()
	if sessionID == "" {
		return state, nil
	}

	next := state.Clone()
	var mem struct {
		Preferences map[string][]string `json:"preferences"`
		Avoid       map[string][]string `json:"avoid"`
	}
	next.Get("assistant", &mem)
	if mem.Preferences == nil {
		mem.Preferences = map[string][]string{}
	}
	if mem.Avoid == nil {
		mem.Avoid = map[string][]string{}
	}

	const memoryCap = 32
	if reward > 0 {
		mem.Preferences[sessionID] = appendBounded(mem.Preferences[sessionID], notes, memoryCap)
	} else if reward < 0 {
		mem.Avoid[sessionID] = appendBounded(mem.Avoid[sessionID], notes, memoryCap)
	}

	raw, err := json.Marshal(mem)
	if err != nil {
		return state, err
	}
	next["assistant"] = raw
	return next, nil
}

func appendBounded(list []string, item string, capN int) []string {
	list = append(list, item)
	if len(list) > capN {
		list = list[len(list)-capN:]
	}
	return list
}
