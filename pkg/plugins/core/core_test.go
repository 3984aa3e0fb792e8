package core

import (
	"context"
	"testing"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

func newEvent(t *testing.T, payload string) *pcetypes.Event {
	t.Helper()
	return &pcetypes.Event{
		EventID:   "ev-1",
		EventType: "test.event",
		Payload:   []byte(payload),
	}
}

func TestIntegratorMergesUnderDomainSlice(t *testing.T) {
	ev := newEvent(t, `{"domain":"core","foo":"bar"}`)
	state := pcetypes.State{}
	next := Integrator{}.Integrate(state, ev)

	var slice map[string]any
	if !next.Get("core", &slice) {
		t.Fatal("expected core slice in state")
	}
	if slice["foo"] != "bar" {
		t.Errorf("foo = %v, want bar", slice["foo"])
	}
	if slice["last_event_id"] != "ev-1" {
		t.Errorf("last_event_id = %v, want ev-1", slice["last_event_id"])
	}
}

func TestValueScoreInRange(t *testing.T) {
	ev := newEvent(t, `{"domain":"core","tags":["a","b"]}`)
	v := NewValue(DefaultStrategicValues())
	score, violations, err := v.Value(context.Background(), pcetypes.State{}, ev)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if score < 0 || score > 1 {
		t.Errorf("score %f out of [0,1]", score)
	}
	if len(violations) != 0 {
		t.Errorf("unexpected violations: %v", violations)
	}
}

func TestValueFlagsDestructive(t *testing.T) {
	ev := newEvent(t, `{"domain":"core","destructive":true}`)
	v := NewValue(DefaultStrategicValues())
	_, violations, err := v.Value(context.Background(), pcetypes.State{}, ev)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	found := false
	for _, v := range violations {
		if v == "destructive_default" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected destructive_default violation, got %v", violations)
	}
}

func TestDecisionDefaultsToObserve(t *testing.T) {
	in := plugins.DecisionInput{
		State:      pcetypes.State{},
		Event:      newEvent(t, `{"domain":"core"}`),
		ValueScore: 0.8,
		CCI:        0.9,
	}
	plan, err := (Decision{}).Decide(context.Background(), in)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.ActionType != "observe" {
		t.Errorf("ActionType = %q, want observe", plan.ActionType)
	}
	if plan.RequiresApproval {
		t.Error("core default should never require approval")
	}
}

func TestAdaptationAppendsPreference(t *testing.T) {
	ev := newEvent(t, `{"domain":"assistant","session_id":"s1","reward":1,"notes":"likes concise replies"}`)
	next, err := (Adaptation{}).Adapt(context.Background(), pcetypes.State{}, ev)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	var mem struct {
		Preferences map[string][]string `json:"preferences"`
	}
	next.Get("assistant", &mem)
	if len(mem.Preferences["s1"]) != 1 || mem.Preferences["s1"][0] != "likes concise replies" {
		t.Errorf("preferences = %v", mem.Preferences)
	}
}
