package cci

import (
	"context"
	"testing"
	"time"

	"github.com/pcehq/pce/pkg/pcetypes"
)

type fakeSource struct {
	actions []pcetypes.CompletedAction
}

func (f fakeSource) RecentActions(_ context.Context, limit int) ([]pcetypes.CompletedAction, error) {
	if limit < len(f.actions) {
		return f.actions[len(f.actions)-limit:], nil
	}
	return f.actions, nil
}

func TestColdStartBelowMinQualifying(t *testing.T) {
	e := New(fakeSource{actions: nil}, DefaultWeights())
	snap, err := e.Compute(context.Background())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if snap.CCI != 0.5 || !snap.Components.Unknown {
		t.Errorf("expected cold-start default, got %+v", snap)
	}
}

func TestPerfectConsistencyNoViolations(t *testing.T) {
	now := time.Now()
	actions := make([]pcetypes.CompletedAction, 5)
	for i := range actions {
		actions[i] = pcetypes.CompletedAction{
			ActionPlan:     pcetypes.ActionPlan{Priority: 1, ExpectedImpact: 0.5},
			ObservedImpact: 0.5,
			CompletedAt:    now.Add(time.Duration(i) * time.Second),
		}
	}
	e := New(fakeSource{actions: actions}, DefaultWeights())
	snap, err := e.Compute(context.Background())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if snap.Components.Consistency != 1.0 {
		t.Errorf("consistency = %f, want 1.0", snap.Components.Consistency)
	}
	if snap.Components.ContradictionRate != 0.0 {
		t.Errorf("contradiction_rate = %f, want 0.0", snap.Components.ContradictionRate)
	}
	if snap.CCI < 0 || snap.CCI > 1 {
		t.Errorf("CCI %f out of range", snap.CCI)
	}
}

func TestContradictionsAggregatesTags(t *testing.T) {
	actions := []pcetypes.CompletedAction{
		{Violations: []string{"budget_negative"}},
		{Violations: []string{"budget_negative", "destructive_default"}},
		{Violations: nil},
	}
	e := New(fakeSource{actions: actions}, DefaultWeights())
	b, err := e.Contradictions(context.Background())
	if err != nil {
		t.Fatalf("Contradictions: %v", err)
	}
	if b.ByTag["budget_negative"] != 2 {
		t.Errorf("budget_negative count = %d, want 2", b.ByTag["budget_negative"])
	}
	if len(b.TopTags) == 0 || b.TopTags[0] != "budget_negative" {
		t.Errorf("TopTags = %v, want budget_negative first", b.TopTags)
	}
}
