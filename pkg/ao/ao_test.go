package ao

import (
	"context"
	"testing"
	"time"

	core "github.com/pcehq/pce/pkg/plugins/core"
	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

func TestExecuteFallsBackToExpectedImpact(t *testing.T) {
	registry := plugins.NewRegistry(plugins.Domain{Name: core.Name})
	orc := New(registry).WithClock(func() time.Time { return time.Unix(0, 0) })

	ev := &pcetypes.Event{EventID: "e1", Payload: []byte(`{"domain":"core"}`)}
	plan := pcetypes.ActionPlan{ActionType: "observe", ExpectedImpact: 0.7}
	completed := orc.Execute(context.Background(), pcetypes.State{}, ev, plan, nil)

	if completed.ObservedImpact != 0.7 {
		t.Errorf("ObservedImpact = %f, want 0.7 (expected_impact stand-in)", completed.ObservedImpact)
	}
	if completed.ActionID == "" {
		t.Error("expected ActionID to be assigned")
	}
	if !completed.Success {
		t.Error("expected Success=true with no probe")
	}
}
