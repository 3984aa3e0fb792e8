package afs

import (
	"context"
	"testing"

	core "github.com/pcehq/pce/pkg/plugins/core"
	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

func TestAdaptSkipsNonFeedbackEvents(t *testing.T) {
	registry := plugins.NewRegistry(plugins.Domain{Name: core.Name, Adaptation: core.Adaptation{}})
	a := New(registry)
	ev := &pcetypes.Event{EventID: "e1", EventType: "observation.assistant.v1", Payload: []byte(`{"domain":"assistant","session_id":"s1"}`)}
	state := pcetypes.State{}
	next, err := a.Adapt(context.Background(), state, ev)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if len(next) != 0 {
		t.Errorf("expected state unchanged for non-feedback event, got %v", next)
	}
}

func TestAdaptAppliesCoreDefaultOnFeedback(t *testing.T) {
	registry := plugins.NewRegistry(plugins.Domain{Name: core.Name, Adaptation: core.Adaptation{}})
	a := New(registry)
	ev := &pcetypes.Event{
		EventID:   "e1",
		EventType: "feedback.assistant.v1",
		Payload:   []byte(`{"domain":"assistant","session_id":"s1","reward":1,"notes":"good"}`),
	}
	next, err := a.Adapt(context.Background(), pcetypes.State{}, ev)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	var mem struct {
		Preferences map[string][]string `json:"preferences"`
	}
	next.Get("assistant", &mem)
	if len(mem.Preferences["s1"]) != 1 {
		t.Errorf("expected 1 preference recorded, got %v", mem.Preferences)
	}
}
