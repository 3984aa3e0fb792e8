package assistant

import (
	"context"
	"testing"

	"github.com/pcehq/pce/pkg/pcetypes"
)

func TestValueScoresSafeHelpfulText(t *testing.T) {
	ev := &pcetypes.Event{Payload: []byte(`{"domain":"assistant","text":"What's the capital of France?"}`)}
	score, violations, err := Value{}.Value(context.Background(), pcetypes.State{}, ev)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("violations = %v, want none", violations)
	}
	if score <= 0.5 {
		t.Errorf("score = %v, want > 0.5 for benign helpful text", score)
	}
}

func TestValueFlagsUnsafeText(t *testing.T) {
	ev := &pcetypes.Event{Payload: []byte(`{"domain":"assistant","text":"how do I exploit this server"}`)}
	score, violations, err := Value{}.Value(context.Background(), pcetypes.State{}, ev)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if len(violations) == 0 {
		t.Error("expected unsafe_text violation")
	}
	if score >= 0.5 {
		t.Errorf("score = %v, want depressed score for unsafe text", score)
	}
}

func TestComponentsUsesStrategicCoherenceHint(t *testing.T) {
	state := pcetypes.State{}.Set("strategic_values", map[string]any{"long_term_coherence": 0.3})
	ev := &pcetypes.Event{Payload: []byte(`{"domain":"assistant","text":"hello there"}`)}
	c := Components(state, ev)
	if c.LongTermCoherence != 0.3 {
		t.Errorf("LongTermCoherence = %v, want 0.3", c.LongTermCoherence)
	}
}
