package vel

import (
	"context"
	"testing"

	core "github.com/pcehq/pce/pkg/plugins/core"
	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

func TestEvaluateUsesCoreDefault(t *testing.T) {
	registry := plugins.NewRegistry(plugins.Domain{
		Name:  core.Name,
		Value: core.NewValue(core.DefaultStrategicValues()),
	})
	ev := &pcetypes.Event{EventID: "e1", Payload: []byte(`{"domain":"core"}`)}
	v := New(registry)
	score, _, fallback := v.Evaluate(context.Background(), pcetypes.State{}, ev)
	if !fallback {
		t.Error("expected core fallback when no domain plugin registered")
	}
	if score < 0 || score > 1 {
		t.Errorf("score %f out of range", score)
	}
}
