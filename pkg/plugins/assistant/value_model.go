package assistant

import (
	"context"
	"strings"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// ValueComponents are the assistant domain's explainable value inputs,
// surfaced verbatim in metadata.explain.vel.components.
type ValueComponents struct {
	Safety            float64 `json:"safety"`
	Efficiency        float64 `json:"efficiency"`
	LongTermCoherence float64 `json:"long_term_coherence"`
	Helpfulness       float64 `json:"helpfulness"`
}

// Value scores assistant observation events against tactical safety,
// efficiency, coherence and helpfulness values.
//
// Grounded on original_source/agents/llm-assistant/src/llm_assistant/value_model.py.
type Value struct{}

func (Value) Value(_ context.Context, state pcetypes.State, ev *pcetypes.Event) (float64, []string, error) {
	c := Components(state, ev)
	score := 0.35*c.Safety + 0.20*c.Efficiency + 0.20*c.LongTermCoherence + 0.25*c.Helpfulness
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	var violations []string
	if c.Safety < 0.5 {
		violations = append(violations, "unsafe_text")
	}
	return score, violations, nil
}

// Components computes the assistant value model's explainable components
// for one event against the current strategic_values state.
func Components(state pcetypes.State, ev *pcetypes.Event) ValueComponents {
	payload := ev.PayloadMap()
	text, _ := payload["text"].(string)
	textLen := len(text)

	var strategic map[string]any
	state.Get("strategic_values", &strategic)

	safety := 1.0
	lower := strings.ToLower(text)
	for _, token := range []string{"hack", "exploit", "malware"} {
		if strings.Contains(lower, token) {
			safety = 0.2
			break
		}
	}

	efficiency := 1.0
	switch {
	case textLen > 1400:
		efficiency = 0.4
	case textLen > 600:
		efficiency = 0.7
	}

	helpfulness := 0.4
	if textLen >= 8 {
		helpfulness = 0.8
	}

	coherence := 0.8
	if strategic != nil {
		if v, ok := strategic["long_term_coherence"]; ok {
			if f, ok := asFloat(v); ok {
				coherence = f
			}
		}
	}
	coherence = clamp01(coherence)

	return ValueComponents{
		Safety:            safety,
		Efficiency:        efficiency,
		LongTermCoherence: coherence,
		Helpfulness:       helpfulness,
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
