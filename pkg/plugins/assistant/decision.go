package assistant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pcehq/pce/pkg/llm"
	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

// Decision builds an LLM prompt from session memory and strategic values,
// calls the OpenRouter side channel, and emits an assistant.action plan.
//
// Grounded on
// original_source/src/pce/plugins/llm_assistant/decision.py:AssistantDecisionPlugin.
type Decision struct {
	Storage    *Storage
	LLM        *llm.Client
	ValueFloor float64
	CCIFloor   float64
}

const fallbackReply = "OpenRouter configuration missing or unavailable. Check the API key and model settings."

func (d Decision) Decide(ctx context.Context, in plugins.DecisionInput) (pcetypes.ActionPlan, error) {
	payload := in.Event.PayloadMap()
	sessionID := in.Event.SessionID()
	if sessionID == "" {
		sessionID = "global"
	}
	userText := strings.TrimSpace(stringField(payload, "text"))

	memory, err := d.Storage.SessionMemoryFor(ctx, sessionID)
	if err != nil {
		return pcetypes.ActionPlan{}, fmt.Errorf("assistant decision: load memory: %w", err)
	}
	policyState, err := d.Storage.PolicyState(ctx)
	if err != nil {
		return pcetypes.ActionPlan{}, fmt.Errorf("assistant decision: load policy: %w", err)
	}
	banditChoice := ChooseProfile(policyState)
	choice, overrideReason := ApplyProfileOverride(banditChoice, in.ValueScore, in.CCI, d.ValueFloor, d.CCIFloor)

	systemPrompt, userPrompt := buildPrompt(userText, memory, in.State)
	promptHash := hashPrompt(systemPrompt, userPrompt)

	var openrouterErr string
	replyText, err := d.LLM.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		replyText = fallbackReply
		if lerr, ok := err.(*llm.Error); ok {
			openrouterErr = lerr.Reason()
		} else {
			openrouterErr = "unknown_error"
		}
	}

	if _, err := d.Storage.AppendSessionMessage(ctx, sessionID, "user", userText); err != nil {
		return pcetypes.ActionPlan{}, fmt.Errorf("assistant decision: append user message: %w", err)
	}
	if _, err := d.Storage.AppendSessionMessage(ctx, sessionID, "assistant", replyText); err != nil {
		return pcetypes.ActionPlan{}, fmt.Errorf("assistant decision: append assistant message: %w", err)
	}
	if err := d.Storage.SetPendingFeedback(ctx, sessionID, PendingFeedback{
		ProfileID:  choice.ProfileID,
		Epsilon:    choice.Epsilon,
		ValueScore: in.ValueScore,
		CCI:        in.CCI,
		TS:         time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return pcetypes.ActionPlan{}, fmt.Errorf("assistant decision: set pending feedback: %w", err)
	}

	components := Components(in.State, in.Event)

	plan := pcetypes.ActionPlan{
		ActionType: "assistant.action",
		Priority:   2,
		Rationale: fmt.Sprintf("assistant profile=%s mode=%s epsilon=%.4f",
			choice.ProfileID, choice.Mode, choice.Epsilon),
		ExpectedImpact: in.ValueScore,
		Domain:         Name,
		Metadata: map[string]any{
			"action_payload": map[string]any{
				"type":   "assistant.reply",
				"text":   replyText,
				"format": "markdown",
			},
		},
	}

	epl := plan.Explain("epl")
	epl["event_type"] = in.Event.EventType
	epl["domain"] = in.Event.Domain()

	isi := plan.Explain("isi")
	isi["memory_used"] = map[string]any{
		"has_summary": memory.Summary != "",
		"msgs":        len(memory.LastMessages),
		"prefs":       len(memory.Preferences),
		"avoid":       memory.Avoid,
	}

	vel := plan.Explain("vel")
	vel["value_score"] = in.ValueScore
	vel["components"] = components

	cciExplain := plan.Explain("cci")
	cciExplain["cci"] = in.CCI

	de := plan.Explain("de")
	de["selected_by_bandit"] = banditChoice.ProfileID
	de["final_profile"] = choice.ProfileID
	de["final_decoding"] = choice.Config
	de["epsilon"] = choice.Epsilon
	de["mode"] = choice.Mode
	de["prompt_hash"] = promptHash
	if overrideReason != "" {
		de["override_reason"] = overrideReason
	}
	if openrouterErr != "" {
		de["openrouter_error"] = openrouterErr
	}

	plan.Explain("afs")["pending"] = true

	return plan, nil
}

// buildPrompt composes the bounded system+user prompt pair sent to
// OpenRouter: known preferences, strategic values, a rolling summary, and
// the latest user turn.
func buildPrompt(userText string, memory SessionMemory, state pcetypes.State) (string, string) {
	prefs := memory.Preferences
	if len(prefs) > 10 {
		prefs = prefs[len(prefs)-10:]
	}
	prefSection := "- none"
	if len(prefs) > 0 {
		lines := make([]string, 0, len(prefs))
		for _, p := range prefs {
			lines = append(lines, "- "+trim(p, 80))
		}
		prefSection = strings.Join(lines, "\n")
	}

	avoid := memory.Avoid
	if len(avoid) > 10 {
		avoid = avoid[len(avoid)-10:]
	}
	avoidSection := "- none"
	if len(avoid) > 0 {
		lines := make([]string, 0, len(avoid))
		for _, a := range avoid {
			lines = append(lines, "- "+trim(a, 80))
		}
		avoidSection = strings.Join(lines, "\n")
	}

	var strategic map[string]any
	state.Get("strategic_values", &strategic)
	strategicSection := "none"
	if len(strategic) > 0 {
		keys := make([]string, 0, len(strategic))
		for k := range strategic {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 8 {
			keys = keys[:8]
		}
		items := make([]string, 0, len(keys))
		for _, k := range keys {
			items = append(items, fmt.Sprintf("%s=%v", k, strategic[k]))
		}
		strategicSection = strings.Join(items, ", ")
	}

	system := fmt.Sprintf(
		"You are a helpful, safe, objective assistant. Reply in markdown with clarity. "+
			"Known preferences:\n%s\nThings to avoid (from past negative feedback):\n%s\n"+
			"Strategic goals: %s.\n"+
			"Internal rule: explain mode OFF. Never expose hidden reasoning.",
		prefSection, avoidSection, strategicSection,
	)
	if memory.Summary != "" {
		system += "\nRecent context summary (may be incomplete): " + trim(memory.Summary, 600)
	}

	user := trim(userText, 2000)
	return system, user
}

func hashPrompt(system, user string) string {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	raw, _ := json.Marshal([]msg{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
