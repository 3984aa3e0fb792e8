// Package pcetypes defines the wire and domain types shared across the PCE
// pipeline stages.
package pcetypes

import (
	"encoding/json"
	"time"
)

// Event is a normalized event envelope, stamped once by the Event Validator
// and never mutated afterward.
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Source    string          `json:"source"`
	TS        int64           `json:"ts"` // server wall-clock ms
	Payload   json.RawMessage `json:"payload"`
}

// Domain returns payload.domain, the dispatch key for the Plugin Registry.
func (e *Event) Domain() string {
	return e.payloadString("domain")
}

// SessionID returns payload.session_id, the per-session memory key.
func (e *Event) SessionID() string {
	return e.payloadString("session_id")
}

// CorrelationID returns payload.correlation_id, falling back to the event id
// so every event can be grouped even when the producer omits it.
func (e *Event) CorrelationID() string {
	if v := e.payloadString("correlation_id"); v != "" {
		return v
	}
	return e.EventID
}

// Tags returns payload.tags as a set.
func (e *Event) Tags() map[string]struct{} {
	var raw struct {
		Tags []string `json:"tags"`
	}
	tags := map[string]struct{}{}
	if len(e.Payload) == 0 {
		return tags
	}
	if err := json.Unmarshal(e.Payload, &raw); err != nil {
		return tags
	}
	for _, t := range raw.Tags {
		tags[t] = struct{}{}
	}
	return tags
}

// PayloadMap decodes the payload into a generic map for merge/scoring stages
// that need to walk arbitrary domain fields.
func (e *Event) PayloadMap() map[string]any {
	out := map[string]any{}
	if len(e.Payload) == 0 {
		return out
	}
	_ = json.Unmarshal(e.Payload, &out)
	return out
}

func (e *Event) payloadString(key string) string {
	m := e.PayloadMap()
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// State is a mapping from string keys to arbitrary JSON-shaped values,
// copy-on-write and atomically persisted by the State Store.
type State map[string]json.RawMessage

// Clone returns a shallow copy safe for copy-on-write mutation of individual
// top-level keys.
func (s State) Clone() State {
	next := make(State, len(s))
	for k, v := range s {
		next[k] = v
	}
	return next
}

// Get decodes one top-level key into dst. Returns false if the key is absent.
func (s State) Get(key string, dst any) bool {
	raw, ok := s[key]
	if !ok || len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false
	}
	return true
}

// Set encodes v and stores it under key, returning the mutated state.
func (s State) Set(key string, v any) State {
	raw, err := json.Marshal(v)
	if err != nil {
		return s
	}
	s[key] = raw
	return s
}

// ActionPlan is the Decision Engine's proposed next action.
type ActionPlan struct {
	ActionType       string         `json:"action_type"`
	Priority         int            `json:"priority"`
	Rationale        string         `json:"rationale"`
	ExpectedImpact   float64        `json:"expected_impact"`
	Metadata         map[string]any `json:"metadata"`
	RequiresApproval bool           `json:"requires_approval"`
	Domain           string         `json:"domain"`
}

// Explain returns (and lazily creates) the metadata.explain bag for a given
// pipeline stage key ("epl", "isi", "vel", "cci", "de", "ao", "afs").
func (p *ActionPlan) Explain(stage string) map[string]any {
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	explain, ok := p.Metadata["explain"].(map[string]any)
	if !ok {
		explain = map[string]any{}
		p.Metadata["explain"] = explain
	}
	bag, ok := explain[stage].(map[string]any)
	if !ok {
		bag = map[string]any{}
		explain[stage] = bag
	}
	return bag
}

// CompletedAction is an ActionPlan plus its execution outcome.
type CompletedAction struct {
	ActionPlan
	ActionID       string    `json:"action_id"`
	EventID        string    `json:"event_id"`
	ValueScore     float64   `json:"value_score"`
	ObservedImpact float64   `json:"observed_impact"`
	Success        bool      `json:"success"`
	Violations     []string  `json:"violations"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ApprovalStatus is the terminal/non-terminal lifecycle state of a pending
// approval.
type ApprovalStatus string

const (
	ApprovalPending    ApprovalStatus = "pending"
	ApprovalApproved   ApprovalStatus = "approved"
	ApprovalRejected   ApprovalStatus = "rejected"
	ApprovalOverridden ApprovalStatus = "overridden"
	ApprovalExpired    ApprovalStatus = "expired"
)

// PendingApproval is a human-in-the-loop gate record.
type PendingApproval struct {
	ApprovalID     string         `json:"approval_id"`
	DecisionID     string         `json:"decision_id"`
	Status         ApprovalStatus `json:"status"`
	Action         ActionPlan     `json:"action"`
	ProjectedCost  float64        `json:"projected_cost"`
	Risk           string         `json:"risk"`
	Rationale      string         `json:"rationale"`
	CreatedAt      time.Time      `json:"created_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	Actor          string         `json:"actor,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	Override       bool           `json:"override,omitempty"`
	CorrelationID  string         `json:"correlation_id"`
}

// Terminal reports whether the approval has left the pending state.
func (a *PendingApproval) Terminal() bool {
	return a.Status != ApprovalPending
}

// CCIComponents are the four normalized [0,1] inputs to the coherence score.
type CCIComponents struct {
	Consistency        float64 `json:"consistency"`
	Stability          float64 `json:"stability"`
	ContradictionRate  float64 `json:"contradiction_rate"`
	PredictiveAccuracy float64 `json:"predictive_accuracy"`
	Unknown            bool    `json:"unknown,omitempty"`
}

// CCISnapshot is one coherence measurement appended after a completed action
// or terminal approval resolution.
type CCISnapshot struct {
	TS         time.Time     `json:"ts"`
	CCI        float64       `json:"cci"`
	Components CCIComponents `json:"components"`
}

// TranscriptKind enumerates the pipeline stages that emit a transcript item.
type TranscriptKind string

const (
	KindEventIngested   TranscriptKind = "event_ingested"
	KindAgentMessage    TranscriptKind = "agent_message"
	KindActionsProposed TranscriptKind = "actions_proposed"
	KindApprovalCreated TranscriptKind = "approval_created"
	KindApprovalUpdated TranscriptKind = "approval_updated"
	KindStateUpdated    TranscriptKind = "state_updated"
)

// TranscriptItem is one entry in the append-only operational log.
type TranscriptItem struct {
	Cursor        uint64         `json:"cursor"`
	TS            time.Time      `json:"ts"`
	Kind          TranscriptKind `json:"kind"`
	Agent         string         `json:"agent,omitempty"`
	Payload       map[string]any `json:"payload"`
	CorrelationID string         `json:"correlation_id"`
	DecisionID    string         `json:"decision_id,omitempty"`
}
