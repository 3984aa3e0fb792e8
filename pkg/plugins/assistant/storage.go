package assistant

import (
	"context"
	"strings"
	"time"
)

// namespace is the plugin_kv namespace for every assistant-owned key.
const namespace = "llm_assistant"

// KV is the subset of pcestore used by assistant storage.
type KV interface {
	PluginGetJSON(ctx context.Context, namespace, key string, dst any) (bool, error)
	PluginSetJSON(ctx context.Context, namespace, key string, v any) error
	PluginDeletePrefix(ctx context.Context, namespace, prefix string) (int, error)
}

// SessionMemory is the bounded per-session conversational memory.
type SessionMemory struct {
	LastMessages []SessionMessage `json:"last_messages"`
	Summary      string           `json:"summary"`
	Preferences  []string         `json:"preferences"`
	Avoid        []string         `json:"avoid"`
}

// Metrics is the rolling feedback summary surfaced to the transcript and
// the /v1/os/state endpoint.
type Metrics struct {
	CountFeedbacks float64 `json:"count_feedbacks"`
	AvgReward      float64 `json:"avg_reward"`
	SuccessRate    float64 `json:"success_rate"`
}

// SessionMessage is one bounded turn of conversation history.
type SessionMessage struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	TS   time.Time `json:"ts"`
}

// PendingFeedback correlates a decision with the feedback event that will
// eventually reward it.
type PendingFeedback struct {
	ProfileID  string  `json:"profile_id"`
	Epsilon    float64 `json:"epsilon"`
	ValueScore float64 `json:"value_score"`
	CCI        float64 `json:"cci"`
	TS         string  `json:"ts"`
}

// Storage is namespace-scoped persistence for assistant memory, bandit
// policy, and pending-feedback correlation.
type Storage struct {
	kv KV
}

func NewStorage(kv KV) *Storage { return &Storage{kv: kv} }

// PolicyState loads the bandit state, seeding the default on first use.
func (s *Storage) PolicyState(ctx context.Context) (PolicyState, error) {
	var st PolicyState
	ok, err := s.kv.PluginGetJSON(ctx, namespace, "policy", &st)
	if err != nil {
		return PolicyState{}, err
	}
	if !ok {
		st = DefaultPolicyState()
		if err := s.kv.PluginSetJSON(ctx, namespace, "policy", st); err != nil {
			return PolicyState{}, err
		}
	}
	return st, nil
}

// SavePolicyState persists the bandit state.
func (s *Storage) SavePolicyState(ctx context.Context, st PolicyState) error {
	return s.kv.PluginSetJSON(ctx, namespace, "policy", st)
}

// SessionMemoryFor loads one session's bounded memory, defaulting to
// empty.
func (s *Storage) SessionMemoryFor(ctx context.Context, sessionID string) (SessionMemory, error) {
	var mem SessionMemory
	ok, err := s.kv.PluginGetJSON(ctx, namespace, "mem:"+sessionID, &mem)
	if err != nil {
		return SessionMemory{}, err
	}
	if !ok {
		return SessionMemory{}, nil
	}
	return mem, nil
}

func (s *Storage) saveSessionMemory(ctx context.Context, sessionID string, mem SessionMemory) error {
	return s.kv.PluginSetJSON(ctx, namespace, "mem:"+sessionID, mem)
}

const maxMessages = 10
const maxPreferences = 10

// AppendSessionMessage appends one bounded turn and refreshes the rolling
// summary used in future prompts.
func (s *Storage) AppendSessionMessage(ctx context.Context, sessionID, role, text string) (SessionMemory, error) {
	mem, err := s.SessionMemoryFor(ctx, sessionID)
	if err != nil {
		return SessionMemory{}, err
	}
	if len(text) > 800 {
		text = text[:800]
	}
	mem.LastMessages = append(mem.LastMessages, SessionMessage{Role: role, Text: text, TS: time.Now().UTC()})
	if len(mem.LastMessages) > maxMessages {
		mem.LastMessages = mem.LastMessages[len(mem.LastMessages)-maxMessages:]
	}

	summary := ""
	for i, m := range mem.LastMessages {
		if i > 0 {
			summary += " | "
		}
		t := m.Text
		if len(t) > 80 {
			t = t[:80]
		}
		summary += t
	}
	if len(summary) > 600 {
		summary = summary[len(summary)-600:]
	}
	mem.Summary = summary

	if err := s.saveSessionMemory(ctx, sessionID, mem); err != nil {
		return SessionMemory{}, err
	}
	return mem, nil
}

// AddPreference appends a bounded, deduplicated preference note.
func (s *Storage) AddPreference(ctx context.Context, sessionID, note string) error {
	mem, err := s.SessionMemoryFor(ctx, sessionID)
	if err != nil {
		return err
	}
	note = trim(note, 120)
	if note == "" {
		return nil
	}
	for _, existing := range mem.Preferences {
		if existing == note {
			return nil
		}
	}
	mem.Preferences = append(mem.Preferences, note)
	if len(mem.Preferences) > maxPreferences {
		mem.Preferences = mem.Preferences[len(mem.Preferences)-maxPreferences:]
	}
	return s.saveSessionMemory(ctx, sessionID, mem)
}

// AddAvoid appends a bounded, deduplicated "avoid" note, the negative
// counterpart to AddPreference.
func (s *Storage) AddAvoid(ctx context.Context, sessionID, note string) error {
	mem, err := s.SessionMemoryFor(ctx, sessionID)
	if err != nil {
		return err
	}
	note = trim(note, 120)
	if note == "" {
		return nil
	}
	for _, existing := range mem.Avoid {
		if existing == note {
			return nil
		}
	}
	mem.Avoid = append(mem.Avoid, note)
	if len(mem.Avoid) > maxPreferences {
		mem.Avoid = mem.Avoid[len(mem.Avoid)-maxPreferences:]
	}
	return s.saveSessionMemory(ctx, sessionID, mem)
}

const rewardWindowCap = 50

// RewardWindow loads the rolling window of the last observed rewards.
func (s *Storage) RewardWindow(ctx context.Context) ([]float64, error) {
	var window []float64
	_, err := s.kv.PluginGetJSON(ctx, namespace, "metrics:reward_window", &window)
	if err != nil {
		return nil, err
	}
	return window, nil
}

// SaveRewardWindow persists the rolling reward window, bounded to the last
// rewardWindowCap entries.
func (s *Storage) SaveRewardWindow(ctx context.Context, window []float64) error {
	if len(window) > rewardWindowCap {
		window = window[len(window)-rewardWindowCap:]
	}
	return s.kv.PluginSetJSON(ctx, namespace, "metrics:reward_window", window)
}

// SaveMetrics persists the rolling feedback metrics snapshot.
func (s *Storage) SaveMetrics(ctx context.Context, m Metrics) error {
	return s.kv.PluginSetJSON(ctx, namespace, "metrics:summary", m)
}

// LoadMetrics loads the rolling feedback metrics snapshot.
func (s *Storage) LoadMetrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	_, err := s.kv.PluginGetJSON(ctx, namespace, "metrics:summary", &m)
	return m, err
}

// SetPendingFeedback correlates the current decision with the session so
// AFS can reward the right bandit arm when feedback arrives.
func (s *Storage) SetPendingFeedback(ctx context.Context, sessionID string, pending PendingFeedback) error {
	return s.kv.PluginSetJSON(ctx, namespace, "pending:"+sessionID, pending)
}

// PopPendingFeedback loads and clears the pending correlation record.
func (s *Storage) PopPendingFeedback(ctx context.Context, sessionID string) (*PendingFeedback, error) {
	var pending PendingFeedback
	ok, err := s.kv.PluginGetJSON(ctx, namespace, "pending:"+sessionID, &pending)
	if err != nil || !ok {
		return nil, err
	}
	if _, err := s.kv.PluginDeletePrefix(ctx, namespace, "pending:"+sessionID); err != nil {
		return nil, err
	}
	return &pending, nil
}

// ClearAll resets every assistant-owned key, used by the clear_memory
// control endpoint.
func (s *Storage) ClearAll(ctx context.Context) (int, error) {
	deleted := 0
	for _, prefix := range []string{"mem:", "pending:", "policy", "metrics"} {
		n, err := s.kv.PluginDeletePrefix(ctx, namespace, prefix)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	if err := s.kv.PluginSetJSON(ctx, namespace, "policy", DefaultPolicyState()); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func trim(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}
