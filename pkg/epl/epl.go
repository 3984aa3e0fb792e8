// Package epl is the Event Processing Layer: it validates raw producer
// payloads against the event envelope schema and stamps them into the
// internal pcetypes.Event shape used by the rest of the pipeline.
package epl

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pcehq/pce/pkg/pcetypes"
)

const schemaURL = "https://pce.local/schema/event-envelope.schema.json"

// envelopeSchema is the JSON Schema for the wire event envelope described in
// the external interfaces: event_type, source and a payload object carrying
// at minimum a domain tag.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_type", "source", "payload"],
  "properties": {
    "event_type": {"type": "string", "minLength": 1},
    "source": {"type": "string", "minLength": 1},
    "schema_version": {"type": "string"},
    "payload": {
      "type": "object",
      "required": ["domain"],
      "properties": {
        "domain": {"type": "string", "minLength": 1},
        "session_id": {"type": "string"},
        "correlation_id": {"type": "string"},
        "tags": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

// registeredEventTypes are the literal event_type tags with a known domain
// payload shape, per §4.1: "Event schemas are registered per event_type;
// the validator never guesses a schema." Observation and feedback events
// carry a per-domain suffix (observation.assistant.v1,
// feedback.rover.step, ...) so those two families are matched by prefix
// instead of being enumerated one-by-one.
var registeredEventTypes = map[string]struct{}{
	"project.goal.defined": {},
	"part.candidate.added": {},
	"budget.updated":       {},
	"purchase.requested":   {},
	"purchase.completed":   {},
	"purchase.rejected":    {},
	"test.result.recorded": {},
	"market_signal":        {},
	"market.candle":        {},
	"robot_telemetry":      {},
}

func knownEventType(eventType string) bool {
	if _, ok := registeredEventTypes[eventType]; ok {
		return true
	}
	return strings.HasPrefix(eventType, "observation.") || strings.HasPrefix(eventType, "feedback.")
}

// Validator validates raw producer input and stamps it into a pcetypes.Event.
type Validator struct {
	schema     *jsonschema.Schema
	minVersion *semver.Version
	maxVersion *semver.Version
}

// Option configures a Validator.
type Option func(*Validator)

// WithVersionRange restricts which schema_version values ingest accepts. An
// event without schema_version is treated as compatible with any range.
func WithVersionRange(min, max string) Option {
	return func(v *Validator) {
		if sv, err := semver.NewVersion(min); err == nil {
			v.minVersion = sv
		}
		if sv, err := semver.NewVersion(max); err == nil {
			v.maxVersion = sv
		}
	}
}

// New compiles the event envelope schema once at boot.
func New(opts ...Option) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(envelopeSchema)); err != nil {
		return nil, fmt.Errorf("epl: load envelope schema: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("epl: compile envelope schema: %w", err)
	}
	v := &Validator{schema: compiled}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// ValidationError wraps a schema rejection; callers surface it as HTTP 400.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return "invalid_schema: " + e.Detail }

// Ingest validates raw JSON bytes against the envelope schema and returns a
// stamped internal event. EPL is the single point of entry for every event,
// so it stamps event_id (a random UUID) and ts (the wall clock) directly.
func (v *Validator) Ingest(raw []byte) (*pcetypes.Event, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Detail: err.Error()}
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, &ValidationError{Detail: err.Error()}
	}

	var env struct {
		EventType     string          `json:"event_type"`
		Source        string          `json:"source"`
		SchemaVersion string          `json:"schema_version"`
		Payload       json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ValidationError{Detail: err.Error()}
	}

	if !knownEventType(env.EventType) {
		return nil, &ValidationError{Detail: fmt.Sprintf("unregistered event_type %q", env.EventType)}
	}
	if err := v.checkVersion(env.SchemaVersion); err != nil {
		return nil, err
	}

	return &pcetypes.Event{
		EventID:   uuid.NewString(),
		EventType: env.EventType,
		Source:    env.Source,
		TS:        time.Now().UnixMilli(),
		Payload:   env.Payload,
	}, nil
}

func (v *Validator) checkVersion(raw string) error {
	if raw == "" || (v.minVersion == nil && v.maxVersion == nil) {
		return nil
	}
	sv, err := semver.NewVersion(raw)
	if err != nil {
		return &ValidationError{Detail: fmt.Sprintf("malformed schema_version %q: %v", raw, err)}
	}
	if v.minVersion != nil && sv.LessThan(v.minVersion) {
		return &ValidationError{Detail: fmt.Sprintf("schema_version %s older than supported minimum %s", sv, v.minVersion)}
	}
	if v.maxVersion != nil && sv.GreaterThan(v.maxVersion) {
		return &ValidationError{Detail: fmt.Sprintf("schema_version %s newer than supported maximum %s", sv, v.maxVersion)}
	}
	return nil
}
