package epl

import "testing"

func TestIngestValid(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw := []byte(`{"event_type":"observation.assistant.v1","source":"cli","payload":{"domain":"assistant","session_id":"s1"}}`)
	ev, err := v.Ingest(raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if ev.EventID == "" {
		t.Error("expected stamped event_id")
	}
	if ev.Domain() != "assistant" {
		t.Errorf("Domain() = %q, want assistant", ev.Domain())
	}
	if ev.SessionID() != "s1" {
		t.Errorf("SessionID() = %q, want s1", ev.SessionID())
	}
}

func TestIngestMissingDomain(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw := []byte(`{"event_type":"project.goal.defined","source":"cli","payload":{}}`)
	if _, err := v.Ingest(raw); err == nil {
		t.Fatal("expected validation error for missing payload.domain")
	}
}

func TestIngestUnregisteredEventType(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw := []byte(`{"event_type":"not.a.registered.type","source":"cli","payload":{"domain":"core"}}`)
	if _, err := v.Ingest(raw); err == nil {
		t.Fatal("expected validation error for unregistered event_type")
	}
}

func TestIngestMalformedJSON(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := v.Ingest([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestVersionRange(t *testing.T) {
	v, err := New(WithVersionRange("1.0.0", "1.9.9"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw := []byte(`{"event_type":"project.goal.defined","source":"s","schema_version":"2.0.0","payload":{"domain":"core"}}`)
	if _, err := v.Ingest(raw); err == nil {
		t.Fatal("expected rejection of out-of-range schema_version")
	}
}
