package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type captureRecorder struct {
	events []Event
	err    error
}

func (c *captureRecorder) Record(ctx context.Context, event Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

func TestMultiRecorderFanOut(t *testing.T) {
	a := &captureRecorder{}
	b := &captureRecorder{}
	multi := NewMultiRecorder(a, b)

	err := multi.Record(context.Background(), Event{EventType: EventTypeRoleGrant})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out incomplete: %d/%d", len(a.events), len(b.events))
	}
}

func TestMultiRecorderFailingSinkDoesNotStopOthers(t *testing.T) {
	broken := &captureRecorder{err: errors.New("sink down")}
	healthy := &captureRecorder{}
	multi := NewMultiRecorder(broken, healthy)

	err := multi.Record(context.Background(), Event{EventType: EventTypeInviteRedeem})
	if err == nil {
		t.Error("expected the sink error to surface")
	}
	if len(healthy.events) != 1 {
		t.Errorf("healthy sink got %d events", len(healthy.events))
	}
}

func TestFileRecorderWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	rec := NewWriterRecorder(&buf)

	events := []Event{
		{EventType: EventTypeInviteCreate, Status: EventStatusSuccess, ActorID: "inviter"},
		{EventType: EventTypeInviteRevoke, Status: EventStatusSuccess, ActorID: "inviter"},
	}
	for _, e := range events {
		if err := rec.Record(context.Background(), e); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if decoded.EventType != EventTypeInviteCreate {
		t.Errorf("event type = %s", decoded.EventType)
	}
	if decoded.Timestamp.IsZero() {
		t.Error("timestamp not filled in")
	}
}

func TestNopRecorder(t *testing.T) {
	var rec Recorder = NopRecorder{}
	if err := rec.Record(context.Background(), Event{}); err != nil {
		t.Errorf("nop record returned %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("nop close returned %v", err)
	}
}
