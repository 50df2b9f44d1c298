package audit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestServiceWritesQueuedEvents(t *testing.T) {
	sink := NewMemorySink()
	svc := NewService(sink, zerolog.Nop(), 16)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	svc.Record("admin", ActionCreated, ResourceRule, "r1", "example.com")
	svc.Record("admin", ActionExecuted, ResourceSnippet, "s1", "promo")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	first := events[0]
	if first.Actor != "admin" || first.Action != ActionCreated || first.Resource != ResourceRule {
		t.Errorf("unexpected event: %+v", first)
	}
	if first.ResourceID != "r1" || first.Detail != "example.com" {
		t.Errorf("unexpected event context: %+v", first)
	}
	if !first.OccurredAt.Equal(at) {
		t.Errorf("occurred at = %v, want %v", first.OccurredAt, at)
	}
	if events[1].Action != ActionExecuted {
		t.Errorf("events out of order: %+v", events)
	}
}

func TestServiceDropsWhenQueueFull(t *testing.T) {
	sink := NewMemorySink()
	svc := NewService(sink, zerolog.Nop(), 1)

	// Flood well past the queue size; Record must never block even when
	// the worker cannot keep up.
	for i := 0; i < 100; i++ {
		svc.Record("admin", ActionUpdated, ResourceRule, "r1", "")
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	if got := len(sink.Events()); got == 0 || got > 100 {
		t.Errorf("expected between 1 and 100 written events, got %d", got)
	}
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	svc := NewService(NewMemorySink(), zerolog.Nop(), 4)
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
}
