package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

func TestContentEventHandler_DecodesMessage(t *testing.T) {
	handled := false
	handler := NewContentEventHandler(func(_ context.Context, evt ContentEvent) error {
		handled = true
		if evt.EventType != EventContentCreated {
			t.Fatalf("wrong type %q", evt.EventType)
		}
		if evt.DumpID != "dump-1" {
			t.Fatalf("missing dump_id")
		}
		if evt.OwnerID != "owner-1" {
			t.Fatalf("missing owner_id")
		}
		return nil
	})

	msg := Message{
		Topic: TopicContentEvents,
		Value: []byte(`{"event_id":"1","event_type":"content.created","dump_id":"dump-1","source":"curator"}`),
		Headers: map[string]string{
			"owner_id": "owner-1",
		},
		Timestamp: time.Now(),
	}
	if err := handler.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !handled {
		t.Fatalf("handler not called")
	}
}

func TestContentEventHandlerServesAsConsumerHandler(t *testing.T) {
	consumer := newTestConsumer()

	var gotDump string
	consumer.handlers[TopicContentEvents] = NewContentEventHandler(
		func(_ context.Context, evt ContentEvent) error {
			gotDump = evt.DumpID
			return nil
		}).HandleMessage

	records := []*kgo.Record{{
		Topic: TopicContentEvents,
		Value: []byte(`{"event_id":"1","event_type":"content.created","dump_id":"dump-2","source":"curator"}`),
	}}

	commits := consumer.processRecords(context.Background(), records)
	if len(commits) != 1 {
		t.Fatalf("expected commit, got %d", len(commits))
	}
	if gotDump != "dump-2" {
		t.Fatalf("event not dispatched, got dump id %q", gotDump)
	}
}

func TestNewContentEventEnvelope(t *testing.T) {
	evt := NewContentEvent(EventSuggestionCreated, "curator", "owner-1", "dump-1")
	if evt.EventID == "" {
		t.Fatal("expected generated event id")
	}
	if evt.SchemaVersion != "1.0" {
		t.Fatalf("expected schema version 1.0, got %q", evt.SchemaVersion)
	}
	if evt.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}
