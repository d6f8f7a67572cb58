package hooks

import (
	"testing"
	"time"

	"github.com/lifeinbox/intake/internal/dump"
)

var detectNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func itemWith(content string) *dump.Dump {
	return &dump.Dump{
		ID:         "dump-1",
		OwnerID:    "owner-1",
		RawContent: content,
		Kind:       dump.KindText,
		Status:     dump.StatusCompleted,
	}
}

func suggestionsOfType(suggestions []dump.Suggestion, kind string) []dump.Suggestion {
	var out []dump.Suggestion
	for _, s := range suggestions {
		if s.Type == kind {
			out = append(out, s)
		}
	}
	return out
}

func TestDetectUPSTrackingNumber(t *testing.T) {
	suggestions := Detect(itemWith("your order shipped, tracking 1Z999AA10123456784"), detectNow)
	tracking := suggestionsOfType(suggestions, SuggestionTracking)
	if len(tracking) != 1 {
		t.Fatalf("expected one tracking suggestion, got %+v", suggestions)
	}
	if tracking[0].Payload != "1Z999AA10123456784" {
		t.Fatalf("unexpected payload %q", tracking[0].Payload)
	}
	if tracking[0].DumpID != "dump-1" || tracking[0].OwnerID != "owner-1" {
		t.Fatalf("suggestion not attributed to the item: %+v", tracking[0])
	}
}

func TestDetectBareDigitsNeedCarrierContext(t *testing.T) {
	// A long digit run with no shipping language is not a tracking number.
	if s := suggestionsOfType(Detect(itemWith("call me at 123456789012"), detectNow), SuggestionTracking); len(s) != 0 {
		t.Fatalf("expected no tracking suggestion, got %+v", s)
	}
	if s := suggestionsOfType(Detect(itemWith("package 123456789012 arriving soon"), detectNow), SuggestionTracking); len(s) != 1 {
		t.Fatalf("expected one tracking suggestion, got %+v", s)
	}
}

func TestDetectSubscription(t *testing.T) {
	item := itemWith("Netflix subscription renews next month")
	item.Entities.Amounts = []dump.Entity{{Value: "$15.99", Confidence: 0.85}}

	subs := suggestionsOfType(Detect(item, detectNow), SuggestionSubscription)
	if len(subs) != 1 {
		t.Fatalf("expected one subscription suggestion")
	}
	if subs[0].Payload != "subscription detected, amount $15.99" {
		t.Fatalf("unexpected payload %q", subs[0].Payload)
	}
}

func TestDetectReminderFromFutureDate(t *testing.T) {
	item := itemWith("dentist appointment")
	item.AISummary = "Dentist appointment coming up"
	item.Entities.Dates = []dump.DateEntity{{
		Entity:   dump.Entity{Value: "2026-09-10", Confidence: 0.9},
		Resolved: time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
	}}

	reminders := suggestionsOfType(Detect(item, detectNow), SuggestionReminder)
	if len(reminders) != 1 {
		t.Fatalf("expected one reminder, got %+v", reminders)
	}
	if reminders[0].RemindAt == nil {
		t.Fatal("reminder must carry a remind_at time")
	}
	want := time.Date(2026, 9, 10, reminderHour, 0, 0, 0, time.UTC)
	if !reminders[0].RemindAt.Equal(want) {
		t.Fatalf("expected remind at %v, got %v", want, reminders[0].RemindAt)
	}
	if reminders[0].Payload != "Dentist appointment coming up" {
		t.Fatalf("unexpected payload %q", reminders[0].Payload)
	}
}

func TestDetectNoReminderForPastDate(t *testing.T) {
	item := itemWith("that meeting last week")
	item.Entities.Dates = []dump.DateEntity{{
		Entity:   dump.Entity{Value: "2026-08-20", Confidence: 0.9},
		Resolved: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}}

	if reminders := suggestionsOfType(Detect(item, detectNow), SuggestionReminder); len(reminders) != 0 {
		t.Fatalf("past dates must not schedule reminders, got %+v", reminders)
	}
}

func TestDetectNothing(t *testing.T) {
	if suggestions := Detect(itemWith("just a plain thought"), detectNow); len(suggestions) != 0 {
		t.Fatalf("expected no suggestions, got %+v", suggestions)
	}
	if suggestions := Detect(nil, detectNow); suggestions != nil {
		t.Fatalf("nil item must yield nil")
	}
}
