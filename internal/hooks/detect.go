// Package hooks runs secondary detections after a dump is persisted:
// trackable shipments, subscriptions, and reminder candidates. Detection is
// fire-and-forget relative to the request that created the content.
package hooks

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifeinbox/intake/internal/dump"
	"github.com/lifeinbox/intake/internal/triage"
)

// Suggestion types produced by the detectors.
const (
	SuggestionTracking     = "tracking"
	SuggestionSubscription = "subscription"
	SuggestionReminder     = "reminder"
)

// reminderHour is the local hour of day reminders are scheduled for.
const reminderHour = 9

var (
	upsPattern      = regexp.MustCompile(`\b1Z[A-HJ-NP-Z0-9]{16}\b`)
	uspsPattern     = regexp.MustCompile(`\b9[234]\d{20,24}\b`)
	carrierPattern  = regexp.MustCompile(`(?i)\b(?:tracking|shipment|shipped|package|parcel)\b`)
	parcelIDPattern = regexp.MustCompile(`\b\d{12,15}\b`)

	subscriptionPattern = regexp.MustCompile(`(?i)\b(?:subscription|renews?|renewal|auto-renew|trial (?:ends|expires)|membership)\b`)
)

// Detect inspects a single persisted dump and returns zero or more
// suggestions. It is scoped to the one item, never a re-scan, and is pure so
// failures in callers stay isolated.
func Detect(item *dump.Dump, now time.Time) []dump.Suggestion {
	if item == nil {
		return nil
	}
	var suggestions []dump.Suggestion
	text := item.RawContent

	for _, number := range trackingNumbers(text) {
		suggestions = append(suggestions, newSuggestion(item, SuggestionTracking, number, nil))
	}

	if subscriptionPattern.MatchString(text) {
		payload := "subscription detected"
		if len(item.Entities.Amounts) > 0 {
			payload = "subscription detected, amount " + item.Entities.Amounts[0].Value
		}
		suggestions = append(suggestions, newSuggestion(item, SuggestionSubscription, payload, nil))
	}

	if earliest, ok := triage.EarliestDate(item.Entities.DateValues()); ok {
		remindAt := time.Date(earliest.Year(), earliest.Month(), earliest.Day(), reminderHour, 0, 0, 0, earliest.Location())
		if remindAt.After(now) {
			suggestions = append(suggestions, newSuggestion(item, SuggestionReminder, item.AISummary, &remindAt))
		}
	}

	return suggestions
}

func trackingNumbers(text string) []string {
	var numbers []string
	seen := map[string]bool{}
	add := func(candidates []string) {
		for _, c := range candidates {
			if !seen[c] {
				seen[c] = true
				numbers = append(numbers, c)
			}
		}
	}

	add(upsPattern.FindAllString(text, -1))
	add(uspsPattern.FindAllString(text, -1))

	// Bare digit runs are tracking numbers only with carrier context nearby.
	if carrierPattern.MatchString(text) {
		add(parcelIDPattern.FindAllString(text, -1))
	}
	return numbers
}

func newSuggestion(item *dump.Dump, kind, payload string, remindAt *time.Time) dump.Suggestion {
	return dump.Suggestion{
		ID:        uuid.New().String(),
		DumpID:    item.ID,
		OwnerID:   item.OwnerID,
		Type:      kind,
		Payload:   strings.TrimSpace(payload),
		RemindAt:  remindAt,
		CreatedAt: time.Now().UTC(),
	}
}
