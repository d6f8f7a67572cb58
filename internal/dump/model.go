// Package dump defines the captured content item and its enrichment
// sidecar, plus the postgres store that persists them.
package dump

import (
	"time"
)

// Kind identifies the modality of a captured content item.
type Kind string

const (
	KindText     Kind = "text"
	KindVoice    Kind = "voice"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// Valid reports whether the kind is one of the supported modalities.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindVoice, KindImage, KindDocument:
		return true
	default:
		return false
	}
}

// Status is the processing state of a dump.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether moving from s to next is a legal
// lifecycle step. Terminal states never transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Entity is a single extracted fact with matcher confidence and the
// source text it was matched from.
type Entity struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Span       string  `json:"span,omitempty"`
}

// DateEntity is an extracted date reference resolved to a timestamp.
type DateEntity struct {
	Entity
	Resolved time.Time `json:"resolved"`
}

// EntitySummary aggregates extraction results.
type EntitySummary struct {
	Total             int            `json:"total"`
	ByType            map[string]int `json:"by_type"`
	AverageConfidence float64        `json:"average_confidence"`
}

// CategorySuggestion is an alternative category ordered by confidence.
type CategorySuggestion struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Categorization records the best-guess category for a dump. Category
// is applied automatically only above the auto-apply threshold;
// otherwise it is a suggestion awaiting human confirmation.
type Categorization struct {
	Category     string               `json:"category"`
	Confidence   float64              `json:"confidence"`
	Reasoning    string               `json:"reasoning,omitempty"`
	Alternatives []CategorySuggestion `json:"alternatives,omitempty"`
	AutoApplied  bool                 `json:"auto_applied"`
}

// Entities is the structured sidecar produced by enrichment. Every
// field degrades to an empty-but-valid shape when extraction fails, so
// consumers never distinguish missing from empty.
type Entities struct {
	Dates         []DateEntity `json:"dates"`
	Times         []Entity     `json:"times"`
	Locations     []Entity     `json:"locations"`
	People        []Entity     `json:"people"`
	Organizations []Entity     `json:"organizations"`
	Amounts       []Entity     `json:"amounts"`
	Phones        []Entity     `json:"phones"`
	Emails        []Entity     `json:"emails"`
	URLs          []Entity     `json:"urls"`

	Summary EntitySummary `json:"summary"`

	ActionItems []string `json:"action_items"`
	Sentiment   string   `json:"sentiment,omitempty"`
	Urgency     string   `json:"urgency,omitempty"`

	Categorization Categorization `json:"categorization"`
}

// DateValues returns the resolved timestamps of all extracted dates.
func (e Entities) DateValues() []time.Time {
	if len(e.Dates) == 0 {
		return nil
	}
	dates := make([]time.Time, 0, len(e.Dates))
	for _, d := range e.Dates {
		dates = append(dates, d.Resolved)
	}
	return dates
}

// Dump is one captured unit of user content plus its enrichment
// metadata. It is created when raw content arrives and mutated only by
// the processing pipeline.
type Dump struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	RawContent   string    `json:"raw_content"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	AISummary    string    `json:"ai_summary,omitempty"`
	AIConfidence int       `json:"ai_confidence"`
	Category     *string   `json:"category,omitempty"`
	Entities     Entities  `json:"entities"`
	UrgencyLevel int       `json:"urgency_level"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Suggestion is a secondary finding produced by post-processing hooks,
// e.g. a trackable shipment or a reminder candidate.
type Suggestion struct {
	ID        string     `json:"id"`
	DumpID    string     `json:"dump_id"`
	OwnerID   string     `json:"owner_id"`
	Type      string     `json:"type"`
	Payload   string     `json:"payload"`
	RemindAt  *time.Time `json:"remind_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
