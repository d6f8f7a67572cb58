package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topics used by the intake pipeline.
const (
	TopicContentEvents = "content_events"
	DLQSuffix          = "_dlq"
)

// Event types published by the pipeline and its hooks.
const (
	EventContentCreated    = "content.created"
	EventContentFailed     = "content.failed"
	EventSuggestionCreated = "suggestion.created"
)

// ContentEvent is the envelope for everything published to content_events.
type ContentEvent struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	Source        string                 `json:"source"`
	OwnerID       string                 `json:"owner_id,omitempty"`
	DumpID        string                 `json:"dump_id,omitempty"`
	Kind          string                 `json:"kind,omitempty"`
	Category      *string                `json:"category,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	SchemaVersion string                 `json:"schema_version"`
}

// NewContentEvent builds an event envelope with a fresh ID and timestamp.
func NewContentEvent(eventType, source, ownerID, dumpID string) *ContentEvent {
	return &ContentEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		OwnerID:       ownerID,
		DumpID:        dumpID,
		SchemaVersion: "1.0",
	}
}

// ContentEventHandler decodes content_events messages and forwards them to a
// typed callback.
type ContentEventHandler struct {
	handler func(ctx context.Context, event ContentEvent) error
}

func NewContentEventHandler(handler func(ctx context.Context, event ContentEvent) error) *ContentEventHandler {
	return &ContentEventHandler{handler: handler}
}

// HandleMessage implements Handler.
func (h *ContentEventHandler) HandleMessage(ctx context.Context, msg Message) error {
	var event ContentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode content event: %w", err)
	}
	if event.EventType == "" {
		event.EventType = msg.Headers["event_type"]
	}
	if event.OwnerID == "" {
		event.OwnerID = msg.Headers["owner_id"]
	}
	return h.handler(ctx, event)
}

// ConsumerInterface defines the interface for Kafka consumers
type ConsumerInterface interface {
	Start(ctx context.Context) error
	Close() error
	GetMetrics() (map[string]interface{}, error)
	HealthCheck() error
}

// ProducerInterface defines the interface for Kafka producers
type ProducerInterface interface {
	ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error
	PublishContentEvent(event *ContentEvent) error
	Close() error
	HealthCheck() error
	GetMetrics() (map[string]interface{}, error)
}
