package kafka

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DLQPayload captures enough context to replay or inspect a failed Kafka message.
type DLQPayload struct {
	Topic       string            `json:"topic"`
	Partition   int32             `json:"partition"`
	Offset      int64             `json:"offset"`
	Timestamp   time.Time         `json:"timestamp"`
	OwnerID     string            `json:"owner_id,omitempty"`
	KeyBase64   string            `json:"key_base64,omitempty"`
	ValueBase64 string            `json:"value_base64"`
	Headers     map[string]string `json:"headers,omitempty"`
	Error       string            `json:"error"`
	Consumer    string            `json:"consumer"`
}

// EncodeDLQMessage serializes a Kafka message into a DLQ-safe payload. The
// owner is taken from the message payload when it is JSON, falling back to the
// owner_id header, so DLQ entries stay attributable without decoding the value.
func EncodeDLQMessage(msg Message, err error, consumer string) ([]byte, error) {
	payload := DLQPayload{
		Topic:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Timestamp,
		ValueBase64: base64.StdEncoding.EncodeToString(msg.Value),
		Headers:     msg.Headers,
		Consumer:    consumer,
	}

	if len(msg.Key) > 0 {
		payload.KeyBase64 = base64.StdEncoding.EncodeToString(msg.Key)
	}

	payload.OwnerID = ownerIDFrom(msg)
	if payload.OwnerID != "" {
		if payload.Headers == nil {
			payload.Headers = make(map[string]string, 1)
		}
		payload.Headers["owner_id"] = payload.OwnerID
	}

	if err != nil {
		payload.Error = err.Error()
	}

	b, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, fmt.Errorf("marshal dlq payload: %w", marshalErr)
	}

	return b, nil
}

func ownerIDFrom(msg Message) string {
	var envelope struct {
		OwnerID string `json:"owner_id"`
	}
	if jsonErr := json.Unmarshal(msg.Value, &envelope); jsonErr == nil && envelope.OwnerID != "" {
		return envelope.OwnerID
	}
	return msg.Headers["owner_id"]
}
