// Package outbox stores events next to the state change that produced them
// and relays them to Kafka from a polling publisher.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wms-platform/transfer-service/pkg/cloudevents"
)

// DefaultMaxRetries is the number of publish attempts before an event is parked
const DefaultMaxRetries = 10

// OutboxEvent is one pending or relayed CloudEvent. Its ID is the CloudEvent
// id, so a publish retried after a crash carries the same id downstream.
type OutboxEvent struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retryCount" json:"retryCount"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
}

// NewOutboxEventFromCloudEvent wraps a CloudEvent bound for topic
func NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topic string, event *cloudevents.WMSCloudEvent) (*OutboxEvent, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("cloud event %s has no id", event.Type)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", event.Type, err)
	}

	createdAt := event.Time
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &OutboxEvent{
		ID:            event.ID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     event.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     createdAt,
		MaxRetries:    DefaultMaxRetries,
	}, nil
}

func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// Parked reports whether the relay has given up on the event
func (e *OutboxEvent) Parked() bool {
	return !e.IsPublished() && e.RetryCount >= e.MaxRetries
}

// ToCloudEvent decodes the stored payload
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.WMSCloudEvent, error) {
	var event cloudevents.WMSCloudEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode outbox event %s: %w", e.ID, err)
	}
	return &event, nil
}
