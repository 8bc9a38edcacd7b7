package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/TrainingPlatform/pkg/logger"
)

// Event is the envelope every platform event is published in. Payloads
// never carry secrets or token values.
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// Subject identifies what an event is about and who emitted it.
type Subject struct {
	AggregateID   string
	AggregateType string
	Source        string
}

// NewEvent encodes data into a version 1 event. The request correlation ID
// in ctx, if any, is carried along.
func NewEvent(ctx context.Context, eventType string, subj Subject, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateID:   subj.AggregateID,
		AggregateType: subj.AggregateType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		Source:        subj.Source,
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		Data:          raw,
	}, nil
}

// DecodeEvent parses a message value produced by Producer.Publish.
func DecodeEvent(value []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	return json.Unmarshal(e.Data, target)
}
