package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSensorReading = "sensor.reading"
	EnvelopeVersion        = "1.0.0"
)

// Envelope is the canonical wrapper for every event published to NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// Reading is one latest-stats sample for a sensor as returned by the fleet API.
type Reading struct {
	SensorID   string          `json:"sensor_id"`
	GatewayID  string          `json:"gateway_id,omitempty"`
	ObservedAt time.Time       `json:"observed_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload with fresh ids and a UTC timestamp.
func NewEnvelope(topic, eventType, source string, payload json.RawMessage) *Envelope {
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         topic,
		EventType:     eventType,
		Version:       EnvelopeVersion,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
}
