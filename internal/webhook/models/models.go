package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusDead      Status = "dead"
)

// FallbackFamily names the subscriber that receives events no family claims.
const FallbackFamily = "*"

// Message is one outbox row. ID doubles as the delivery idempotency key.
type Message struct {
	ID            uuid.UUID
	EventType     string
	Payload       json.RawMessage
	EmittedAt     time.Time
	Status        Status
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	DeliveredAt   *time.Time
}

// Family is the event type prefix used to route to a subscriber, e.g.
// "registry" for "registry.consent_revoked".
func (m Message) Family() string {
	return Family(m.EventType)
}

func Family(eventType string) string {
	family, _, _ := strings.Cut(eventType, ".")
	return family
}

// Envelope is the JSON body posted to subscribers and mirrored to Kafka.
type Envelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	EmittedAt time.Time       `json:"emitted_at"`
	Payload   json.RawMessage `json:"payload"`
}

func (m Message) Envelope() Envelope {
	return Envelope{
		ID:        m.ID.String(),
		EventType: m.EventType,
		EmittedAt: m.EmittedAt,
		Payload:   m.Payload,
	}
}
