// Package claim implements the claim aggregate and domain events.
package claim

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event
type EventType string

const (
	EventClaimCreated     EventType = "ClaimCreated"
	EventClaimGenerated   EventType = "ClaimGenerated"
	EventClaimTransmitted EventType = "ClaimTransmitted"
	EventClaimAccepted    EventType = "ClaimAccepted"
	EventClaimRejected    EventType = "ClaimRejected"
	EventClaimPaid        EventType = "ClaimPaid"
	EventClaimDenied      EventType = "ClaimDenied"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event
func NewEvent(aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: "Claim",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// ClaimCreatedData contains the resolved billing data the claim was built from
type ClaimCreatedData struct {
	ClaimID        string        `json:"claim_id"`
	PatientID      string        `json:"patient_id"`
	ProviderID     string        `json:"provider_id"`
	PayerID        string        `json:"payer_id"`
	PeriodStart    time.Time     `json:"period_start"`
	PeriodEnd      time.Time     `json:"period_end"`
	DiagnosisCodes []string      `json:"diagnosis_codes"`
	Lines          []ServiceLine `json:"lines"`
}

// ClaimGeneratedData contains the generation result reference
type ClaimGeneratedData struct {
	ClaimID            string    `json:"claim_id"`
	FileID             string    `json:"file_id"`
	InterchangeControl int64     `json:"interchange_control"`
	GroupControl       int64     `json:"group_control"`
	TransactionControl int64     `json:"transaction_control"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// ClaimTransmittedData contains the transport pickup signal
type ClaimTransmittedData struct {
	ClaimID       string    `json:"claim_id"`
	TransmittedAt time.Time `json:"transmitted_at"`
}

// ClaimAcknowledgedData is the audit record of one applied payer
// acknowledgment; it is what makes re-application idempotent across restarts.
type ClaimAcknowledgedData struct {
	ClaimID     string    `json:"claim_id"`
	AckID       string    `json:"ack_id"`
	AckType     AckType   `json:"ack_type"`
	Outcome     Outcome   `json:"outcome"`
	ReasonCodes []string  `json:"reason_codes,omitempty"`
	PaidCents   int64     `json:"paid_cents,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

func unmarshalEventData(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
