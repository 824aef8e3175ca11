package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/caretide/go-edi/internal/domain/claim"
	"github.com/caretide/go-edi/internal/infrastructure/redpanda"
)

// ClaimStatusOutbox queues claim events on the status topic so the web and
// transport collaborators can observe lifecycle transitions. Satisfies
// claim.OutboxWriter.
type ClaimStatusOutbox struct{}

// NewClaimStatusOutbox creates the outbox writer for claim status events.
func NewClaimStatusOutbox() *ClaimStatusOutbox {
	return &ClaimStatusOutbox{}
}

// Write queues one claim event in the same transaction that stores it. The
// Kafka key is the claim ID, keeping each claim's history ordered on one
// partition.
func (o *ClaimStatusOutbox) Write(ctx context.Context, tx pgx.Tx, event *claim.Event) error {
	return WriteEntry(ctx, tx, &OutboxEntry{
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     string(event.EventType),
		Payload:       event.EventData,
		KafkaTopic:    redpanda.TopicClaimStatus,
		KafkaKey:      event.AggregateID,
	})
}
