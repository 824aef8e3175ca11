package claim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AggregateStore loads and persists claim aggregates. Satisfied by
// *Repository; tests inject an in-memory implementation.
type AggregateStore interface {
	Load(ctx context.Context, id string) (*Aggregate, error)
	Save(ctx context.Context, agg *Aggregate) error
}

// LifecycleManager owns all claim state transitions. Acknowledgment
// application serializes per claim identifier so the true event order is
// preserved, while events for different claims apply concurrently.
type LifecycleManager struct {
	store  AggregateStore
	logger *zap.Logger
	tracer trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLifecycleManager creates a lifecycle manager
func NewLifecycleManager(store AggregateStore, logger *zap.Logger) *LifecycleManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleManager{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("claim-lifecycle"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// claimLock returns the per-claim mutex, creating it on first use.
func (m *LifecycleManager) claimLock(claimID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[claimID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[claimID] = l
	}
	return l
}

// Apply folds one acknowledgment event into its claim. Out-of-order events
// are logged and dropped, never applied; a duplicate acknowledgment ID is a
// silent no-op. Both cases return nil so one bad event does not poison the
// rest of a response file.
func (m *LifecycleManager) Apply(ctx context.Context, ack *AcknowledgmentEvent) error {
	if ack.ClaimID == "" {
		return fmt.Errorf("acknowledgment %s carries no claim reference", ack.AckID)
	}

	ctx, span := m.tracer.Start(ctx, "apply_acknowledgment",
		trace.WithAttributes(
			attribute.String("claim_id", ack.ClaimID),
			attribute.String("ack_id", ack.AckID),
			attribute.String("ack_type", string(ack.Type)),
		))
	defer span.End()

	lock := m.claimLock(ack.ClaimID)
	lock.Lock()
	defer lock.Unlock()

	agg, err := m.store.Load(ctx, ack.ClaimID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load claim %s: %w", ack.ClaimID, err)
	}

	applied, err := agg.ApplyAcknowledgment(ack)
	if err != nil {
		if errors.Is(err, ErrOutOfOrder) {
			m.logger.Warn("out-of-order acknowledgment ignored",
				zap.String("claim_id", ack.ClaimID),
				zap.String("ack_id", ack.AckID),
				zap.String("ack_type", string(ack.Type)),
				zap.String("claim_status", string(agg.Status())))
			span.SetAttributes(attribute.Bool("out_of_order", true))
			return nil
		}
		span.RecordError(err)
		return err
	}

	if !applied {
		m.logger.Debug("duplicate acknowledgment ignored",
			zap.String("claim_id", ack.ClaimID),
			zap.String("ack_id", ack.AckID))
		span.SetAttributes(attribute.Bool("duplicate", true))
		return nil
	}

	if err := m.store.Save(ctx, agg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("save claim %s: %w", ack.ClaimID, err)
	}

	m.logger.Info("acknowledgment applied",
		zap.String("claim_id", ack.ClaimID),
		zap.String("ack_id", ack.AckID),
		zap.String("ack_type", string(ack.Type)),
		zap.String("new_status", string(agg.Status())))
	return nil
}

// MarkTransmitted records the transport collaborator's pickup signal for one
// claim, under the same per-claim serialization as acknowledgments.
func (m *LifecycleManager) MarkTransmitted(ctx context.Context, claimID string, data *ClaimTransmittedData) error {
	lock := m.claimLock(claimID)
	lock.Lock()
	defer lock.Unlock()

	agg, err := m.store.Load(ctx, claimID)
	if err != nil {
		return fmt.Errorf("load claim %s: %w", claimID, err)
	}
	if err := agg.MarkTransmitted(data.TransmittedAt); err != nil {
		return err
	}
	return m.store.Save(ctx, agg)
}
