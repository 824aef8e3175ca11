// Package transport hands generated interchanges to the transport
// collaborator. This subsystem never opens SFTP or AS2 sessions itself; it
// publishes a file-ready notice and later receives the transmitted callback.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/caretide/go-edi/internal/infrastructure/redpanda"
	"github.com/caretide/go-edi/pkg/circuitbreaker"
)

// FileReadyNotice tells the transport collaborator a file is waiting in the
// generated-file store.
type FileReadyNotice struct {
	FileID             string    `json:"file_id"`
	ReceiverID         string    `json:"receiver_id"`
	InterchangeControl int64     `json:"interchange_control"`
	ClaimCount         int       `json:"claim_count"`
	ReadyAt            time.Time `json:"ready_at"`
}

// Publisher is the producer surface the dispatcher needs.
type Publisher interface {
	ProduceMessage(ctx context.Context, topic, key string, value []byte) error
}

// Dispatcher publishes file-ready notices behind a per-receiver circuit
// breaker: one payer gateway flapping must not block dispatch to the others.
type Dispatcher struct {
	producer Publisher
	breakers *circuitbreaker.Manager
	topic    string
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher publishing to the outbound files topic.
func NewDispatcher(producer Publisher, breakers *circuitbreaker.Manager, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		producer: producer,
		breakers: breakers,
		topic:    redpanda.TopicFilesOutbound,
		logger:   logger,
		tracer:   otel.Tracer("transport-dispatcher"),
	}
}

// Dispatch publishes the notice for one generated file. The message key is
// the receiver ID so all files for one payer stay ordered on one partition.
func (d *Dispatcher) Dispatch(ctx context.Context, notice FileReadyNotice) error {
	ctx, span := d.tracer.Start(ctx, "dispatch_file",
		trace.WithAttributes(
			attribute.String("file_id", notice.FileID),
			attribute.String("receiver_id", notice.ReceiverID),
		))
	defer span.End()

	cb, err := d.breakers.GetOrCreate("transport:"+notice.ReceiverID, circuitbreaker.DefaultConfig(""))
	if err != nil {
		return fmt.Errorf("circuit breaker for receiver %s: %w", notice.ReceiverID, err)
	}

	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal file-ready notice: %w", err)
	}

	_, err = cb.Execute(ctx, func() (interface{}, error) {
		return nil, d.producer.ProduceMessage(ctx, d.topic, notice.ReceiverID, payload)
	})
	if err != nil {
		span.RecordError(err)
		d.logger.Error("file dispatch failed",
			zap.String("file_id", notice.FileID),
			zap.String("receiver_id", notice.ReceiverID),
			zap.Error(err))
		return fmt.Errorf("dispatch file %s: %w", notice.FileID, err)
	}

	d.logger.Info("file dispatched",
		zap.String("file_id", notice.FileID),
		zap.String("receiver_id", notice.ReceiverID),
		zap.Int64("interchange_control", notice.InterchangeControl),
		zap.Int("claims", notice.ClaimCount))
	return nil
}
