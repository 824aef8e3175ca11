// Package ackflow orchestrates inbound payer response processing: parse the
// file, expand interchange-scoped 999 events to the claims of the echoed
// group, and drive each event through the claim lifecycle. Malformed files
// are quarantined with the byte offset of the violation.
package ackflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/caretide/go-edi/internal/domain/claim"
	"github.com/caretide/go-edi/internal/infrastructure/postgres"
	"github.com/caretide/go-edi/internal/observability/metrics"
	"github.com/caretide/go-edi/internal/x12/ack"
)

// FileResolver maps an echoed functional group control number back to the
// generated file, and with it the claims a 999 speaks about.
type FileResolver interface {
	FindByGroupControl(ctx context.Context, senderID string, groupControl int64) (*postgres.GeneratedFile, error)
}

// Quarantiner stores files that cannot be decoded.
type Quarantiner interface {
	Save(ctx context.Context, f *postgres.QuarantinedFile) error
}

// Lifecycle applies one per-claim acknowledgment event.
type Lifecycle interface {
	Apply(ctx context.Context, event *claim.AcknowledgmentEvent) error
}

// Result reports what one file produced.
type Result struct {
	Events      int
	Applied     int
	Quarantined bool
}

// Processor runs the inbound response pipeline for one trading partner.
type Processor struct {
	parser     *ack.Parser
	files      FileResolver
	quarantine Quarantiner
	lifecycle  Lifecycle
	senderID   string
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewProcessor creates a response file processor. metrics may be nil in tests.
func NewProcessor(parser *ack.Parser, files FileResolver, quarantine Quarantiner, lifecycle Lifecycle, senderID string, m *metrics.Metrics, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		parser:     parser,
		files:      files,
		quarantine: quarantine,
		lifecycle:  lifecycle,
		senderID:   senderID,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("ack-processor"),
	}
}

// ProcessFile parses and applies one response file. A malformed file is
// quarantined and reported as an error; a well-formed file whose events
// cannot all be applied returns the count that were.
func (p *Processor) ProcessFile(ctx context.Context, source string, data []byte) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "process_response_file",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.Int("bytes", len(data)),
		))
	defer span.End()

	events, err := p.parser.Parse(ctx, data)
	if err != nil {
		var mr *ack.MalformedResponse
		if errors.As(err, &mr) {
			qerr := p.quarantine.Save(ctx, &postgres.QuarantinedFile{
				ID:     uuid.New().String(),
				Source: source,
				Offset: mr.Offset,
				Reason: mr.Reason,
				Data:   data,
			})
			if qerr != nil {
				p.logger.Error("quarantine failed", zap.Error(qerr))
			}
			if p.metrics != nil {
				p.metrics.FilesQuarantined.Inc()
			}
			span.RecordError(err)
			return &Result{Quarantined: true}, err
		}
		span.RecordError(err)
		return nil, err
	}

	expanded, err := p.expand(ctx, events)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := &Result{Events: len(expanded)}
	for _, ev := range expanded {
		if err := p.lifecycle.Apply(ctx, ev); err != nil {
			p.logger.Error("acknowledgment application failed",
				zap.String("claim_id", ev.ClaimID),
				zap.String("ack_id", ev.AckID),
				zap.Error(err))
			continue
		}
		if p.metrics != nil {
			p.metrics.AcksProcessed.WithLabelValues(string(ev.Type), string(ev.Outcome)).Inc()
		}
		res.Applied++
	}

	p.logger.Info("response file processed",
		zap.String("source", source),
		zap.Int("events", res.Events),
		zap.Int("applied", res.Applied))
	span.SetAttributes(attribute.Int("events", res.Events), attribute.Int("applied", res.Applied))
	return res, nil
}

// expand turns interchange-scoped 999 events into per-claim events via the
// generated-file store. Per-claim events pass through unchanged.
func (p *Processor) expand(ctx context.Context, events []*claim.AcknowledgmentEvent) ([]*claim.AcknowledgmentEvent, error) {
	var out []*claim.AcknowledgmentEvent
	for _, ev := range events {
		if ev.ClaimID != "" {
			out = append(out, ev)
			continue
		}

		gcn, err := strconv.ParseInt(ev.GroupControl, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("999 echoes non-numeric group control %q", ev.GroupControl)
		}
		file, err := p.files.FindByGroupControl(ctx, p.senderID, gcn)
		if err != nil {
			return nil, err
		}
		if file == nil {
			p.logger.Warn("999 references unknown functional group, dropping",
				zap.String("group_control", ev.GroupControl))
			continue
		}

		for _, claimID := range file.ClaimIDs {
			fanned := *ev
			fanned.ClaimID = claimID
			fanned.AckID = ev.AckID + ":" + claimID
			out = append(out, &fanned)
		}
	}
	return out, nil
}
