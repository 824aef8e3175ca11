// Package ack decodes payer response files (999, 277CA, 835) into normalized
// per-claim acknowledgment events.
package ack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/caretide/go-edi/internal/domain/claim"
	"github.com/caretide/go-edi/internal/x12"
)

// MalformedResponse reports a response file that cannot be decoded, with the
// byte offset of the violation. The caller quarantines the file; no events
// from a malformed file are ever applied, not even ones decoded before the
// violation.
type MalformedResponse struct {
	Offset int
	Reason string
	Err    error
}

func (e *MalformedResponse) Error() string {
	return fmt.Sprintf("malformed response at byte %d: %s", e.Offset, e.Reason)
}

func (e *MalformedResponse) Unwrap() error { return e.Err }

func malformed(offset int, format string, args ...any) *MalformedResponse {
	return &MalformedResponse{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// Parser decodes acknowledgment interchanges. Safe for concurrent use.
type Parser struct {
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewParser creates an acknowledgment parser.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		logger: logger,
		tracer: otel.Tracer("ack-parser"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Parse tokenizes the file, dispatches on the transaction set identifier of
// each ST, and returns the decoded events. Acknowledgment identifiers are
// derived from response content, so re-parsing a redelivered file yields the
// same identifiers and downstream application stays idempotent.
func (p *Parser) Parse(ctx context.Context, data []byte) ([]*claim.AcknowledgmentEvent, error) {
	_, span := p.tracer.Start(ctx, "parse_acknowledgment",
		trace.WithAttributes(attribute.Int("bytes", len(data))))
	defer span.End()

	ic, err := x12.Read(data)
	if err != nil {
		var re *x12.ReadError
		if errors.As(err, &re) {
			err = &MalformedResponse{Offset: re.Offset, Reason: re.Reason, Err: err}
		}
		span.RecordError(err)
		return nil, err
	}

	receivedAt := p.now()
	var events []*claim.AcknowledgmentEvent

	for i := 0; i < len(ic.Segments); i++ {
		seg := ic.Segments[i]
		if seg.ID != "ST" {
			continue
		}
		end, err := findSE(ic.Segments, i)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		body := ic.Segments[i : end+1]

		var decoded []*claim.AcknowledgmentEvent
		switch seg.Element(1) {
		case "999":
			decoded, err = decode999(ic, body, receivedAt)
		case "277":
			decoded, err = decode277CA(ic, body, receivedAt)
		case "835":
			decoded, err = decode835(ic, body, receivedAt)
		default:
			err = malformed(seg.Offset, "unsupported transaction set %q", seg.Element(1))
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		events = append(events, decoded...)
		i = end
	}

	if len(events) == 0 {
		first := ic.Segments[0]
		m := malformed(first.Offset, "interchange carries no decodable acknowledgment transactions")
		span.RecordError(m)
		return nil, m
	}

	p.logger.Info("acknowledgment file parsed",
		zap.Int("events", len(events)),
		zap.String("first_type", string(events[0].Type)))
	span.SetAttributes(attribute.Int("event_count", len(events)))
	return events, nil
}

func findSE(segs []x12.RawSegment, st int) (int, error) {
	for i := st + 1; i < len(segs); i++ {
		switch segs[i].ID {
		case "SE":
			return i, nil
		case "ST", "GE", "IEA":
			return 0, malformed(segs[i].Offset, "transaction set opened at byte %d is not closed by SE", segs[st].Offset)
		}
	}
	return 0, malformed(segs[st].Offset, "transaction set is not closed by SE")
}
