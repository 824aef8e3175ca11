package ack

import (
	"strings"
	"time"

	"github.com/caretide/go-edi/internal/domain/claim"
	"github.com/caretide/go-edi/internal/x12"
)

// decode277CA reads one claim acknowledgment transaction. Claim-level status
// lives under the patient hierarchy level: a TRN echoes the patient account
// number from CLM01, and the STC segments that follow carry the category
// codes that decide acceptance into adjudication.
func decode277CA(ic *x12.Interchange, body []x12.RawSegment, receivedAt time.Time) ([]*claim.AcknowledgmentEvent, error) {
	var events []*claim.AcknowledgmentEvent

	level := ""
	var current *claim.AcknowledgmentEvent
	flush := func() {
		if current != nil {
			events = append(events, current)
			current = nil
		}
	}

	for _, seg := range body {
		switch seg.ID {
		case "HL":
			flush()
			level = seg.Element(3)

		case "TRN":
			flush()
			if level != "PT" {
				continue
			}
			claimID := seg.Element(2)
			if claimID == "" {
				return nil, malformed(seg.Offset, "claim-level TRN missing trace identifier")
			}
			current = &claim.AcknowledgmentEvent{
				AckID:      "277CA:" + claimID,
				Type:       claim.Ack277CA,
				ClaimID:    claimID,
				Outcome:    claim.OutcomeAccepted,
				ReceivedAt: receivedAt,
			}

		case "STC":
			if current == nil {
				continue
			}
			parts := ic.SubElements(seg.Element(1))
			if len(parts) == 0 || parts[0] == "" {
				return nil, malformed(seg.Offset, "STC missing status category code")
			}
			category := parts[0]
			current.ReasonCodes = append(current.ReasonCodes, strings.Join(parts, ":"))
			if rejected277Category(category) {
				current.Outcome = claim.OutcomeRejected
			}
		}
	}
	flush()

	if len(events) == 0 {
		return nil, malformed(body[0].Offset, "277CA transaction carries no claim-level status")
	}
	return events, nil
}

// rejected277Category reports whether an STC01-1 category means the claim was
// not accepted into adjudication. A1/A2 are acknowledgment and acceptance;
// A3 and A4 are returned and not-found, both terminal rejections here.
func rejected277Category(category string) bool {
	switch category {
	case "A1", "A2":
		return false
	default:
		return true
	}
}
