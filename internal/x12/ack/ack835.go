package ack

import (
	"time"

	"github.com/caretide/go-edi/internal/domain/claim"
	"github.com/caretide/go-edi/internal/x12"
)

// decode835 reads one remittance advice transaction. Each CLP is one claim
// payment decision: CLP01 echoes the patient account number from CLM01,
// CLP02 is the claim status code, and CLP04 the paid amount. CAS adjustment
// reason codes accumulate on the event for denial analysis.
func decode835(ic *x12.Interchange, body []x12.RawSegment, receivedAt time.Time) ([]*claim.AcknowledgmentEvent, error) {
	var events []*claim.AcknowledgmentEvent

	checkNumber := ""
	var current *claim.AcknowledgmentEvent
	flush := func() {
		if current != nil {
			events = append(events, current)
			current = nil
		}
	}

	for _, seg := range body {
		switch seg.ID {
		case "TRN":
			// TRN01=1 is the check or EFT trace number for the whole remit.
			if seg.Element(1) == "1" && checkNumber == "" {
				checkNumber = seg.Element(2)
			}

		case "CLP":
			flush()
			claimID := seg.Element(1)
			status := seg.Element(2)
			if claimID == "" || status == "" {
				return nil, malformed(seg.Offset, "CLP missing claim identifier or status code")
			}
			paid, err := x12.ParseAmount(seg.Element(4))
			if err != nil {
				return nil, malformed(seg.Offset, "CLP paid amount: %v", err)
			}
			outcome := claim.OutcomeRejected
			if paidStatus835(status) {
				outcome = claim.OutcomeAccepted
			}
			current = &claim.AcknowledgmentEvent{
				AckID:      "835:" + checkNumber + ":" + claimID,
				Type:       claim.Ack835,
				ClaimID:    claimID,
				Outcome:    outcome,
				PaidCents:  paid,
				ReceivedAt: receivedAt,
			}

		case "CAS":
			if current == nil {
				continue
			}
			// CAS carries up to six adjustment triplets; reason codes sit at
			// elements 2, 5, 8, 11, 14, 17.
			group := seg.Element(1)
			for n := 2; n <= 17; n += 3 {
				if code := seg.Element(n); code != "" {
					current.ReasonCodes = append(current.ReasonCodes, group+":"+code)
				}
			}
		}
	}
	flush()

	if len(events) == 0 {
		return nil, malformed(body[0].Offset, "835 transaction carries no CLP claim payments")
	}
	return events, nil
}

// paidStatus835 reports whether a CLP02 claim status code is in the paid
// family. Code 4 is denied; anything unrecognized is treated as denied so an
// unpaid claim never shows as Paid.
func paidStatus835(status string) bool {
	switch status {
	case "1", "2", "3", "19", "20", "21":
		return true
	default:
		return false
	}
}
