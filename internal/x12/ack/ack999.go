package ack

import (
	"time"

	"github.com/caretide/go-edi/internal/domain/claim"
	"github.com/caretide/go-edi/internal/x12"
)

// decode999 reads one implementation acknowledgment transaction. A 999 speaks
// about functional groups, not claims: each AK1/AK9 pair produces a single
// interchange-scoped event with an empty claim identifier, and the caller
// fans it out to the claims of the echoed group.
func decode999(ic *x12.Interchange, body []x12.RawSegment, receivedAt time.Time) ([]*claim.AcknowledgmentEvent, error) {
	var events []*claim.AcknowledgmentEvent

	var groupControl string
	var reasons []string
	sawAK1 := false

	for _, seg := range body {
		switch seg.ID {
		case "AK1":
			if sawAK1 {
				return nil, malformed(seg.Offset, "AK1 repeated before AK9 closed the previous group")
			}
			groupControl = seg.Element(2)
			if groupControl == "" {
				return nil, malformed(seg.Offset, "AK1 missing group control number")
			}
			sawAK1 = true
			reasons = nil

		case "IK5":
			if !sawAK1 {
				return nil, malformed(seg.Offset, "IK5 outside an AK1 group")
			}
			// IK502..IK506 are syntax error codes for the rejected set.
			for n := 2; n <= 6; n++ {
				if v := seg.Element(n); v != "" {
					reasons = append(reasons, "IK5:"+v)
				}
			}

		case "IK3":
			if v := seg.Element(1); v != "" && sawAK1 {
				reasons = append(reasons, "IK3:"+v)
			}

		case "AK9":
			if !sawAK1 {
				return nil, malformed(seg.Offset, "AK9 without a preceding AK1")
			}
			disposition := seg.Element(1)
			if disposition == "" {
				return nil, malformed(seg.Offset, "AK9 missing acknowledgment code")
			}
			events = append(events, &claim.AcknowledgmentEvent{
				AckID:        "999:" + groupControl + ":" + disposition,
				Type:         claim.Ack999,
				GroupControl: groupControl,
				Outcome:      outcomeFor999(disposition),
				ReasonCodes:  reasons,
				ReceivedAt:   receivedAt,
			})
			sawAK1 = false
		}
	}

	if sawAK1 {
		return nil, malformed(body[len(body)-1].Offset, "AK1 group not closed by AK9")
	}
	if len(events) == 0 {
		return nil, malformed(body[0].Offset, "999 transaction carries no AK1/AK9 groups")
	}
	return events, nil
}

// outcomeFor999 maps the AK9/IK5 acknowledgment code vocabulary. Anything not
// explicitly accepted or partial is treated as rejected; inventing acceptance
// for an unknown code would strand claims in Transmitted.
func outcomeFor999(code string) claim.Outcome {
	switch code {
	case "A":
		return claim.OutcomeAccepted
	case "E", "P":
		return claim.OutcomePartial
	default: // R, M, X, W
		return claim.OutcomeRejected
	}
}
