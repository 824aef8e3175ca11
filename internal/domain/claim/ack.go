package claim

import "time"

// AckType tags which payer response transaction produced an event.
type AckType string

const (
	Ack999   AckType = "999"
	Ack277CA AckType = "277CA"
	Ack835   AckType = "835"
)

// Outcome is the normalized result of an acknowledgment, independent of the
// source transaction's own code vocabulary.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomePartial  Outcome = "partial"
)

// AcknowledgmentEvent is one per-claim status event decoded from a payer
// response file. A 999 is interchange-scoped: ClaimID is empty and
// GroupControl carries the echoed functional group control number, which the
// caller expands to the claims of that interchange before application.
type AcknowledgmentEvent struct {
	AckID        string
	Type         AckType
	ClaimID      string
	GroupControl string
	Outcome      Outcome
	ReasonCodes  []string
	PaidCents    int64
	ReceivedAt   time.Time
}
