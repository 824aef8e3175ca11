// Package claim implements the claim aggregate and its lifecycle.
package claim

import (
	"errors"
	"time"
)

// Status represents claim status
type Status string

const (
	StatusDraft       Status = "draft"
	StatusGenerated   Status = "generated"
	StatusTransmitted Status = "transmitted"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusPaid        Status = "paid"
	StatusDenied      Status = "denied"
)

// ErrOutOfOrder is returned when an acknowledgment arrives for a state that
// cannot accept it. The claim's state never regresses; the caller logs and
// drops the event.
var ErrOutOfOrder = errors.New("acknowledgment not valid for current claim state")

// ServiceLine is one billed procedure on a claim. Units are 15-minute
// increments derived from Minutes; ChargeCents is units times the authorized
// rate.
type ServiceLine struct {
	ProcedureCode     string    `json:"procedure_code"`
	Modifiers         []string  `json:"modifiers,omitempty"`
	Units             int32     `json:"units"`
	Minutes           int32     `json:"minutes"`
	ChargeCents       int64     `json:"charge_cents"`
	ServiceDate       time.Time `json:"service_date"`
	DiagnosisPointers []int     `json:"diagnosis_pointers,omitempty"`
}

// Aggregate represents the claim aggregate root
type Aggregate struct {
	id                 string
	version            int
	status             Status
	patientID          string
	providerID         string
	payerID            string
	periodStart        time.Time
	periodEnd          time.Time
	diagnosisCodes     []string
	lines              []ServiceLine
	fileID             string
	interchangeControl int64
	seenAcks           map[string]struct{}
	createdAt          time.Time
	updatedAt          time.Time
	changes            []*Event
}

// NewAggregate creates a new claim aggregate
func NewAggregate(id string) *Aggregate {
	return &Aggregate{
		id:        id,
		status:    StatusDraft,
		seenAcks:  make(map[string]struct{}),
		createdAt: time.Now().UTC(),
		updatedAt: time.Now().UTC(),
		changes:   make([]*Event, 0),
	}
}

// ID returns the aggregate ID
func (a *Aggregate) ID() string { return a.id }

// Version returns the current version
func (a *Aggregate) Version() int { return a.version }

// Status returns the current status
func (a *Aggregate) Status() Status { return a.status }

// PatientID returns the patient reference
func (a *Aggregate) PatientID() string { return a.patientID }

// ProviderID returns the billing provider reference
func (a *Aggregate) ProviderID() string { return a.providerID }

// PayerID returns the payer identity
func (a *Aggregate) PayerID() string { return a.payerID }

// Period returns the billing period bounds
func (a *Aggregate) Period() (time.Time, time.Time) { return a.periodStart, a.periodEnd }

// DiagnosisCodes returns the claim-level diagnosis codes
func (a *Aggregate) DiagnosisCodes() []string { return a.diagnosisCodes }

// Lines returns the ordered service lines
func (a *Aggregate) Lines() []ServiceLine { return a.lines }

// FileID returns the generated-file reference, empty until generated
func (a *Aggregate) FileID() string { return a.fileID }

// InterchangeControl returns the control number of the generated interchange
func (a *Aggregate) InterchangeControl() int64 { return a.interchangeControl }

// TotalChargeCents returns the sum of line charges
func (a *Aggregate) TotalChargeCents() int64 {
	var total int64
	for _, l := range a.lines {
		total += l.ChargeCents
	}
	return total
}

// Changes returns uncommitted events
func (a *Aggregate) Changes() []*Event { return a.changes }

// ClearChanges clears uncommitted events
func (a *Aggregate) ClearChanges() { a.changes = make([]*Event, 0) }

// Create initializes the claim from resolved billing data
func (a *Aggregate) Create(data *ClaimCreatedData) error {
	if a.status != StatusDraft || a.version != 0 {
		return errors.New("claim already created")
	}
	if len(data.Lines) == 0 {
		return errors.New("claim requires at least one service line")
	}

	event, err := NewEvent(a.id, EventClaimCreated, data)
	if err != nil {
		return err
	}

	a.apply(event)
	a.changes = append(a.changes, event)
	return nil
}

// MarkGenerated records successful 837P generation
func (a *Aggregate) MarkGenerated(data *ClaimGeneratedData) error {
	if a.status != StatusDraft {
		return errors.New("claim not in draft state")
	}

	event, err := NewEvent(a.id, EventClaimGenerated, data)
	if err != nil {
		return err
	}

	a.apply(event)
	a.changes = append(a.changes, event)
	return nil
}

// MarkTransmitted records the transport collaborator's pickup signal
func (a *Aggregate) MarkTransmitted(transmittedAt time.Time) error {
	if a.status != StatusGenerated {
		return errors.New("claim not generated")
	}

	event, err := NewEvent(a.id, EventClaimTransmitted, &ClaimTransmittedData{
		ClaimID:       a.id,
		TransmittedAt: transmittedAt,
	})
	if err != nil {
		return err
	}

	a.apply(event)
	a.changes = append(a.changes, event)
	return nil
}

// ApplyAcknowledgment folds a payer acknowledgment into the state machine.
// A previously seen acknowledgment ID is a no-op; a transition that is not
// valid from the current state returns ErrOutOfOrder and leaves the state
// untouched.
func (a *Aggregate) ApplyAcknowledgment(ack *AcknowledgmentEvent) (bool, error) {
	if _, seen := a.seenAcks[ack.AckID]; seen {
		return false, nil
	}

	eventType, err := a.transitionFor(ack)
	if err != nil {
		return false, err
	}

	event, newErr := NewEvent(a.id, eventType, &ClaimAcknowledgedData{
		ClaimID:     a.id,
		AckID:       ack.AckID,
		AckType:     ack.Type,
		Outcome:     ack.Outcome,
		ReasonCodes: ack.ReasonCodes,
		PaidCents:   ack.PaidCents,
		ReceivedAt:  ack.ReceivedAt,
	})
	if newErr != nil {
		return false, newErr
	}

	a.apply(event)
	a.changes = append(a.changes, event)
	return true, nil
}

// transitionFor maps an acknowledgment to the event it produces, given the
// current state. 999 and 277CA resolve Transmitted; 835 resolves Accepted.
func (a *Aggregate) transitionFor(ack *AcknowledgmentEvent) (EventType, error) {
	switch ack.Type {
	case Ack999, Ack277CA:
		if a.status != StatusTransmitted {
			return "", ErrOutOfOrder
		}
		if ack.Outcome == OutcomeRejected {
			return EventClaimRejected, nil
		}
		return EventClaimAccepted, nil
	case Ack835:
		if a.status != StatusAccepted {
			return "", ErrOutOfOrder
		}
		if ack.Outcome == OutcomeRejected {
			return EventClaimDenied, nil
		}
		return EventClaimPaid, nil
	default:
		return "", errors.New("unknown acknowledgment type: " + string(ack.Type))
	}
}

// apply applies an event to update state
func (a *Aggregate) apply(event *Event) {
	a.version++
	a.updatedAt = event.Timestamp

	switch event.EventType {
	case EventClaimCreated:
		a.applyCreated(event)
	case EventClaimGenerated:
		a.applyGenerated(event)
	case EventClaimTransmitted:
		a.status = StatusTransmitted
	case EventClaimAccepted:
		a.status = StatusAccepted
		a.recordAck(event)
	case EventClaimRejected:
		a.status = StatusRejected
		a.recordAck(event)
	case EventClaimPaid:
		a.status = StatusPaid
		a.recordAck(event)
	case EventClaimDenied:
		a.status = StatusDenied
		a.recordAck(event)
	}
}

func (a *Aggregate) applyCreated(event *Event) {
	var data ClaimCreatedData
	if err := unmarshalEventData(event.EventData, &data); err != nil {
		return
	}
	a.status = StatusDraft
	a.patientID = data.PatientID
	a.providerID = data.ProviderID
	a.payerID = data.PayerID
	a.periodStart = data.PeriodStart
	a.periodEnd = data.PeriodEnd
	a.diagnosisCodes = data.DiagnosisCodes
	a.lines = data.Lines
}

func (a *Aggregate) applyGenerated(event *Event) {
	var data ClaimGeneratedData
	if err := unmarshalEventData(event.EventData, &data); err != nil {
		return
	}
	a.status = StatusGenerated
	a.fileID = data.FileID
	a.interchangeControl = data.InterchangeControl
}

func (a *Aggregate) recordAck(event *Event) {
	var data ClaimAcknowledgedData
	if err := unmarshalEventData(event.EventData, &data); err != nil {
		return
	}
	a.seenAcks[data.AckID] = struct{}{}
}

// LoadFromHistory rebuilds state from events
func (a *Aggregate) LoadFromHistory(events []*Event) {
	for _, event := range events {
		a.apply(event)
	}
}
