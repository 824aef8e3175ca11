package ack

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/caretide/go-edi/internal/domain/claim"
)

const testISA = "ISA*00*          *00*          *ZZ*MEDICAID       *ZZ*1234567        " +
	"*260831*1200*^*00501*000000042*0*T*:~"

// ackFile wraps transaction sets in a minimal response envelope.
func ackFile(transactions ...string) []byte {
	var b strings.Builder
	b.WriteString(testISA)
	b.WriteString("GS*FA*MEDICAID*1234567*20260831*1200*1*X*005010X231A1~")
	for _, txn := range transactions {
		b.WriteString(txn)
	}
	b.WriteString("GE*1*1~IEA*1*000000042~")
	return []byte(b.String())
}

func parse(t *testing.T, data []byte) []*claim.AcknowledgmentEvent {
	t.Helper()
	events, err := NewParser(nil).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return events
}

func TestParse999Accepted(t *testing.T) {
	events := parse(t, ackFile(
		"ST*999*0001*005010X231A1~"+
			"AK1*HC*7*005010X222A1~"+
			"AK2*837*0001~"+
			"IK5*A~"+
			"AK9*A*1*1*1~"+
			"SE*6*0001~"))

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != claim.Ack999 || ev.Outcome != claim.OutcomeAccepted {
		t.Errorf("event wrong: %+v", ev)
	}
	if ev.ClaimID != "" || ev.GroupControl != "7" {
		t.Errorf("999 must be interchange-scoped: claim=%q group=%q", ev.ClaimID, ev.GroupControl)
	}
	if ev.AckID != "999:7:A" {
		t.Errorf("acknowledgment identifier not content-derived: %q", ev.AckID)
	}
}

func TestParse999RejectedWithReasons(t *testing.T) {
	events := parse(t, ackFile(
		"ST*999*0001*005010X231A1~"+
			"AK1*HC*7~"+
			"AK2*837*0001~"+
			"IK3*CLM*8**8~"+
			"IK5*R*5~"+
			"AK9*R*1*1*0~"+
			"SE*7*0001~"))

	ev := events[0]
	if ev.Outcome != claim.OutcomeRejected {
		t.Errorf("got %s, want rejected", ev.Outcome)
	}
	want := []string{"IK3:CLM", "IK5:5"}
	if len(ev.ReasonCodes) != 2 || ev.ReasonCodes[0] != want[0] || ev.ReasonCodes[1] != want[1] {
		t.Errorf("reason codes %v, want %v", ev.ReasonCodes, want)
	}
}

func TestParse999PartialOutcome(t *testing.T) {
	events := parse(t, ackFile(
		"ST*999*0001*005010X231A1~"+
			"AK1*HC*7~"+
			"AK9*E*2*2*1~"+
			"SE*4*0001~"))
	if events[0].Outcome != claim.OutcomePartial {
		t.Errorf("AK9 code E should map to partial, got %s", events[0].Outcome)
	}
}

func TestParse277CA(t *testing.T) {
	events := parse(t, ackFile(
		"ST*277*0001*005010X214~" +
			"BHT*0085*08*REF1*20260831*1200*TH~" +
			"HL*1**20*1~" +
			"HL*2*1*21*1~" +
			"HL*3*2*19*1~" +
			"HL*4*3*PT~" +
			"TRN*2*claim-1~" +
			"STC*A2:20*20260831*WQ*160~" +
			"TRN*2*claim-2~" +
			"STC*A3:21*20260831*U*160~" +
			"SE*11*0001~"))

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	first := events[0]
	if first.Type != claim.Ack277CA || first.ClaimID != "claim-1" || first.Outcome != claim.OutcomeAccepted {
		t.Errorf("accepted claim wrong: %+v", first)
	}
	if first.AckID != "277CA:claim-1" {
		t.Errorf("ack identifier wrong: %q", first.AckID)
	}

	second := events[1]
	if second.ClaimID != "claim-2" || second.Outcome != claim.OutcomeRejected {
		t.Errorf("rejected claim wrong: %+v", second)
	}
	if len(second.ReasonCodes) != 1 || second.ReasonCodes[0] != "A3:21" {
		t.Errorf("status codes wrong: %v", second.ReasonCodes)
	}
}

func TestParse277CAIgnoresNonPatientTraces(t *testing.T) {
	// The information-source level carries its own TRN; only the patient
	// hierarchy level names claims.
	_, err := NewParser(nil).Parse(context.Background(), ackFile(
		"ST*277*0001*005010X214~"+
			"HL*1**20*1~"+
			"TRN*1*BATCH-REF~"+
			"SE*4*0001~"))
	var mr *MalformedResponse
	if !errors.As(err, &mr) {
		t.Fatalf("transaction without claim-level status should be malformed, got %v", err)
	}
}

func TestParse835(t *testing.T) {
	events := parse(t, ackFile(
		"ST*835*0001~" +
			"BPR*I*145*C*CHK~" +
			"TRN*1*CHK12345*1234567890~" +
			"CLP*claim-1*1*160*145**MC*ICN1~" +
			"CAS*CO*45*15~" +
			"CLP*claim-2*4*200*0**MC*ICN2~" +
			"CAS*PR*96*150*1*119*50~" +
			"SE*8*0001~"))

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	paid := events[0]
	if paid.Type != claim.Ack835 || paid.Outcome != claim.OutcomeAccepted {
		t.Errorf("paid claim wrong: %+v", paid)
	}
	if paid.PaidCents != 14500 {
		t.Errorf("paid cents %d, want 14500", paid.PaidCents)
	}
	if paid.AckID != "835:CHK12345:claim-1" {
		t.Errorf("ack identifier should carry the check number: %q", paid.AckID)
	}
	if len(paid.ReasonCodes) != 1 || paid.ReasonCodes[0] != "CO:45" {
		t.Errorf("adjustment codes wrong: %v", paid.ReasonCodes)
	}

	denied := events[1]
	if denied.Outcome != claim.OutcomeRejected || denied.PaidCents != 0 {
		t.Errorf("denied claim wrong: %+v", denied)
	}
	want := []string{"PR:96", "PR:119"}
	if len(denied.ReasonCodes) != 2 || denied.ReasonCodes[0] != want[0] || denied.ReasonCodes[1] != want[1] {
		t.Errorf("adjustment codes %v, want %v", denied.ReasonCodes, want)
	}
}

func TestParseMixedTransactionSets(t *testing.T) {
	events := parse(t, ackFile(
		"ST*999*0001*005010X231A1~AK1*HC*7~AK9*A*1*1*1~SE*4*0001~",
		"ST*835*0002~TRN*1*CHK9~CLP*claim-1*1*160*160~SE*4*0002~"))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != claim.Ack999 || events[1].Type != claim.Ack835 {
		t.Errorf("types wrong: %s %s", events[0].Type, events[1].Type)
	}
}

func TestParseMalformedFiles(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated", []byte("ISA*00*garbage")},
		{"unterminated segment", append([]byte(testISA), []byte("ST*999*0001")...)},
		{"transaction not closed", ackFile("ST*999*0001*005010X231A1~AK1*HC*7~")},
		{"unsupported set", ackFile("ST*864*0001~MIT*1~SE*3*0001~")},
		{"AK9 without AK1", ackFile("ST*999*0001*005010X231A1~AK9*A*1*1*1~SE*3*0001~")},
		{"missing group control", ackFile("ST*999*0001*005010X231A1~AK1*HC~AK9*A*1*1*1~SE*4*0001~")},
		{"CLP without status", ackFile("ST*835*0001~CLP*claim-1~SE*3*0001~")},
		{"no transactions", ackFile()},
	}

	p := NewParser(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := p.Parse(context.Background(), tt.data)
			var mr *MalformedResponse
			if !errors.As(err, &mr) {
				t.Fatalf("expected MalformedResponse, got %v", err)
			}
			if len(events) != 0 {
				t.Errorf("malformed file yielded %d events; none may be applied", len(events))
			}
			if mr.Offset < 0 || mr.Offset > len(tt.data) {
				t.Errorf("offset %d out of file bounds", mr.Offset)
			}
		})
	}
}
