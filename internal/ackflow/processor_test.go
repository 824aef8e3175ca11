package ackflow

import (
	"context"
	"testing"

	"github.com/caretide/go-edi/internal/domain/claim"
	"github.com/caretide/go-edi/internal/infrastructure/postgres"
	"github.com/caretide/go-edi/internal/x12/ack"
)

const testISA = "ISA*00*          *00*          *ZZ*MEDICAID       *ZZ*1234567        " +
	"*260831*1200*^*00501*000000042*0*T*:~"

func responseFile(transactions string) []byte {
	return []byte(testISA +
		"GS*FA*MEDICAID*1234567*20260831*1200*1*X*005010X231A1~" +
		transactions +
		"GE*1*1~IEA*1*000000042~")
}

type fakeFiles struct {
	byGroup map[int64]*postgres.GeneratedFile
}

func (f *fakeFiles) FindByGroupControl(_ context.Context, _ string, gcn int64) (*postgres.GeneratedFile, error) {
	return f.byGroup[gcn], nil
}

type fakeQuarantine struct {
	saved []*postgres.QuarantinedFile
}

func (q *fakeQuarantine) Save(_ context.Context, f *postgres.QuarantinedFile) error {
	q.saved = append(q.saved, f)
	return nil
}

type fakeLifecycle struct {
	applied []*claim.AcknowledgmentEvent
	fail    map[string]error
}

func (l *fakeLifecycle) Apply(_ context.Context, ev *claim.AcknowledgmentEvent) error {
	if err := l.fail[ev.ClaimID]; err != nil {
		return err
	}
	l.applied = append(l.applied, ev)
	return nil
}

func newTestProcessor(files *fakeFiles, quarantine *fakeQuarantine, lifecycle *fakeLifecycle) *Processor {
	return NewProcessor(ack.NewParser(nil), files, quarantine, lifecycle, "1234567", nil, nil)
}

func TestProcessFileFansOut999ToClaims(t *testing.T) {
	files := &fakeFiles{byGroup: map[int64]*postgres.GeneratedFile{
		7: {FileID: "file-1", GroupControl: 7, ClaimIDs: []string{"claim-1", "claim-2"}},
	}}
	quarantine := &fakeQuarantine{}
	lifecycle := &fakeLifecycle{}
	p := newTestProcessor(files, quarantine, lifecycle)

	res, err := p.ProcessFile(context.Background(), "test",
		responseFile("ST*999*0001*005010X231A1~AK1*HC*7~AK9*R*1*1*0~SE*4*0001~"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Events != 2 || res.Applied != 2 {
		t.Errorf("got events=%d applied=%d, want 2/2", res.Events, res.Applied)
	}
	if len(lifecycle.applied) != 2 {
		t.Fatalf("lifecycle saw %d events", len(lifecycle.applied))
	}

	first := lifecycle.applied[0]
	if first.ClaimID != "claim-1" || first.AckID != "999:7:R:claim-1" {
		t.Errorf("fanned event wrong: claim=%q ack=%q", first.ClaimID, first.AckID)
	}
	if first.Outcome != claim.OutcomeRejected {
		t.Errorf("outcome %s, want rejected", first.Outcome)
	}
	if lifecycle.applied[1].ClaimID != "claim-2" {
		t.Errorf("second fanned claim wrong: %q", lifecycle.applied[1].ClaimID)
	}
}

func TestProcessFileDropsUnknownGroup(t *testing.T) {
	files := &fakeFiles{byGroup: map[int64]*postgres.GeneratedFile{}}
	lifecycle := &fakeLifecycle{}
	p := newTestProcessor(files, &fakeQuarantine{}, lifecycle)

	res, err := p.ProcessFile(context.Background(), "test",
		responseFile("ST*999*0001*005010X231A1~AK1*HC*99~AK9*A*1*1*1~SE*4*0001~"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Events != 0 || len(lifecycle.applied) != 0 {
		t.Errorf("unknown group should be dropped, got events=%d", res.Events)
	}
}

func TestProcessFilePassesClaimLevelEventsThrough(t *testing.T) {
	lifecycle := &fakeLifecycle{}
	p := newTestProcessor(&fakeFiles{}, &fakeQuarantine{}, lifecycle)

	res, err := p.ProcessFile(context.Background(), "test",
		responseFile("ST*835*0001~TRN*1*CHK9~CLP*claim-1*1*160*160~SE*4*0001~"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Applied != 1 || lifecycle.applied[0].ClaimID != "claim-1" {
		t.Errorf("claim-level event not applied: %+v", res)
	}
}

func TestProcessFileQuarantinesMalformedInput(t *testing.T) {
	quarantine := &fakeQuarantine{}
	lifecycle := &fakeLifecycle{}
	p := newTestProcessor(&fakeFiles{}, quarantine, lifecycle)

	data := []byte("this is not an interchange")
	res, err := p.ProcessFile(context.Background(), "sftp:inbound", data)
	if err == nil {
		t.Fatal("malformed file accepted")
	}
	if res == nil || !res.Quarantined {
		t.Fatalf("result should report quarantine: %+v", res)
	}
	if len(quarantine.saved) != 1 {
		t.Fatalf("quarantine store saw %d files", len(quarantine.saved))
	}

	q := quarantine.saved[0]
	if q.Source != "sftp:inbound" || string(q.Data) != string(data) {
		t.Errorf("quarantined file wrong: source=%q", q.Source)
	}
	if q.Reason == "" || q.ID == "" {
		t.Errorf("quarantine record missing context: %+v", q)
	}
	if len(lifecycle.applied) != 0 {
		t.Error("events from a malformed file were applied")
	}
}

func TestProcessFileContinuesPastApplicationFailures(t *testing.T) {
	lifecycle := &fakeLifecycle{fail: map[string]error{"claim-1": context.DeadlineExceeded}}
	p := newTestProcessor(&fakeFiles{}, &fakeQuarantine{}, lifecycle)

	res, err := p.ProcessFile(context.Background(), "test",
		responseFile("ST*835*0001~TRN*1*CHK9~"+
			"CLP*claim-1*1*160*160~CLP*claim-2*1*200*200~SE*5*0001~"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Events != 2 || res.Applied != 1 {
		t.Errorf("got events=%d applied=%d, want 2/1", res.Events, res.Applied)
	}
	if len(lifecycle.applied) != 1 || lifecycle.applied[0].ClaimID != "claim-2" {
		t.Error("surviving event not applied")
	}
}
