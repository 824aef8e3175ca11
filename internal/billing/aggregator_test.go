package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caretide/go-edi/internal/domain/claim"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeEntries struct {
	entries []TimeEntry
	err     error
}

func (f *fakeEntries) TimeEntries(_ context.Context, _ string, _ Period) ([]TimeEntry, error) {
	return f.entries, f.err
}

type fakeAuths struct {
	auths []Authorization
}

func (f *fakeAuths) Authorizations(_ context.Context, _, _ string) ([]Authorization, error) {
	return f.auths, nil
}

func testAuths() []Authorization {
	return []Authorization{
		{
			ID:             "auth-1",
			PatientID:      "pat-1",
			PayerID:        "MEDICAID",
			ProcedureCode:  "T1019",
			RateCents:      2000,
			DiagnosisCodes: []string{"I10", "E119"},
			Start:          date(2026, 1, 1),
			End:            date(2026, 6, 30),
		},
	}
}

func TestResolveClaimGroupsEntriesByProcedureAndDate(t *testing.T) {
	entries := &fakeEntries{entries: []TimeEntry{
		{ID: "e1", ProcedureCode: "T1019", ServiceDate: date(2026, 3, 10), Minutes: 30},
		{ID: "e2", ProcedureCode: "T1019", ServiceDate: date(2026, 3, 10).Add(4 * time.Hour), Minutes: 45},
		{ID: "e3", ProcedureCode: "T1019", ServiceDate: date(2026, 3, 12), Minutes: 60},
	}}
	agg := NewAggregator(entries, &fakeAuths{auths: testAuths()}, DefaultRounding(), nil)

	c, auths, err := agg.ResolveClaim(context.Background(), "pat-1", "prov-1", "MEDICAID",
		Period{Start: date(2026, 3, 1), End: date(2026, 3, 31)})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(auths) != 1 {
		t.Fatalf("got %d authorizations, want 1", len(auths))
	}

	lines := c.Lines()
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (same-day entries must merge)", len(lines))
	}

	// 30+45 minutes = 5 units at the contracted rate.
	first := lines[0]
	if !first.ServiceDate.Equal(date(2026, 3, 10)) {
		t.Errorf("lines not in date order: first is %s", first.ServiceDate)
	}
	if first.Units != 5 || first.ChargeCents != 5*2000 {
		t.Errorf("merged line priced wrong: units=%d charge=%d", first.Units, first.ChargeCents)
	}

	if got := c.TotalChargeCents(); got != 5*2000+4*2000 {
		t.Errorf("claim total %d, want %d", got, 5*2000+4*2000)
	}
	if c.Status() != claim.StatusDraft {
		t.Errorf("resolved claim should be draft, got %s", c.Status())
	}

	diagnoses := c.DiagnosisCodes()
	if len(diagnoses) != 2 || diagnoses[0] != "I10" {
		t.Errorf("diagnosis codes wrong: %v", diagnoses)
	}
	if got := first.DiagnosisPointers; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("diagnosis pointers wrong: %v", got)
	}
}

func TestResolveClaimSplitsLinesByModifierSet(t *testing.T) {
	entries := &fakeEntries{entries: []TimeEntry{
		{ID: "e1", ProcedureCode: "T1019", ServiceDate: date(2026, 3, 10), Minutes: 60},
		{ID: "e2", ProcedureCode: "T1019", ServiceDate: date(2026, 3, 10), Minutes: 60, Modifiers: []string{"U1"}},
		{ID: "e3", ProcedureCode: "T1019", ServiceDate: date(2026, 3, 10), Minutes: 30, Modifiers: []string{"U1"}},
	}}
	agg := NewAggregator(entries, &fakeAuths{auths: testAuths()}, DefaultRounding(), nil)

	c, _, err := agg.ResolveClaim(context.Background(), "pat-1", "prov-1", "MEDICAID",
		Period{Start: date(2026, 3, 1), End: date(2026, 3, 31)})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	lines := c.Lines()
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (modifier sets must not merge)", len(lines))
	}
	if len(lines[0].Modifiers) != 0 {
		t.Errorf("unmodified line carries modifiers %v", lines[0].Modifiers)
	}
	if len(lines[1].Modifiers) != 1 || lines[1].Modifiers[0] != "U1" {
		t.Errorf("modified line carries %v, want [U1]", lines[1].Modifiers)
	}
	if lines[0].Units != 4 || lines[1].Units != 6 {
		t.Errorf("units split wrong: %d and %d, want 4 and 6", lines[0].Units, lines[1].Units)
	}
}

func TestResolveClaimRejectsUnauthorizedService(t *testing.T) {
	entries := &fakeEntries{entries: []TimeEntry{
		{ID: "e1", ProcedureCode: "S5125", ServiceDate: date(2026, 3, 10), Minutes: 60},
	}}
	agg := NewAggregator(entries, &fakeAuths{auths: testAuths()}, DefaultRounding(), nil)

	_, _, err := agg.ResolveClaim(context.Background(), "pat-1", "prov-1", "MEDICAID",
		Period{Start: date(2026, 3, 1), End: date(2026, 3, 31)})
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if re.ProcedureCode != "S5125" {
		t.Errorf("error names wrong procedure: %s", re.ProcedureCode)
	}
}

func TestResolveClaimSkipsZeroUnitGroups(t *testing.T) {
	entries := &fakeEntries{entries: []TimeEntry{
		{ID: "e1", ProcedureCode: "T1019", ServiceDate: date(2026, 3, 10), Minutes: 5},
		{ID: "e2", ProcedureCode: "T1019", ServiceDate: date(2026, 3, 12), Minutes: 60},
	}}
	agg := NewAggregator(entries, &fakeAuths{auths: testAuths()}, DefaultRounding(), nil)

	c, _, err := agg.ResolveClaim(context.Background(), "pat-1", "prov-1", "MEDICAID",
		Period{Start: date(2026, 3, 1), End: date(2026, 3, 31)})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(c.Lines()) != 1 {
		t.Errorf("sub-unit group should be dropped, got %d lines", len(c.Lines()))
	}
}

func TestResolveClaimRequiresEntries(t *testing.T) {
	agg := NewAggregator(&fakeEntries{}, &fakeAuths{auths: testAuths()}, DefaultRounding(), nil)

	_, _, err := agg.ResolveClaim(context.Background(), "pat-1", "prov-1", "MEDICAID",
		Period{Start: date(2026, 3, 1), End: date(2026, 3, 31)})
	if err == nil {
		t.Error("empty period accepted")
	}
}
