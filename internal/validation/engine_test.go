package validation

import (
	"testing"
	"time"

	"github.com/caretide/go-edi/internal/billing"
	"github.com/caretide/go-edi/internal/domain/claim"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testCodeSets() CodeSets {
	return NewCodeSets(
		[]string{"T1019", "T1020"},
		[]string{"I10", "E119"},
		[]string{PlaceOfServiceHome},
	)
}

func testAuths() []billing.Authorization {
	return []billing.Authorization{{
		ID:             "auth-1",
		PatientID:      "pat-1",
		ProcedureCode:  "T1019",
		RateCents:      2000,
		DiagnosisCodes: []string{"I10"},
		Start:          date(2026, 1, 1),
		End:            date(2026, 6, 30),
	}}
}

func testClaim(t *testing.T, mutate func(*claim.ClaimCreatedData)) *claim.Aggregate {
	t.Helper()
	data := &claim.ClaimCreatedData{
		ClaimID:        "claim-1",
		PatientID:      "pat-1",
		ProviderID:     "prov-1",
		PayerID:        "MEDICAID",
		PeriodStart:    date(2026, 3, 1),
		PeriodEnd:      date(2026, 3, 31),
		DiagnosisCodes: []string{"I10"},
		Lines: []claim.ServiceLine{{
			ProcedureCode:     "T1019",
			Units:             8,
			Minutes:           118,
			ChargeCents:       8 * 2000,
			ServiceDate:       date(2026, 3, 10),
			DiagnosisPointers: []int{1},
		}},
	}
	if mutate != nil {
		mutate(data)
	}
	agg := claim.NewAggregate("claim-1")
	if err := agg.Create(data); err != nil {
		t.Fatalf("create claim: %v", err)
	}
	return agg
}

func hasRule(errs []Error, rule Rule, field string) bool {
	for _, e := range errs {
		if e.Rule == rule && e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateCleanClaim(t *testing.T) {
	engine := NewEngine(testCodeSets(), billing.DefaultRounding(), nil)
	errs := engine.Validate(testClaim(t, nil), testAuths())
	if len(errs) != 0 {
		t.Errorf("clean claim rejected: %v", errs)
	}
}

func TestValidatePresence(t *testing.T) {
	engine := NewEngine(testCodeSets(), billing.DefaultRounding(), nil)

	errs := engine.Validate(testClaim(t, func(d *claim.ClaimCreatedData) {
		d.PatientID = ""
		d.DiagnosisCodes = nil
		d.Lines[0].Units = 0
	}), testAuths())

	if !hasRule(errs, RulePresence, "patient_id") {
		t.Error("missing patient reference not reported")
	}
	if !hasRule(errs, RulePresence, "diagnosis_codes") {
		t.Error("missing diagnosis codes not reported")
	}
	if !hasRule(errs, RulePresence, "units") {
		t.Error("non-positive units not reported")
	}
}

func TestValidatePeriodInversion(t *testing.T) {
	engine := NewEngine(testCodeSets(), billing.DefaultRounding(), nil)

	errs := engine.Validate(testClaim(t, func(d *claim.ClaimCreatedData) {
		d.PeriodStart, d.PeriodEnd = d.PeriodEnd, d.PeriodStart
	}), testAuths())
	if !hasRule(errs, RulePresence, "billing_period") {
		t.Error("inverted billing period not reported")
	}
}

func TestValidateCodeSets(t *testing.T) {
	engine := NewEngine(testCodeSets(), billing.DefaultRounding(), nil)

	errs := engine.Validate(testClaim(t, func(d *claim.ClaimCreatedData) {
		d.DiagnosisCodes = []string{"Z9999"}
		d.Lines[0].ProcedureCode = "X0000"
	}), testAuths())

	if !hasRule(errs, RuleCodeSet, "diagnosis_codes") {
		t.Error("unknown diagnosis code not reported")
	}
	if !hasRule(errs, RuleCodeSet, "procedure_code") {
		t.Error("unknown procedure code not reported")
	}
}

func TestValidateReferential(t *testing.T) {
	engine := NewEngine(testCodeSets(), billing.DefaultRounding(), nil)

	// Service date outside the billing period and no covering authorization.
	errs := engine.Validate(testClaim(t, func(d *claim.ClaimCreatedData) {
		d.Lines[0].ServiceDate = date(2026, 8, 1)
	}), testAuths())
	if !hasRule(errs, RuleReferential, "service_date") {
		t.Error("service date outside period not reported")
	}
	if !hasRule(errs, RuleReferential, "authorization") {
		t.Error("uncovered service not reported")
	}

	// Pointer past the diagnosis list.
	errs = engine.Validate(testClaim(t, func(d *claim.ClaimCreatedData) {
		d.Lines[0].DiagnosisPointers = []int{2}
	}), testAuths())
	if !hasRule(errs, RuleReferential, "diagnosis_pointers") {
		t.Error("dangling diagnosis pointer not reported")
	}
}

func TestValidateArithmetic(t *testing.T) {
	engine := NewEngine(testCodeSets(), billing.DefaultRounding(), nil)

	// 112 minutes is 7 units under the rounding rule, not 8.
	errs := engine.Validate(testClaim(t, func(d *claim.ClaimCreatedData) {
		d.Lines[0].Minutes = 112
	}), testAuths())
	if !hasRule(errs, RuleArithmetic, "units") {
		t.Error("unit conversion mismatch not reported")
	}

	errs = engine.Validate(testClaim(t, func(d *claim.ClaimCreatedData) {
		d.Lines[0].ChargeCents = 8*2000 + 500
	}), testAuths())
	if !hasRule(errs, RuleArithmetic, "charge") {
		t.Error("unreconciled charge not reported")
	}
}
