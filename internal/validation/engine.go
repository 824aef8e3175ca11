// Package validation checks assembled claims against the transaction
// specification and companion-guide profile before any encoding is attempted.
// All rule failures are accumulated into one list: partner rejections are
// billed per error, so the caller must see everything in a single round trip.
package validation

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/caretide/go-edi/internal/billing"
	"github.com/caretide/go-edi/internal/domain/claim"
)

// Rule categorizes a validation failure.
type Rule string

const (
	RulePresence    Rule = "presence"
	RuleCodeSet     Rule = "code_set"
	RuleReferential Rule = "referential"
	RuleArithmetic  Rule = "arithmetic"
)

// Error represents a validation error with field context
type Error struct {
	Rule    Rule
	ClaimID string
	Line    int // 1-based service line, 0 for claim-level
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s [line %d] %s: %s", e.Rule, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Rule, e.Field, e.Message)
}

// Charge reconciliation tolerance. Charges are integer cents, so only
// rounding introduced upstream can ever produce a difference.
const chargeToleranceCents = 1

// Engine validates claims against the configured reference tables and the
// billing unit conversion rule.
type Engine struct {
	codes    CodeSets
	rounding billing.Rounding
	logger   *zap.Logger
}

// NewEngine creates a validation engine.
func NewEngine(codes CodeSets, rounding billing.Rounding, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{codes: codes, rounding: rounding, logger: logger}
}

// Validate runs every rule and returns all failures. An empty result means
// the claim is generation-ready.
func (e *Engine) Validate(c *claim.Aggregate, auths []billing.Authorization) []Error {
	var errs []Error
	errs = append(errs, e.checkPresence(c)...)
	errs = append(errs, e.checkCodeSets(c)...)
	errs = append(errs, e.checkReferential(c, auths)...)
	errs = append(errs, e.checkArithmetic(c, auths)...)

	if len(errs) > 0 {
		e.logger.Info("claim failed validation",
			zap.String("claim_id", c.ID()),
			zap.Int("error_count", len(errs)))
	}
	return errs
}

func (e *Engine) checkPresence(c *claim.Aggregate) []Error {
	var errs []Error
	claimLevel := func(field, msg string) {
		errs = append(errs, Error{Rule: RulePresence, ClaimID: c.ID(), Field: field, Message: msg})
	}

	if c.PatientID() == "" {
		claimLevel("patient_id", "patient reference is required")
	}
	if c.ProviderID() == "" {
		claimLevel("provider_id", "billing provider reference is required")
	}
	if c.PayerID() == "" {
		claimLevel("payer_id", "payer identity is required")
	}
	start, end := c.Period()
	if start.IsZero() || end.IsZero() {
		claimLevel("billing_period", "billing period is required")
	} else if end.Before(start) {
		claimLevel("billing_period", "billing period end precedes start")
	}
	if len(c.DiagnosisCodes()) == 0 {
		claimLevel("diagnosis_codes", "at least one diagnosis code is required")
	}
	if len(c.Lines()) == 0 {
		claimLevel("service_lines", "at least one service line is required")
	}

	for i, l := range c.Lines() {
		if l.ProcedureCode == "" {
			errs = append(errs, Error{Rule: RulePresence, ClaimID: c.ID(), Line: i + 1,
				Field: "procedure_code", Message: "procedure code is required"})
		}
		if l.ServiceDate.IsZero() {
			errs = append(errs, Error{Rule: RulePresence, ClaimID: c.ID(), Line: i + 1,
				Field: "service_date", Message: "service date is required"})
		}
		if l.Units <= 0 {
			errs = append(errs, Error{Rule: RulePresence, ClaimID: c.ID(), Line: i + 1,
				Field: "units", Message: "units billed must be positive"})
		}
		if len(l.DiagnosisPointers) == 0 {
			errs = append(errs, Error{Rule: RulePresence, ClaimID: c.ID(), Line: i + 1,
				Field: "diagnosis_pointers", Message: "at least one diagnosis pointer is required"})
		}
	}
	return errs
}

func (e *Engine) checkCodeSets(c *claim.Aggregate) []Error {
	var errs []Error
	for _, d := range c.DiagnosisCodes() {
		if !e.codes.HasDiagnosis(d) {
			errs = append(errs, Error{Rule: RuleCodeSet, ClaimID: c.ID(),
				Field: "diagnosis_codes", Message: fmt.Sprintf("diagnosis code %q not in reference table", d)})
		}
	}
	for i, l := range c.Lines() {
		if l.ProcedureCode != "" && !e.codes.HasProcedure(l.ProcedureCode) {
			errs = append(errs, Error{Rule: RuleCodeSet, ClaimID: c.ID(), Line: i + 1,
				Field: "procedure_code", Message: fmt.Sprintf("procedure code %q not in reference table", l.ProcedureCode)})
		}
	}
	if !e.codes.HasPlaceOfService(PlaceOfServiceHome) {
		errs = append(errs, Error{Rule: RuleCodeSet, ClaimID: c.ID(),
			Field: "place_of_service", Message: "home place-of-service code not configured"})
	}
	return errs
}

func (e *Engine) checkReferential(c *claim.Aggregate, auths []billing.Authorization) []Error {
	var errs []Error
	start, end := c.Period()
	period := billing.Period{Start: start, End: end}

	for i, l := range c.Lines() {
		if l.ServiceDate.IsZero() {
			continue
		}
		if !period.Contains(l.ServiceDate) {
			errs = append(errs, Error{Rule: RuleReferential, ClaimID: c.ID(), Line: i + 1,
				Field: "service_date",
				Message: fmt.Sprintf("service date %s outside billing period", l.ServiceDate.Format("2006-01-02"))})
		}
		if billing.FindAuthorization(auths, l.ProcedureCode, l.ServiceDate) == nil {
			errs = append(errs, Error{Rule: RuleReferential, ClaimID: c.ID(), Line: i + 1,
				Field: "authorization",
				Message: fmt.Sprintf("no active authorization covers procedure %s on %s",
					l.ProcedureCode, l.ServiceDate.Format("2006-01-02"))})
		}

		pointers := len(c.DiagnosisCodes())
		for _, p := range l.DiagnosisPointers {
			if p < 1 || p > pointers {
				errs = append(errs, Error{Rule: RuleReferential, ClaimID: c.ID(), Line: i + 1,
					Field: "diagnosis_pointers", Message: fmt.Sprintf("pointer %d has no matching diagnosis", p)})
			}
		}
	}
	return errs
}

func (e *Engine) checkArithmetic(c *claim.Aggregate, auths []billing.Authorization) []Error {
	var errs []Error
	var lineTotal int64

	for i, l := range c.Lines() {
		lineTotal += l.ChargeCents
		if lineTotal < 0 {
			errs = append(errs, Error{Rule: RuleArithmetic, ClaimID: c.ID(), Line: i + 1,
				Field: "charge", Message: "line charges overflow the claim total"})
		}

		if l.Minutes > 0 {
			expected := e.rounding.Units(int(l.Minutes))
			if int32(expected) != l.Units {
				errs = append(errs, Error{Rule: RuleArithmetic, ClaimID: c.ID(), Line: i + 1,
					Field: "units",
					Message: fmt.Sprintf("%d minutes converts to %d units, claim has %d",
						l.Minutes, expected, l.Units)})
			}
		}

		auth := billing.FindAuthorization(auths, l.ProcedureCode, l.ServiceDate)
		if auth == nil {
			continue // already reported as referential
		}
		expectedCharge := int64(l.Units) * auth.RateCents
		if diff := l.ChargeCents - expectedCharge; diff > chargeToleranceCents || diff < -chargeToleranceCents {
			errs = append(errs, Error{Rule: RuleArithmetic, ClaimID: c.ID(), Line: i + 1,
				Field: "charge",
				Message: fmt.Sprintf("charge %d does not reconcile with %d units at rate %d",
					l.ChargeCents, l.Units, auth.RateCents)})
		}
	}

	// The claim total is derived from the lines, so CLM02 always equals the
	// line sum; only a negative total can reach the wire as garbage.
	if lineTotal <= 0 && len(c.Lines()) > 0 {
		errs = append(errs, Error{Rule: RuleArithmetic, ClaimID: c.ID(),
			Field: "total_charge",
			Message: fmt.Sprintf("claim total %d must be positive", lineTotal)})
	}
	return errs
}
