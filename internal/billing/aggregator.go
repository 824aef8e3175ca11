package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/caretide/go-edi/internal/domain/claim"
)

// TimeEntrySource provides validated time entries for one patient and period.
type TimeEntrySource interface {
	TimeEntries(ctx context.Context, patientID string, period Period) ([]TimeEntry, error)
}

// AuthorizationSource provides the patient's service authorizations.
type AuthorizationSource interface {
	Authorizations(ctx context.Context, patientID, payerID string) ([]Authorization, error)
}

// ResolutionError names the missing link that prevented claim resolution.
// A claim can never be built for unauthorized service.
type ResolutionError struct {
	PatientID     string
	ProcedureCode string
	ServiceDate   time.Time
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no active authorization for patient %s, procedure %s on %s",
		e.PatientID, e.ProcedureCode, e.ServiceDate.Format("2006-01-02"))
}

// Aggregator resolves claims from time entries and authorizations.
type Aggregator struct {
	entries  TimeEntrySource
	auths    AuthorizationSource
	rounding Rounding
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewAggregator creates an aggregator with the given record sources.
func NewAggregator(entries TimeEntrySource, auths AuthorizationSource, rounding Rounding, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		entries:  entries,
		auths:    auths,
		rounding: rounding,
		logger:   logger,
		tracer:   otel.Tracer("claim-aggregator"),
	}
}

// ResolveClaim builds one draft claim for a patient, billing period, and
// payer. Entries are grouped by procedure code and service date; each group's
// minutes convert to units under the rounding rule, and the charge is units
// times the covering authorization's contracted rate.
func (a *Aggregator) ResolveClaim(ctx context.Context, patientID, providerID, payerID string, period Period) (*claim.Aggregate, []Authorization, error) {
	ctx, span := a.tracer.Start(ctx, "resolve_claim",
		trace.WithAttributes(
			attribute.String("patient_id", patientID),
			attribute.String("payer_id", payerID),
		))
	defer span.End()

	entries, err := a.entries.TimeEntries(ctx, patientID, period)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("load time entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("no time entries for patient %s in period %s..%s",
			patientID, period.Start.Format("2006-01-02"), period.End.Format("2006-01-02"))
	}

	auths, err := a.auths.Authorizations(ctx, patientID, payerID)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("load authorizations: %w", err)
	}

	lines, diagnoses, err := a.buildLines(patientID, entries, auths)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	agg := claim.NewAggregate(uuid.New().String())
	createData := &claim.ClaimCreatedData{
		ClaimID:        agg.ID(),
		PatientID:      patientID,
		ProviderID:     providerID,
		PayerID:        payerID,
		PeriodStart:    period.Start,
		PeriodEnd:      period.End,
		DiagnosisCodes: diagnoses,
		Lines:          lines,
	}
	if err := agg.Create(createData); err != nil {
		return nil, nil, err
	}

	a.logger.Info("claim resolved",
		zap.String("claim_id", agg.ID()),
		zap.String("patient_id", patientID),
		zap.Int("lines", len(lines)),
		zap.Int64("total_cents", agg.TotalChargeCents()))
	span.SetAttributes(attribute.Int("line_count", len(lines)))

	return agg, auths, nil
}

type lineKey struct {
	procedure string
	date      time.Time
	modifiers string
}

// buildLines groups entries by procedure, service date, and modifier set,
// prices each group, and returns the lines in deterministic order along with
// the claim-level diagnosis codes collected from the covering authorizations.
// Entries with different modifiers bill at different terms, so they never
// merge into one line.
func (a *Aggregator) buildLines(patientID string, entries []TimeEntry, auths []Authorization) ([]claim.ServiceLine, []string, error) {
	grouped := make(map[lineKey]*groupedEntry)
	for _, e := range entries {
		key := lineKey{
			procedure: e.ProcedureCode,
			date:      dateOnly(e.ServiceDate),
			modifiers: strings.Join(e.Modifiers, ","),
		}
		g, ok := grouped[key]
		if !ok {
			g = &groupedEntry{modifiers: e.Modifiers}
			grouped[key] = g
		}
		g.minutes += e.Minutes
	}

	keys := make([]lineKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].date.Equal(keys[j].date) {
			return keys[i].date.Before(keys[j].date)
		}
		if keys[i].procedure != keys[j].procedure {
			return keys[i].procedure < keys[j].procedure
		}
		return keys[i].modifiers < keys[j].modifiers
	})

	var lines []claim.ServiceLine
	var diagnoses []string
	seenDiag := make(map[string]struct{})

	for _, k := range keys {
		g := grouped[k]
		auth := FindAuthorization(auths, k.procedure, k.date)
		if auth == nil {
			return nil, nil, &ResolutionError{
				PatientID:     patientID,
				ProcedureCode: k.procedure,
				ServiceDate:   k.date,
			}
		}

		units := a.rounding.Units(g.minutes)
		if units == 0 {
			continue
		}

		for _, d := range auth.DiagnosisCodes {
			if _, seen := seenDiag[d]; !seen {
				seenDiag[d] = struct{}{}
				diagnoses = append(diagnoses, d)
			}
		}

		pointer := indexOf(diagnoses, auth.DiagnosisCodes)
		lines = append(lines, claim.ServiceLine{
			ProcedureCode:     k.procedure,
			Modifiers:         g.modifiers,
			Units:             int32(units),
			Minutes:           int32(g.minutes),
			ChargeCents:       int64(units) * auth.RateCents,
			ServiceDate:       k.date,
			DiagnosisPointers: pointer,
		})
	}

	if len(lines) == 0 {
		return nil, nil, fmt.Errorf("all time entries for patient %s rounded to zero units", patientID)
	}
	return lines, diagnoses, nil
}

type groupedEntry struct {
	minutes   int
	modifiers []string
}

// indexOf maps the authorization's diagnosis codes to 1-based pointers into
// the claim-level diagnosis list.
func indexOf(claimDiagnoses []string, authDiagnoses []string) []int {
	var pointers []int
	for _, d := range authDiagnoses {
		for i, cd := range claimDiagnoses {
			if cd == d {
				pointers = append(pointers, i+1)
				break
			}
		}
	}
	return pointers
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
