package spec837p

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/caretide/go-edi/internal/billing"
	"github.com/caretide/go-edi/internal/domain/claim"
	"github.com/caretide/go-edi/internal/partner"
	"github.com/caretide/go-edi/internal/sequence"
	"github.com/caretide/go-edi/internal/validation"
	"github.com/caretide/go-edi/internal/x12"
)

// BillingProvider is the 2010AA billing entity. Home-health agencies bill as
// organizations, so only the organizational name form is emitted.
type BillingProvider struct {
	NPI          string
	OrgName      string
	Address1     string
	Address2     string
	City         string
	State        string
	Zip          string
	TaxID        string
	TaxonomyCode string
}

// Subscriber is the 2010BA member. Medicaid recipients are always the
// subscriber, never a dependent.
type Subscriber struct {
	MemberID  string
	LastName  string
	FirstName string
	BirthDate time.Time
	Gender    string // M, F, or U
	Address1  string
	City      string
	State     string
	Zip       string
}

// Payer names the 2010BB destination.
type Payer struct {
	Name string
	ID   string
}

// Input pairs one resolved claim with the records needed to validate and
// render it.
type Input struct {
	Claim          *claim.Aggregate
	Authorizations []billing.Authorization
	Subscriber     Subscriber
}

// Batch is one build request: every claim in it shares the provider and payer
// and lands in a single interchange.
type Batch struct {
	Provider BillingProvider
	Payer    Payer
	Profile  CompanionProfile
	Inputs   []Input
}

// Result is a successfully built interchange. Control numbers are consumed
// even if the caller discards the result; they are never reissued.
type Result struct {
	FileID              string
	Data                []byte
	InterchangeControl  int64
	GroupControl        int64
	TransactionControls map[string]string // claim ID -> ST02
	ClaimIDs            []string
}

// BatchError rejects the whole batch: a file with a bad claim in it draws a
// 999 rejection for everything it carries, so nothing is emitted.
type BatchError struct {
	Failures map[string][]validation.Error // claim ID -> failures
}

func (e *BatchError) Error() string {
	total := 0
	for _, f := range e.Failures {
		total += len(f)
	}
	return fmt.Sprintf("batch rejected: %d validation errors across %d claims", total, len(e.Failures))
}

// checkParties presence-checks the batch-level party records the validation
// engine never sees: the 2010AA provider and 2010BB payer. A missing value
// here would otherwise ship as an empty required placeholder.
func checkParties(batch Batch) []validation.Error {
	var errs []validation.Error
	miss := func(field, msg string) {
		errs = append(errs, validation.Error{Rule: validation.RulePresence, Field: field, Message: msg})
	}

	p := batch.Provider
	if p.NPI == "" {
		miss("billing_provider.npi", "billing provider NPI is required")
	}
	if p.OrgName == "" {
		miss("billing_provider.org_name", "billing provider name is required")
	}
	if p.Address1 == "" {
		miss("billing_provider.address1", "billing provider street address is required")
	}
	if p.City == "" || p.State == "" || p.Zip == "" {
		miss("billing_provider.city_state_zip", "billing provider city, state, and zip are required")
	}
	if p.TaxID == "" {
		miss("billing_provider.tax_id", "billing provider tax ID is required")
	}
	if batch.Profile.RequireProviderTaxonomy && p.TaxonomyCode == "" {
		miss("billing_provider.taxonomy_code", "companion guide requires a provider taxonomy code")
	}

	if batch.Payer.Name == "" {
		miss("payer.name", "payer name is required")
	}
	if batch.Payer.ID == "" {
		miss("payer.id", "payer identifier is required")
	}
	return errs
}

// checkSubscriber presence-checks the 2010BA member record for one input.
func checkSubscriber(s Subscriber) []validation.Error {
	var errs []validation.Error
	miss := func(field, msg string) {
		errs = append(errs, validation.Error{Rule: validation.RulePresence, Field: field, Message: msg})
	}

	if s.MemberID == "" {
		miss("subscriber.member_id", "subscriber member ID is required")
	}
	if s.LastName == "" {
		miss("subscriber.last_name", "subscriber last name is required")
	}
	if s.FirstName == "" {
		miss("subscriber.first_name", "subscriber first name is required")
	}
	if s.BirthDate.IsZero() {
		miss("subscriber.birth_date", "subscriber birth date is required")
	}
	switch s.Gender {
	case "M", "F", "U":
	default:
		miss("subscriber.gender", fmt.Sprintf("subscriber gender %q must be M, F, or U", s.Gender))
	}
	if s.Address1 != "" && (s.City == "" || s.State == "" || s.Zip == "") {
		miss("subscriber.city_state_zip", "subscriber address needs city, state, and zip")
	}
	return errs
}

// Builder renders validated claims into an 837P interchange.
type Builder struct {
	seq       *sequence.Sequencer
	validator *validation.Engine
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewBuilder creates a claim builder.
func NewBuilder(seq *sequence.Sequencer, validator *validation.Engine, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		seq:       seq,
		validator: validator,
		logger:    logger,
		tracer:    otel.Tracer("claim-builder"),
	}
}

// Build validates every claim in the batch and renders one interchange with a
// transaction set per claim. Any validation failure rejects the whole batch
// before a control number is consumed.
func (b *Builder) Build(ctx context.Context, identity partner.Identity, batch Batch) (*Result, error) {
	ctx, span := b.tracer.Start(ctx, "build_837p",
		trace.WithAttributes(attribute.Int("claim_count", len(batch.Inputs))))
	defer span.End()

	if err := identity.Validate(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("trading partner identity: %w", err)
	}
	if len(batch.Inputs) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	// Party errors condemn every transaction the batch would carry, so they
	// are reported against each claim alongside its own failures.
	partyErrs := checkParties(batch)
	failures := make(map[string][]validation.Error)
	for _, in := range batch.Inputs {
		errs := b.validator.Validate(in.Claim, in.Authorizations)
		for _, pe := range append(checkSubscriber(in.Subscriber), partyErrs...) {
			pe.ClaimID = in.Claim.ID()
			errs = append(errs, pe)
		}
		if len(errs) > 0 {
			failures[in.Claim.ID()] = errs
		}
	}
	if len(failures) > 0 {
		err := &BatchError{Failures: failures}
		span.RecordError(err)
		b.logger.Warn("batch rejected by validation",
			zap.Int("claims_failed", len(failures)),
			zap.Int("claims_total", len(batch.Inputs)))
		return nil, err
	}

	enc, err := x12.NewEncoder(identity.Delimiters)
	if err != nil {
		return nil, err
	}

	icn, err := b.seq.NextInterchange(ctx, identity.SenderID)
	if err != nil {
		return nil, err
	}
	gcn, err := b.seq.NextGroup(ctx, identity.SenderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var sb strings.Builder
	sb.WriteString(renderISA(identity, icn, now))

	gs, err := enc.Encode("GS", []x12.Field{
		x12.ID("HC").Req(),
		x12.AN(identity.SenderID).Req(),
		x12.AN(identity.ReceiverID).Req(),
		x12.DT(now).Req(),
		x12.TM(now).Req(),
		x12.N0(gcn).Req(),
		x12.ID("X").Req(),
		x12.ID(Version).Req(),
	})
	if err != nil {
		return nil, err
	}
	sb.WriteString(gs)

	controls := make(map[string]string, len(batch.Inputs))
	claimIDs := make([]string, 0, len(batch.Inputs))
	for _, in := range batch.Inputs {
		tcn, err := b.seq.NextTransaction(ctx, identity.SenderID)
		if err != nil {
			return nil, err
		}
		st02 := fmt.Sprintf("%04d", tcn)

		txn, err := b.renderTransaction(enc, identity, batch, in, st02, now)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("claim %s: %w", in.Claim.ID(), err)
		}
		sb.WriteString(txn)
		controls[in.Claim.ID()] = st02
		claimIDs = append(claimIDs, in.Claim.ID())
	}

	ge, err := enc.Encode("GE", []x12.Field{
		x12.N0(int64(len(batch.Inputs))).Req(),
		x12.N0(gcn).Req(),
	})
	if err != nil {
		return nil, err
	}
	sb.WriteString(ge)

	iea, err := enc.Encode("IEA", []x12.Field{
		x12.N0(1).Req(),
		x12.AN(fmt.Sprintf("%09d", icn)).Req(),
	})
	if err != nil {
		return nil, err
	}
	sb.WriteString(iea)

	result := &Result{
		FileID:              uuid.New().String(),
		Data:                []byte(sb.String()),
		InterchangeControl:  icn,
		GroupControl:        gcn,
		TransactionControls: controls,
		ClaimIDs:            claimIDs,
	}
	b.logger.Info("interchange built",
		zap.String("file_id", result.FileID),
		zap.Int64("interchange_control", icn),
		zap.Int("claims", len(claimIDs)),
		zap.Int("bytes", len(result.Data)))
	span.SetAttributes(attribute.Int64("interchange_control", icn))
	return result, nil
}

// renderISA writes the fixed-width interchange header by hand: ISA11 carries
// the repetition separator as data and ISA02/ISA04 are space-padded, neither
// of which the general encoder should learn about.
func renderISA(id partner.Identity, icn int64, now time.Time) string {
	d := id.Delimiters
	sep := string(d.Element)
	elems := []string{
		"00", strings.Repeat(" ", 10),
		"00", strings.Repeat(" ", 10),
		id.SenderQualifier, pad(id.SenderID, 15),
		id.ReceiverQualifier, pad(id.ReceiverID, 15),
		now.Format("060102"), now.Format("1504"),
		string(d.Repetition), "00501",
		fmt.Sprintf("%09d", icn), "0",
		string(id.Usage), string(d.SubElement),
	}
	return "ISA" + sep + strings.Join(elems, sep) + string(d.Segment)
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// maxDiagnoses is the HI segment capacity in the professional guide.
const maxDiagnoses = 12

func (b *Builder) renderTransaction(enc *x12.Encoder, identity partner.Identity, batch Batch, in Input, st02 string, now time.Time) (string, error) {
	c := in.Claim
	if len(c.DiagnosisCodes()) > maxDiagnoses {
		return "", fmt.Errorf("%d diagnosis codes exceed the HI segment capacity of %d",
			len(c.DiagnosisCodes()), maxDiagnoses)
	}

	usage := make(Usage)
	loopCounts := make(map[string]int)
	var segs []string
	emit := func(loop, segID string, fields []x12.Field) error {
		s, err := enc.Encode(segID, fields)
		if err != nil {
			return err
		}
		segs = append(segs, s)
		usage.Record(loop, segID)
		return nil
	}
	open := func(loop string) { loopCounts[loop]++ }

	open("837")
	if err := emit("837", "ST", []x12.Field{
		x12.ID("837").Req(),
		x12.AN(st02).Req(),
		x12.ID(Version).Req(),
	}); err != nil {
		return "", err
	}
	if err := emit("837", "BHT", []x12.Field{
		x12.ID("0019").Req(),
		x12.ID("00").Req(),
		x12.AN(c.ID()[:min(len(c.ID()), 30)]).Req(),
		x12.DT(now).Req(),
		x12.TM(now).Req(),
		x12.ID("CH").Req(),
	}); err != nil {
		return "", err
	}

	// 1000A submitter / 1000B receiver
	open("1000A")
	if err := emit("1000A", "NM1", []x12.Field{
		x12.ID("41").Req(), x12.ID("2").Req(),
		x12.AN(identity.SubmitterName).Req(),
		x12.Empty(), x12.Empty(), x12.Empty(), x12.Empty(),
		x12.ID("46").Req(), x12.AN(identity.SenderID).Req(),
	}); err != nil {
		return "", err
	}
	if err := emit("1000A", "PER", []x12.Field{
		x12.ID("IC").Req(),
		x12.AN(identity.ContactName),
		x12.ID("TE").Req(),
		x12.AN(identity.ContactPhone).Req(),
	}); err != nil {
		return "", err
	}
	open("1000B")
	if err := emit("1000B", "NM1", []x12.Field{
		x12.ID("40").Req(), x12.ID("2").Req(),
		x12.AN(batch.Payer.Name).Req(),
		x12.Empty(), x12.Empty(), x12.Empty(), x12.Empty(),
		x12.ID("46").Req(), x12.AN(identity.ReceiverID).Req(),
	}); err != nil {
		return "", err
	}

	// 2000A billing provider hierarchy
	open("2000A")
	if err := emit("2000A", "HL", []x12.Field{
		x12.N0(1).Req(), x12.Empty(), x12.ID("20").Req(), x12.ID("1").Req(),
	}); err != nil {
		return "", err
	}
	if batch.Profile.RequireProviderTaxonomy {
		if err := emit("2000A", "PRV", []x12.Field{
			x12.ID("BI").Req(), x12.ID("PXC").Req(),
			x12.AN(batch.Provider.TaxonomyCode).Req(),
		}); err != nil {
			return "", err
		}
	}
	open("2010AA")
	if err := emit("2010AA", "NM1", []x12.Field{
		x12.ID("85").Req(), x12.ID("2").Req(),
		x12.AN(batch.Provider.OrgName).Req(),
		x12.Empty(), x12.Empty(), x12.Empty(), x12.Empty(),
		x12.ID("XX").Req(), x12.AN(batch.Provider.NPI).Req(),
	}); err != nil {
		return "", err
	}
	if err := emit("2010AA", "N3", []x12.Field{
		x12.AN(batch.Provider.Address1).Req(),
		x12.AN(batch.Provider.Address2),
	}); err != nil {
		return "", err
	}
	if err := emit("2010AA", "N4", []x12.Field{
		x12.AN(batch.Provider.City).Req(),
		x12.AN(batch.Provider.State).Req(),
		x12.AN(batch.Provider.Zip).Req(),
	}); err != nil {
		return "", err
	}
	if err := emit("2010AA", "REF", []x12.Field{
		x12.ID("EI").Req(), x12.AN(batch.Provider.TaxID).Req(),
	}); err != nil {
		return "", err
	}

	// 2000B subscriber hierarchy
	open("2000B")
	if err := emit("2000B", "HL", []x12.Field{
		x12.N0(2).Req(), x12.N0(1).Req(), x12.ID("22").Req(), x12.ID("0").Req(),
	}); err != nil {
		return "", err
	}
	if err := emit("2000B", "SBR", []x12.Field{
		x12.ID("P").Req(), x12.ID("18").Req(),
		x12.Empty(), x12.Empty(), x12.Empty(), x12.Empty(), x12.Empty(), x12.Empty(),
		x12.ID("MC").Req(),
	}); err != nil {
		return "", err
	}
	sub := in.Subscriber
	open("2010BA")
	if err := emit("2010BA", "NM1", []x12.Field{
		x12.ID("IL").Req(), x12.ID("1").Req(),
		x12.AN(sub.LastName).Req(), x12.AN(sub.FirstName).Req(),
		x12.Empty(), x12.Empty(), x12.Empty(),
		x12.ID("MI").Req(), x12.AN(sub.MemberID).Req(),
	}); err != nil {
		return "", err
	}
	if sub.Address1 != "" {
		if err := emit("2010BA", "N3", []x12.Field{x12.AN(sub.Address1).Req()}); err != nil {
			return "", err
		}
		if err := emit("2010BA", "N4", []x12.Field{
			x12.AN(sub.City).Req(), x12.AN(sub.State).Req(), x12.AN(sub.Zip).Req(),
		}); err != nil {
			return "", err
		}
	}
	if err := emit("2010BA", "DMG", []x12.Field{
		x12.ID("D8").Req(), x12.DT(sub.BirthDate).Req(), x12.ID(sub.Gender).Req(),
	}); err != nil {
		return "", err
	}
	open("2010BB")
	if err := emit("2010BB", "NM1", []x12.Field{
		x12.ID("PR").Req(), x12.ID("2").Req(),
		x12.AN(batch.Payer.Name).Req(),
		x12.Empty(), x12.Empty(), x12.Empty(), x12.Empty(),
		x12.ID("PI").Req(), x12.AN(batch.Payer.ID).Req(),
	}); err != nil {
		return "", err
	}

	// 2300 claim
	open("2300")
	account := batch.Profile.PatientAccountPrefix + c.ID()
	if err := emit("2300", "CLM", []x12.Field{
		x12.AN(account).Req(),
		x12.Amount(c.TotalChargeCents()).Req(),
		x12.Empty(), x12.Empty(),
		x12.Composite(validation.PlaceOfServiceHome, "B", batch.Profile.Frequency()).Req(),
		x12.ID("Y").Req(),
		x12.ID("A").Req(),
		x12.ID("Y").Req(),
		x12.ID("Y").Req(),
	}); err != nil {
		return "", err
	}
	for _, ref := range batch.Profile.ExtraClaimRefs {
		if err := emit("2300", "REF", []x12.Field{
			x12.ID(ref.Qualifier).Req(), x12.AN(ref.Value).Req(),
		}); err != nil {
			return "", err
		}
	}
	hi := make([]x12.Field, 0, len(c.DiagnosisCodes()))
	for i, d := range c.DiagnosisCodes() {
		qual := "ABF"
		if i == 0 {
			qual = "ABK"
		}
		hi = append(hi, x12.Composite(qual, d).Req())
	}
	if err := emit("2300", "HI", hi); err != nil {
		return "", err
	}

	// 2400 service lines
	for i, line := range c.Lines() {
		open("2400")
		if err := emit("2400", "LX", []x12.Field{x12.N0(int64(i + 1)).Req()}); err != nil {
			return "", err
		}

		proc := append([]string{"HC", line.ProcedureCode}, line.Modifiers...)
		pointers := make([]string, len(line.DiagnosisPointers))
		for j, p := range line.DiagnosisPointers {
			pointers[j] = strconv.Itoa(p)
		}
		if err := emit("2400", "SV1", []x12.Field{
			x12.Composite(proc...).Req(),
			x12.Amount(line.ChargeCents).Req(),
			x12.ID("UN").Req(),
			x12.N0(int64(line.Units)).Req(),
			x12.Empty(), x12.Empty(),
			x12.Composite(pointers...).Req(),
		}); err != nil {
			return "", err
		}
		if err := emit("2400", "DTP", []x12.Field{
			x12.ID("472").Req(), x12.ID("D8").Req(), x12.DT(line.ServiceDate).Req(),
		}); err != nil {
			return "", err
		}
	}

	// SE01 counts every segment of the set including ST and SE itself.
	if err := emit("837", "SE", []x12.Field{
		x12.N0(int64(len(segs) + 1)).Req(),
		x12.AN(st02).Req(),
	}); err != nil {
		return "", err
	}

	if err := usage.Check(Transaction(), loopCounts); err != nil {
		return "", fmt.Errorf("transaction failed structure audit: %w", err)
	}
	return strings.Join(segs, ""), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
