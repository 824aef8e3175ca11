// Package handlers provides HTTP handlers for the claims API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/caretide/go-edi/internal/ackflow"
	"github.com/caretide/go-edi/internal/api/middleware"
	"github.com/caretide/go-edi/internal/billing"
	"github.com/caretide/go-edi/internal/domain/claim"
	"github.com/caretide/go-edi/internal/infrastructure/postgres"
	"github.com/caretide/go-edi/internal/observability/metrics"
	"github.com/caretide/go-edi/internal/partner"
	"github.com/caretide/go-edi/internal/transport"
	"github.com/caretide/go-edi/internal/x12/spec837p"
)

// PatientDirectory resolves member demographics for the claim envelope.
type PatientDirectory interface {
	Patient(ctx context.Context, patientID string) (*billing.Patient, error)
}

// ClaimHandler handles claim endpoints
type ClaimHandler struct {
	aggregator *billing.Aggregator
	builder    *spec837p.Builder
	repo       *claim.Repository
	lifecycle  *claim.LifecycleManager
	files      *postgres.FileStore
	dispatcher *transport.Dispatcher
	acks       *ackflow.Processor
	patients   PatientDirectory

	identity partner.Identity
	provider spec837p.BillingProvider
	payer    spec837p.Payer
	profile  spec837p.CompanionProfile

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// ClaimHandlerDeps bundles the collaborators the handler needs.
type ClaimHandlerDeps struct {
	Aggregator *billing.Aggregator
	Builder    *spec837p.Builder
	Repo       *claim.Repository
	Lifecycle  *claim.LifecycleManager
	Files      *postgres.FileStore
	Dispatcher *transport.Dispatcher
	Acks       *ackflow.Processor
	Patients   PatientDirectory
	Identity   partner.Identity
	Provider   spec837p.BillingProvider
	Payer      spec837p.Payer
	Profile    spec837p.CompanionProfile
	Metrics    *metrics.Metrics
}

// NewClaimHandler creates a new handler
func NewClaimHandler(deps ClaimHandlerDeps, logger *zap.Logger) *ClaimHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimHandler{
		aggregator: deps.Aggregator,
		builder:    deps.Builder,
		repo:       deps.Repo,
		lifecycle:  deps.Lifecycle,
		files:      deps.Files,
		dispatcher: deps.Dispatcher,
		acks:       deps.Acks,
		patients:   deps.Patients,
		identity:   deps.Identity,
		provider:   deps.Provider,
		payer:      deps.Payer,
		profile:    deps.Profile,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Routes returns the handler routes
func (h *ClaimHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/events", h.GetEvents)
	r.Post("/{id}/transmitted", h.Transmitted)
	return r
}

// CreateRequest is the request body for generating a claim
type CreateRequest struct {
	PatientID   string `json:"patient_id"`
	ProviderID  string `json:"provider_id"`
	PayerID     string `json:"payer_id"`
	PeriodStart string `json:"period_start"` // 2006-01-02
	PeriodEnd   string `json:"period_end"`
}

// CreateResponse is the response for a generated claim
type CreateResponse struct {
	ClaimID            string `json:"claim_id"`
	Status             string `json:"status"`
	FileID             string `json:"file_id"`
	InterchangeControl int64  `json:"interchange_control"`
	TotalChargeCents   int64  `json:"total_charge_cents"`
	LineCount          int    `json:"line_count"`
}

// Create handles POST /claims: resolve billing records into a claim, validate
// it, build the 837P interchange, store the file, and hand it to transport.
func (h *ClaimHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("claim-handler")
	ctx, span := tracer.Start(ctx, "create_claim")
	defer span.End()

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	period, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	agg, auths, err := h.aggregator.ResolveClaim(ctx, req.PatientID, req.ProviderID, req.PayerID, period)
	if err != nil {
		var re *billing.ResolutionError
		if errors.As(err, &re) {
			h.jsonError(w, re.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("claim resolution failed", zap.Error(err))
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("claim_id", agg.ID()))
	if h.metrics != nil {
		h.metrics.ClaimsResolved.Inc()
	}

	patient, err := h.patients.Patient(ctx, req.PatientID)
	if err != nil {
		h.logger.Error("patient lookup failed", zap.Error(err))
		h.jsonError(w, "patient not found", http.StatusNotFound)
		return
	}

	result, err := h.builder.Build(ctx, h.identity, spec837p.Batch{
		Provider: h.provider,
		Payer:    h.payer,
		Profile:  h.profile,
		Inputs: []spec837p.Input{{
			Claim:          agg,
			Authorizations: auths,
			Subscriber:     subscriberFrom(patient),
		}},
	})
	if err != nil {
		var be *spec837p.BatchError
		if errors.As(err, &be) {
			if h.metrics != nil {
				h.metrics.ClaimsValidationFail.Inc()
			}
			h.validationError(w, be)
			return
		}
		h.logger.Error("build failed", zap.Error(err))
		h.jsonError(w, "failed to build interchange", http.StatusInternalServerError)
		return
	}
	if h.metrics != nil {
		h.metrics.FilesBuilt.Inc()
		h.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	}

	tcn, _ := strconv.ParseInt(result.TransactionControls[agg.ID()], 10, 64)
	if err := agg.MarkGenerated(&claim.ClaimGeneratedData{
		ClaimID:            agg.ID(),
		FileID:             result.FileID,
		InterchangeControl: result.InterchangeControl,
		GroupControl:       result.GroupControl,
		TransactionControl: tcn,
		GeneratedAt:        time.Now().UTC(),
	}); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.repo.Save(ctx, agg); err != nil {
		h.logger.Error("save failed", zap.Error(err))
		h.jsonError(w, "failed to save claim", http.StatusInternalServerError)
		return
	}

	if err := h.files.Save(ctx, &postgres.GeneratedFile{
		FileID:             result.FileID,
		SenderID:           h.identity.SenderID,
		ReceiverID:         h.identity.ReceiverID,
		InterchangeControl: result.InterchangeControl,
		GroupControl:       result.GroupControl,
		ClaimIDs:           result.ClaimIDs,
		Data:               result.Data,
	}); err != nil {
		h.logger.Error("file store failed", zap.Error(err))
		h.jsonError(w, "failed to store generated file", http.StatusInternalServerError)
		return
	}

	if err := h.dispatcher.Dispatch(ctx, transport.FileReadyNotice{
		FileID:             result.FileID,
		ReceiverID:         h.identity.ReceiverID,
		InterchangeControl: result.InterchangeControl,
		ClaimCount:         len(result.ClaimIDs),
		ReadyAt:            time.Now().UTC(),
	}); err != nil {
		// The file is durably stored; transport can be retried out of band.
		h.logger.Error("dispatch failed, file held for retry",
			zap.String("file_id", result.FileID),
			zap.Error(err))
	}

	h.logger.Info("claim generated",
		zap.String("claim_id", agg.ID()),
		zap.String("file_id", result.FileID),
		zap.String("request_id", middleware.GetRequestID(ctx)))

	resp := CreateResponse{
		ClaimID:            agg.ID(),
		Status:             string(agg.Status()),
		FileID:             result.FileID,
		InterchangeControl: result.InterchangeControl,
		TotalChargeCents:   agg.TotalChargeCents(),
		LineCount:          len(agg.Lines()),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// Get handles GET /claims/{id}
func (h *ClaimHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	agg, err := h.repo.Load(ctx, id)
	if err != nil {
		h.jsonError(w, "claim not found", http.StatusNotFound)
		return
	}

	periodStart, periodEnd := agg.Period()
	resp := map[string]interface{}{
		"id":                  agg.ID(),
		"status":              agg.Status(),
		"version":             agg.Version(),
		"patient_id":          agg.PatientID(),
		"payer_id":            agg.PayerID(),
		"period_start":        periodStart.Format("2006-01-02"),
		"period_end":          periodEnd.Format("2006-01-02"),
		"total_charge_cents":  agg.TotalChargeCents(),
		"line_count":          len(agg.Lines()),
		"file_id":             agg.FileID(),
		"interchange_control": agg.InterchangeControl(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetEvents handles GET /claims/{id}/events
func (h *ClaimHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	events, err := h.repo.GetEvents(ctx, id)
	if err != nil {
		h.jsonError(w, "failed to get events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// TransmittedRequest is the transport collaborator's pickup callback body
type TransmittedRequest struct {
	TransmittedAt time.Time `json:"transmitted_at"`
}

// Transmitted handles POST /claims/{id}/transmitted
func (h *ClaimHandler) Transmitted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req TransmittedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TransmittedAt.IsZero() {
		req.TransmittedAt = time.Now().UTC()
	}

	if err := h.lifecycle.MarkTransmitted(ctx, id, &claim.ClaimTransmittedData{
		ClaimID:       id,
		TransmittedAt: req.TransmittedAt,
	}); err != nil {
		h.jsonError(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id, "status": string(claim.StatusTransmitted)})
}

// Acknowledgments handles POST /acknowledgments: a manual upload of a payer
// response file, taking the same path as files arriving via Kafka.
func (h *ClaimHandler) Acknowledgments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil || len(data) == 0 {
		h.jsonError(w, "empty or unreadable body", http.StatusBadRequest)
		return
	}

	result, err := h.acks.ProcessFile(ctx, "manual-upload", data)
	if err != nil {
		if result != nil && result.Quarantined {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":       err.Error(),
				"quarantined": true,
			})
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"events":  result.Events,
		"applied": result.Applied,
	})
}

func (h *ClaimHandler) validationError(w http.ResponseWriter, be *spec837p.BatchError) {
	type failure struct {
		Rule    string `json:"rule"`
		Line    int    `json:"line,omitempty"`
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	body := make(map[string][]failure, len(be.Failures))
	for claimID, errs := range be.Failures {
		for _, e := range errs {
			body[claimID] = append(body[claimID], failure{
				Rule:    string(e.Rule),
				Line:    e.Line,
				Field:   e.Field,
				Message: e.Message,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":    "claim failed validation",
		"failures": body,
	})
}

func (h *ClaimHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func parsePeriod(start, end string) (billing.Period, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return billing.Period{}, errors.New("period_start must be YYYY-MM-DD")
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return billing.Period{}, errors.New("period_end must be YYYY-MM-DD")
	}
	return billing.Period{Start: s, End: e}, nil
}

func subscriberFrom(p *billing.Patient) spec837p.Subscriber {
	return spec837p.Subscriber{
		MemberID:  p.MemberID,
		LastName:  p.LastName,
		FirstName: p.FirstName,
		BirthDate: p.BirthDate,
		Gender:    p.Gender,
		Address1:  p.Address1,
		City:      p.City,
		State:     p.State,
		Zip:       p.Zip,
	}
}
