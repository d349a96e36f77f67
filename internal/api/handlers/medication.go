package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medchart/medpyxis/internal/api/middleware"
	"github.com/medchart/medpyxis/internal/domain/dosing"
	fhir "github.com/medchart/medpyxis/internal/fhir/r5"
	"github.com/medchart/medpyxis/internal/infrastructure/postgres"
	"github.com/medchart/medpyxis/internal/observability/metrics"
	"github.com/medchart/medpyxis/internal/observability/tracing"
)

// SnapshotStore loads the engine inputs
type SnapshotStore interface {
	Prescription(ctx context.Context, id string) (dosing.Prescription, error)
	Snapshot(ctx context.Context, patientID string) (dosing.Snapshot, error)
}

// MedicationHandler serves the cabinet board and eligibility checks
type MedicationHandler struct {
	store   SnapshotStore
	engine  *dosing.Engine
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewMedicationHandler creates a new handler. m may be nil.
func NewMedicationHandler(store SnapshotStore, engine *dosing.Engine, m *metrics.Metrics, logger *zap.Logger) *MedicationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicationHandler{
		store:   store,
		engine:  engine,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("medication-handler"),
	}
}

// Routes returns the handler routes
func (h *MedicationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/patients/{patientID}/medications", h.Board)
	r.Get("/patients/{patientID}/fhir", h.ExportFHIR)
	r.Get("/prescriptions/{id}/eligibility", h.Eligibility)
	return r
}

// Board handles GET /patients/{patientID}/medications
func (h *MedicationHandler) Board(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "medication_board")
	defer span.End()

	patientID := chi.URLParam(r, "patientID")
	span.SetAttributes(attribute.String("patient_id", patientID))

	snap, err := h.store.Snapshot(ctx, patientID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	start := time.Now()
	board := h.engine.Board(snap, middleware.Now(ctx))
	if h.metrics != nil {
		h.metrics.ScheduleRecomputeDuration.Observe(time.Since(start).Seconds())
	}
	writeJSON(w, http.StatusOK, board)
}

// EligibilityResponse is the answer to a collection request preview
type EligibilityResponse struct {
	PrescriptionID  string         `json:"prescription_id"`
	Verdict         dosing.Verdict `json:"verdict"`
	RemainingMillis int64          `json:"remaining_millis,omitempty"`
	RemainingText   string         `json:"remaining_text,omitempty"`
	Overridable     bool           `json:"overridable"`
	Status          dosing.Status  `json:"status"`
}

// Eligibility handles GET /prescriptions/{id}/eligibility
func (h *MedicationHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "eligibility")
	defer span.End()

	p, snap, err := loadPrescription(ctx, h.store, chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	now := middleware.Now(ctx)
	v := h.engine.Eligibility(p, snap.Administrations, snap.Links, now)
	tracing.Annotate(ctx, v)
	if h.metrics != nil {
		h.metrics.ObserveVerdict(v)
	}

	resp := EligibilityResponse{
		PrescriptionID: p.ID,
		Verdict:        v,
		Overridable:    v.Overridable(),
		Status:         dosing.Describe(p, snap.Administrations, snap.Links, now),
	}
	if v.TimeRemaining > 0 {
		resp.RemainingMillis = v.TimeRemaining.Milliseconds()
		resp.RemainingText = dosing.FormatRemaining(v.TimeRemaining)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportFHIR handles GET /patients/{patientID}/fhir
func (h *MedicationHandler) ExportFHIR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "patientID")

	snap, err := h.store.Snapshot(ctx, patientID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			w.Header().Set("Content-Type", "application/fhir+json")
			w.WriteHeader(http.StatusNotFound)
			writeBody(w, fhir.NewErrorOutcome("not-found", "unknown patient "+patientID))
			return
		}
		h.storeError(w, r, err)
		return
	}

	bundle := fhir.PatientBundle(snap, h.engine.Board(snap, middleware.Now(ctx)))
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(http.StatusOK)
	writeBody(w, bundle)
}

// loadPrescription fetches a prescription and its patient's snapshot
func loadPrescription(ctx context.Context, store SnapshotStore, id string) (dosing.Prescription, dosing.Snapshot, error) {
	p, err := store.Prescription(ctx, id)
	if err != nil {
		return dosing.Prescription{}, dosing.Snapshot{}, err
	}
	snap, err := store.Snapshot(ctx, p.PatientID)
	if err != nil {
		return dosing.Prescription{}, dosing.Snapshot{}, err
	}
	return p, snap, nil
}

func (h *MedicationHandler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, postgres.ErrNotFound) {
		jsonError(w, "not found", http.StatusNotFound)
		return
	}
	h.logger.Error("store query failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Error(err))
	jsonError(w, "failed to load medications", http.StatusInternalServerError)
}
