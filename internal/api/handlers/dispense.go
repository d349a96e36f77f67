package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medchart/medpyxis/internal/api/middleware"
	"github.com/medchart/medpyxis/internal/domain/dispense"
	"github.com/medchart/medpyxis/internal/domain/dosing"
	"github.com/medchart/medpyxis/internal/infrastructure/postgres"
	"github.com/medchart/medpyxis/internal/observability/metrics"
	"github.com/medchart/medpyxis/internal/observability/tracing"
)

// SessionStore persists dispense sessions
type SessionStore interface {
	Save(ctx context.Context, s *dispense.Session) error
	Load(ctx context.Context, id string) (*dispense.Session, error)
	GetEvents(ctx context.Context, id string) ([]*dispense.Event, error)
}

// DispenseHandler drives the collect, administer and fail flow
type DispenseHandler struct {
	sessions SessionStore
	store    SnapshotStore
	engine   *dosing.Engine
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewDispenseHandler creates a new handler. m may be nil.
func NewDispenseHandler(sessions SessionStore, store SnapshotStore, engine *dosing.Engine, m *metrics.Metrics, logger *zap.Logger) *DispenseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispenseHandler{
		sessions: sessions,
		store:    store,
		engine:   engine,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("dispense-handler"),
	}
}

// Routes returns the handler routes
func (h *DispenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/prescriptions/{id}/collect", h.Collect)
	r.Post("/sessions/{id}/administer", h.Administer)
	r.Post("/sessions/{id}/fail", h.Fail)
	r.Get("/sessions/{id}/events", h.Events)
	return r
}

// CollectRequest is the body of a collection
type CollectRequest struct {
	By       string             `json:"by"`
	Override *dispense.Override `json:"override,omitempty"`
}

// SessionResponse describes a session after a transition
type SessionResponse struct {
	SessionID       string                  `json:"session_id"`
	PrescriptionID  string                  `json:"prescription_id"`
	Status          dispense.Status         `json:"status"`
	Overridden      bool                    `json:"overridden"`
	Verdict         *dosing.Verdict         `json:"verdict,omitempty"`
	Administrations []dosing.Administration `json:"administrations"`
}

// Collect handles POST /prescriptions/{id}/collect
func (h *DispenseHandler) Collect(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "collect_dose")
	defer span.End()

	var req CollectRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, snap, err := loadPrescription(ctx, h.store, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			jsonError(w, "prescription not found", http.StatusNotFound)
			return
		}
		h.logger.Error("load prescription failed", zap.Error(err))
		jsonError(w, "failed to load prescription", http.StatusInternalServerError)
		return
	}

	now := middleware.Now(ctx)
	verdict := h.engine.Eligibility(p, snap.Administrations, snap.Links, now)
	tracing.Annotate(ctx, verdict)
	if h.metrics != nil {
		h.metrics.ObserveVerdict(verdict)
	}

	by := req.By
	if by == "" {
		by = middleware.GetClientID(ctx)
	}

	session := dispense.NewSession(uuid.NewString())
	span.SetAttributes(attribute.String("session_id", session.ID()))
	if err := session.Collect(p, verdict, req.Override, by, now); err != nil {
		var notEligible *dispense.NotEligibleError
		switch {
		case errors.As(err, &notEligible), errors.Is(err, dispense.ErrOverrideRequired):
			writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "verdict": verdict})
		default:
			jsonError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	if session.Overridden() {
		h.logger.Warn("dose collected under timing override",
			zap.String("session_id", session.ID()),
			zap.String("prescription_id", p.ID),
			zap.String("by", by),
			zap.Duration("remaining", verdict.TimeRemaining))
	}

	resp, ok := h.save(w, r, session)
	if !ok {
		return
	}
	resp.Verdict = &verdict
	writeJSON(w, http.StatusCreated, resp)
}

// AdministerRequest is the body of an administration
type AdministerRequest struct {
	By string `json:"by"`
}

// Administer handles POST /sessions/{id}/administer
func (h *DispenseHandler) Administer(w http.ResponseWriter, r *http.Request) {
	var req AdministerRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	by := req.By
	if by == "" {
		by = middleware.GetClientID(r.Context())
	}

	h.transition(w, r, func(s *dispense.Session) error {
		return s.Administer(by, middleware.Now(r.Context()))
	})
}

// FailRequest is the body of a failed administration
type FailRequest struct {
	Message string `json:"message"`
}

// Fail handles POST /sessions/{id}/fail
func (h *DispenseHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req FailRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.transition(w, r, func(s *dispense.Session) error {
		return s.Fail(req.Message, middleware.Now(r.Context()))
	})
}

// Events handles GET /sessions/{id}/events
func (h *DispenseHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.sessions.GetEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("get events failed", zap.Error(err))
		jsonError(w, "failed to get events", http.StatusInternalServerError)
		return
	}
	if len(events) == 0 {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *DispenseHandler) transition(w http.ResponseWriter, r *http.Request, fn func(*dispense.Session) error) {
	session, err := h.sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, dispense.ErrSessionNotFound) {
			jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("load session failed", zap.Error(err))
		jsonError(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	if err := fn(session); err != nil {
		switch {
		case errors.Is(err, dispense.ErrNotCollected):
			jsonError(w, err.Error(), http.StatusConflict)
		default:
			jsonError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	resp, ok := h.save(w, r, session)
	if ok {
		writeJSON(w, http.StatusOK, resp)
	}
}

// save persists the session and describes the rows it wrote
func (h *DispenseHandler) save(w http.ResponseWriter, r *http.Request, s *dispense.Session) (SessionResponse, bool) {
	ctx := r.Context()
	if id := middleware.GetRequestID(ctx); id != "" {
		for _, e := range s.Changes() {
			e.WithCorrelation(id)
		}
	}

	rows := s.Administrations()
	if err := h.sessions.Save(ctx, s); err != nil {
		h.logger.Error("save session failed",
			zap.String("session_id", s.ID()),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		jsonError(w, "failed to save session", http.StatusInternalServerError)
		return SessionResponse{}, false
	}
	if h.metrics != nil {
		for _, a := range rows {
			h.metrics.AdministrationsRecorded.WithLabelValues(string(a.Status)).Inc()
		}
	}

	return SessionResponse{
		SessionID:       s.ID(),
		PrescriptionID:  s.PrescriptionID(),
		Status:          s.Status(),
		Overridden:      s.Overridden(),
		Administrations: rows,
	}, true
}
