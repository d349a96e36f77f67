package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medchart/medpyxis/internal/domain/dosing"
	"github.com/medchart/medpyxis/internal/dosecalc"
	"github.com/medchart/medpyxis/internal/observability/metrics"
)

// ToolsHandler serves the stateless helpers: the dose calculator and the
// periodicity parser
type ToolsHandler struct {
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewToolsHandler creates a new handler. m may be nil.
func NewToolsHandler(m *metrics.Metrics, logger *zap.Logger) *ToolsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolsHandler{metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *ToolsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/dose-calculator/basic", h.Basic)
	r.Post("/dose-calculator/weight", h.Weight)
	r.Post("/dose-calculator/iv", h.IVDrip)
	r.Get("/periodicity/parse", h.ParsePeriodicity)
	return r
}

// BasicRequest holds the raw form fields of a basic dose calculation
type BasicRequest struct {
	OrderedDose string `json:"ordered_dose"`
	OrderedUnit string `json:"ordered_unit"`
	StockDose   string `json:"stock_dose"`
	StockUnit   string `json:"stock_unit"`
	StockVolume string `json:"stock_volume"`
	VolumeUnit  string `json:"volume_unit"`
}

// WeightRequest holds the raw form fields of a weight based calculation
type WeightRequest struct {
	Weight      string `json:"weight"`
	WeightUnit  string `json:"weight_unit"`
	DosePerKg   string `json:"dose_per_kg"`
	StockDose   string `json:"stock_dose"`
	StockUnit   string `json:"stock_unit"`
	StockVolume string `json:"stock_volume"`
	VolumeUnit  string `json:"volume_unit"`
}

// IVRequest holds the raw form fields of an IV drip rate calculation
type IVRequest struct {
	Volume     string `json:"volume"`
	VolumeUnit string `json:"volume_unit"`
	Time       string `json:"time"`
	TimeUnit   string `json:"time_unit"`
}

// quantities parses raw fields in order, stopping at the first bad one
func quantities(fields ...[2]string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := dosecalc.ParseQuantity(f[0], f[1])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Basic handles POST /dose-calculator/basic
func (h *ToolsHandler) Basic(w http.ResponseWriter, r *http.Request) {
	var req BasicRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.calculate(w, dosecalc.KindBasic, func() (dosecalc.Result, error) {
		q, err := quantities(
			[2]string{"ordered_dose", req.OrderedDose},
			[2]string{"stock_dose", req.StockDose},
			[2]string{"stock_volume", req.StockVolume},
		)
		if err != nil {
			return dosecalc.Result{}, err
		}
		return dosecalc.BasicDose(q[0], req.OrderedUnit, q[1], req.StockUnit, q[2], req.VolumeUnit)
	})
}

// Weight handles POST /dose-calculator/weight
func (h *ToolsHandler) Weight(w http.ResponseWriter, r *http.Request) {
	var req WeightRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.calculate(w, dosecalc.KindWeight, func() (dosecalc.Result, error) {
		q, err := quantities(
			[2]string{"weight", req.Weight},
			[2]string{"dose_per_kg", req.DosePerKg},
			[2]string{"stock_dose", req.StockDose},
			[2]string{"stock_volume", req.StockVolume},
		)
		if err != nil {
			return dosecalc.Result{}, err
		}
		return dosecalc.WeightBasedDose(q[0], req.WeightUnit, q[1], q[2], req.StockUnit, q[3], req.VolumeUnit)
	})
}

// IVDrip handles POST /dose-calculator/iv
func (h *ToolsHandler) IVDrip(w http.ResponseWriter, r *http.Request) {
	var req IVRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.calculate(w, dosecalc.KindIVDrip, func() (dosecalc.Result, error) {
		q, err := quantities(
			[2]string{"volume", req.Volume},
			[2]string{"time", req.Time},
		)
		if err != nil {
			return dosecalc.Result{}, err
		}
		return dosecalc.IVDripRate(q[0], req.VolumeUnit, q[1], req.TimeUnit)
	})
}

func (h *ToolsHandler) calculate(w http.ResponseWriter, kind dosecalc.Kind, fn func() (dosecalc.Result, error)) {
	res, err := fn()
	if h.metrics != nil {
		h.metrics.ObserveCalculation(string(kind), err)
	}
	if err != nil {
		var inputErr *dosecalc.InputError
		if errors.As(err, &inputErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":            inputErr.Error(),
				"field":            inputErr.Field,
				"division_by_zero": errors.Is(err, dosecalc.ErrDivisionByZero),
			})
			return
		}
		h.logger.Error("dose calculation failed", zap.String("kind", string(kind)), zap.Error(err))
		jsonError(w, "calculation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PeriodicityResponse describes a parsed schedule
type PeriodicityResponse struct {
	Text        string          `json:"text"`
	Interval    dosing.Interval `json:"interval"`
	Schedulable bool            `json:"schedulable"`
	OneTime     bool            `json:"one_time"`
	DosesPerDay *float64        `json:"doses_per_day,omitempty"`
}

// ParsePeriodicity handles GET /periodicity/parse?text=
func (h *ToolsHandler) ParsePeriodicity(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		jsonError(w, "text is required", http.StatusBadRequest)
		return
	}

	iv := dosing.ParseInterval(text)
	resp := PeriodicityResponse{
		Text:        text,
		Interval:    iv,
		Schedulable: iv.Schedulable(),
		OneTime:     dosing.IsOneTime(text),
	}
	if n, ok := dosing.DosesPerDay(iv); ok {
		resp.DosesPerDay = &n
	}
	writeJSON(w, http.StatusOK, resp)
}
