// Package metrics provides Prometheus metrics for the MedPyxis services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medchart/medpyxis/internal/domain/dosing"
)

// Metrics holds all application metrics
type Metrics struct {
	EligibilityChecks         *prometheus.CounterVec
	IntegrityWarnings         *prometheus.CounterVec
	DoseCalculations          *prometheus.CounterVec
	AdministrationsRecorded   *prometheus.CounterVec
	ScheduleRecomputeDuration prometheus.Histogram
	SchedulesPublished        prometheus.Counter
	KafkaMessagesProduced     prometheus.Counter
	KafkaMessagesConsumed     prometheus.Counter
	OutboxPending             prometheus.Gauge
	CircuitBreakerState       *prometheus.GaugeVec
}

// New creates metrics and registers them with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics and registers them with reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EligibilityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dosing_eligibility_checks_total",
			Help: "Eligibility verdicts by code",
		}, []string{"code"}),
		IntegrityWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dosing_integrity_warnings_total",
			Help: "Data integrity warnings by kind",
		}, []string{"kind"}),
		DoseCalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dose_calculations_total",
			Help: "Dose calculator requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		AdministrationsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "administrations_recorded_total",
			Help: "Administration rows written by status",
		}, []string{"status"}),
		ScheduleRecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schedule_recompute_duration_seconds",
			Help:    "Time to rebuild a patient medication board",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		SchedulesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_updates_published_total",
			Help: "Total schedule updates published",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.EligibilityChecks,
		m.IntegrityWarnings,
		m.DoseCalculations,
		m.AdministrationsRecorded,
		m.ScheduleRecomputeDuration,
		m.SchedulesPublished,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveWarning counts an integrity warning. It has the shape of
// dosing.WarningObserver.
func (m *Metrics) ObserveWarning(w dosing.IntegrityWarning) {
	m.IntegrityWarnings.WithLabelValues(string(w.Kind)).Inc()
}

// ObserveVerdict counts an eligibility verdict
func (m *Metrics) ObserveVerdict(v dosing.Verdict) {
	m.EligibilityChecks.WithLabelValues(string(v.Code)).Inc()
}

// ObserveCalculation counts a dose calculation
func (m *Metrics) ObserveCalculation(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.DoseCalculations.WithLabelValues(kind, outcome).Inc()
}

// ObserveBreakerState records a circuit breaker state change
func (m *Metrics) ObserveBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
