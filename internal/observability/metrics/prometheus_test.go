package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/medchart/medpyxis/internal/domain/dosing"
)

func TestObservers(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveWarning(dosing.IntegrityWarning{Kind: dosing.WarningLegacyFallback})
	m.ObserveWarning(dosing.IntegrityWarning{Kind: dosing.WarningLegacyFallback})
	m.ObserveWarning(dosing.IntegrityWarning{Kind: dosing.WarningDuplicateLink})

	if got := testutil.ToFloat64(m.IntegrityWarnings.WithLabelValues("legacy_fallback")); got != 2 {
		t.Errorf("expected 2 legacy warnings, got %v", got)
	}
	if got := testutil.ToFloat64(m.IntegrityWarnings.WithLabelValues("duplicate_link")); got != 1 {
		t.Errorf("expected 1 duplicate warning, got %v", got)
	}

	m.ObserveVerdict(dosing.Verdict{Code: dosing.VerdictTooEarly})
	if got := testutil.ToFloat64(m.EligibilityChecks.WithLabelValues("too_early")); got != 1 {
		t.Errorf("expected 1 too_early verdict, got %v", got)
	}

	m.ObserveCalculation("basic", nil)
	m.ObserveCalculation("basic", errors.New("boom"))
	if got := testutil.ToFloat64(m.DoseCalculations.WithLabelValues("basic", "error")); got != 1 {
		t.Errorf("expected 1 failed calculation, got %v", got)
	}

	m.ObserveBreakerState("snapshot-store", 1)
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("snapshot-store")); got != 1 {
		t.Errorf("expected open breaker, got %v", got)
	}
}

func TestNewWithRegistryRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	NewWithRegistry(reg)
}
