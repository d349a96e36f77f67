package dosing

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEngineReportsWarnings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var seen []IntegrityWarning
	engine := NewEngine(zap.New(core), WithWarningObserver(func(w IntegrityWarning) {
		seen = append(seen, w)
	}))

	p := rx("rx-1", "cefazolin", "every 8 hours")
	admins := []Administration{given(nil, "cefazolin", t0, StatusAdministered)}

	if v := engine.Eligibility(p, admins, nil, t0.Add(time.Hour)); v.Code != VerdictTooEarly {
		t.Fatalf("expected too early, got %+v", v)
	}
	if len(seen) != 1 || seen[0].Kind != WarningLegacyFallback {
		t.Fatalf("expected a legacy warning, got %+v", seen)
	}

	entries := logs.FilterMessage("data integrity warning").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["kind"] != "legacy_fallback" || fields["patient_id"] != "patient-1" || fields["prescription_id"] != "rx-1" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestEngineEligibilityMatchesCanAdminister(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	engine := NewEngine(zap.New(core))

	follow := rx("rx-follow", "protamine", "every 6 hours")
	links := []MedicationLink{
		{ID: "link-1", TriggerMedicineID: "heparin", FollowMedicineID: "protamine", DelayMinutes: 180},
		{ID: "link-2", TriggerMedicineID: "heparin", FollowMedicineID: "protamine", DelayMinutes: 60},
	}
	admins := []Administration{given(strPtr("rx-trigger"), "heparin", t0, StatusAdministered)}
	now := t0.Add(150 * time.Minute)

	got := engine.Eligibility(follow, admins, links, now)
	want := CanAdminister(follow, admins, links, now)
	if got.Allowed != want.Allowed || got.Code != want.Code || got.Reason != want.Reason {
		t.Errorf("engine verdict %+v differs from %+v", got, want)
	}
	if logs.FilterField(zap.String("kind", "duplicate_link")).Len() != 1 {
		t.Errorf("expected the duplicate link to be logged, got %d entries", logs.Len())
	}
}

func TestEngineBoardWithoutWarnings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	engine := NewEngine(zap.New(core))

	s := Snapshot{
		PatientID:     "patient-1",
		Prescriptions: []Prescription{rx("rx-1", "ondansetron", "every 6 hours")},
	}
	board := engine.Board(s, t0)
	if len(board.Medications) != 1 {
		t.Fatalf("expected 1 medication, got %d", len(board.Medications))
	}
	if logs.Len() != 0 {
		t.Errorf("expected no warnings, got %d", logs.Len())
	}
}

func TestNewEngineNilLogger(t *testing.T) {
	engine := NewEngine(nil)
	board := engine.Board(Snapshot{
		PatientID:     "patient-1",
		Prescriptions: []Prescription{rx("rx-1", "protamine", "daily")},
		Links: []MedicationLink{
			{ID: "link-1", TriggerMedicineID: "heparin", FollowMedicineID: "protamine", DelayMinutes: 30},
			{ID: "link-2", TriggerMedicineID: "heparin", FollowMedicineID: "protamine", DelayMinutes: 60},
		},
	}, t0)
	if len(board.Medications) != 1 || len(board.Warnings) == 0 {
		t.Errorf("expected one medication and a duplicate link warning, got %+v", board)
	}
}
