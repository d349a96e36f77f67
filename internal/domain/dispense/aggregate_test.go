package dispense

import (
	"errors"
	"testing"
	"time"

	"github.com/medchart/medpyxis/internal/domain/dosing"
)

var now = time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)

func prescription() dosing.Prescription {
	return dosing.Prescription{
		ID:          "rx-1",
		PatientID:   "patient-1",
		MedicineID:  "ondansetron",
		Dosage:      "4 mg",
		Periodicity: "every 6 hours",
	}
}

func allowed() dosing.Verdict {
	return dosing.Verdict{Allowed: true, Code: dosing.VerdictAllowed}
}

func tooEarly() dosing.Verdict {
	due := now.Add(2 * time.Hour)
	return dosing.Verdict{
		Code:          dosing.VerdictTooEarly,
		Reason:        "next dose due in 2 hours",
		TimeRemaining: 2 * time.Hour,
		DueAt:         &due,
	}
}

func TestSessionCollectAndAdminister(t *testing.T) {
	s := NewSession("session-1")
	if err := s.Collect(prescription(), allowed(), nil, "nurse-7", now); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if s.Status() != StatusCollected {
		t.Errorf("expected collected, got %s", s.Status())
	}
	if err := s.Collect(prescription(), allowed(), nil, "nurse-7", now); !errors.Is(err, ErrAlreadyCollected) {
		t.Errorf("expected ErrAlreadyCollected, got %v", err)
	}

	if err := s.Administer("nurse-7", now.Add(5*time.Minute)); err != nil {
		t.Fatalf("administer: %v", err)
	}
	if s.Status() != StatusAdministered || s.Version() != 2 {
		t.Errorf("unexpected state %s v%d", s.Status(), s.Version())
	}

	admins := s.Administrations()
	if len(admins) != 2 {
		t.Fatalf("expected 2 administration rows, got %d", len(admins))
	}
	if admins[0].Status != dosing.StatusCollected || admins[1].Status != dosing.StatusAdministered {
		t.Errorf("unexpected statuses %s, %s", admins[0].Status, admins[1].Status)
	}
	if admins[1].PrescriptionID == nil || *admins[1].PrescriptionID != "rx-1" {
		t.Error("administration rows must carry the prescription id")
	}
	if !admins[1].AdministeredAt.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("unexpected administered time %v", admins[1].AdministeredAt)
	}
	if admins[0].ID != s.Changes()[0].ID {
		t.Error("administration rows reuse the event id")
	}
}

func TestSessionCollectRefusals(t *testing.T) {
	s := NewSession("session-1")

	completed := dosing.Verdict{Code: dosing.VerdictCompleted, Reason: "prescription completed"}
	err := s.Collect(prescription(), completed, &Override{Reason: "doctor asked"}, "nurse-7", now)
	var notEligible *NotEligibleError
	if !errors.As(err, &notEligible) || notEligible.Verdict.Code != dosing.VerdictCompleted {
		t.Errorf("expected NotEligibleError, got %v", err)
	}

	if err := s.Collect(prescription(), tooEarly(), nil, "nurse-7", now); !errors.Is(err, ErrOverrideRequired) {
		t.Errorf("expected ErrOverrideRequired, got %v", err)
	}
	if err := s.Collect(prescription(), tooEarly(), &Override{Reason: "  "}, "nurse-7", now); !errors.Is(err, ErrOverrideRequired) {
		t.Errorf("a blank reason is not an override, got %v", err)
	}
	if len(s.Changes()) != 0 || s.Status() != StatusOpen {
		t.Error("refused collections must not record events")
	}
}

func TestSessionTimingOverride(t *testing.T) {
	s := NewSession("session-1")
	override := &Override{Reason: "patient leaving for surgery", By: "charge-nurse"}
	if err := s.Collect(prescription(), tooEarly(), override, "nurse-7", now); err != nil {
		t.Fatalf("collect with override: %v", err)
	}
	if !s.Overridden() {
		t.Error("expected the session to be marked overridden")
	}

	changes := s.Changes()
	if len(changes) != 2 || changes[0].EventType != EventTimingOverridden || changes[1].EventType != EventDoseCollected {
		t.Fatalf("unexpected events %+v", changes)
	}

	admins := s.Administrations()
	if len(admins) != 2 {
		t.Fatalf("expected a warning row and a collected row, got %d", len(admins))
	}
	if admins[0].Status != dosing.StatusWarning || admins[0].Message != "timing override: patient leaving for surgery" {
		t.Errorf("unexpected warning row %+v", admins[0])
	}
	if admins[1].Status != dosing.StatusCollected {
		t.Errorf("unexpected collected row %+v", admins[1])
	}
}

func TestSessionFail(t *testing.T) {
	s := NewSession("session-1")
	if err := s.Fail("dropped", now); !errors.Is(err, ErrNotCollected) {
		t.Errorf("expected ErrNotCollected, got %v", err)
	}
	if err := s.Administer("nurse-7", now); !errors.Is(err, ErrNotCollected) {
		t.Errorf("expected ErrNotCollected, got %v", err)
	}

	if err := s.Collect(prescription(), allowed(), nil, "nurse-7", now); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if err := s.Fail("", now); !errors.Is(err, ErrMessageRequired) {
		t.Errorf("expected ErrMessageRequired, got %v", err)
	}
	if err := s.Fail("patient refused", now.Add(time.Minute)); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if s.Status() != StatusFailed {
		t.Errorf("expected failed, got %s", s.Status())
	}

	admins := s.Administrations()
	last := admins[len(admins)-1]
	if last.Status != dosing.StatusError || last.Message != "patient refused" {
		t.Errorf("unexpected failure row %+v", last)
	}
	if last.Status.CountsAsDose() {
		t.Error("a failed dose must not count")
	}
}

func TestSessionLoadFromHistory(t *testing.T) {
	s := NewSession("session-1")
	if err := s.Collect(prescription(), tooEarly(), &Override{Reason: "surgery"}, "nurse-7", now); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if err := s.Administer("nurse-7", now.Add(time.Minute)); err != nil {
		t.Fatalf("administer: %v", err)
	}

	replayed := NewSession("session-1")
	if err := replayed.LoadFromHistory(s.Changes()); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.Status() != StatusAdministered || replayed.Version() != 3 {
		t.Errorf("unexpected replayed state %s v%d", replayed.Status(), replayed.Version())
	}
	if replayed.PatientID() != "patient-1" || replayed.PrescriptionID() != "rx-1" || replayed.MedicineID() != "ondansetron" {
		t.Errorf("unexpected replayed identity %s %s %s", replayed.PatientID(), replayed.PrescriptionID(), replayed.MedicineID())
	}
	if !replayed.Overridden() {
		t.Error("override should survive replay")
	}
	if len(replayed.Changes()) != 0 {
		t.Error("replayed events are not uncommitted changes")
	}

	bad := []*Event{{EventType: EventDoseCollected, EventData: []byte("{not json")}}
	if err := NewSession("x").LoadFromHistory(bad); err == nil {
		t.Error("expected an error for corrupt event data")
	}
}
