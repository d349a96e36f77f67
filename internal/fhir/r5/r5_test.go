package r5

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/medchart/medpyxis/internal/domain/dosing"
)

var t0 = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func TestTimingFor(t *testing.T) {
	tests := []struct {
		periodicity string
		period      float64
		unit        string
	}{
		{"every 6 hours", 6, "h"},
		{"twice daily", 12, "h"},
		{"once daily", 1, "d"},
		{"every 90 minutes", 90, "min"},
	}
	for _, tt := range tests {
		timing := TimingFor(dosing.ParseInterval(tt.periodicity))
		if timing == nil || timing.Repeat == nil {
			t.Errorf("%q: expected repeat rule", tt.periodicity)
			continue
		}
		if timing.Repeat.Period != tt.period || timing.Repeat.PeriodUnit != tt.unit || timing.Repeat.Frequency != 1 {
			t.Errorf("%q: got %+v, want %v %s", tt.periodicity, timing.Repeat, tt.period, tt.unit)
		}
	}

	if TimingFor(dosing.ParseInterval("PRN pain")) != nil {
		t.Error("PRN should have no timing")
	}
	if TimingFor(dosing.ParseInterval("with meals")) != nil {
		t.Error("unknown schedule should have no timing")
	}
	if c := TimingFor(dosing.ParseInterval("continuous infusion")); c == nil || c.Code == nil || c.Code.Text != "continuous" {
		t.Errorf("unexpected continuous timing %+v", c)
	}
}

func TestFromPrescription(t *testing.T) {
	p := dosing.Prescription{
		ID:          "rx-1",
		PatientID:   "patient-1",
		MedicineID:  "amoxicillin",
		Dosage:      "500 mg",
		Periodicity: "twice daily",
		Duration:    "5 days",
		Route:       "oral",
		StartDate:   &t0,
	}
	admins := []dosing.Administration{}
	st := dosing.Describe(p, admins, nil, t0)

	mr := FromPrescription(p, st)
	if mr.ResourceType != "MedicationRequest" || mr.Status != StatusActive || mr.Intent != IntentOrder {
		t.Errorf("unexpected header %+v", mr)
	}
	if mr.Subject.Reference != "Patient/patient-1" {
		t.Errorf("subject = %q", mr.Subject.Reference)
	}
	d := mr.DosageInstruction[0]
	if d.Timing.Repeat.Count != 10 || d.Timing.Repeat.BoundsPeriod.Start == nil {
		t.Errorf("expected count 10 and bounds, got %+v", d.Timing.Repeat)
	}
	if d.Route == nil || d.Route.Text != "oral" {
		t.Errorf("route = %+v", d.Route)
	}

	p.Completed = true
	if got := FromPrescription(p, dosing.Describe(p, admins, nil, t0)).Status; got != StatusCompleted {
		t.Errorf("status = %q, want completed", got)
	}
}

func TestFromPrescriptionPRN(t *testing.T) {
	p := dosing.Prescription{ID: "rx-2", PatientID: "patient-1", MedicineID: "morphine", Periodicity: "PRN pain"}
	mr := FromPrescription(p, dosing.Describe(p, nil, nil, t0))

	d := mr.DosageInstruction[0]
	if !d.AsNeeded || d.Timing != nil {
		t.Errorf("expected as-needed without timing, got %+v", d)
	}
}

func TestFromAdministration(t *testing.T) {
	rx := "rx-1"
	a := FromAdministration(dosing.Administration{
		ID: "adm-1", PatientID: "patient-1", MedicineID: "heparin", PrescriptionID: &rx,
		AdministeredAt: t0, Status: dosing.StatusAdministered,
	})
	if a.Status != AdminCompleted || a.Request == nil || a.Request.Reference != "MedicationRequest/rx-1" {
		t.Errorf("unexpected administration %+v", a)
	}
	if a.Meta != nil {
		t.Error("linked rows should not be tagged")
	}

	legacy := FromAdministration(dosing.Administration{
		ID: "adm-2", PatientID: "patient-1", MedicineID: "heparin",
		AdministeredAt: t0, Status: dosing.StatusError, Message: "patient refused",
	})
	if legacy.Status != AdminNotDone || legacy.Request != nil {
		t.Errorf("unexpected legacy administration %+v", legacy)
	}
	if legacy.Meta == nil || legacy.Meta.Tag[0].Code != "legacy_fallback" {
		t.Errorf("legacy rows should be tagged, got %+v", legacy.Meta)
	}
	if len(legacy.StatusReason) != 1 || legacy.StatusReason[0].Text != "patient refused" {
		t.Errorf("status reason = %+v", legacy.StatusReason)
	}
}

func TestPatientBundle(t *testing.T) {
	rx := "rx-1"
	s := dosing.Snapshot{
		PatientID: "patient-1",
		Prescriptions: []dosing.Prescription{
			{ID: "rx-1", PatientID: "patient-1", MedicineID: "heparin", Periodicity: "every 8 hours"},
		},
		Administrations: []dosing.Administration{
			{ID: "adm-1", PatientID: "patient-1", MedicineID: "heparin", PrescriptionID: &rx, AdministeredAt: t0, Status: dosing.StatusAdministered},
			{ID: "adm-9", PatientID: "patient-2", MedicineID: "heparin", AdministeredAt: t0, Status: dosing.StatusAdministered},
		},
	}
	b := PatientBundle(s, dosing.BuildBoard(s, t0.Add(time.Hour)))

	if b.Total != 2 || len(b.Entry) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(b.Entry))
	}
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"resourceType":"Bundle"`, `"resourceType":"MedicationRequest"`, `"occurenceDateTime":"2026-03-14T08:00:00Z"`} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("bundle JSON missing %s", want)
		}
	}
}

func TestNewErrorOutcome(t *testing.T) {
	o := NewErrorOutcome("not-found", "no patient")
	if o.ResourceType != "OperationOutcome" || o.Issue[0].Severity != "error" {
		t.Errorf("unexpected outcome %+v", o)
	}
}
