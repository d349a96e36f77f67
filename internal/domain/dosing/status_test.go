package dosing

import (
	"testing"
	"time"
)

func TestBuildBoard(t *testing.T) {
	now := t0.Add(10 * time.Hour)

	done := rx("rx-done", "ceftriaxone", "every 24 hours")
	done.Completed = true

	s := Snapshot{
		PatientID: "patient-1",
		Prescriptions: []Prescription{
			done,
			rx("rx-prn", "acetaminophen", "PRN"),
			rx("rx-soon", "ondansetron", "every 6 hours"),
			rx("rx-late", "cefazolin", "every 8 hours"),
		},
		Administrations: []Administration{
			given(strPtr("rx-soon"), "ondansetron", now.Add(-2*time.Hour), StatusAdministered),
			given(nil, "cefazolin", now.Add(-9*time.Hour), StatusAdministered),
		},
	}

	board := BuildBoard(s, now)
	if board.PatientID != "patient-1" || !board.GeneratedAt.Equal(now) {
		t.Errorf("unexpected board header %+v", board)
	}

	wantOrder := []string{"rx-late", "rx-soon", "rx-prn", "rx-done"}
	if len(board.Medications) != len(wantOrder) {
		t.Fatalf("expected %d medications, got %d", len(wantOrder), len(board.Medications))
	}
	for i, id := range wantOrder {
		if board.Medications[i].PrescriptionID != id {
			t.Errorf("position %d: got %s, want %s", i, board.Medications[i].PrescriptionID, id)
		}
	}

	wantDisplay := map[string]string{
		"rx-late": "Overdue by 1 hour",
		"rx-soon": "Due in 4 hours",
		"rx-prn":  "As needed",
		"rx-done": "Completed",
	}
	for _, st := range board.Medications {
		if st.Display != wantDisplay[st.PrescriptionID] {
			t.Errorf("%s: display %q, want %q", st.PrescriptionID, st.Display, wantDisplay[st.PrescriptionID])
		}
	}

	if len(board.Warnings) != 1 || board.Warnings[0].Kind != WarningLegacyFallback {
		t.Fatalf("expected one legacy warning, got %+v", board.Warnings)
	}
	if board.Warnings[0].PrescriptionID != "rx-late" {
		t.Errorf("warning should name rx-late, got %s", board.Warnings[0].PrescriptionID)
	}
	if board.Medications[0].DosesGiven != 1 {
		t.Errorf("legacy dose should still count, got %d", board.Medications[0].DosesGiven)
	}
}

func TestDescribe(t *testing.T) {
	links := []MedicationLink{{TriggerMedicineID: "heparin", FollowMedicineID: "protamine", DelayMinutes: 180}}
	follow := rx("rx-follow", "protamine", "every 6 hours")

	st := Describe(follow, nil, links, t0)
	if st.Display != "Awaiting heparin" {
		t.Errorf("unexpected display %q", st.Display)
	}
	if st.Protocol == nil || st.Protocol.DelayMinutes != 180 {
		t.Errorf("expected protocol binding, got %+v", st.Protocol)
	}
	if st.NextDue != nil {
		t.Errorf("a gated prescription has no due time until the trigger is given, got %v", st.NextDue)
	}

	course := rx("rx-course", "amoxicillin", "twice daily")
	course.Duration = "5 days"
	admins := []Administration{given(strPtr("rx-course"), "amoxicillin", t0, StatusAdministered)}
	st = Describe(course, admins, nil, t0.Add(12*time.Hour))
	if st.Display != "Due now" {
		t.Errorf("unexpected display %q", st.Display)
	}
	if st.TotalDoses == nil || *st.TotalDoses != 10 {
		t.Errorf("expected 10 total doses, got %v", st.TotalDoses)
	}
	if st.RemainingDoses == nil || *st.RemainingDoses != 9 {
		t.Errorf("expected 9 remaining doses, got %v", st.RemainingDoses)
	}
	if st.LastGiven == nil || !st.LastGiven.Equal(t0) {
		t.Errorf("unexpected last given %v", st.LastGiven)
	}

	unscheduled := rx("rx-x", "warfarin", "per INR result")
	if st := Describe(unscheduled, nil, nil, t0); st.Display != "Not scheduled" {
		t.Errorf("unexpected display %q", st.Display)
	}
}
