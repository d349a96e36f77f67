package dosing

import (
	"strings"
	"testing"
	"time"
)

func TestCanAdministerCollectionWindow(t *testing.T) {
	p := rx("rx-1", "ondansetron", "Every 6 hours")
	admins := []Administration{given(strPtr("rx-1"), "ondansetron", t0, StatusAdministered)}

	tests := []struct {
		name    string
		now     time.Time
		allowed bool
	}{
		{"right after the dose", t0.Add(time.Minute), false},
		{"exactly one hour before due", t0.Add(5 * time.Hour), false},
		{"window open", t0.Add(5*time.Hour + time.Minute), true},
		{"at due time", t0.Add(6 * time.Hour), true},
		{"overdue", t0.Add(7 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := CanAdminister(p, admins, nil, tt.now)
			if v.Allowed != tt.allowed {
				t.Fatalf("allowed = %v, want %v (reason %q)", v.Allowed, tt.allowed, v.Reason)
			}
			if v.DueAt == nil || !v.DueAt.Equal(t0.Add(6*time.Hour)) {
				t.Errorf("expected due at +6h, got %v", v.DueAt)
			}
		})
	}

	v := CanAdminister(p, admins, nil, t0.Add(5*time.Hour))
	if v.Code != VerdictTooEarly {
		t.Errorf("expected too_early, got %s", v.Code)
	}
	if v.TimeRemaining != time.Hour {
		t.Errorf("expected 1h remaining, got %v", v.TimeRemaining)
	}
	if !strings.Contains(v.Reason, "1 hour") {
		t.Errorf("reason %q should mention the remaining hour", v.Reason)
	}
	if !v.Overridable() {
		t.Error("timing verdicts can be overridden")
	}
}

func TestCanAdministerCollectedDoseStartsTheClock(t *testing.T) {
	p := rx("rx-1", "ondansetron", "every 6 hours")
	admins := []Administration{given(strPtr("rx-1"), "ondansetron", t0, StatusCollected)}

	v := CanAdminister(p, admins, nil, t0.Add(2*time.Hour))
	if v.Allowed {
		t.Error("a collected dose should block a second collection")
	}
}

func TestCanAdministerProtocolGating(t *testing.T) {
	follow := rx("rx-follow", "protamine", "every 6 hours")
	links := []MedicationLink{{ID: "link-1", TriggerMedicineID: "heparin", FollowMedicineID: "protamine", DelayMinutes: 180}}

	v := CanAdminister(follow, nil, links, t0)
	if v.Allowed || v.Code != VerdictAwaitingTrigger {
		t.Fatalf("expected awaiting_trigger, got %+v", v)
	}
	if !strings.Contains(v.Reason, "trigger") {
		t.Errorf("reason %q should mention the trigger", v.Reason)
	}
	if v.Overridable() {
		t.Error("a missing trigger cannot be overridden")
	}

	collectedOnly := []Administration{given(nil, "heparin", t0, StatusCollected)}
	if v := CanAdminister(follow, collectedOnly, links, t0.Add(4*time.Hour)); v.Code != VerdictAwaitingTrigger {
		t.Errorf("a collected trigger should not start the protocol, got %s", v.Code)
	}

	otherPatient := given(nil, "heparin", t0, StatusAdministered)
	otherPatient.PatientID = "patient-2"
	if v := CanAdminister(follow, []Administration{otherPatient}, links, t0.Add(4*time.Hour)); v.Code != VerdictAwaitingTrigger {
		t.Errorf("another patient's trigger should not count, got %s", v.Code)
	}

	admins := []Administration{given(strPtr("rx-trigger"), "heparin", t0, StatusAdministered)}

	v = CanAdminister(follow, admins, links, t0.Add(119*time.Minute))
	if v.Allowed || v.Code != VerdictTooEarly {
		t.Fatalf("expected too_early before the window, got %+v", v)
	}
	if v.TimeRemaining != 61*time.Minute {
		t.Errorf("expected 61m remaining, got %v", v.TimeRemaining)
	}
	if v.Reason != "follow-up dose due in 1 hour 1 minute" {
		t.Errorf("unexpected reason %q", v.Reason)
	}

	if v := CanAdminister(follow, admins, links, t0.Add(120*time.Minute)); !v.Allowed {
		t.Errorf("window should open at trigger + delay - 1h, got %+v", v)
	}
	if v := CanAdminister(follow, admins, links, t0.Add(4*time.Hour)); !v.Allowed {
		t.Errorf("expected allowed after the delay, got %+v", v)
	}
}

func TestCanAdministerShortCircuits(t *testing.T) {
	once := rx("rx-1", "ceftriaxone", "Once")
	admins := []Administration{given(strPtr("rx-1"), "ceftriaxone", t0, StatusAdministered)}
	v := CanAdminister(once, admins, nil, t0.Add(48*time.Hour))
	if v.Allowed || v.Code != VerdictCompleted || v.Reason != "prescription completed" {
		t.Errorf("expected completed verdict, got %+v", v)
	}
	if v.Overridable() {
		t.Error("a completed prescription cannot be overridden")
	}

	prn := rx("rx-2", "acetaminophen", "as needed")
	prnAdmins := []Administration{given(strPtr("rx-2"), "acetaminophen", t0, StatusAdministered)}
	if v := CanAdminister(prn, prnAdmins, nil, t0.Add(time.Minute)); !v.Allowed {
		t.Error("PRN doses are always eligible")
	}

	drip := rx("rx-3", "propofol", "continuous")
	if v := CanAdminister(drip, nil, nil, t0); !v.Allowed {
		t.Error("continuous infusions are always eligible")
	}

	unknown := rx("rx-4", "warfarin", "per INR result")
	v = CanAdminister(unknown, nil, nil, t0)
	if !v.Allowed || v.DueAt != nil {
		t.Errorf("unknown periodicity is eligible with no due time, got %+v", v)
	}
}

func TestCanAdministerStartDate(t *testing.T) {
	p := rx("rx-1", "vancomycin", "every 12 hours")
	p.StartDate = timePtr(t0.Add(3 * time.Hour))

	v := CanAdminister(p, nil, nil, t0)
	if v.Allowed || v.TimeRemaining != 3*time.Hour {
		t.Errorf("expected to wait for the start date, got %+v", v)
	}
	if v := CanAdminister(p, nil, nil, t0.Add(2*time.Hour+time.Minute)); !v.Allowed {
		t.Errorf("expected allowed inside the window, got %+v", v)
	}

	first := rx("rx-2", "vancomycin-2", "every 12 hours")
	if v := CanAdminister(first, nil, nil, t0); !v.Allowed {
		t.Errorf("a first dose without a start date is due now, got %+v", v)
	}
}

func TestNextDueTime(t *testing.T) {
	p := rx("rx-1", "ondansetron", "every 8 hours")
	admins := []Administration{
		given(strPtr("rx-1"), "ondansetron", t0, StatusAdministered),
		given(strPtr("rx-1"), "ondansetron", t0.Add(8*time.Hour), StatusCollected),
	}

	due, ok := NextDueTime(p.MedicineID, p.Periodicity, p, admins, t0.Add(9*time.Hour))
	if !ok || !due.Equal(t0.Add(16*time.Hour)) {
		t.Fatalf("expected due at +16h, got %v (ok=%v)", due, ok)
	}
	again, _ := NextDueTime(p.MedicineID, p.Periodicity, p, admins, t0.Add(9*time.Hour))
	if !again.Equal(due) {
		t.Errorf("NextDueTime should be idempotent: %v != %v", again, due)
	}

	if _, ok := NextDueTime(p.MedicineID, "prn", p, admins, t0); ok {
		t.Error("PRN has no due time")
	}
	now := t0.Add(time.Hour)
	if due, ok := NextDueTime("heparin", "daily", p, nil, now); !ok || !due.Equal(now) {
		t.Errorf("a first dose is due now, got %v (ok=%v)", due, ok)
	}
}
