package dosing

import (
	"fmt"
	"time"
)

// CollectionWindow is how long before the due time a dose may leave the cabinet
const CollectionWindow = time.Hour

// VerdictCode is the machine-readable reason behind a Verdict
type VerdictCode string

const (
	VerdictAllowed         VerdictCode = "allowed"
	VerdictCompleted       VerdictCode = "completed"
	VerdictAwaitingTrigger VerdictCode = "awaiting_trigger"
	VerdictTooEarly        VerdictCode = "too_early"
)

// Verdict answers whether a dose may be collected right now
type Verdict struct {
	Allowed       bool          `json:"allowed"`
	Code          VerdictCode   `json:"code"`
	Reason        string        `json:"reason,omitempty"`
	TimeRemaining time.Duration `json:"time_remaining,omitempty"`
	DueAt         *time.Time    `json:"due_at,omitempty"`
}

// Overridable reports whether a caregiver may collect anyway with an explicit
// override. Only timing can be overridden.
func (v Verdict) Overridable() bool {
	return !v.Allowed && v.Code == VerdictTooEarly
}

// NextDueTime returns when the next dose of medicineID is due. Unschedulable
// periodicities (PRN, continuous, unknown) have no due time. Without any prior
// collection or administration the first dose is due at the prescription start
// date, or immediately.
func NextDueTime(medicineID, periodicity string, p Prescription, admins []Administration, now time.Time) (time.Time, bool) {
	interval := ParseInterval(periodicity)
	if !interval.Schedulable() {
		return time.Time{}, false
	}
	if last, ok := LastAdministeredAt(medicineID, admins); ok {
		return last.Add(interval.Every), true
	}
	if p.StartDate != nil {
		return *p.StartDate, true
	}
	return now, true
}

// CanAdminister decides whether a dose of p may be collected at now
func CanAdminister(p Prescription, admins []Administration, links []MedicationLink, now time.Time) Verdict {
	if IsComplete(p, admins, now) {
		return Verdict{Code: VerdictCompleted, Reason: "prescription completed"}
	}

	switch ParseInterval(p.Periodicity).Kind {
	case IntervalPRN, IntervalContinuous:
		return Verdict{Allowed: true, Code: VerdictAllowed}
	}

	ordered, _ := dedupeLinks(links)
	if binding, ok := bindingFor(p, ordered); ok {
		return protocolVerdict(p, binding, admins, now)
	}

	due, ok := NextDueTime(p.MedicineID, p.Periodicity, p, admins, now)
	if !ok {
		return Verdict{Allowed: true, Code: VerdictAllowed}
	}
	// the window opens strictly after due-1h
	if !now.After(due.Add(-CollectionWindow)) {
		return tooEarly(due, now, "next dose due in %s")
	}
	return Verdict{Allowed: true, Code: VerdictAllowed, DueAt: &due}
}

func protocolVerdict(p Prescription, b ProtocolBinding, admins []Administration, now time.Time) Verdict {
	triggeredAt, ok := triggerAdministeredAt(p.PatientID, b.TriggerMedicineID, admins)
	if !ok {
		return Verdict{
			Code:   VerdictAwaitingTrigger,
			Reason: fmt.Sprintf("awaiting trigger medication %s", b.TriggerMedicineID),
		}
	}

	due := triggeredAt.Add(b.Delay)
	if now.Before(due.Add(-CollectionWindow)) {
		return tooEarly(due, now, "follow-up dose due in %s")
	}
	return Verdict{Allowed: true, Code: VerdictAllowed, DueAt: &due}
}

func tooEarly(due, now time.Time, format string) Verdict {
	left := due.Sub(now)
	return Verdict{
		Code:          VerdictTooEarly,
		Reason:        fmt.Sprintf(format, FormatRemaining(left)),
		TimeRemaining: left,
		DueAt:         &due,
	}
}

// triggerAdministeredAt finds the latest dose of the trigger medicine actually
// given to the patient. Collections do not start a protocol.
func triggerAdministeredAt(patientID, medicineID string, admins []Administration) (time.Time, bool) {
	var last time.Time
	found := false
	for _, a := range admins {
		if a.MedicineID != medicineID || !a.Status.CountsAsDose() {
			continue
		}
		if patientID != "" && a.PatientID != "" && a.PatientID != patientID {
			continue
		}
		if !found || a.AdministeredAt.After(last) {
			last = a.AdministeredAt
			found = true
		}
	}
	return last, found
}
