package dosing

import "time"

// Ledger is the derived dose count for one prescription
type Ledger struct {
	Count int `json:"count"`
	// LegacyFallback is set when the count came from records without a
	// prescription id. It points at data that still needs migrating.
	LegacyFallback bool `json:"legacy_fallback"`
}

// LedgerFor counts qualifying doses for p. Records explicitly linked to p are
// authoritative; unlinked records for the same patient and medicine are only
// counted when no linked record qualifies, so the two sets never add up.
func LedgerFor(p Prescription, admins []Administration) Ledger {
	linked := 0
	for _, a := range admins {
		if a.PrescriptionID != nil && *a.PrescriptionID == p.ID && a.Status.CountsAsDose() {
			linked++
		}
	}
	if linked > 0 {
		return Ledger{Count: linked}
	}

	legacy := 0
	for _, a := range admins {
		if a.PrescriptionID == nil &&
			a.PatientID == p.PatientID &&
			a.MedicineID == p.MedicineID &&
			a.Status.CountsAsDose() {
			legacy++
		}
	}
	return Ledger{Count: legacy, LegacyFallback: legacy > 0}
}

// CountAdministeredDoses returns the number of doses given against p
func CountAdministeredDoses(p Prescription, admins []Administration) int {
	return LedgerFor(p, admins).Count
}

// DefaultLastStatuses are the statuses LastAdministeredAt considers when none are given
var DefaultLastStatuses = []AdministrationStatus{StatusCollected, StatusAdministered}

// LastAdministeredAt returns the most recent record for medicineID whose status
// is one of statuses (DefaultLastStatuses when empty). It is not restricted to
// a prescription.
func LastAdministeredAt(medicineID string, admins []Administration, statuses ...AdministrationStatus) (time.Time, bool) {
	if len(statuses) == 0 {
		statuses = DefaultLastStatuses
	}

	var last time.Time
	found := false
	for _, a := range admins {
		if a.MedicineID != medicineID || !hasStatus(statuses, a.Status) {
			continue
		}
		if !found || a.AdministeredAt.After(last) {
			last = a.AdministeredAt
			found = true
		}
	}
	return last, found
}

func hasStatus(set []AdministrationStatus, s AdministrationStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
