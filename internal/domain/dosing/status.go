package dosing

import (
	"sort"
	"time"
)

// Status is the display record for one prescription on the cabinet board
type Status struct {
	PrescriptionID string           `json:"prescription_id"`
	MedicineID     string           `json:"medicine_id"`
	Dosage         string           `json:"dosage"`
	Periodicity    string           `json:"periodicity"`
	Interval       Interval         `json:"interval"`
	LastGiven      *time.Time       `json:"last_given,omitempty"`
	NextDue        *time.Time       `json:"next_due,omitempty"`
	DosesGiven     int              `json:"doses_given"`
	TotalDoses     *int             `json:"total_doses,omitempty"`
	RemainingDoses *int             `json:"remaining_doses,omitempty"`
	Completed      bool             `json:"completed"`
	Protocol       *ProtocolBinding `json:"protocol,omitempty"`
	Verdict        Verdict          `json:"verdict"`
	Display        string           `json:"display"`
}

// Board is the cabinet view of every prescription for one patient
type Board struct {
	PatientID   string             `json:"patient_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Medications []Status           `json:"medications"`
	Warnings    []IntegrityWarning `json:"warnings,omitempty"`
}

// BuildBoard describes every prescription in the snapshot. Active
// prescriptions sort before completed ones, then by next due time.
func BuildBoard(s Snapshot, now time.Time) Board {
	bindings, warnings := ResolveLinks(s.Prescriptions, s.Links)

	board := Board{PatientID: s.PatientID, GeneratedAt: now, Warnings: warnings}
	for _, p := range s.Prescriptions {
		st := describe(p, s.Administrations, s.Links, bindings, now)
		if ledger := LedgerFor(p, s.Administrations); ledger.LegacyFallback {
			board.Warnings = append(board.Warnings, legacyWarning(p, ledger.Count))
		}
		board.Medications = append(board.Medications, st)
	}

	sort.SliceStable(board.Medications, func(i, j int) bool {
		a, b := board.Medications[i], board.Medications[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		switch {
		case a.NextDue == nil && b.NextDue == nil:
			return false
		case a.NextDue == nil:
			return false
		case b.NextDue == nil:
			return true
		}
		return a.NextDue.Before(*b.NextDue)
	})
	return board
}

// Describe builds the board record for a single prescription
func Describe(p Prescription, admins []Administration, links []MedicationLink, now time.Time) Status {
	bindings, _ := ResolveLinks([]Prescription{p}, links)
	return describe(p, admins, links, bindings, now)
}

func describe(p Prescription, admins []Administration, links []MedicationLink, bindings map[string]ProtocolBinding, now time.Time) Status {
	st := Status{
		PrescriptionID: p.ID,
		MedicineID:     p.MedicineID,
		Dosage:         p.Dosage,
		Periodicity:    p.Periodicity,
		Interval:       ParseInterval(p.Periodicity),
		DosesGiven:     CountAdministeredDoses(p, admins),
		Completed:      IsComplete(p, admins, now),
		Verdict:        CanAdminister(p, admins, links, now),
	}

	if last, ok := LastAdministeredAt(p.MedicineID, admins); ok {
		st.LastGiven = &last
	}
	if total, ok := ResolveTotalDoses(p); ok {
		left, _ := RemainingDoses(p, admins)
		st.TotalDoses = &total
		st.RemainingDoses = &left
	}
	if b, ok := bindings[p.ID]; ok {
		st.Protocol = &b
	}

	switch {
	case st.Verdict.DueAt != nil:
		st.NextDue = st.Verdict.DueAt
	case st.Protocol == nil && !st.Completed:
		if due, ok := NextDueTime(p.MedicineID, p.Periodicity, p, admins, now); ok {
			st.NextDue = &due
		}
	}

	st.Display = display(st, now)
	return st
}

func display(st Status, now time.Time) string {
	switch {
	case st.Completed:
		return "Completed"
	case st.Verdict.Code == VerdictAwaitingTrigger:
		return "Awaiting " + st.Protocol.TriggerMedicineID
	case st.Interval.Kind == IntervalPRN:
		return "As needed"
	case st.Interval.Kind == IntervalContinuous:
		return "Continuous"
	case st.NextDue == nil:
		return "Not scheduled"
	}

	diff := st.NextDue.Sub(now)
	switch {
	case diff > -time.Minute && diff < time.Minute:
		return "Due now"
	case diff > 0:
		return "Due in " + FormatRemaining(diff)
	default:
		return "Overdue by " + FormatRemaining(diff)
	}
}
