package r5

import (
	"fmt"
	"time"

	"github.com/medchart/medpyxis/internal/domain/dosing"
)

// MedicationRequest is a FHIR R5 MedicationRequest.
type MedicationRequest struct {
	ResourceType      string            `json:"resourceType"`
	ID                string            `json:"id,omitempty"`
	Meta              *Meta             `json:"meta,omitempty"`
	Identifier        []Identifier      `json:"identifier,omitempty"`
	Status            string            `json:"status"`
	Intent            string            `json:"intent"`
	Medication        CodeableReference `json:"medication"`
	Subject           Reference         `json:"subject"`
	DosageInstruction []Dosage          `json:"dosageInstruction,omitempty"`
	DispenseRequest   *DispenseRequest  `json:"dispenseRequest,omitempty"`
	Note              []Annotation      `json:"note,omitempty"`
}

// DispenseRequest carries the expected supply duration.
type DispenseRequest struct {
	ExpectedSupplyDuration *Duration `json:"expectedSupplyDuration,omitempty"`
}

// Dosage contains dosage instructions.
type Dosage struct {
	Text     string           `json:"text,omitempty"`
	Timing   *Timing          `json:"timing,omitempty"`
	AsNeeded bool             `json:"asNeeded,omitempty"`
	Route    *CodeableConcept `json:"route,omitempty"`
}

// Timing describes when doses are due.
type Timing struct {
	Repeat *TimingRepeat    `json:"repeat,omitempty"`
	Code   *CodeableConcept `json:"code,omitempty"`
}

// TimingRepeat is the structured repeat rule.
type TimingRepeat struct {
	BoundsPeriod *Period `json:"boundsPeriod,omitempty"`
	Count        int     `json:"count,omitempty"`
	Frequency    int     `json:"frequency,omitempty"`
	Period       float64 `json:"period,omitempty"`
	PeriodUnit   string  `json:"periodUnit,omitempty"` // s | min | h | d | wk | mo | a
}

// TimingFor converts a parsed interval into a FHIR Timing. PRN and
// unrecognised schedules have no repeat rule and return nil; the caller
// keeps the original text on the Dosage.
func TimingFor(iv dosing.Interval) *Timing {
	switch iv.Kind {
	case dosing.IntervalContinuous:
		return &Timing{Code: &CodeableConcept{Text: "continuous"}}
	case dosing.IntervalFixed:
		if iv.Every <= 0 {
			return nil
		}
	default:
		return nil
	}

	r := &TimingRepeat{Frequency: 1}
	switch {
	case iv.Every%(24*time.Hour) == 0:
		r.Period, r.PeriodUnit = float64(iv.Every/(24*time.Hour)), "d"
	case iv.Every%time.Hour == 0:
		r.Period, r.PeriodUnit = float64(iv.Every/time.Hour), "h"
	default:
		r.Period, r.PeriodUnit = iv.Every.Minutes(), "min"
	}
	return &Timing{Repeat: r}
}

// FromPrescription projects a prescription and its board status.
func FromPrescription(p dosing.Prescription, st dosing.Status) MedicationRequest {
	iv := dosing.ParseInterval(p.Periodicity)

	dosage := Dosage{
		Text:     fmt.Sprintf("%s %s", p.Dosage, p.Periodicity),
		Timing:   TimingFor(iv),
		AsNeeded: iv.Kind == dosing.IntervalPRN,
	}
	if p.Route != "" {
		dosage.Route = &CodeableConcept{Text: p.Route}
	}

	bounded := p.StartDate != nil || p.EndDate != nil
	total, hasTotal := dosing.ResolveTotalDoses(p)
	if dosing.IsOneTime(p.Periodicity) {
		total, hasTotal = 1, true
	}
	if bounded || hasTotal {
		if dosage.Timing == nil {
			dosage.Timing = &Timing{}
		}
		if dosage.Timing.Repeat == nil {
			dosage.Timing.Repeat = &TimingRepeat{}
		}
		if bounded {
			dosage.Timing.Repeat.BoundsPeriod = &Period{Start: p.StartDate, End: p.EndDate}
		}
		if hasTotal {
			dosage.Timing.Repeat.Count = total
		}
	}

	status := StatusActive
	if st.Completed {
		status = StatusCompleted
	}

	mr := MedicationRequest{
		ResourceType:      "MedicationRequest",
		ID:                p.ID,
		Identifier:        []Identifier{{Use: "official", System: SystemPrescription, Value: p.ID}},
		Status:            status,
		Intent:            IntentOrder,
		Medication:        CodeableReference{Concept: &CodeableConcept{Coding: []Coding{{System: SystemMedicine, Code: p.MedicineID}}}},
		Subject:           Reference{Reference: "Patient/" + p.PatientID},
		DosageInstruction: []Dosage{dosage},
	}
	if st.Display != "" {
		mr.Note = append(mr.Note, Annotation{Text: st.Display})
	}
	if st.Protocol != nil {
		mr.Note = append(mr.Note, Annotation{Text: fmt.Sprintf("follows %s after %d minutes",
			st.Protocol.TriggerMedicineID, st.Protocol.DelayMinutes)})
	}
	return mr
}
