// Package dosing implements the medication scheduling and eligibility engine
// behind the MedPyxis dispensing cabinet.
//
// Every function in this package is a deterministic function of its inputs.
// The current time is always passed in by the caller so that simulated clocks
// and tests see the same results as production.
package dosing

import "time"

// AdministrationStatus is the outcome recorded for a cabinet interaction
type AdministrationStatus string

const (
	StatusCollected    AdministrationStatus = "collected"
	StatusAdministered AdministrationStatus = "administered"
	StatusSuccess      AdministrationStatus = "success"
	StatusWarning      AdministrationStatus = "warning"
	StatusError        AdministrationStatus = "error"
)

// CountsAsDose reports whether the status represents a dose given to the patient.
// A collected dose has only left the cabinet.
func (s AdministrationStatus) CountsAsDose() bool {
	return s == StatusAdministered || s == StatusSuccess
}

// Valid reports whether s is one of the known statuses
func (s AdministrationStatus) Valid() bool {
	switch s {
	case StatusCollected, StatusAdministered, StatusSuccess, StatusWarning, StatusError:
		return true
	}
	return false
}

// Prescription is a medication order for a patient
type Prescription struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patient_id"`
	MedicineID  string     `json:"medicine_id"`
	Dosage      string     `json:"dosage"`
	Periodicity string     `json:"periodicity"`
	Duration    string     `json:"duration,omitempty"`
	Route       string     `json:"route,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	TotalDoses  *int       `json:"total_doses,omitempty"`
	Completed   bool       `json:"completed"`
}

// Administration is a single recorded interaction with a dose.
// A nil PrescriptionID marks a legacy record created before prescriptions
// were linked to administrations.
type Administration struct {
	ID             string               `json:"id"`
	PatientID      string               `json:"patient_id"`
	MedicineID     string               `json:"medicine_id"`
	PrescriptionID *string              `json:"prescription_id,omitempty"`
	AdministeredAt time.Time            `json:"administered_at"`
	Status         AdministrationStatus `json:"status"`
	Message        string               `json:"message,omitempty"`
}

// MedicationLink is a protocol template: giving the trigger medicine enables a
// follow-up medicine after DelayMinutes.
type MedicationLink struct {
	ID                string `json:"id,omitempty"`
	TriggerMedicineID string `json:"trigger_medicine_id"`
	FollowMedicineID  string `json:"follow_medicine_id"`
	FollowFrequency   string `json:"follow_frequency,omitempty"`
	DelayMinutes      int    `json:"delay_minutes"`
	StartAfter        string `json:"start_after,omitempty"`
}

// Snapshot is everything the engine needs to know about one patient
type Snapshot struct {
	PatientID       string           `json:"patient_id"`
	Prescriptions   []Prescription   `json:"prescriptions"`
	Administrations []Administration `json:"administrations"`
	Links           []MedicationLink `json:"links"`
}
