package dispense

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medchart/medpyxis/internal/domain/dosing"
)

// Status represents the session status
type Status string

const (
	StatusOpen         Status = "open"
	StatusCollected    Status = "collected"
	StatusAdministered Status = "administered"
	StatusFailed       Status = "failed"
)

var (
	ErrAlreadyCollected = errors.New("dose already collected for this session")
	ErrNotCollected     = errors.New("dose has not been collected")
	ErrOverrideRequired = errors.New("dose is not due yet; an override reason is required")
	ErrMessageRequired  = errors.New("failure message is required")
)

// NotEligibleError is returned when the eligibility verdict cannot be overridden
type NotEligibleError struct {
	Verdict dosing.Verdict
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("dose not eligible: %s", e.Verdict.Reason)
}

// Override lets a caregiver collect a dose before its window opens
type Override struct {
	Reason string `json:"reason"`
	By     string `json:"by,omitempty"`
}

// Session is the dispense session aggregate root
type Session struct {
	id             string
	version        int
	status         Status
	patientID      string
	prescriptionID string
	medicineID     string
	collectedAt    time.Time
	administeredAt time.Time
	overrideReason string
	failure        string
	updatedAt      time.Time
	changes        []*Event
}

// NewSession creates an empty session
func NewSession(id string) *Session {
	return &Session{
		id:      id,
		status:  StatusOpen,
		changes: make([]*Event, 0),
	}
}

// ID returns the aggregate ID
func (s *Session) ID() string { return s.id }

// Version returns the current version
func (s *Session) Version() int { return s.version }

// Status returns the current status
func (s *Session) Status() Status { return s.status }

// PatientID returns the patient the session belongs to
func (s *Session) PatientID() string { return s.patientID }

// PrescriptionID returns the prescription being dispensed
func (s *Session) PrescriptionID() string { return s.prescriptionID }

// MedicineID returns the medicine being dispensed
func (s *Session) MedicineID() string { return s.medicineID }

// Overridden reports whether the dose was collected early under an override
func (s *Session) Overridden() bool { return s.overrideReason != "" }

// Changes returns uncommitted events
func (s *Session) Changes() []*Event { return s.changes }

// ClearChanges clears uncommitted events
func (s *Session) ClearChanges() { s.changes = make([]*Event, 0) }

// Collect takes the dose out of the cabinet. A disallowed verdict blocks the
// collection unless it is a timing verdict and override carries a reason.
func (s *Session) Collect(p dosing.Prescription, verdict dosing.Verdict, override *Override, by string, at time.Time) error {
	if s.status != StatusOpen {
		return ErrAlreadyCollected
	}

	if !verdict.Allowed {
		if !verdict.Overridable() {
			return &NotEligibleError{Verdict: verdict}
		}
		if override == nil || strings.TrimSpace(override.Reason) == "" {
			return ErrOverrideRequired
		}
		data := &TimingOverriddenData{
			SessionID:       s.id,
			Reason:          strings.TrimSpace(override.Reason),
			OverriddenBy:    override.By,
			VerdictReason:   verdict.Reason,
			RemainingMillis: verdict.TimeRemaining.Milliseconds(),
			OverriddenAt:    at.UTC(),
		}
		if err := s.record(EventTimingOverridden, data, p, at); err != nil {
			return err
		}
	}

	data := &DoseCollectedData{
		SessionID:      s.id,
		PatientID:      p.PatientID,
		PrescriptionID: p.ID,
		MedicineID:     p.MedicineID,
		CollectedBy:    by,
		Verdict:        string(verdict.Code),
		DueAt:          verdict.DueAt,
		CollectedAt:    at.UTC(),
	}
	return s.record(EventDoseCollected, data, p, at)
}

// Administer records that the collected dose was given
func (s *Session) Administer(by string, at time.Time) error {
	if s.status != StatusCollected {
		return ErrNotCollected
	}
	data := &DoseAdministeredData{SessionID: s.id, AdministeredBy: by, AdministeredAt: at.UTC()}
	return s.record(EventDoseAdministered, data, s.prescription(), at)
}

// Fail records that the collected dose could not be given
func (s *Session) Fail(message string, at time.Time) error {
	if s.status != StatusCollected {
		return ErrNotCollected
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrMessageRequired
	}
	data := &DoseFailedData{SessionID: s.id, Message: message, FailedAt: at.UTC()}
	return s.record(EventDoseFailed, data, s.prescription(), at)
}

// Administrations converts uncommitted events into ledger rows. Each row
// reuses its event id so replays write the same row.
func (s *Session) Administrations() []dosing.Administration {
	var out []dosing.Administration
	for _, e := range s.changes {
		a := dosing.Administration{
			ID:             e.ID,
			PatientID:      e.PatientID,
			MedicineID:     s.medicineID,
			AdministeredAt: e.Timestamp,
		}
		if e.PrescriptionID != "" {
			pid := e.PrescriptionID
			a.PrescriptionID = &pid
		}

		switch e.EventType {
		case EventTimingOverridden:
			var d TimingOverriddenData
			if json.Unmarshal(e.EventData, &d) != nil {
				continue
			}
			a.Status = dosing.StatusWarning
			a.Message = "timing override: " + d.Reason
		case EventDoseCollected:
			a.Status = dosing.StatusCollected
		case EventDoseAdministered:
			a.Status = dosing.StatusAdministered
		case EventDoseFailed:
			var d DoseFailedData
			if json.Unmarshal(e.EventData, &d) != nil {
				continue
			}
			a.Status = dosing.StatusError
			a.Message = d.Message
		default:
			continue
		}
		out = append(out, a)
	}
	return out
}

// LoadFromHistory rebuilds state from events
func (s *Session) LoadFromHistory(events []*Event) error {
	for _, e := range events {
		if err := s.apply(e); err != nil {
			return fmt.Errorf("apply %s v%d: %w", e.EventType, e.Version, err)
		}
	}
	return nil
}

func (s *Session) prescription() dosing.Prescription {
	return dosing.Prescription{ID: s.prescriptionID, PatientID: s.patientID, MedicineID: s.medicineID}
}

func (s *Session) record(eventType EventType, data interface{}, p dosing.Prescription, at time.Time) error {
	event, err := NewEvent(s.id, eventType, data, at)
	if err != nil {
		return err
	}
	event.PatientID = p.PatientID
	event.PrescriptionID = p.ID

	if err := s.apply(event); err != nil {
		return err
	}
	s.changes = append(s.changes, event)
	return nil
}

// apply applies an event to update state
func (s *Session) apply(event *Event) error {
	s.version++
	s.updatedAt = event.Timestamp

	switch event.EventType {
	case EventTimingOverridden:
		var data TimingOverriddenData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return err
		}
		s.overrideReason = data.Reason
	case EventDoseCollected:
		var data DoseCollectedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return err
		}
		s.status = StatusCollected
		s.patientID = data.PatientID
		s.prescriptionID = data.PrescriptionID
		s.medicineID = data.MedicineID
		s.collectedAt = data.CollectedAt
	case EventDoseAdministered:
		var data DoseAdministeredData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return err
		}
		s.status = StatusAdministered
		s.administeredAt = data.AdministeredAt
	case EventDoseFailed:
		var data DoseFailedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return err
		}
		s.status = StatusFailed
		s.failure = data.Message
	}
	return nil
}
