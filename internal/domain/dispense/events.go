// Package dispense implements the cabinet dispense session: a dose is
// collected from the cabinet, then administered to the patient or reported
// as failed. The session is event sourced.
package dispense

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event
type EventType string

const (
	EventDoseCollected    EventType = "DoseCollected"
	EventTimingOverridden EventType = "TimingOverridden"
	EventDoseAdministered EventType = "DoseAdministered"
	EventDoseFailed       EventType = "DoseFailed"
)

// AggregateType is stored with every event
const AggregateType = "DispenseSession"

// Event represents a domain event
type Event struct {
	ID             string          `json:"id"`
	AggregateID    string          `json:"aggregate_id"`
	AggregateType  string          `json:"aggregate_type"`
	EventType      EventType       `json:"event_type"`
	EventData      json.RawMessage `json:"event_data"`
	Version        int             `json:"version"`
	Timestamp      time.Time       `json:"timestamp"`
	PatientID      string          `json:"patient_id"`
	PrescriptionID string          `json:"prescription_id"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event stamped at. Sessions run on the cabinet clock,
// which may be simulated, so the time is passed in.
func NewEvent(aggregateID string, eventType EventType, data interface{}, at time.Time) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: AggregateType,
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     at.UTC(),
	}, nil
}

// DoseCollectedData is recorded when a dose leaves the cabinet
type DoseCollectedData struct {
	SessionID      string     `json:"session_id"`
	PatientID      string     `json:"patient_id"`
	PrescriptionID string     `json:"prescription_id"`
	MedicineID     string     `json:"medicine_id"`
	CollectedBy    string     `json:"collected_by,omitempty"`
	Verdict        string     `json:"verdict"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	CollectedAt    time.Time  `json:"collected_at"`
}

// TimingOverriddenData is recorded when a caregiver collects before the window opens
type TimingOverriddenData struct {
	SessionID       string    `json:"session_id"`
	Reason          string    `json:"reason"`
	OverriddenBy    string    `json:"overridden_by,omitempty"`
	VerdictReason   string    `json:"verdict_reason"`
	RemainingMillis int64     `json:"remaining_millis"`
	OverriddenAt    time.Time `json:"overridden_at"`
}

// DoseAdministeredData is recorded when the dose is given to the patient
type DoseAdministeredData struct {
	SessionID      string    `json:"session_id"`
	AdministeredBy string    `json:"administered_by,omitempty"`
	AdministeredAt time.Time `json:"administered_at"`
}

// DoseFailedData is recorded when a collected dose could not be given
type DoseFailedData struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	FailedAt  time.Time `json:"failed_at"`
}

// WithCorrelation sets the request correlation id
func (e *Event) WithCorrelation(id string) *Event {
	e.CorrelationID = id
	return e
}
