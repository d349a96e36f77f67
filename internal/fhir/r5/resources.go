package r5

import (
	"github.com/medchart/medpyxis/internal/domain/dosing"
)

// MedicationAdministration is a FHIR R5 MedicationAdministration.
type MedicationAdministration struct {
	ResourceType       string            `json:"resourceType"`
	ID                 string            `json:"id,omitempty"`
	Identifier         []Identifier      `json:"identifier,omitempty"`
	Status             string            `json:"status"`
	StatusReason       []CodeableConcept `json:"statusReason,omitempty"`
	Medication         CodeableReference `json:"medication"`
	Subject            Reference         `json:"subject"`
	OccurrenceDateTime string            `json:"occurenceDateTime"`
	Request            *Reference        `json:"request,omitempty"`
	Note               []Annotation      `json:"note,omitempty"`
	Meta               *Meta             `json:"meta,omitempty"`
}

// administrationStatus maps a ledger status to the FHIR event status
func administrationStatus(s dosing.AdministrationStatus) string {
	switch s {
	case dosing.StatusAdministered, dosing.StatusSuccess:
		return AdminCompleted
	case dosing.StatusError:
		return AdminNotDone
	default:
		return AdminInProgress
	}
}

// FromAdministration projects an administration row. Legacy rows without a
// prescription carry no request reference and are tagged.
func FromAdministration(a dosing.Administration) MedicationAdministration {
	ma := MedicationAdministration{
		ResourceType:       "MedicationAdministration",
		ID:                 a.ID,
		Identifier:         []Identifier{{System: SystemAdministration, Value: a.ID}},
		Status:             administrationStatus(a.Status),
		Medication:         CodeableReference{Concept: &CodeableConcept{Coding: []Coding{{System: SystemMedicine, Code: a.MedicineID}}}},
		Subject:            Reference{Reference: "Patient/" + a.PatientID},
		OccurrenceDateTime: a.AdministeredAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if a.PrescriptionID != nil {
		ma.Request = &Reference{Reference: "MedicationRequest/" + *a.PrescriptionID}
	} else {
		ma.Meta = &Meta{Tag: []Coding{{System: SystemIntegrity, Code: string(dosing.WarningLegacyFallback)}}}
	}
	if a.Message != "" {
		if a.Status == dosing.StatusError {
			ma.StatusReason = []CodeableConcept{{Text: a.Message}}
		} else {
			ma.Note = []Annotation{{Text: a.Message}}
		}
	}
	return ma
}

// Bundle is a FHIR collection bundle.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        int           `json:"total"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry holds one resource.
type BundleEntry struct {
	FullURL  string `json:"fullUrl"`
	Resource any    `json:"resource"`
}

// PatientBundle exports a patient's prescriptions and administration
// history. Requests follow the board order.
func PatientBundle(s dosing.Snapshot, board dosing.Board) Bundle {
	byID := make(map[string]dosing.Prescription, len(s.Prescriptions))
	for _, p := range s.Prescriptions {
		byID[p.ID] = p
	}

	b := Bundle{ResourceType: "Bundle", Type: "collection", Entry: []BundleEntry{}}
	for _, st := range board.Medications {
		p, ok := byID[st.PrescriptionID]
		if !ok {
			continue
		}
		b.Entry = append(b.Entry, BundleEntry{
			FullURL:  SystemPrescription + ":" + p.ID,
			Resource: FromPrescription(p, st),
		})
	}
	for _, a := range s.Administrations {
		if a.PatientID != s.PatientID {
			continue
		}
		b.Entry = append(b.Entry, BundleEntry{
			FullURL:  SystemAdministration + ":" + a.ID,
			Resource: FromAdministration(a),
		})
	}
	b.Total = len(b.Entry)
	return b
}
