package dosing

import "fmt"

// WarningKind names an upstream data quality problem
type WarningKind string

const (
	WarningLegacyFallback WarningKind = "legacy_fallback"
	WarningDuplicateLink  WarningKind = "duplicate_link"
)

// IntegrityWarning flags data that the engine worked around. Warnings never
// change a result; they are reported so operators can fix the source records.
type IntegrityWarning struct {
	Kind           WarningKind `json:"kind"`
	PrescriptionID string      `json:"prescription_id,omitempty"`
	MedicineID     string      `json:"medicine_id,omitempty"`
	Detail         string      `json:"detail"`
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
}

func legacyWarning(p Prescription, n int) IntegrityWarning {
	return IntegrityWarning{
		Kind:           WarningLegacyFallback,
		PrescriptionID: p.ID,
		MedicineID:     p.MedicineID,
		Detail:         fmt.Sprintf("%d dose(s) matched by patient and medicine only; records lack a prescription id", n),
	}
}
