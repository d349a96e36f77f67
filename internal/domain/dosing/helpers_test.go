package dosing

import "time"

var t0 = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func rx(id, medicine, periodicity string) Prescription {
	return Prescription{
		ID:          id,
		PatientID:   "patient-1",
		MedicineID:  medicine,
		Dosage:      "1 tab",
		Periodicity: periodicity,
	}
}

func given(prescriptionID *string, medicine string, at time.Time, status AdministrationStatus) Administration {
	return Administration{
		ID:             medicine + "-" + at.Format(time.RFC3339) + "-" + string(status),
		PatientID:      "patient-1",
		MedicineID:     medicine,
		PrescriptionID: prescriptionID,
		AdministeredAt: at,
		Status:         status,
	}
}
