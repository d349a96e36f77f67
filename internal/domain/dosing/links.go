package dosing

import (
	"fmt"
	"time"
)

// ProtocolBinding ties a follow-up prescription to the trigger medicine that gates it
type ProtocolBinding struct {
	PrescriptionID    string        `json:"prescription_id"`
	LinkID            string        `json:"link_id,omitempty"`
	TriggerMedicineID string        `json:"trigger_medicine_id"`
	FollowMedicineID  string        `json:"follow_medicine_id"`
	Delay             time.Duration `json:"-"`
	DelayMinutes      int           `json:"delay_minutes"`
}

type linkPair struct {
	trigger string
	follow  string
}

// ResolveLinks binds every follow-up prescription to its protocol link.
// The first link in slice order wins for a (trigger, follow) pair and each
// later duplicate is reported as a warning, so the same input always produces
// the same bindings. When several triggers gate one follow-up medicine the
// first link in slice order is used.
func ResolveLinks(prescriptions []Prescription, links []MedicationLink) (map[string]ProtocolBinding, []IntegrityWarning) {
	ordered, warnings := dedupeLinks(links)

	bindings := make(map[string]ProtocolBinding)
	for _, p := range prescriptions {
		if b, ok := bindingFor(p, ordered); ok {
			bindings[p.ID] = b
		}
	}
	return bindings, warnings
}

// dedupeLinks drops malformed links and every repeat of a (trigger, follow) pair
func dedupeLinks(links []MedicationLink) ([]MedicationLink, []IntegrityWarning) {
	var warnings []IntegrityWarning
	first := make(map[linkPair]MedicationLink)
	var ordered []MedicationLink
	for _, l := range links {
		if l.TriggerMedicineID == "" || l.FollowMedicineID == "" || l.TriggerMedicineID == l.FollowMedicineID {
			continue
		}
		key := linkPair{trigger: l.TriggerMedicineID, follow: l.FollowMedicineID}
		if kept, dup := first[key]; dup {
			warnings = append(warnings, IntegrityWarning{
				Kind:       WarningDuplicateLink,
				MedicineID: l.FollowMedicineID,
				Detail: fmt.Sprintf("duplicate protocol link %s -> %s (kept %q with %d min delay, ignored %q with %d min delay)",
					l.TriggerMedicineID, l.FollowMedicineID, kept.ID, kept.DelayMinutes, l.ID, l.DelayMinutes),
			})
			continue
		}
		first[key] = l
		ordered = append(ordered, l)
	}
	return ordered, warnings
}

func bindingFor(p Prescription, links []MedicationLink) (ProtocolBinding, bool) {
	for _, l := range links {
		if l.FollowMedicineID != p.MedicineID || l.TriggerMedicineID == l.FollowMedicineID {
			continue
		}
		return ProtocolBinding{
			PrescriptionID:    p.ID,
			LinkID:            l.ID,
			TriggerMedicineID: l.TriggerMedicineID,
			FollowMedicineID:  l.FollowMedicineID,
			Delay:             time.Duration(l.DelayMinutes) * time.Minute,
			DelayMinutes:      l.DelayMinutes,
		}, true
	}
	return ProtocolBinding{}, false
}
