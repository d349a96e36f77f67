package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/medchart/medpyxis/internal/domain/dosing"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// Queryable is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store reads the prescription, administration and protocol link tables the
// dosing engine works from. Those tables are owned by the charting system;
// the only write is appending administrations.
type Store struct {
	db     Queryable
	tracer trace.Tracer
}

// NewStore creates a store over db
func NewStore(db Queryable) *Store {
	return &Store{db: db, tracer: otel.Tracer("store")}
}

const prescriptionCols = `id, patient_id, medicine_id, dosage, periodicity, duration, route,
	start_date, end_date, total_doses, completed`

const administrationCols = `id, patient_id, medicine_id, prescription_id, administered_at, status, message`

const linkCols = `id, trigger_medicine_id, follow_medicine_id, follow_frequency, delay_minutes, start_after`

func scanPrescription(row pgx.Row) (dosing.Prescription, error) {
	var p dosing.Prescription
	var duration, route *string
	err := row.Scan(&p.ID, &p.PatientID, &p.MedicineID, &p.Dosage, &p.Periodicity, &duration, &route,
		&p.StartDate, &p.EndDate, &p.TotalDoses, &p.Completed)
	if duration != nil {
		p.Duration = *duration
	}
	if route != nil {
		p.Route = *route
	}
	return p, err
}

func scanAdministration(row pgx.Row) (dosing.Administration, error) {
	var a dosing.Administration
	var message *string
	err := row.Scan(&a.ID, &a.PatientID, &a.MedicineID, &a.PrescriptionID, &a.AdministeredAt, &a.Status, &message)
	if message != nil {
		a.Message = *message
	}
	return a, err
}

func scanLink(row pgx.Row) (dosing.MedicationLink, error) {
	var l dosing.MedicationLink
	var frequency, startAfter *string
	err := row.Scan(&l.ID, &l.TriggerMedicineID, &l.FollowMedicineID, &frequency, &l.DelayMinutes, &startAfter)
	if frequency != nil {
		l.FollowFrequency = *frequency
	}
	if startAfter != nil {
		l.StartAfter = *startAfter
	}
	return l, err
}

// Prescription loads a single prescription
func (s *Store) Prescription(ctx context.Context, id string) (dosing.Prescription, error) {
	p, err := scanPrescription(s.db.QueryRow(ctx, `SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return dosing.Prescription{}, fmt.Errorf("prescription %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return dosing.Prescription{}, fmt.Errorf("load prescription: %w", err)
	}
	return p, nil
}

// Prescriptions lists a patient's prescriptions in creation order
func (s *Store) Prescriptions(ctx context.Context, patientID string) ([]dosing.Prescription, error) {
	rows, err := s.db.Query(ctx, `SELECT `+prescriptionCols+` FROM prescriptions
		WHERE patient_id = $1 ORDER BY created_at ASC, id ASC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var out []dosing.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Administrations lists a patient's administrations, oldest first
func (s *Store) Administrations(ctx context.Context, patientID string) ([]dosing.Administration, error) {
	rows, err := s.db.Query(ctx, `SELECT `+administrationCols+` FROM administrations
		WHERE patient_id = $1 ORDER BY administered_at ASC, id ASC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query administrations: %w", err)
	}
	defer rows.Close()

	var out []dosing.Administration
	for rows.Next() {
		a, err := scanAdministration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan administration: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Links lists protocol links in insertion order, optionally only those for
// one trigger medicine. Insertion order decides which duplicate link wins.
func (s *Store) Links(ctx context.Context, triggerMedicineID string) ([]dosing.MedicationLink, error) {
	query := `SELECT ` + linkCols + ` FROM medication_links`
	var args []interface{}
	if triggerMedicineID != "" {
		query += ` WHERE trigger_medicine_id = $1`
		args = append(args, triggerMedicineID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var out []dosing.MedicationLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Snapshot loads everything the engine needs for one patient. A patient
// with neither prescriptions nor administrations is ErrNotFound.
func (s *Store) Snapshot(ctx context.Context, patientID string) (dosing.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "store_snapshot",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	prescriptions, err := s.Prescriptions(ctx, patientID)
	if err != nil {
		span.RecordError(err)
		return dosing.Snapshot{}, err
	}
	admins, err := s.Administrations(ctx, patientID)
	if err != nil {
		span.RecordError(err)
		return dosing.Snapshot{}, err
	}
	if len(prescriptions) == 0 && len(admins) == 0 {
		return dosing.Snapshot{}, fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}
	links, err := s.Links(ctx, "")
	if err != nil {
		span.RecordError(err)
		return dosing.Snapshot{}, err
	}

	span.SetAttributes(
		attribute.Int("prescriptions", len(prescriptions)),
		attribute.Int("administrations", len(admins)),
	)
	return dosing.Snapshot{
		PatientID:       patientID,
		Prescriptions:   prescriptions,
		Administrations: admins,
		Links:           links,
	}, nil
}

// WriteAdministration appends an administration row within a transaction.
// Rows are keyed by id, so a replayed write is a no-op.
func WriteAdministration(ctx context.Context, tx pgx.Tx, a dosing.Administration) error {
	query := `
		INSERT INTO administrations (id, patient_id, medicine_id, prescription_id, administered_at, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		ON CONFLICT (id) DO NOTHING
	`
	_, err := tx.Exec(ctx, query,
		a.ID, a.PatientID, a.MedicineID, a.PrescriptionID, a.AdministeredAt, string(a.Status), a.Message)
	if err != nil {
		return fmt.Errorf("failed to write administration: %w", err)
	}
	return nil
}
