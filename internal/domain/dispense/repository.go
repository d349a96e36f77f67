package dispense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/medchart/medpyxis/internal/domain/dosing"
	"github.com/medchart/medpyxis/internal/infrastructure/postgres"
)

// ErrSessionNotFound is returned by Load for an unknown session id
var ErrSessionNotFound = errors.New("dispense session not found")

// DB is the subset of *pgxpool.Pool the repository uses
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Notification is published for every administration row a session writes
type Notification struct {
	EventID        string                      `json:"event_id"`
	EventType      EventType                   `json:"event_type"`
	SessionID      string                      `json:"session_id"`
	PatientID      string                      `json:"patient_id"`
	PrescriptionID string                      `json:"prescription_id"`
	MedicineID     string                      `json:"medicine_id"`
	Status         dosing.AdministrationStatus `json:"status"`
	Message        string                      `json:"message,omitempty"`
	OccurredAt     time.Time                   `json:"occurred_at"`
}

// Repository provides event sourcing persistence for sessions
type Repository struct {
	db     DB
	topic  string
	logger *zap.Logger
}

// NewRepository creates a repository that announces administrations on topic
func NewRepository(db DB, topic string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, topic: topic, logger: logger}
}

// Save persists new events, the administration rows they imply and their
// outbox notifications in one transaction.
func (r *Repository) Save(ctx context.Context, s *Session) error {
	changes := s.Changes()
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, event := range changes {
		event.Version = s.Version() - len(changes) + i + 1
		if err := insertEvent(ctx, tx, event); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	for _, a := range s.Administrations() {
		if err := postgres.WriteAdministration(ctx, tx, a); err != nil {
			return err
		}
		entry, err := r.outboxEntry(s, a)
		if err != nil {
			return err
		}
		if err := postgres.WriteEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("dispense session saved",
		zap.String("session_id", s.ID()),
		zap.String("status", string(s.Status())),
		zap.Int("events", len(changes)),
	)
	s.ClearChanges()
	return nil
}

func (r *Repository) outboxEntry(s *Session, a dosing.Administration) (*postgres.OutboxEntry, error) {
	n := Notification{
		EventID:        a.ID,
		EventType:      eventTypeFor(s, a.ID),
		SessionID:      s.ID(),
		PatientID:      a.PatientID,
		PrescriptionID: s.PrescriptionID(),
		MedicineID:     a.MedicineID,
		Status:         a.Status,
		Message:        a.Message,
		OccurredAt:     a.AdministeredAt,
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return &postgres.OutboxEntry{
		AggregateID:   s.ID(),
		AggregateType: AggregateType,
		EventType:     string(n.EventType),
		Payload:       payload,
		KafkaTopic:    r.topic,
		KafkaKey:      a.PatientID,
	}, nil
}

func eventTypeFor(s *Session, eventID string) EventType {
	for _, e := range s.Changes() {
		if e.ID == eventID {
			return e.EventType
		}
	}
	return ""
}

func insertEvent(ctx context.Context, tx pgx.Tx, event *Event) error {
	query := `
		INSERT INTO dispense_events
		(id, aggregate_id, event_type, event_data, version, timestamp, patient_id, prescription_id, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.Exec(ctx, query,
		event.ID,
		event.AggregateID,
		event.EventType,
		event.EventData,
		event.Version,
		event.Timestamp,
		event.PatientID,
		event.PrescriptionID,
		event.CorrelationID,
	)
	return err
}

// Load retrieves a session by ID
func (r *Repository) Load(ctx context.Context, id string) (*Session, error) {
	events, err := r.GetEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s := NewSession(id)
	if err := s.LoadFromHistory(events); err != nil {
		return nil, err
	}
	return s, nil
}

// GetEvents retrieves all events for a session
func (r *Repository) GetEvents(ctx context.Context, aggregateID string) ([]*Event, error) {
	query := `
		SELECT id, aggregate_id, event_type, event_data, version, timestamp,
		       patient_id, prescription_id, correlation_id
		FROM dispense_events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`

	rows, err := r.db.Query(ctx, query, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{AggregateType: AggregateType}
		err := rows.Scan(
			&e.ID, &e.AggregateID, &e.EventType, &e.EventData, &e.Version,
			&e.Timestamp, &e.PatientID, &e.PrescriptionID, &e.CorrelationID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
