package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/medchart/medpyxis/internal/clock"
	"github.com/medchart/medpyxis/internal/domain/dispense"
	"github.com/medchart/medpyxis/internal/domain/dosing"
	"github.com/medchart/medpyxis/internal/infrastructure/postgres"
	"github.com/medchart/medpyxis/internal/infrastructure/redpanda"
	"github.com/medchart/medpyxis/internal/observability/metrics"
	"github.com/medchart/medpyxis/pkg/circuitbreaker"
	"github.com/medchart/medpyxis/pkg/idempotency"
)

var t0 = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

type fakeLoader struct {
	err   error
	calls int
}

func (f *fakeLoader) Snapshot(_ context.Context, patientID string) (dosing.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return dosing.Snapshot{}, f.err
	}
	rx := "rx-1"
	return dosing.Snapshot{
		PatientID: patientID,
		Prescriptions: []dosing.Prescription{
			{ID: "rx-1", PatientID: patientID, MedicineID: "ondansetron", Periodicity: "every 6 hours"},
		},
		Administrations: []dosing.Administration{
			{ID: "adm-1", PatientID: patientID, MedicineID: "ondansetron", PrescriptionID: &rx,
				AdministeredAt: t0, Status: dosing.StatusAdministered},
		},
	}, nil
}

type published struct {
	topic, key string
	value      []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{topic, key, value})
	return nil
}

// memInbox finishes each key once
type memInbox struct {
	done map[string]json.RawMessage
}

func (m *memInbox) Process(ctx context.Context, key, _ string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.Result, error) {
	if out, ok := m.done[key]; ok {
		return &idempotency.Result{Duplicate: true, Output: out}, nil
	}
	out, err := fn(ctx, payload)
	if err != nil {
		return nil, err
	}
	m.done[key] = out
	return &idempotency.Result{Output: out}, nil
}

func newService(t *testing.T, loader SnapshotLoader) (*Service, *fakePublisher, *metrics.Metrics) {
	t.Helper()
	cb, err := circuitbreaker.New(circuitbreaker.DefaultConfig("snapshot-store"), nil)
	if err != nil {
		t.Fatal(err)
	}
	pub := &fakePublisher{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	cfg := DefaultConfig()
	cfg.Pool.Workers = 2
	cfg.Pool.MaxRetries = 0

	s, err := New(cfg, loader, pub, &memInbox{done: map[string]json.RawMessage{}}, cb,
		dosing.NewEngine(nil), clock.NewManaged(t0.Add(2*time.Hour)), m, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	t.Cleanup(s.Stop)
	return s, pub, m
}

func notification(t *testing.T, eventID string) *redpanda.Message {
	t.Helper()
	value, err := json.Marshal(dispense.Notification{
		EventID:    eventID,
		EventType:  dispense.EventDoseAdministered,
		PatientID:  "patient-1",
		MedicineID: "ondansetron",
		Status:     dosing.StatusAdministered,
		OccurredAt: t0,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &redpanda.Message{Topic: redpanda.TopicAdministrations, Value: value}
}

func TestHandlePublishesBoard(t *testing.T) {
	s, pub, m := newService(t, &fakeLoader{})

	if err := s.Handle(context.Background(), notification(t, "evt-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected 1 update, got %d", len(pub.sent))
	}
	sent := pub.sent[0]
	if sent.topic != redpanda.TopicSchedule || sent.key != "patient-1" {
		t.Errorf("unexpected destination %s/%s", sent.topic, sent.key)
	}

	var u struct {
		CausedBy string `json:"caused_by"`
		Board    struct {
			Medications []struct {
				NextDue time.Time `json:"next_due"`
			} `json:"medications"`
		} `json:"board"`
	}
	if err := json.Unmarshal(sent.value, &u); err != nil {
		t.Fatal(err)
	}
	if u.CausedBy != "evt-1" || len(u.Board.Medications) != 1 {
		t.Fatalf("unexpected update %s", sent.value)
	}
	if !u.Board.Medications[0].NextDue.Equal(t0.Add(6 * time.Hour)) {
		t.Errorf("next due = %v", u.Board.Medications[0].NextDue)
	}
	if got := testutil.ToFloat64(m.SchedulesPublished); got != 1 {
		t.Errorf("published counter = %v", got)
	}
}

func TestHandleDeduplicates(t *testing.T) {
	loader := &fakeLoader{}
	s, pub, _ := newService(t, loader)

	msg := notification(t, "evt-1")
	for i := 0; i < 3; i++ {
		if err := s.Handle(context.Background(), msg); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if loader.calls != 1 || len(pub.sent) != 1 {
		t.Errorf("expected one recompute, got %d loads and %d updates", loader.calls, len(pub.sent))
	}
}

func TestHandleDropsMalformed(t *testing.T) {
	s, pub, _ := newService(t, &fakeLoader{})

	if err := s.Handle(context.Background(), &redpanda.Message{Value: []byte("{not json")}); err != nil {
		t.Errorf("malformed message should be dropped, got %v", err)
	}
	if err := s.Handle(context.Background(), &redpanda.Message{Value: []byte(`{"event_id":"evt-9"}`)}); err != nil {
		t.Errorf("message without patient should be dropped, got %v", err)
	}
	if len(pub.sent) != 0 {
		t.Errorf("expected no updates, got %d", len(pub.sent))
	}
}

func TestHandleReturnsStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	s, pub, _ := newService(t, &fakeLoader{err: boom})

	err := s.Handle(context.Background(), notification(t, "evt-1"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(pub.sent) != 0 {
		t.Errorf("expected no updates, got %d", len(pub.sent))
	}
}

func TestHandleDropsUnknownPatient(t *testing.T) {
	loader := &fakeLoader{err: fmt.Errorf("patient patient-1: %w", postgres.ErrNotFound)}
	s, pub, _ := newService(t, loader)

	if err := s.Handle(context.Background(), notification(t, "evt-1")); err != nil {
		t.Fatalf("unknown patient should be dropped, got %v", err)
	}
	if loader.calls != 1 {
		t.Errorf("expected a single load, got %d", loader.calls)
	}
	if len(pub.sent) != 0 {
		t.Errorf("expected no updates, got %d", len(pub.sent))
	}
}
