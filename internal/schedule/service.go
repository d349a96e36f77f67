// Package schedule recomputes a patient's medication board whenever an
// administration is recorded and publishes it for the cabinet UI.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medchart/medpyxis/internal/clock"
	"github.com/medchart/medpyxis/internal/domain/dispense"
	"github.com/medchart/medpyxis/internal/domain/dosing"
	"github.com/medchart/medpyxis/internal/infrastructure/postgres"
	"github.com/medchart/medpyxis/internal/infrastructure/redpanda"
	"github.com/medchart/medpyxis/internal/observability/metrics"
	"github.com/medchart/medpyxis/pkg/circuitbreaker"
	"github.com/medchart/medpyxis/pkg/idempotency"
	"github.com/medchart/medpyxis/pkg/workerpool"
)

// HandlerName identifies the service in the inbox table
const HandlerName = "schedule-service"

// SnapshotLoader loads the engine inputs for a patient
type SnapshotLoader interface {
	Snapshot(ctx context.Context, patientID string) (dosing.Snapshot, error)
}

// Publisher sends a record to a topic
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Deduper runs a handler at most once per key. *idempotency.Inbox satisfies it.
type Deduper interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.Result, error)
}

// Update is the message published on the schedule topic
type Update struct {
	PatientID string       `json:"patient_id"`
	CausedBy  string       `json:"caused_by"`
	Board     dosing.Board `json:"board"`
}

// Config holds service configuration
type Config struct {
	Topic string
	Pool  workerpool.Config
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{Topic: redpanda.TopicSchedule, Pool: workerpool.DefaultConfig()}
}

// Service turns administration notifications into schedule updates
type Service struct {
	config    Config
	store     SnapshotLoader
	publisher Publisher
	inbox     Deduper
	breaker   *circuitbreaker.CircuitBreaker
	engine    *dosing.Engine
	clock     clock.Clock
	metrics   *metrics.Metrics
	pool      *workerpool.Pool
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New creates a service. m may be nil.
func New(cfg Config, store SnapshotLoader, publisher Publisher, inbox Deduper, breaker *circuitbreaker.CircuitBreaker,
	engine *dosing.Engine, c clock.Clock, m *metrics.Metrics, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.New()
	}
	s := &Service{
		config:    cfg,
		store:     store,
		publisher: publisher,
		inbox:     inbox,
		breaker:   breaker,
		engine:    engine,
		clock:     c,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("schedule-service"),
	}

	pool, err := workerpool.New(cfg.Pool, s.recompute, logger)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	s.pool = pool
	return s, nil
}

// Start starts the workers
func (s *Service) Start() { s.pool.Start() }

// Stop drains the workers
func (s *Service) Stop() { s.pool.Stop() }

// Stats returns worker pool statistics
func (s *Service) Stats() workerpool.Stats { return s.pool.Stats() }

// Handle is the consumer callback. Malformed messages are dropped so they do
// not block the partition.
func (s *Service) Handle(ctx context.Context, msg *redpanda.Message) error {
	var n dispense.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		s.logger.Error("dropping malformed notification",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}
	if n.PatientID == "" {
		s.logger.Warn("dropping notification without patient", zap.String("event_id", n.EventID))
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "schedule.handle", trace.WithAttributes(
		attribute.String("patient_id", n.PatientID),
		attribute.String("event_id", n.EventID),
	))
	defer span.End()

	key := idempotency.GenerateKey(n.PatientID, n.EventID, string(n.Status), n.OccurredAt)
	res, err := s.inbox.Process(ctx, key, HandlerName, msg.Value, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return s.Refresh(ctx, n.PatientID, n.EventID)
	})
	switch {
	case errors.Is(err, idempotency.ErrMessageInProgress):
		// another consumer owns it; leave the offset for redelivery
		return err
	case errors.Is(err, idempotency.ErrPreviouslyFailed):
		s.logger.Warn("skipping previously failed notification", zap.String("key", key))
		return nil
	case errors.Is(err, postgres.ErrNotFound):
		s.logger.Warn("dropping notification for unknown patient",
			zap.String("patient_id", n.PatientID),
			zap.String("event_id", n.EventID))
		return nil
	case err != nil:
		span.RecordError(err)
		return err
	}
	if res.Duplicate {
		s.logger.Debug("duplicate notification", zap.String("event_id", n.EventID))
	}
	return nil
}

type refreshTask struct {
	patientID string
	causedBy  string
}

// Refresh recomputes and publishes the board of one patient, waiting for
// the result.
func (s *Service) Refresh(ctx context.Context, patientID, causedBy string) (json.RawMessage, error) {
	res, err := s.pool.Do(ctx, patientID, refreshTask{patientID: patientID, causedBy: causedBy})
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, res.Err
	}
	out, _ := res.Data.(json.RawMessage)
	return out, nil
}

// recompute is the worker function
func (s *Service) recompute(ctx context.Context, task *workerpool.Task) (any, error) {
	t, ok := task.Payload.(refreshTask)
	if !ok {
		return nil, workerpool.Permanent(fmt.Errorf("unexpected payload %T", task.Payload))
	}

	v, err := s.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return s.store.Snapshot(ctx, t.patientID)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			// retried on redelivery, not by the pool
			return nil, workerpool.Permanent(err)
		}
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, workerpool.Permanent(err)
		}
		return nil, fmt.Errorf("load snapshot %s: %w", t.patientID, err)
	}
	snap := v.(dosing.Snapshot)

	start := time.Now()
	board := s.engine.Board(snap, s.clock.Now())
	if s.metrics != nil {
		s.metrics.ScheduleRecomputeDuration.Observe(time.Since(start).Seconds())
	}

	value, err := json.Marshal(Update{PatientID: t.patientID, CausedBy: t.causedBy, Board: board})
	if err != nil {
		return nil, workerpool.Permanent(fmt.Errorf("marshal update: %w", err))
	}
	if err := s.publisher.Publish(ctx, s.config.Topic, t.patientID, value); err != nil {
		return nil, fmt.Errorf("publish schedule: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SchedulesPublished.Inc()
	}

	s.logger.Debug("schedule published",
		zap.String("patient_id", t.patientID),
		zap.Int("medications", len(board.Medications)))

	out, _ := json.Marshal(map[string]any{"medications": len(board.Medications), "published_at": board.GeneratedAt})
	return json.RawMessage(out), nil
}
