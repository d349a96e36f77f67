// Package workerpool provides a bounded worker pool with retries. The
// schedule service uses it to rebuild medication boards concurrently.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrStopped is returned when submitting to a stopped pool
	ErrStopped = errors.New("worker pool is stopped")
	// ErrQueueFull is returned when the queue has no room
	ErrQueueFull = errors.New("task queue is full")
)

// Task is a unit of work
type Task struct {
	ID      string
	Payload any

	ctx   context.Context
	reply chan *Result
}

// Result is the outcome of a task
type Result struct {
	TaskID   string
	Data     any
	Err      error
	Attempts int
}

// WorkerFunc processes one task
type WorkerFunc func(ctx context.Context, task *Task) (any, error)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Config holds worker pool configuration
type Config struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	// RetryDelay grows linearly with the attempt number
	RetryDelay      time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for one service instance
func DefaultConfig() Config {
	return Config{
		Workers:         8,
		QueueSize:       1024,
		MaxRetries:      2,
		RetryDelay:      50 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs tasks on a fixed set of workers
type Pool struct {
	config Config
	fn     WorkerFunc
	logger *zap.Logger

	tasks   chan *Task
	results chan *Result
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// New creates a worker pool. Call Start before submitting.
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, errors.New("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	return &Pool{
		config:  cfg,
		fn:      fn,
		logger:  logger,
		tasks:   make(chan *Task, cfg.QueueSize),
		results: make(chan *Result, cfg.QueueSize),
	}, nil
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues a task without waiting. Its result is delivered on Results.
func (p *Pool) Submit(ctx context.Context, id string, payload any) error {
	return p.enqueue(&Task{ID: id, Payload: payload, ctx: ctx})
}

// Do runs a task and waits for its result
func (p *Pool) Do(ctx context.Context, id string, payload any) (*Result, error) {
	t := &Task{ID: id, Payload: payload, ctx: ctx, reply: make(chan *Result, 1)}
	if err := p.enqueue(t); err != nil {
		return nil, err
	}
	select {
	case r := <-t.reply:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) enqueue(t *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- t:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Results delivers results of tasks queued with Submit
func (p *Pool) Results() <-chan *Result {
	return p.results
}

// Stop drains queued tasks and waits for the workers
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(p.results)
		p.logger.Info("worker pool stopped")
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		r := p.run(t)
		if r.Err != nil {
			p.failed.Add(1)
			p.logger.Error("task failed",
				zap.String("task_id", t.ID),
				zap.Int("worker_id", id),
				zap.Int("attempts", r.Attempts),
				zap.Error(r.Err))
		} else {
			p.completed.Add(1)
		}

		if t.reply != nil {
			t.reply <- r
			continue
		}
		select {
		case p.results <- r:
		default:
			p.logger.Warn("result channel full, dropping result", zap.String("task_id", t.ID))
		}
	}
}

func (p *Pool) run(t *Task) *Result {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var perm *permanentError
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return &Result{TaskID: t.ID, Err: err, Attempts: attempt}
		}

		data, err := p.fn(ctx, t)
		if err == nil {
			return &Result{TaskID: t.ID, Data: data, Attempts: attempt + 1}
		}
		if errors.As(err, &perm) {
			return &Result{TaskID: t.ID, Err: perm.err, Attempts: attempt + 1}
		}
		if attempt >= p.config.MaxRetries {
			return &Result{
				TaskID:   t.ID,
				Err:      fmt.Errorf("task %s failed after %d attempts: %w", t.ID, attempt+1, err),
				Attempts: attempt + 1,
			}
		}

		p.retried.Add(1)
		p.logger.Debug("retrying task",
			zap.String("task_id", t.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return &Result{TaskID: t.ID, Err: ctx.Err(), Attempts: attempt + 1}
		case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
		}
	}
}

// Stats is a snapshot of pool counters
type Stats struct {
	Submitted  int64
	Completed  int64
	Failed     int64
	Retried    int64
	QueueDepth int
	Workers    int
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Retried:    p.retried.Load(),
		QueueDepth: len(p.tasks),
		Workers:    p.config.Workers,
	}
}

// IsHealthy reports whether the queue is below 90% capacity
func (p *Pool) IsHealthy() bool {
	return float64(len(p.tasks))/float64(p.config.QueueSize) < 0.9
}
