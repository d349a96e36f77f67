// Package clock supplies the "now" handed to the dosing engine. The cabinet
// supports simulated time for training, which is just the real clock shifted
// by an offset.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// New returns the wall clock
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

// Offset is a clock running a fixed distance from its base clock
type Offset struct {
	base   Clock
	offset time.Duration
}

// NewOffset returns base shifted by d. A nil base uses the wall clock.
func NewOffset(base Clock, d time.Duration) *Offset {
	if base == nil {
		base = New()
	}
	return &Offset{base: base, offset: d}
}

// Now returns the base time plus the offset
func (o *Offset) Now() time.Time {
	return o.base.Now().Add(o.Offset())
}

// Offset returns the distance from the base clock
func (o *Offset) Offset() time.Duration {
	return o.offset
}

// Shift returns a clock running d ahead of c
func Shift(c Clock, d time.Duration) Clock {
	if d == 0 {
		return c
	}
	return NewOffset(c, d)
}

// Managed is a hand-driven clock for tests
type Managed struct {
	mu     sync.Mutex
	start  time.Time
	offset time.Duration
}

// NewManaged returns a clock frozen at start
func NewManaged(start time.Time) *Managed {
	return &Managed{start: start}
}

// Now returns the managed time
func (m *Managed) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.start.Add(m.offset)
}

// WarpForward moves the clock forward by d and returns the new time
func (m *Managed) WarpForward(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.offset += d
	}
	return m.start.Add(m.offset)
}
