package dosing

import (
	"time"

	"go.uber.org/zap"
)

// WarningObserver receives every integrity warning the engine reports
type WarningObserver func(IntegrityWarning)

// Engine runs the dosing queries and reports integrity warnings. It holds no
// state between calls.
type Engine struct {
	logger    *zap.Logger
	observers []WarningObserver
}

// Option configures an Engine
type Option func(*Engine)

// WithWarningObserver registers fn for integrity warnings
func WithWarningObserver(fn WarningObserver) Option {
	return func(e *Engine) {
		if fn != nil {
			e.observers = append(e.observers, fn)
		}
	}
}

// NewEngine creates an engine
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Board builds the cabinet board for a patient and reports any warnings found
func (e *Engine) Board(s Snapshot, now time.Time) Board {
	board := BuildBoard(s, now)
	e.report(s.PatientID, board.Warnings)
	return board
}

// Eligibility decides whether a dose of p may be collected at now
func (e *Engine) Eligibility(p Prescription, admins []Administration, links []MedicationLink, now time.Time) Verdict {
	if ledger := LedgerFor(p, admins); ledger.LegacyFallback {
		e.report(p.PatientID, []IntegrityWarning{legacyWarning(p, ledger.Count)})
	}
	if _, warnings := dedupeLinks(links); len(warnings) > 0 {
		e.report(p.PatientID, warnings)
	}
	return CanAdminister(p, admins, links, now)
}

func (e *Engine) report(patientID string, warnings []IntegrityWarning) {
	for _, w := range warnings {
		e.logger.Warn("data integrity warning",
			zap.String("kind", string(w.Kind)),
			zap.String("patient_id", patientID),
			zap.String("prescription_id", w.PrescriptionID),
			zap.String("medicine_id", w.MedicineID),
			zap.String("detail", w.Detail),
		)
		for _, fn := range e.observers {
			fn(w)
		}
	}
}
