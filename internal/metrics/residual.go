package metrics

import (
	"math"

	"github.com/san-kum/wfslock/internal/stabilize"
)

// ResidualRMS is the mean RMS of the derived modes.
type ResidualRMS struct {
	name    string
	total   float64
	samples int
}

func NewResidualRMS() *ResidualRMS {
	return &ResidualRMS{name: "residual_rms"}
}

func (e *ResidualRMS) Name() string { return e.name }

func (e *ResidualRMS) Observe(r stabilize.Report) {
	e.total += r.Derived.RMS()
	e.samples++
}

func (e *ResidualRMS) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *ResidualRMS) Reset() {
	e.total = 0
	e.samples = 0
}

// PeakResidual is the largest absolute derived mode seen.
type PeakResidual struct {
	name string
	peak float64
}

func NewPeakResidual() *PeakResidual {
	return &PeakResidual{name: "peak_residual"}
}

func (e *PeakResidual) Name() string { return e.name }

func (e *PeakResidual) Observe(r stabilize.Report) {
	e.peak = math.Max(e.peak, r.Derived.MaxAbs())
}

func (e *PeakResidual) Value() float64 { return e.peak }

func (e *PeakResidual) Reset() { e.peak = 0 }

// LockIterations is the mean number of iterations from a new target to its
// first convergence. Targets that never converged are not counted.
type LockIterations struct {
	name       string
	generation uint64
	since      int
	locked     bool
	total      int
	events     int
}

func NewLockIterations() *LockIterations {
	return &LockIterations{name: "lock_iterations"}
}

func (l *LockIterations) Name() string { return l.name }

func (l *LockIterations) Observe(r stabilize.Report) {
	if r.Generation != l.generation {
		l.generation = r.Generation
		l.since = 0
		l.locked = false
	}
	l.since++
	if r.Converged && !l.locked {
		l.total += l.since
		l.events++
		l.locked = true
	}
}

func (l *LockIterations) Value() float64 {
	if l.events == 0 {
		return 0
	}
	return float64(l.total) / float64(l.events)
}

func (l *LockIterations) Reset() {
	*l = LockIterations{name: l.name}
}

// Escalations counts iterations that handed control to the operator.
type Escalations struct {
	name  string
	count int
}

func NewEscalations() *Escalations {
	return &Escalations{name: "escalations"}
}

func (e *Escalations) Name() string { return e.name }

func (e *Escalations) Observe(r stabilize.Report) {
	if r.Escalate {
		e.count++
	}
}

func (e *Escalations) Value() float64 { return float64(e.count) }

func (e *Escalations) Reset() { e.count = 0 }
