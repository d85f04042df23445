package storage

import (
	"sync"

	"github.com/san-kum/wfslock/internal/stabilize"
)

// Recorder buffers iteration rows from a running controller.
type Recorder struct {
	mu   sync.Mutex
	rows []Iteration
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnIteration(rep stabilize.Report) {
	row := Iteration{
		Iteration:  rep.Iteration,
		Generation: rep.Generation,
		Stable:     rep.State.Stable,
		Converged:  rep.Converged,
		Escalated:  rep.Escalate,
		Counter:    rep.State.Counter,
		RMS:        rep.Derived.RMS(),
		MaxAbs:     rep.Derived.MaxAbs(),
		Derived:    rep.Derived,
	}
	r.mu.Lock()
	r.rows = append(r.rows, row)
	r.mu.Unlock()
}

func (r *Recorder) Rows() []Iteration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Iteration(nil), r.rows...)
}

// Series extracts the RMS column.
func Series(rows []Iteration) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.RMS
	}
	return out
}
