package metrics

import (
	"github.com/san-kum/wfslock/internal/analysis"
	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/stabilize"
)

const (
	ringingWindow     = 64
	ringingMinSamples = 8
)

// Ringing is the largest high-band power fraction over the derived modes'
// recent history. Values near 1 mean the loop is overshooting every
// iteration.
type Ringing struct {
	name    string
	history []modal.Derived
}

func NewRinging() *Ringing {
	return &Ringing{name: "ringing"}
}

func (r *Ringing) Name() string { return r.name }

func (r *Ringing) Observe(rep stabilize.Report) {
	r.history = append(r.history, rep.Derived)
	if len(r.history) > ringingWindow {
		r.history = r.history[len(r.history)-ringingWindow:]
	}
}

func (r *Ringing) Value() float64 {
	if len(r.history) < ringingMinSamples {
		return 0
	}
	worst := 0.0
	series := make([]float64, len(r.history))
	for mode := 0; mode < modal.DerivedModes; mode++ {
		for i, d := range r.history {
			series[i] = d[mode]
		}
		if f := analysis.HighBandFraction(series); f > worst {
			worst = f
		}
	}
	return worst
}

func (r *Ringing) Reset() { r.history = nil }
