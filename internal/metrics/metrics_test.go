package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/stabilize"
)

func report(gen uint64, converged bool, derived ...float64) stabilize.Report {
	var d modal.Derived
	copy(d[:], derived)
	return stabilize.Report{Generation: gen, Converged: converged, Derived: d}
}

func TestStability(t *testing.T) {
	m := NewStability(0.01)
	if m.Value() != 1.0 {
		t.Errorf("empty stability should be 1, got %f", m.Value())
	}

	m.Observe(report(1, false, 0.5))
	m.Observe(report(1, false, 0.02))
	m.Observe(report(1, true, 0.01))
	m.Observe(report(1, false, 0.005))

	if math.Abs(m.Value()-0.5) > 1e-12 {
		t.Errorf("expected stability 0.5, got %f", m.Value())
	}

	m.Reset()
	if m.Value() != 1.0 {
		t.Error("expected stability 1 after reset")
	}
}

func TestResidualMetrics(t *testing.T) {
	rms := NewResidualRMS()
	peak := NewPeakResidual()

	for _, r := range []stabilize.Report{report(1, false, 0.3, -0.4), report(1, false, -0.6)} {
		rms.Observe(r)
		peak.Observe(r)
	}

	want := (math.Sqrt(0.25/12) + math.Sqrt(0.36/12)) / 2
	if math.Abs(rms.Value()-want) > 1e-12 {
		t.Errorf("expected rms %f, got %f", want, rms.Value())
	}
	if peak.Value() != 0.6 {
		t.Errorf("expected peak 0.6, got %f", peak.Value())
	}

	rms.Reset()
	peak.Reset()
	if rms.Value() != 0 || peak.Value() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	m.Observe(stabilize.Report{Voltages: modal.Voltages{10, -20}})
	m.Observe(stabilize.Report{Voltages: modal.Voltages{30}})
	if m.Value() != 22.5 {
		t.Errorf("expected effort 22.5, got %f", m.Value())
	}
}

func TestLockIterations(t *testing.T) {
	m := NewLockIterations()
	seq := []stabilize.Report{
		report(1, false), report(1, false), report(1, true), report(1, false), report(1, true),
		report(2, true),
		report(3, false),
	}
	for _, r := range seq {
		m.Observe(r)
	}
	// generation 1 locked after 3, generation 2 after 1, generation 3 never
	if m.Value() != 2 {
		t.Errorf("expected mean lock iterations 2, got %f", m.Value())
	}
}

func TestEscalations(t *testing.T) {
	m := NewEscalations()
	m.Observe(stabilize.Report{Escalate: true})
	m.Observe(stabilize.Report{})
	m.Observe(stabilize.Report{Escalate: true})
	if m.Value() != 2 {
		t.Errorf("expected 2 escalations, got %f", m.Value())
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(2, Defaults(0.01)...)
	c.OnIteration(report(1, false, 0.12))
	c.OnIteration(report(1, false, 0.06))
	c.OnIteration(report(1, true, 0.0))

	if got := c.Series(); len(got) != 2 || got[1] != 0 {
		t.Errorf("series should keep the last 2 points, got %v", got)
	}

	sum := c.Summary()
	if len(sum) != 7 {
		t.Fatalf("expected 7 results, got %d", len(sum))
	}
	if sum[0].Name != "stability" || math.Abs(sum[0].Value-1.0/3) > 1e-12 {
		t.Errorf("unexpected stability result %+v", sum[0])
	}

	c.Reset()
	if len(c.Series()) != 0 {
		t.Error("expected empty series after reset")
	}
}

func TestRinging(t *testing.T) {
	settling := NewRinging()
	ringing := NewRinging()
	for i := 0; i < 32; i++ {
		settling.Observe(report(1, false, 0.3*math.Pow(0.5, float64(i))))
		ringing.Observe(report(1, false, 0.05*math.Pow(-1, float64(i))))
	}

	if v := settling.Value(); v > 0.3 {
		t.Errorf("settling loop should not ring, got %f", v)
	}
	if v := ringing.Value(); v < 0.9 {
		t.Errorf("sign-flipping mode should ring, got %f", v)
	}

	short := NewRinging()
	short.Observe(report(1, false, 0.1))
	if short.Value() != 0 {
		t.Error("too few samples should report 0")
	}

	ringing.Reset()
	if ringing.Value() != 0 {
		t.Error("expected 0 after reset")
	}
}
