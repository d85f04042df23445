// Package metrics summarises a stabilization run from its iteration reports.
package metrics

import (
	"sync"

	"github.com/san-kum/wfslock/internal/stabilize"
)

type Metric interface {
	Name() string
	Observe(r stabilize.Report)
	Value() float64
	Reset()
}

// Defaults returns the metrics reported at the end of a run.
func Defaults(tolerance float64) []Metric {
	return []Metric{
		NewStability(tolerance),
		NewResidualRMS(),
		NewPeakResidual(),
		NewControlEffort(),
		NewLockIterations(),
		NewEscalations(),
		NewRinging(),
	}
}

// Result is one metric's value at the time of a summary.
type Result struct {
	Name  string
	Value float64
}

// Collector feeds iteration reports to a set of metrics and keeps the
// residual RMS series for plotting. It is safe to read while the loop runs.
type Collector struct {
	mu      sync.Mutex
	metrics []Metric
	series  []float64
	maxLen  int
}

// NewCollector keeps at most maxLen series points; zero keeps all.
func NewCollector(maxLen int, ms ...Metric) *Collector {
	return &Collector{metrics: ms, maxLen: maxLen}
}

func (c *Collector) OnIteration(r stabilize.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.metrics {
		m.Observe(r)
	}
	c.series = append(c.series, r.Derived.RMS())
	if c.maxLen > 0 && len(c.series) > c.maxLen {
		c.series = c.series[len(c.series)-c.maxLen:]
	}
}

func (c *Collector) Summary() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.metrics))
	for i, m := range c.metrics {
		out[i] = Result{Name: m.Name(), Value: m.Value()}
	}
	return out
}

// Series returns a copy of the derived-mode RMS per iteration.
func (c *Collector) Series() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.series...)
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.metrics {
		m.Reset()
	}
	c.series = nil
}
