// Package devicetest provides scripted device collaborators for tests.
//
// All fakes are safe for concurrent use so a test goroutine can inspect
// them while a controller lane drives them.
package devicetest

import (
	"errors"
	"sync"
	"time"

	"github.com/san-kum/wfslock/internal/device"
	"github.com/san-kum/wfslock/internal/modal"
)

// ErrInjected is the cause of every injected failure.
var ErrInjected = errors.New("devicetest: injected failure")

// Sensor replays a list of measured vectors. Once the list is exhausted the
// last vector repeats.
type Sensor struct {
	// FailCaptureAt makes the n-th capture (1-based) fail. Zero never fails.
	FailCaptureAt int
	// FailFitAt makes the n-th fit (1-based) fail.
	FailFitAt int
	// Delay is slept on every capture.
	Delay time.Duration

	mu       sync.Mutex
	measured []modal.Vector
	captures int
	fits     int
	orders   []int
	releases int
}

func NewSensor(measured ...modal.Vector) *Sensor {
	return &Sensor{measured: measured}
}

// Push appends measurements to the script.
func (s *Sensor) Push(measured ...modal.Vector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measured = append(s.measured, measured...)
}

func (s *Sensor) CaptureAutoExposed() (device.Frame, error) {
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures++
	if s.FailCaptureAt > 0 && s.captures == s.FailCaptureAt {
		return device.Frame{}, &device.DeviceError{Device: "sensor", Op: "capture", Code: -1, Err: ErrInjected}
	}
	return device.Frame{Seq: uint64(s.captures), Exposure: 1, Gain: 1}, nil
}

func (s *Sensor) FitModal(frame device.Frame, maxOrder int) (modal.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fits++
	s.orders = append(s.orders, maxOrder)
	if s.FailFitAt > 0 && s.fits == s.FailFitAt {
		return modal.Vector{}, &device.DeviceError{Device: "sensor", Op: "fit", Code: -2, Err: ErrInjected}
	}
	if len(s.measured) == 0 {
		return modal.Vector{}, nil
	}
	idx := s.fits - 1
	if idx >= len(s.measured) {
		idx = len(s.measured) - 1
	}
	return s.measured[idx], nil
}

func (s *Sensor) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

func (s *Sensor) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

// Orders returns the fit orders requested so far.
func (s *Sensor) Orders() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.orders...)
}

func (s *Sensor) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// Actuator records every applied command.
type Actuator struct {
	// FailApplyAt makes the n-th apply (1-based) fail with an untyped error.
	FailApplyAt int
	// ReleaseErr is returned by Release.
	ReleaseErr error

	mu       sync.Mutex
	applied  []modal.Voltages
	releases int
}

func NewActuator() *Actuator {
	return &Actuator{}
}

func (a *Actuator) ApplyVoltages(v modal.Voltages) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailApplyAt > 0 && len(a.applied)+1 == a.FailApplyAt {
		return ErrInjected
	}
	a.applied = append(a.applied, v.Clone())
	return nil
}

func (a *Actuator) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releases++
	return a.ReleaseErr
}

func (a *Actuator) Applied() []modal.Voltages {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]modal.Voltages(nil), a.applied...)
}

func (a *Actuator) Releases() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.releases
}

// Solver echoes the residual's derived modes back and records what it saw.
type Solver struct {
	// Derive overrides the derived vector returned for a residual.
	Derive func(residual modal.Vector) modal.Derived
	// Actuators is the length of the returned command. Defaults to 40.
	Actuators int
	// FailAt makes the n-th solve (1-based) fail with a SolverError.
	FailAt int

	mu        sync.Mutex
	residuals []modal.Vector
	masks     []modal.Mask
}

func NewSolver() *Solver {
	return &Solver{}
}

func (s *Solver) Solve(mask modal.Mask, residual modal.Vector) (modal.Derived, modal.Voltages, error) {
	s.mu.Lock()
	s.residuals = append(s.residuals, residual)
	s.masks = append(s.masks, mask)
	n := len(s.residuals)
	derive := s.Derive
	s.mu.Unlock()

	if s.FailAt > 0 && n == s.FailAt {
		return modal.Derived{}, nil, &device.SolverError{Code: -3, Err: ErrInjected}
	}

	derived := residual.Derived()
	if derive != nil {
		derived = derive(residual)
	}
	count := s.Actuators
	if count == 0 {
		count = 40
	}
	volts := make(modal.Voltages, count)
	for i := range volts {
		volts[i] = 50 - derived[i%modal.DerivedModes]
	}
	return derived, volts, nil
}

// Residuals returns every residual passed to Solve.
func (s *Solver) Residuals() []modal.Vector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]modal.Vector(nil), s.residuals...)
}

func (s *Solver) Masks() []modal.Mask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]modal.Mask(nil), s.masks...)
}

// Characterizer counts down a fixed number of measurement steps.
type Characterizer struct {
	Steps int

	mu    sync.Mutex
	calls []bool
}

func (c *Characterizer) MeasureSystemParameters(first bool, measured modal.Vector) (modal.Voltages, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, first)
	remaining := c.Steps - len(c.calls)
	if remaining < 0 {
		remaining = 0
	}
	return make(modal.Voltages, 40), remaining, nil
}

// Calls returns the first flag of every call.
func (c *Characterizer) Calls() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.calls...)
}

// Set bundles fresh fakes into a device.Set.
func Set(sensor *Sensor, actuator *Actuator, solver *Solver) device.Set {
	return device.Set{Sensor: sensor, Actuator: actuator, Solver: solver}
}
