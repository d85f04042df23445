package bench

import (
	"fmt"
	"runtime"

	"github.com/san-kum/wfslock/internal/device"
	"github.com/san-kum/wfslock/internal/modal"
)

// Sensor is the bench's wavefront sensor.
type Sensor struct{ b *Bench }

// CaptureAutoExposed yields the processor before capturing, standing in for
// the exposure a real camera blocks on.
func (s *Sensor) CaptureAutoExposed() (device.Frame, error) {
	runtime.Gosched()
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sensorReleased {
		return device.Frame{}, &device.DeviceError{Device: "sensor", Op: "capture", Err: device.ErrReleased}
	}
	b.captures++
	if b.p.FailCaptureAt > 0 && b.captures == uint64(b.p.FailCaptureAt) {
		return device.Frame{}, &device.DeviceError{Device: "sensor", Op: "capture", Code: -1074001, Err: fmt.Errorf("injected failure at capture %d", b.captures)}
	}
	if b.p.Drift > 0 {
		for i := range b.aberration {
			b.aberration[i] += b.rng.NormFloat64() * b.p.Drift
		}
	}
	return device.Frame{Seq: b.captures, Exposure: 0.8, Gain: 1.0}, nil
}

func (s *Sensor) FitModal(frame device.Frame, maxOrder int) (modal.Vector, error) {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sensorReleased {
		return modal.Vector{}, &device.DeviceError{Device: "sensor", Op: "fit", Err: device.ErrReleased}
	}
	if frame.Seq != b.captures {
		return modal.Vector{}, &device.DeviceError{Device: "sensor", Op: "fit", Err: ErrStaleFrame}
	}
	return b.wavefront(maxOrder), nil
}

func (s *Sensor) Release() error {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sensorReleased {
		return &device.DeviceError{Device: "sensor", Op: "release", Err: device.ErrReleased}
	}
	b.sensorReleased = true
	return nil
}

// Mirror is the bench's deformable mirror.
type Mirror struct{ b *Bench }

func (m *Mirror) ApplyVoltages(v modal.Voltages) error {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mirrorReleased {
		return &device.DeviceError{Device: "mirror", Op: "apply", Err: device.ErrReleased}
	}
	if err := v.Validate(); err != nil {
		return &device.DeviceError{Device: "mirror", Op: "apply", Err: err}
	}
	if len(v) != len(b.volts) {
		return &device.DeviceError{Device: "mirror", Op: "apply", Err: fmt.Errorf("expected %d voltages, got %d", len(b.volts), len(v))}
	}
	for i, x := range v {
		b.volts[i] = b.clamp(x)
	}
	return nil
}

func (m *Mirror) Release() error {
	b := m.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mirrorReleased {
		return &device.DeviceError{Device: "mirror", Op: "release", Err: device.ErrReleased}
	}
	b.mirrorReleased = true
	return nil
}

// Solver steps the current mirror command against the residual.
type Solver struct{ b *Bench }

func (s *Solver) Solve(mask modal.Mask, residual modal.Vector) (modal.Derived, modal.Voltages, error) {
	if !residual.IsValid() {
		return modal.Derived{}, nil, &device.SolverError{Code: -5, Err: modal.ErrInvalidValue}
	}
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()

	var derived modal.Derived
	for k := range derived {
		if mask.Has(k + modal.FirstDerivedMode) {
			derived[k] = residual[k+modal.FirstDerivedMode]
		}
	}

	volts := make(modal.Voltages, len(b.volts))
	for j, v := range b.volts {
		step := b.p.Gain * derived[j%modal.DerivedModes] / b.estimate
		volts[j] = b.clamp(v - step)
	}
	return derived, volts, nil
}

// Characterizer estimates the mirror response with a single poke of every
// actuator.
type Characterizer struct{ b *Bench }

func (c *Characterizer) MeasureSystemParameters(first bool, measured modal.Vector) (modal.Voltages, int, error) {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if first {
		b.baseline = measured
		pattern := make(modal.Voltages, len(b.volts))
		for i := range pattern {
			pattern[i] = b.clamp(b.p.Bias + pokeVoltage)
		}
		return pattern, 1, nil
	}

	sum := 0.0
	for k := 0; k < modal.DerivedModes; k++ {
		sum += measured[k+modal.FirstDerivedMode] - b.baseline[k+modal.FirstDerivedMode]
	}
	estimate := sum / float64(modal.DerivedModes) / pokeVoltage
	if estimate == 0 {
		return nil, 0, &device.SolverError{Code: -7, Err: fmt.Errorf("mirror shows no response to a %.1f V poke", pokeVoltage)}
	}
	b.estimate = estimate

	pattern := make(modal.Voltages, len(b.volts))
	for i := range pattern {
		pattern[i] = b.p.Bias
	}
	return pattern, 0, nil
}
