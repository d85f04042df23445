package device

import "github.com/san-kum/wfslock/internal/modal"

// Frame is a handle to one exposed sensor image.
type Frame struct {
	Seq      uint64
	Exposure float64 // ms
	Gain     float64
}

// Sensor is a wavefront sensor.
type Sensor interface {
	// CaptureAutoExposed takes a spot-field image with automatic exposure.
	CaptureAutoExposed() (Frame, error)
	// FitModal fits Zernike coefficients up to maxOrder to frame.
	FitModal(frame Frame, maxOrder int) (modal.Vector, error)
	Release() error
}

// Actuator is a deformable mirror.
type Actuator interface {
	ApplyVoltages(v modal.Voltages) error
	Release() error
}

// Solver maps a modal residual to the mirror command that flattens it.
type Solver interface {
	// Solve returns the derived modes 4..15 the solver worked on and the
	// actuator voltages to apply.
	Solve(mask modal.Mask, residual modal.Vector) (modal.Derived, modal.Voltages, error)
}

// Characterizer measures mirror system parameters before the loop closes.
// The first call starts a measurement; it returns the pattern to apply and
// how many further steps remain.
type Characterizer interface {
	MeasureSystemParameters(first bool, measured modal.Vector) (modal.Voltages, int, error)
}

// Set groups the handles a control session owns.
type Set struct {
	Sensor        Sensor
	Actuator      Actuator
	Solver        Solver
	Characterizer Characterizer // optional
}

func (s Set) Validate() error {
	switch {
	case s.Sensor == nil:
		return ErrMissingSensor
	case s.Actuator == nil:
		return ErrMissingActuator
	case s.Solver == nil:
		return ErrMissingSolver
	}
	return nil
}
