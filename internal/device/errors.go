package device

import (
	"errors"
	"fmt"
)

var (
	// ErrDevice matches every DeviceError.
	ErrDevice = errors.New("device: call failed")

	// ErrSolver matches every SolverError.
	ErrSolver = errors.New("device: flattening computation failed")

	// ErrReleased indicates a call on a handle that was already released.
	ErrReleased = errors.New("device: handle released")

	ErrMissingSensor   = errors.New("device: no sensor")
	ErrMissingActuator = errors.New("device: no actuator")
	ErrMissingSolver   = errors.New("device: no solver")
)

// DeviceError is a failed sensor, actuator or solver call.
type DeviceError struct {
	Device string
	Op     string
	Code   int
	Err    error
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Device, e.Op)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceError) Unwrap() error { return e.Err }

func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// SolverError is a failed flattening computation.
type SolverError struct {
	Code int
	Err  error
}

func (e *SolverError) Error() string {
	msg := "flattening solver failed"
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SolverError) Unwrap() error { return e.Err }

func (e *SolverError) Is(target error) bool { return target == ErrSolver }

// Wrap returns err as a DeviceError naming device and op, unless it already
// is a DeviceError or SolverError.
func Wrap(device, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	return &DeviceError{Device: device, Op: op, Err: err}
}

// IsFatal reports whether err is one of the fatal device error kinds.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDevice) || errors.Is(err, ErrSolver)
}
