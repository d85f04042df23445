package modal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// Modes is the length of a fitted modal vector.
	Modes = 16
	// DerivedModes is the number of modes the flattening solver reports.
	DerivedModes = 12
	// FirstDerivedMode is the mode number of Derived[0].
	FirstDerivedMode = Modes - DerivedModes
	// MaxActuators bounds the length of a voltage command.
	MaxActuators = 60
	// DefaultFitOrder is the Zernike order fitted each loop iteration.
	DefaultFitOrder = 4
)

// zernikeModes converts a Zernike order to the number of modes up to that order.
var zernikeModes = [...]int{1, 3, 6, 10, 15, 21, 28, 36, 45, 55, 66}

// ModeCount returns how many coefficient slots a fit up to order fills.
// Slot 0 is reserved, so order 4 fills all 16.
func ModeCount(order int) int {
	if order < 0 {
		return 0
	}
	if order >= len(zernikeModes) {
		return Modes
	}
	n := zernikeModes[order] + 1
	if n > Modes {
		return Modes
	}
	return n
}

// Vector holds modal coefficients in micrometres, indexed by mode number.
type Vector [Modes]float64

// Derived holds the solver's modes FirstDerivedMode..Modes-1.
type Derived [DerivedModes]float64

// Voltages is an actuator drive command.
type Voltages []float64

// Mask selects modes for the flattening solver, one bit per mode.
type Mask uint32

// AllModes selects every mode.
const AllModes Mask = 0xFFFFFFFF

// Has reports whether mode is selected.
func (m Mask) Has(mode int) bool {
	if mode < 0 || mode >= 32 {
		return false
	}
	return m&(1<<uint(mode)) != 0
}

// VectorFrom copies vals into a Vector, leaving trailing entries at zero.
// Extra values beyond Modes are ignored.
func VectorFrom(vals ...float64) Vector {
	var v Vector
	copy(v[:], vals)
	return v
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// RMS is the root mean square over all coefficients.
func (v Vector) RMS() float64 {
	return rms(v[:])
}

// Derived returns the slice of v the solver reports on.
func (v Vector) Derived() Derived {
	var d Derived
	copy(d[:], v[FirstDerivedMode:])
	return d
}

func (v Vector) String() string {
	return join(v[:])
}

// Within reports whether every value lies in the closed band [-tol, tol].
// NaN and Inf are never within.
func (d Derived) Within(tol float64) bool {
	for _, x := range d {
		if !(math.Abs(x) <= tol) {
			return false
		}
	}
	return true
}

// MaxAbs returns the largest magnitude in d.
func (d Derived) MaxAbs() float64 {
	m := 0.0
	for _, x := range d {
		if a := math.Abs(x); a > m || math.IsNaN(a) {
			m = a
		}
	}
	return m
}

func (d Derived) RMS() float64 {
	return rms(d[:])
}

func (d Derived) String() string {
	return join(d[:])
}

// Validate checks the command length and values.
func (v Voltages) Validate() error {
	if len(v) > MaxActuators {
		return fmt.Errorf("%w: %d values, max %d", ErrTooManyActuators, len(v), MaxActuators)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: voltage[%d] = %v", ErrInvalidValue, i, x)
		}
	}
	return nil
}

func (v Voltages) Clone() Voltages {
	c := make(Voltages, len(v))
	copy(c, v)
	return c
}

// MeanAbs is the mean drive magnitude.
func (v Voltages) MeanAbs() float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += math.Abs(x)
	}
	return sum / float64(len(v))
}

func rms(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func join(xs []float64) string {
	var b strings.Builder
	for _, x := range xs {
		b.WriteString(strconv.FormatFloat(x, 'f', 6, 64))
		b.WriteByte(',')
	}
	return b.String()
}
