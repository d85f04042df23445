// Package bench is a simulated optical bench: a wavefront sensor looking at
// a deformable mirror through a static aberration.
//
// The plant is deliberately linear. Actuator j drives derived mode j%12 and
// a mode's displacement is Response times the mean offset from the bias
// voltage of its actuators. The solver steps the current command against
// the residual with a fixed loop gain, so a clean bench converges
// geometrically with ratio 1-Gain. Voltages clamp to [0, MaxVoltage], which
// is how saturation shows up.
//
// The bench exists to run and test the loop without hardware; it makes no
// attempt at optical fidelity.
package bench

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/san-kum/wfslock/internal/device"
	"github.com/san-kum/wfslock/internal/modal"
)

const (
	DefaultActuators  = 40
	DefaultBias       = 50.0
	DefaultMaxVoltage = 100.0
	DefaultGain       = 0.5
	DefaultResponse   = 1.0

	pokeVoltage = 5.0
)

var (
	ErrInvalidParams = errors.New("bench: invalid parameters")
	ErrStaleFrame    = errors.New("bench: frame is not the latest capture")
)

type Params struct {
	Actuators  int
	Bias       float64
	MaxVoltage float64
	// Response is the true mode displacement per volt.
	Response float64
	// Gain is the solver's loop gain in (0, 1].
	Gain float64
	// Noise is the standard deviation of fit noise in um.
	Noise float64
	// Drift is the standard deviation of the aberration random walk per capture.
	Drift      float64
	Seed       int64
	Aberration modal.Vector

	// FailCaptureAt makes the n-th capture fail (1-based, zero never).
	FailCaptureAt int
}

func DefaultParams() Params {
	return Params{
		Actuators:  DefaultActuators,
		Bias:       DefaultBias,
		MaxVoltage: DefaultMaxVoltage,
		Response:   DefaultResponse,
		Gain:       DefaultGain,
	}
}

func (p Params) Validate() error {
	if p.Actuators < modal.DerivedModes || p.Actuators > modal.MaxActuators {
		return fmt.Errorf("%w: actuators must be in [%d, %d], got %d", ErrInvalidParams, modal.DerivedModes, modal.MaxActuators, p.Actuators)
	}
	if p.MaxVoltage <= 0 || p.Bias < 0 || p.Bias > p.MaxVoltage {
		return fmt.Errorf("%w: bias %.2f outside [0, %.2f]", ErrInvalidParams, p.Bias, p.MaxVoltage)
	}
	if p.Gain <= 0 || p.Gain > 1 {
		return fmt.Errorf("%w: gain must be in (0, 1], got %f", ErrInvalidParams, p.Gain)
	}
	if p.Response == 0 {
		return fmt.Errorf("%w: response must be non-zero", ErrInvalidParams)
	}
	if p.Noise < 0 || p.Drift < 0 {
		return fmt.Errorf("%w: noise and drift must be non-negative", ErrInvalidParams)
	}
	if !p.Aberration.IsValid() {
		return fmt.Errorf("%w: aberration contains NaN or Inf", ErrInvalidParams)
	}
	return nil
}

type Bench struct {
	mu         sync.Mutex
	p          Params
	rng        *rand.Rand
	volts      []float64
	aberration modal.Vector
	estimate   float64
	baseline   modal.Vector
	captures   uint64

	sensorReleased bool
	mirrorReleased bool
}

func New(p Params) (*Bench, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	volts := make([]float64, p.Actuators)
	for i := range volts {
		volts[i] = p.Bias
	}
	return &Bench{
		p:          p,
		rng:        rand.New(rand.NewSource(p.Seed)),
		volts:      volts,
		aberration: p.Aberration,
		estimate:   1.0,
	}, nil
}

// Devices returns handles to the bench's instruments.
func (b *Bench) Devices() device.Set {
	return device.Set{
		Sensor:        &Sensor{b: b},
		Actuator:      &Mirror{b: b},
		Solver:        &Solver{b: b},
		Characterizer: &Characterizer{b: b},
	}
}

// MirrorModes returns the derived modes the mirror currently contributes.
func (b *Bench) MirrorModes() modal.Derived {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mirrorModes()
}

// ResponseEstimate is the solver's current belief of Params.Response.
func (b *Bench) ResponseEstimate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.estimate
}

func (b *Bench) Voltages() modal.Voltages {
	b.mu.Lock()
	defer b.mu.Unlock()
	return modal.Voltages(b.volts).Clone()
}

// Released reports whether both sensor and mirror handles were released.
func (b *Bench) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sensorReleased && b.mirrorReleased
}

func (b *Bench) mirrorModes() modal.Derived {
	var sum modal.Derived
	var count [modal.DerivedModes]int
	for j, v := range b.volts {
		k := j % modal.DerivedModes
		sum[k] += v - b.p.Bias
		count[k]++
	}
	var out modal.Derived
	for k := range out {
		if count[k] > 0 {
			out[k] = b.p.Response * sum[k] / float64(count[k])
		}
	}
	return out
}

func (b *Bench) wavefront(order int) modal.Vector {
	mirror := b.mirrorModes()
	var w modal.Vector
	n := modal.ModeCount(order)
	for i := 0; i < n; i++ {
		w[i] = b.aberration[i]
		if i >= modal.FirstDerivedMode {
			w[i] += mirror[i-modal.FirstDerivedMode]
		}
		if b.p.Noise > 0 {
			w[i] += b.rng.NormFloat64() * b.p.Noise
		}
	}
	return w
}

func (b *Bench) clamp(v float64) float64 {
	return math.Max(0, math.Min(b.p.MaxVoltage, v))
}
