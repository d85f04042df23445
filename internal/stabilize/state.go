package stabilize

import (
	"errors"
	"fmt"

	"github.com/san-kum/wfslock/internal/modal"
)

// Phase is the controller's position in the iteration cycle.
type Phase int32

const (
	Idle Phase = iota
	Measuring
	Correcting
	Evaluating
	Stable
	Unstable
	Escalating
	Terminated
)

var phaseNames = [...]string{
	Idle:       "idle",
	Measuring:  "measuring",
	Correcting: "correcting",
	Evaluating: "evaluating",
	Stable:     "stable",
	Unstable:   "unstable",
	Escalating: "escalating",
	Terminated: "terminated",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// ConvergenceState tracks consecutive unstable iterations.
type ConvergenceState struct {
	// Counter counts consecutive unstable iterations.
	Counter int
	// Recorder is true when the previous iteration was stable.
	Recorder bool
	// Stable is true when the current iteration is stable.
	Stable bool
}

// Observe folds one evaluation into the state. An unstable iteration right
// after a stable one restarts the count at zero.
func (s *ConvergenceState) Observe(stable bool) {
	s.Stable = stable
	if stable {
		s.Counter = 0
		s.Recorder = true
		return
	}
	if s.Recorder {
		s.Counter = 0
	} else {
		s.Counter++
	}
	s.Recorder = false
}

type Config struct {
	// Tolerance is the half-width of the closed stability band in um.
	Tolerance float64
	// EscalationLimit is the number of consecutive unstable iterations
	// tolerated; one more escalates.
	EscalationLimit int
	FitOrder        int
	Mask            modal.Mask
	// ResetOnContinue clears the counter when the operator continues after
	// an escalation. Without it the next unstable iteration escalates again.
	ResetOnContinue bool
}

func DefaultConfig() Config {
	return Config{
		Tolerance:       0.01,
		EscalationLimit: 10,
		FitOrder:        modal.DefaultFitOrder,
		Mask:            modal.AllModes,
		ResetOnContinue: true,
	}
}

var ErrInvalidConfig = errors.New("stabilize: invalid config")

func (c Config) Validate() error {
	if !(c.Tolerance > 0) {
		return fmt.Errorf("%w: tolerance must be positive, got %v", ErrInvalidConfig, c.Tolerance)
	}
	if c.EscalationLimit < 0 {
		return fmt.Errorf("%w: escalation limit must be non-negative, got %d", ErrInvalidConfig, c.EscalationLimit)
	}
	if c.FitOrder < 1 {
		return fmt.Errorf("%w: fit order must be at least 1, got %d", ErrInvalidConfig, c.FitOrder)
	}
	if c.Mask == 0 {
		return fmt.Errorf("%w: empty mode mask", ErrInvalidConfig)
	}
	return nil
}
