package stabilize

import (
	"fmt"
	"io"
	"time"

	"github.com/san-kum/wfslock/internal/modal"
)

// Target is a target vector together with the generation it was issued as.
type Target struct {
	Vector     modal.Vector
	Generation uint64
}

// Report describes one completed iteration.
type Report struct {
	Iteration  int
	Generation uint64
	Target     modal.Vector
	Measured   modal.Vector
	Residual   modal.Vector
	Derived    modal.Derived
	Voltages   modal.Voltages
	State      ConvergenceState
	// Converged marks the first stable iteration of a convergence event.
	Converged bool
	// Escalate is set when the unstable run exceeded the limit.
	Escalate bool
	Duration time.Duration
}

// Achievement is published once per convergence event.
type Achievement struct {
	Generation uint64
	Iteration  int
	Derived    modal.Derived
}

type Observer interface {
	OnIteration(r Report)
}

// TargetObserver is implemented by observers that also want to know when
// the loop adopts a new target.
type TargetObserver interface {
	OnTarget(s Snapshot)
}

type ObserverFunc func(r Report)

func (f ObserverFunc) OnIteration(r Report) { f(r) }

// PrintDerived writes the derived modes of every iteration to w.
func PrintDerived(w io.Writer) Observer {
	return ObserverFunc(func(r Report) {
		fmt.Fprintf(w, "Resulted Zernike starting from Z%d: %s\n", modal.FirstDerivedMode, r.Derived)
	})
}

// Stats counts loop events since the controller was created.
type Stats struct {
	Iterations   int
	Convergences int
	Escalations  int
}

// Snapshot is the loop state as of the last iteration boundary.
type Snapshot struct {
	Phase      Phase
	Iteration  int
	Generation uint64
	Target     modal.Vector
	State      ConvergenceState
}
