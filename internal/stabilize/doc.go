// Package stabilize implements the closed-loop wavefront stabilization
// controller.
//
// Each iteration of [Controller] acquires a modal vector from the sensor,
// subtracts the current target, asks the flattening solver for a mirror
// command, applies it and evaluates the solver's derived modes against the
// tolerance band:
//
//	Measuring -> Correcting -> Evaluating -> Stable | Unstable
//	Unstable (counter > limit) -> Escalating -> Measuring | Terminated
//
// A convergence event (first stable iteration after an unstable one, or
// after a new target) is published on [Controller.Achieved]. Targets are
// handed over with [Controller.SetTarget] and adopted at the next iteration
// boundary. Device failures end [Controller.Run] with the typed error from
// package device; the loop never retries.
//
// # Thread Safety
//
// Run owns the loop state and must be the only caller of Step while it runs.
// SetTarget, Achieved, ClearAchieved, Generation, Phase, Snapshot and Stats
// are safe from any goroutine.
package stabilize
