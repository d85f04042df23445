// Package session owns the device handles of one stabilization run and
// orchestrates it.
//
// A [Session] optionally characterizes the mirror, obtains the first target,
// then runs two goroutines under one errgroup: the controller loop and the
// re-arm lane, which waits for a convergence event of the current target
// generation, asks for the next target and hands it over. Run returns when
// the operator aborts, a device call fails or the parent context is done,
// and releases every handle exactly once on the way out.
package session
