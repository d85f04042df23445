// Package device declares the instrument collaborators driven by the
// stabilization loop and the error kinds they fail with.
//
// The wavefront sensor, the deformable mirror and its flattening solver are
// opaque vendor drivers. The loop only sees them through [Sensor],
// [Actuator], [Solver] and the optional [Characterizer]. Any failure of
// these calls is fatal to a control session; there is no retry.
//
// Errors returned by implementations should be a [*DeviceError] or a
// [*SolverError]. Untyped errors are wrapped with [Wrap] at the call site.
package device
