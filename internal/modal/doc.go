// Package modal provides the vector types exchanged around the
// stabilization loop.
//
// Wavefronts are described by Zernike modal coefficients. The package keeps
// each semantic group in its own correctly sized type so that index offsets
// between them are explicit:
//
//   - [Vector]: 16 coefficients as fitted by the sensor (modes 0..15)
//   - [Derived]: the 12 coefficients returned by the flattening solver (modes 4..15)
//   - [Voltages]: actuator drive values, at most [MaxActuators]
//   - [Mask]: mode selection handed to the solver
//
// # Example
//
//	residual := modal.Residual(measured, target)
//	derived, volts, err := solver.Solve(modal.AllModes, residual)
//	if derived.Within(0.01) { ... }
package modal
