// Package analysis inspects the time series a stabilization loop produces.
//
// A healthy loop settles monotonically, so its per-mode residual history
// has its power at low frequencies. A loop whose gain is too high
// overshoots and flips sign every iteration, pushing power toward the
// Nyquist bin at 0.5 cycles per iteration:
//
//	frac := analysis.HighBandFraction(history)
//	if frac > 0.8 {
//	    // loop is ringing
//	}
package analysis
