package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// HighBand is the lower edge of the high band in cycles per iteration.
const HighBand = 0.25

// PowerSpectrum returns the one-sided power spectrum of a mean-removed,
// Hann-windowed series. Bin k is at k/len(series) cycles per iteration.
func PowerSpectrum(series []float64) []float64 {
	n := len(series)
	if n < 2 {
		return nil
	}

	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(n)

	windowed := make([]float64, n)
	for i, v := range series {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		windowed[i] = (v - mean) * w
	}

	spectrum := fft.FFTReal(windowed)
	ps := make([]float64, n/2+1)
	for i := range ps {
		mag := cmplx.Abs(spectrum[i])
		ps[i] = mag * mag
	}
	return ps
}

// HighBandFraction is the share of non-DC power at or above HighBand.
// A flat series yields 0.
func HighBandFraction(series []float64) float64 {
	ps := PowerSpectrum(series)
	if len(ps) < 2 {
		return 0
	}
	n := float64(len(series))
	total, high := 0.0, 0.0
	for k := 1; k < len(ps); k++ {
		total += ps[k]
		if float64(k)/n >= HighBand {
			high += ps[k]
		}
	}
	if total < 1e-18 {
		return 0
	}
	return high / total
}
