package viz

import (
	"github.com/guptarohit/asciigraph"
)

const (
	plotWidth  = 60
	plotHeight = 10
)

// Plot charts a series with asciigraph, resampled to width columns.
// Fewer than two points yield an empty string.
func Plot(series []float64, caption string, width, height int) string {
	if len(series) < 2 {
		return ""
	}
	if width <= 0 {
		width = plotWidth
	}
	if height <= 0 {
		height = plotHeight
	}
	return asciigraph.Plot(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(4),
		asciigraph.Caption(caption))
}
