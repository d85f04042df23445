// Package export renders recorded runs for use outside the terminal.
package export

import (
	"fmt"
	"io"
	"strings"
)

const (
	background = "#0a0a0a"
	stroke     = "#00ff88"
	bandColor  = "#ffaa00"
)

// SeriesSVG draws series as a polyline over iterations, with a dashed line
// at tolerance when it falls inside the plotted range. Fewer than two points
// yield an empty string.
func SeriesSVG(series []float64, tolerance float64, width, height int) string {
	if len(series) < 2 || width <= 0 || height <= 0 {
		return ""
	}

	minY, maxY := 0.0, series[0]
	for _, v := range series {
		if v < minY {
			minY = v
		}
		if v > maxY {
			maxY = v
		}
	}
	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	w, h := float64(width), float64(height)
	stepX := w / float64(len(series)-1)
	toY := func(v float64) float64 { return h - (v-minY)/rangeY*h }

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background))

	if tolerance > minY && tolerance < maxY {
		y := toY(tolerance)
		sb.WriteString(fmt.Sprintf(`<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="%s" stroke-dasharray="4 4"/>
`, y, width, y, bandColor))
	}

	sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, stroke))
	for i, v := range series {
		x := float64(i) * stepX
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, toY(v)))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, toY(v)))
		}
	}
	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// WriteSeriesSVG writes SeriesSVG to w.
func WriteSeriesSVG(w io.Writer, series []float64, tolerance float64, width, height int) error {
	svg := SeriesSVG(series, tolerance, width, height)
	if svg == "" {
		return fmt.Errorf("export: need at least two points, got %d", len(series))
	}
	_, err := io.WriteString(w, svg)
	return err
}
