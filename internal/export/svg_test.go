package export

import (
	"bytes"
	"strings"
	"testing"
)

func TestSeriesSVG(t *testing.T) {
	svg := SeriesSVG([]float64{0.3, 0.15, 0.075, 0.005}, 0.01, 200, 100)
	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatalf("not an svg document:\n%s", svg)
	}
	if got := strings.Count(svg, " L"); got != 3 {
		t.Errorf("expected 3 line segments, got %d", got)
	}
	if !strings.Contains(svg, "stroke-dasharray") {
		t.Error("tolerance line missing")
	}
	if !strings.Contains(svg, `d="M0.0,`) {
		t.Error("path should start at x=0")
	}
}

func TestSeriesSVG_ToleranceOutOfRange(t *testing.T) {
	svg := SeriesSVG([]float64{0.3, 0.2}, 5, 100, 50)
	if strings.Contains(svg, "stroke-dasharray") {
		t.Error("tolerance above the plotted range should not be drawn")
	}
}

func TestWriteSeriesSVG_TooShort(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSeriesSVG(&buf, []float64{1}, 0.01, 100, 50); err == nil {
		t.Error("expected error for a single point")
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written on error")
	}
}
