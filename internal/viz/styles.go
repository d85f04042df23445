package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/wfslock/internal/metrics"
	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/stabilize"
)

// Styles are the lipgloss styles derived from a theme.
type Styles struct {
	Header lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Graph  lipgloss.Style
	Help   lipgloss.Style
	Panel  lipgloss.Style
	Good   lipgloss.Style
	Warn   lipgloss.Style
	Bad    lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Header: lipgloss.NewStyle().Foreground(t.Primary).Bold(true).MarginBottom(1),
		Label:  lipgloss.NewStyle().Foreground(t.Muted).Width(14),
		Value:  lipgloss.NewStyle().Foreground(t.Text),
		Graph:  lipgloss.NewStyle().Foreground(t.Primary).Padding(1, 0),
		Help:   lipgloss.NewStyle().Foreground(t.Muted).MarginTop(1),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).
			Padding(1, 2),
		Good: lipgloss.NewStyle().Bold(true).Foreground(t.Success),
		Warn: lipgloss.NewStyle().Bold(true).Foreground(t.Warning),
		Bad:  lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

var defaultStyles = NewStyles(ThemeLab)

// Phase renders p in the color of its outcome.
func (s Styles) Phase(p stabilize.Phase) string {
	label := strings.ToUpper(p.String())
	switch p {
	case stabilize.Stable:
		return s.Good.Render(label)
	case stabilize.Unstable, stabilize.Escalating:
		return s.Warn.Render(label)
	case stabilize.Terminated:
		return s.Bad.Render(label)
	}
	return s.Value.Render(label)
}

// ModeBars draws one bar per derived mode, full width at twice the
// tolerance. Modes outside the band are drawn in the warning color.
func (s Styles) ModeBars(d modal.Derived, tol float64, width int) string {
	var b strings.Builder
	for k, x := range d {
		ratio := math.Abs(x) / (2 * tol)
		if ratio > 1 || math.IsNaN(ratio) {
			ratio = 1
		}
		filled := int(ratio * float64(width))
		bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
		style := s.Good
		if !(math.Abs(x) <= tol) {
			style = s.Warn
		}
		fmt.Fprintf(&b, "Z%-3d %s %+.4f\n", k+modal.FirstDerivedMode, style.Render(bar), x)
	}
	return b.String()
}

// Summary renders end-of-run metrics as a panel.
func Summary(title string, results []metrics.Result) string {
	s := defaultStyles
	var b strings.Builder
	b.WriteString(s.Header.Render(title) + "\n")
	for _, r := range results {
		b.WriteString(s.Label.Render(r.Name) + s.Value.Render(fmt.Sprintf("%.4f", r.Value)) + "\n")
	}
	return s.Panel.Render(strings.TrimRight(b.String(), "\n"))
}

// Error renders a fatal diagnostic.
func Error(err error) string {
	return defaultStyles.Bad.Render("error: ") + err.Error()
}

// Notice renders a highlighted one-line message.
func Notice(msg string) string {
	return defaultStyles.Warn.Render(msg)
}
