package viz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/stabilize"
)

// Feed hands iteration reports from the loop goroutine to the monitor. When
// the buffer is full reports are dropped rather than stalling the loop.
type Feed struct {
	ch chan stabilize.Report
}

func NewFeed(size int) *Feed {
	return &Feed{ch: make(chan stabilize.Report, size)}
}

func (f *Feed) OnIteration(r stabilize.Report) {
	select {
	case f.ch <- r:
	default:
	}
}

// Source is the live state the monitor polls.
type Source interface {
	Snapshot() stabilize.Snapshot
	Stats() stabilize.Stats
}

type TickMsg time.Time

// DoneMsg reports that the session behind the monitor ended.
type DoneMsg struct{ Err error }

// Monitor is a Bubble Tea model following a running controller.
type Monitor struct {
	title     string
	feed      *Feed
	src       Source
	cancel    context.CancelFunc
	interval  time.Duration
	tolerance float64
	history   int

	theme    Theme
	styles   Styles
	last     stabilize.Report
	seen     bool
	rms      []float64
	done     bool
	err      error
	showHelp bool
}

// NewMonitor builds a monitor. cancel stops the session when the user quits.
func NewMonitor(title string, feed *Feed, src Source, cancel context.CancelFunc, tolerance float64, interval time.Duration, history int) Monitor {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return Monitor{
		title:     title,
		feed:      feed,
		src:       src,
		cancel:    cancel,
		interval:  interval,
		tolerance: tolerance,
		history:   history,
		theme:     ThemeLab,
		styles:    NewStyles(ThemeLab),
	}
}

func (m Monitor) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Monitor) Init() tea.Cmd {
	return m.tick()
}

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "t":
			m.theme = nextTheme(m.theme)
			m.styles = NewStyles(m.theme)
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		m.drain()
		if m.done {
			return m, nil
		}
		return m, m.tick()
	case DoneMsg:
		m.drain()
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// drain consumes every buffered report.
func (m *Monitor) drain() {
	for {
		select {
		case r := <-m.feed.ch:
			m.last = r
			m.seen = true
			m.rms = append(m.rms, r.Derived.RMS())
			if m.history > 0 && len(m.rms) > m.history {
				m.rms = m.rms[len(m.rms)-m.history:]
			}
		default:
			return
		}
	}
}

// Err is the session error delivered with DoneMsg.
func (m Monitor) Err() error { return m.err }

func (m Monitor) View() string {
	s := m.styles
	snap := m.src.Snapshot()
	stats := m.src.Stats()

	var left strings.Builder
	left.WriteString(s.Header.Render(strings.ToUpper(m.title)) + "\n")
	left.WriteString(s.Label.Render("Phase") + s.Phase(snap.Phase) + "\n")
	left.WriteString(s.Label.Render("Generation") + s.Value.Render(fmt.Sprintf("%d", snap.Generation)) + "\n")
	left.WriteString(s.Label.Render("Iteration") + s.Value.Render(fmt.Sprintf("%d", stats.Iterations)) + "\n")
	left.WriteString(s.Label.Render("Counter") + s.Value.Render(fmt.Sprintf("%d", snap.State.Counter)) + "\n")
	left.WriteString(s.Label.Render("Converged") + s.Value.Render(fmt.Sprintf("%d", stats.Convergences)) + "\n")
	left.WriteString(s.Label.Render("Escalations") + s.Value.Render(fmt.Sprintf("%d", stats.Escalations)) + "\n")
	if m.seen {
		left.WriteString(s.Label.Render("Took") + s.Value.Render(m.last.Duration.String()) + "\n")
	}
	if m.done {
		left.WriteString("\n" + m.outcome() + "\n")
	}

	var right strings.Builder
	if m.seen {
		right.WriteString(s.ModeBars(m.last.Derived, m.tolerance, 20))
	} else {
		right.WriteString(s.Label.Render("waiting for the first iteration") + "\n")
	}
	if chart := Plot(m.rms, "derived RMS (um)", 40, 6); chart != "" {
		right.WriteString(s.Graph.Render(chart) + "\n")
	}

	view := lipgloss.JoinHorizontal(lipgloss.Top,
		s.Panel.Render(left.String()),
		s.Panel.Render(right.String()))
	view += "\n" + s.Help.Render("q:Quit  t:Theme  ?:Help")
	if m.showHelp {
		view = s.Panel.Render(strings.Join([]string{
			"q  stop the loop, release the bench and quit",
			"t  cycle themes (" + m.theme.Name + ")",
			"?  toggle this help",
		}, "\n")) + "\n" + view
	}
	return view
}

func (m Monitor) outcome() string {
	switch {
	case m.err == nil:
		return m.styles.Good.Render("session ended")
	case errors.Is(m.err, operator.ErrAborted):
		return m.styles.Warn.Render("session aborted")
	}
	return m.styles.Bad.Render(m.err.Error())
}
