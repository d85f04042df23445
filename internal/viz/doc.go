// Package viz renders stabilization runs in the terminal.
//
//   - [Monitor]: Bubble Tea model following a running controller
//   - [Plot]: asciigraph chart of the derived-mode RMS
//   - [Summary]: lipgloss table of end-of-run metrics
//
// # Key Bindings
//
//	q     - Stop the session and quit
//	t     - Cycle color themes
//	?     - Toggle help
package viz
