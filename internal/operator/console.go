// Package operator handles the human side of a control session: line-based
// console dialogue, the continue/abort decision and the abort sentinel.
//
// Input is read by a single goroutine so reads can be abandoned when a
// context is cancelled. Dialogs are serialised: a multi-line exchange such
// as target entry holds the console until it finishes, and a concurrent
// escalation prompt waits for it.
package operator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var (
	// ErrAborted means the operator chose to end the session.
	ErrAborted = errors.New("operator: session aborted")

	// ErrConsoleClosed means console input ended.
	ErrConsoleClosed = errors.New("operator: console input closed")
)

type Console struct {
	in  io.Reader
	out io.Writer

	startOnce sync.Once
	lines     chan string
	readErr   error // set before lines is closed

	dialogMu sync.Mutex
	outMu    sync.Mutex
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:    in,
		out:   out,
		lines: make(chan string),
	}
}

func (c *Console) start() {
	c.startOnce.Do(func() {
		go func() {
			sc := bufio.NewScanner(c.in)
			for sc.Scan() {
				c.lines <- sc.Text()
			}
			c.readErr = sc.Err()
			close(c.lines)
		}()
	})
}

// Printf writes to the console output. Writes never interleave mid-line.
func (c *Console) Printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) Println(args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, args...)
}

// Writer returns an io.Writer that shares the console's output lock.
func (c *Console) Writer() io.Writer {
	return consoleWriter{c}
}

type consoleWriter struct{ c *Console }

func (w consoleWriter) Write(p []byte) (int, error) {
	w.c.outMu.Lock()
	defer w.c.outMu.Unlock()
	return w.c.out.Write(p)
}

// ReadLine returns the next input line with surrounding space trimmed.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	c.start()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return "", fmt.Errorf("%w: %v", ErrConsoleClosed, c.readErr)
			}
			return "", ErrConsoleClosed
		}
		return strings.TrimSpace(line), nil
	}
}

// Dialog runs fn with exclusive use of the console.
func (c *Console) Dialog(ctx context.Context, fn func(*Dialog) error) error {
	c.dialogMu.Lock()
	defer c.dialogMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&Dialog{c: c, ctx: ctx})
}

// Dialog is an exclusive exchange with the operator.
type Dialog struct {
	c   *Console
	ctx context.Context
}

func (d *Dialog) Say(format string, args ...any) {
	d.c.Printf(format, args...)
}

// Ask prints prompt on its own line and reads the answer.
func (d *Dialog) Ask(prompt string) (string, error) {
	d.c.Println(prompt)
	return d.c.ReadLine(d.ctx)
}
