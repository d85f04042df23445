package operator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the console's writer and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReadLine(t *testing.T) {
	c := NewConsole(strings.NewReader("  hello \nworld\n"), io.Discard)
	ctx := context.Background()

	for _, want := range []string{"hello", "world"} {
		got, err := c.ReadLine(ctx)
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if got != want {
			t.Errorf("ReadLine = %q, want %q", got, want)
		}
	}
	if _, err := c.ReadLine(ctx); !errors.Is(err, ErrConsoleClosed) {
		t.Errorf("expected ErrConsoleClosed at EOF, got %v", err)
	}
}

func TestReadLine_Cancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c := NewConsole(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.ReadLine(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestPromptEscalate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Decision
	}{
		{"abort", "e\n", Abort},
		{"continue on empty line", "\n", Continue},
		{"continue on anything", "go on\n", Continue},
		{"abort on closed input", "", Abort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &syncBuffer{}
			p := Prompt{Console: NewConsole(strings.NewReader(tt.input), out)}
			got, err := p.Escalate(context.Background(), Escalation{Iteration: 12, Counter: 11})
			if err != nil {
				t.Fatalf("Escalate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Escalate = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), escalationPrompt) {
				t.Errorf("prompt not printed, output %q", out.String())
			}
		})
	}
}

func TestDialogsDoNotInterleave(t *testing.T) {
	r, w := io.Pipe()
	out := &syncBuffer{}
	c := NewConsole(r, out)
	ctx := context.Background()

	first := make(chan string, 2)
	entered := make(chan struct{})
	go func() {
		_ = c.Dialog(ctx, func(d *Dialog) error {
			close(entered)
			for i := 0; i < 2; i++ {
				line, err := d.Ask("first?")
				if err != nil {
					return err
				}
				first <- line
			}
			return nil
		})
	}()
	<-entered

	second := make(chan Decision, 1)
	go func() {
		dec, _ := Prompt{Console: c}.Escalate(ctx, Escalation{})
		second <- dec
	}()

	if _, err := io.WriteString(w, "a\nb\ne\n"); err != nil {
		t.Fatal(err)
	}

	if got := <-first; got != "a" {
		t.Errorf("first dialog got %q", got)
	}
	if got := <-first; got != "b" {
		t.Errorf("first dialog got %q", got)
	}
	if got := <-second; got != Abort {
		t.Errorf("escalation got %v, want abort", got)
	}
	w.Close()
}

func TestFixed(t *testing.T) {
	d, err := Fixed(Abort).Escalate(context.Background(), Escalation{})
	if err != nil || d != Abort {
		t.Errorf("Fixed(Abort) = %v, %v", d, err)
	}
}

func TestParseDecision(t *testing.T) {
	if d, err := ParseDecision("abort"); err != nil || d != Abort {
		t.Errorf("ParseDecision(abort) = %v, %v", d, err)
	}
	if _, err := ParseDecision("maybe"); err == nil {
		t.Error("expected error for unknown decision")
	}
}
