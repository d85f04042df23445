package operator

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/wfslock/internal/modal"
)

// Decision is the operator's answer to an escalation.
type Decision int

const (
	Continue Decision = iota
	Abort
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// ParseDecision accepts "continue" and "abort".
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "continue":
		return Continue, nil
	case "abort":
		return Abort, nil
	}
	return Continue, fmt.Errorf("operator: unknown decision %q", s)
}

// Escalation describes a loop that failed to lock.
type Escalation struct {
	Iteration int
	Counter   int
	Derived   modal.Derived
}

const escalationPrompt = "Seems the loop fails to lock; input 'e' to terminate otherwise continue"

// Prompt asks the operator at the console whether to keep going.
type Prompt struct {
	Console *Console
}

// Escalate answers Abort for "e" and Continue for anything else. A closed
// console counts as abort.
func (p Prompt) Escalate(ctx context.Context, esc Escalation) (Decision, error) {
	decision := Continue
	err := p.Console.Dialog(ctx, func(d *Dialog) error {
		d.Say("No lock after %d consecutive unstable iterations (iteration %d, worst mode %.4f um)\n",
			esc.Counter, esc.Iteration, esc.Derived.MaxAbs())
		answer, err := d.Ask(escalationPrompt)
		if err != nil {
			return err
		}
		if answer == "e" {
			decision = Abort
		}
		return nil
	})
	if errors.Is(err, ErrConsoleClosed) {
		return Abort, nil
	}
	return decision, err
}

// Fixed answers every escalation with the same decision, for unattended runs.
type Fixed Decision

func (f Fixed) Escalate(ctx context.Context, esc Escalation) (Decision, error) {
	return Decision(f), nil
}
