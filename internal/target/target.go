// Package target supplies the modal shape the loop locks onto.
package target

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/operator"
)

// Source produces successive targets. A session asks for one at start and
// one after every convergence.
type Source interface {
	NextTarget(ctx context.Context) (modal.Vector, error)
}

const (
	tokenPad   = "p"
	tokenAbort = "e"
)

// Specifier captures a target interactively, one coefficient per line in
// increasing mode order.
type Specifier struct {
	Console *operator.Console
}

func NewSpecifier(c *operator.Console) *Specifier {
	return &Specifier{Console: c}
}

// NextTarget reads up to 16 coefficients. "p" pads the remaining modes with
// zero, "e" aborts the session and unparseable input is re-prompted without
// advancing.
func (s *Specifier) NextTarget(ctx context.Context) (modal.Vector, error) {
	var v modal.Vector
	err := s.Console.Dialog(ctx, func(d *operator.Dialog) error {
		for i := 0; i < modal.Modes; {
			token, err := d.Ask(fmt.Sprintf("Input the %d-th order Zernike in um (input 'p' to zero following orders; input 'e' to terminate)", i))
			if err != nil {
				if errors.Is(err, operator.ErrConsoleClosed) {
					return fmt.Errorf("%w: %v", operator.ErrAborted, err)
				}
				return err
			}
			switch token {
			case tokenPad:
				return nil
			case tokenAbort:
				return operator.ErrAborted
			}
			x, err := parseCoefficient(token)
			if err != nil {
				d.Say("Not a valid float input\n")
				continue
			}
			v[i] = x
			i++
		}
		return nil
	})
	if err != nil {
		return modal.Vector{}, err
	}
	return v, nil
}

func parseCoefficient(token string) (float64, error) {
	x, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("non-finite coefficient %q", token)
	}
	return x, nil
}
