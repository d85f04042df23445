package stabilize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/san-kum/wfslock/internal/device"
	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/operator"
)

var (
	ErrNoTarget    = errors.New("stabilize: no target set")
	ErrNoEscalator = errors.New("stabilize: no escalator")
)

// Escalator decides whether a loop that failed to lock keeps running.
type Escalator interface {
	Escalate(ctx context.Context, esc operator.Escalation) (operator.Decision, error)
}

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithObserver registers o to receive every iteration report. Observers run
// on the loop goroutine and must not block.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

type Controller struct {
	sensor    device.Sensor
	actuator  device.Actuator
	solver    device.Solver
	escalator Escalator
	cfg       Config
	log       zerolog.Logger
	observers []Observer

	setMu    sync.Mutex
	pending  chan Target
	achieved chan Achievement
	gen      atomic.Uint64
	phase    atomic.Int32

	iterations   atomic.Int64
	convergences atomic.Int64
	escalations  atomic.Int64

	snapMu sync.Mutex
	snap   Snapshot

	// loop-owned
	target    Target
	state     ConvergenceState
	iteration int
}

func New(devs device.Set, esc Escalator, cfg Config, opts ...Option) (*Controller, error) {
	if err := devs.Validate(); err != nil {
		return nil, err
	}
	if esc == nil {
		return nil, ErrNoEscalator
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		sensor:    devs.Sensor,
		actuator:  devs.Actuator,
		solver:    devs.Solver,
		escalator: esc,
		cfg:       cfg,
		log:       zerolog.Nop(),
		pending:   make(chan Target, 1),
		achieved:  make(chan Achievement, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) Config() Config { return c.cfg }

// SetTarget hands v to the loop and returns its generation. An earlier
// target the loop has not adopted yet is replaced.
func (c *Controller) SetTarget(v modal.Vector) uint64 {
	c.setMu.Lock()
	defer c.setMu.Unlock()

	t := Target{Vector: v, Generation: c.gen.Add(1)}
	select {
	case <-c.pending:
	default:
	}
	// only SetTarget sends, under setMu, so the slot is free here
	c.pending <- t
	return t.Generation
}

// Generation is the generation of the most recently issued target.
func (c *Controller) Generation() uint64 { return c.gen.Load() }

// Achieved delivers convergence events. At most one is buffered; a newer
// event replaces an unconsumed one.
func (c *Controller) Achieved() <-chan Achievement { return c.achieved }

// ClearAchieved drops a buffered convergence event.
func (c *Controller) ClearAchieved() {
	select {
	case <-c.achieved:
	default:
	}
}

func (c *Controller) Phase() Phase { return Phase(c.phase.Load()) }

func (c *Controller) Snapshot() Snapshot {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	s := c.snap
	s.Phase = c.Phase()
	return s
}

func (c *Controller) Stats() Stats {
	return Stats{
		Iterations:   int(c.iterations.Load()),
		Convergences: int(c.convergences.Load()),
		Escalations:  int(c.escalations.Load()),
	}
}

// Run waits for the first target and iterates until ctx is done, a device
// call fails or the operator aborts an escalation. Cancellation is checked
// once per iteration; device calls in flight are not interrupted.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setPhase(Terminated)
	c.setPhase(Idle)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case t := <-c.pending:
		c.adopt(t)
	}

	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Int("iteration", c.iteration).Msg("loop cancelled")
			return ctx.Err()
		default:
		}

		rep, err := c.Step()
		if err != nil {
			c.log.Error().Err(err).Int("iteration", c.iteration).Msg("loop stopped on device failure")
			return err
		}
		if rep.Escalate {
			if err := c.escalate(ctx, rep); err != nil {
				return err
			}
		}
	}
}

// Step runs one iteration against the current target, adopting a pending
// one first. It must not be called while Run is running.
func (c *Controller) Step() (Report, error) {
	select {
	case t := <-c.pending:
		c.adopt(t)
	default:
	}
	if c.target.Generation == 0 {
		return Report{}, ErrNoTarget
	}

	start := time.Now()
	c.iteration++
	rep := Report{
		Iteration:  c.iteration,
		Generation: c.target.Generation,
		Target:     c.target.Vector,
	}

	c.setPhase(Measuring)
	frame, err := c.sensor.CaptureAutoExposed()
	if err != nil {
		return rep, fmt.Errorf("acquire: %w", device.Wrap("sensor", "capture", err))
	}
	measured, err := c.sensor.FitModal(frame, c.cfg.FitOrder)
	if err != nil {
		return rep, fmt.Errorf("acquire: %w", device.Wrap("sensor", "fit", err))
	}
	rep.Measured = measured

	c.setPhase(Correcting)
	rep.Residual = modal.Residual(measured, c.target.Vector)
	derived, volts, err := c.solver.Solve(c.cfg.Mask, rep.Residual)
	if err != nil {
		return rep, fmt.Errorf("correct: %w", device.Wrap("solver", "solve", err))
	}
	if err := volts.Validate(); err != nil {
		return rep, fmt.Errorf("correct: %w", &device.SolverError{Err: err})
	}
	if err := c.actuator.ApplyVoltages(volts); err != nil {
		return rep, fmt.Errorf("correct: %w", device.Wrap("mirror", "apply", err))
	}
	rep.Derived = derived
	rep.Voltages = volts

	c.setPhase(Evaluating)
	stable := derived.Within(c.cfg.Tolerance)
	rep.Converged = stable && !c.state.Recorder
	c.state.Observe(stable)
	rep.State = c.state
	rep.Escalate = c.state.Counter > c.cfg.EscalationLimit
	rep.Duration = time.Since(start)
	c.iterations.Add(1)

	if stable {
		c.setPhase(Stable)
	} else {
		c.setPhase(Unstable)
	}
	if rep.Converged {
		c.publish(Achievement{Generation: rep.Generation, Iteration: rep.Iteration, Derived: derived})
	}
	c.record()

	c.log.Debug().
		Int("iteration", rep.Iteration).
		Uint64("generation", rep.Generation).
		Bool("stable", stable).
		Int("counter", rep.State.Counter).
		Float64("max_abs", derived.MaxAbs()).
		Dur("took", rep.Duration).
		Msg("iteration")

	for _, o := range c.observers {
		o.OnIteration(rep)
	}
	return rep, nil
}

func (c *Controller) adopt(t Target) {
	c.target = t
	c.state = ConvergenceState{}
	c.setPhase(Measuring)
	c.record()
	c.log.Info().Uint64("generation", t.Generation).Stringer("target", t.Vector).Msg("target adopted")

	snap := c.Snapshot()
	for _, o := range c.observers {
		if to, ok := o.(TargetObserver); ok {
			to.OnTarget(snap)
		}
	}
}

func (c *Controller) escalate(ctx context.Context, rep Report) error {
	c.setPhase(Escalating)
	c.escalations.Add(1)
	c.log.Warn().
		Int("iteration", rep.Iteration).
		Int("counter", rep.State.Counter).
		Msg("loop failed to lock")

	decision, err := c.escalator.Escalate(ctx, operator.Escalation{
		Iteration: rep.Iteration,
		Counter:   rep.State.Counter,
		Derived:   rep.Derived,
	})
	if err != nil {
		return err
	}
	if decision == operator.Abort {
		c.log.Warn().Int("iteration", rep.Iteration).Msg("operator aborted")
		return operator.ErrAborted
	}
	if c.cfg.ResetOnContinue {
		c.state.Counter = 0
		c.record()
	}
	c.log.Info().Int("iteration", rep.Iteration).Msg("operator continued")
	return nil
}

// publish sends a without blocking, displacing an unconsumed older event.
func (c *Controller) publish(a Achievement) {
	for {
		select {
		case c.achieved <- a:
			c.convergences.Add(1)
			return
		default:
		}
		select {
		case <-c.achieved:
		default:
		}
	}
}

func (c *Controller) record() {
	c.snapMu.Lock()
	c.snap = Snapshot{
		Iteration:  c.iteration,
		Generation: c.target.Generation,
		Target:     c.target.Vector,
		State:      c.state,
	}
	c.snapMu.Unlock()
}

func (c *Controller) setPhase(p Phase) { c.phase.Store(int32(p)) }
