package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/wfslock/internal/device"
	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/stabilize"
	"github.com/san-kum/wfslock/internal/target"
)

const achievedMessage = "The Zernike amplitudes are achieved. Enter new Zernikes."

var ErrNoTargetSource = errors.New("session: no target source")

type Config struct {
	Controller stabilize.Config
	// Characterize measures mirror system parameters before the loop closes,
	// when the device set has a characterizer.
	Characterize      bool
	CharacterizeOrder int
}

func DefaultConfig() Config {
	return Config{
		Controller:        stabilize.DefaultConfig(),
		Characterize:      true,
		CharacterizeOrder: modal.DefaultFitOrder,
	}
}

func (c Config) Validate() error {
	if err := c.Controller.Validate(); err != nil {
		return err
	}
	if c.Characterize && c.CharacterizeOrder < 1 {
		return fmt.Errorf("%w: characterize order must be at least 1, got %d", stabilize.ErrInvalidConfig, c.CharacterizeOrder)
	}
	return nil
}

type options struct {
	log       zerolog.Logger
	console   *operator.Console
	observers []stabilize.Observer
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithConsole prints session announcements to c.
func WithConsole(c *operator.Console) Option {
	return func(o *options) { o.console = c }
}

// WithObserver forwards iteration reports from the controller to obs.
func WithObserver(obs stabilize.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// Stats summarises a session.
type Stats struct {
	stabilize.Stats
	Targets int
}

type Session struct {
	cfg     Config
	devs    device.Set
	targets target.Source
	ctrl    *stabilize.Controller
	log     zerolog.Logger
	console *operator.Console

	issued atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// New builds a session over devs. The session owns devs from here on: Run
// releases them, a session that is never run must be closed, and a failed New
// releases them before returning.
func New(cfg Config, devs device.Set, targets target.Source, esc stabilize.Escalator, opts ...Option) (s *Session, err error) {
	defer func() {
		if err != nil {
			if rerr := releaseDevices(devs); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
	}()
	if targets == nil {
		return nil, ErrNoTargetSource
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctrlOpts := []stabilize.Option{
		stabilize.WithLogger(o.log.With().Str("component", "controller").Logger()),
	}
	for _, obs := range o.observers {
		ctrlOpts = append(ctrlOpts, stabilize.WithObserver(obs))
	}
	ctrl, err := stabilize.New(devs, esc, cfg.Controller, ctrlOpts...)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:     cfg,
		devs:    devs,
		targets: targets,
		ctrl:    ctrl,
		log:     o.log.With().Str("component", "session").Logger(),
		console: o.console,
	}, nil
}

func (s *Session) Controller() *stabilize.Controller { return s.ctrl }

func (s *Session) Stats() Stats {
	return Stats{Stats: s.ctrl.Stats(), Targets: int(s.issued.Load())}
}

// Run drives the session to completion. It returns nil when ctx is done, an
// error wrapping operator.ErrAborted when the operator aborts, and the typed
// device error on a fatal failure.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if s.cfg.Characterize && s.devs.Characterizer != nil {
		if err := s.characterize(ctx); err != nil {
			return s.exitErr(ctx, err)
		}
	}

	first, err := s.targets.NextTarget(ctx)
	if err != nil {
		return s.exitErr(ctx, err)
	}
	s.handoff(first)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.ctrl.Run(gctx)
	})
	g.Go(func() error {
		return s.rearm(gctx)
	})
	return s.exitErr(ctx, g.Wait())
}

// rearm waits for convergence of the current target and swaps in the next.
func (s *Session) rearm(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-s.ctrl.Achieved():
			if err := s.onAchieved(ctx, a); err != nil {
				return err
			}
		}
	}
}

// onAchieved requests the next target for a convergence of the current
// generation. Convergences of superseded generations are dropped.
func (s *Session) onAchieved(ctx context.Context, a stabilize.Achievement) error {
	if a.Generation != s.ctrl.Generation() {
		s.log.Debug().Uint64("generation", a.Generation).Msg("stale convergence dropped")
		return nil
	}
	s.log.Info().
		Uint64("generation", a.Generation).
		Int("iteration", a.Iteration).
		Float64("max_abs", a.Derived.MaxAbs()).
		Msg("target achieved")
	if s.console != nil {
		s.console.Println(achievedMessage)
	}

	next, err := s.targets.NextTarget(ctx)
	if err != nil {
		return err
	}
	// clear before the handoff so the new generation's event survives
	s.ctrl.ClearAchieved()
	s.handoff(next)
	return nil
}

func (s *Session) handoff(v modal.Vector) {
	gen := s.ctrl.SetTarget(v)
	s.issued.Add(1)
	s.log.Info().Uint64("generation", gen).Stringer("target", v).Msg("target set")
}

// exitErr maps the parent's own cancellation to a clean shutdown.
func (s *Session) exitErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		s.log.Info().Msg("session cancelled")
		return nil
	}
	switch {
	case errors.Is(err, operator.ErrAborted):
		s.log.Warn().Msg("session aborted by operator")
	default:
		s.log.Error().Err(err).Msg("session failed")
	}
	return err
}

// Close releases the mirror, then the sensor. Only the first call releases.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = releaseDevices(s.devs)
		s.log.Debug().Err(s.closeErr).Msg("devices released")
	})
	return s.closeErr
}

// releaseDevices releases the actuator then the sensor, skipping missing ones.
func releaseDevices(devs device.Set) error {
	var errs []error
	if devs.Actuator != nil {
		if err := devs.Actuator.Release(); err != nil {
			errs = append(errs, device.Wrap("mirror", "release", err))
		}
	}
	if devs.Sensor != nil {
		if err := devs.Sensor.Release(); err != nil {
			errs = append(errs, device.Wrap("sensor", "release", err))
		}
	}
	return errors.Join(errs...)
}
