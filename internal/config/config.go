// Package config loads wfslock settings.
//
// Settings come from DefaultConfig, then the preset (given by the caller or
// named in the file), then the file itself (YAML or TOML, chosen by
// extension), then WFSLOCK_* environment variables. The CLI applies its flags last and calls Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/wfslock/internal/bench"
	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/session"
	"github.com/san-kum/wfslock/internal/stabilize"
)

const (
	EnvPrefix = "WFSLOCK_"

	DefaultPreset    = "clean"
	DefaultLogLevel  = "info"
	DefaultInterval  = 20 * time.Millisecond
	DefaultHistory   = 200
	DefaultEscalator = "continue"
)

var (
	ErrInvalid       = errors.New("config: invalid")
	ErrUnknownFormat = errors.New("config: unknown file format")
	ErrUnknownPreset = errors.New("config: unknown preset")
)

type Config struct {
	Preset     string           `yaml:"preset" toml:"preset"`
	LogLevel   string           `yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	RecordDir  string           `yaml:"record_dir" toml:"record_dir" env:"RECORD_DIR"`
	Controller ControllerConfig `yaml:"controller" toml:"controller" envPrefix:"CONTROLLER_"`
	Session    SessionConfig    `yaml:"session" toml:"session" envPrefix:"SESSION_"`
	Bench      BenchConfig      `yaml:"bench" toml:"bench" envPrefix:"BENCH_"`
	Watch      WatchConfig      `yaml:"watch" toml:"watch" envPrefix:"WATCH_"`
}

type ControllerConfig struct {
	Tolerance       float64 `yaml:"tolerance" toml:"tolerance" env:"TOLERANCE"`
	EscalationLimit int     `yaml:"escalation_limit" toml:"escalation_limit" env:"ESCALATION_LIMIT"`
	FitOrder        int     `yaml:"fit_order" toml:"fit_order" env:"FIT_ORDER"`
	ModeMask        uint32  `yaml:"mode_mask" toml:"mode_mask" env:"MODE_MASK"`
	ResetOnContinue bool    `yaml:"reset_on_continue" toml:"reset_on_continue" env:"RESET_ON_CONTINUE"`
}

type SessionConfig struct {
	Characterize      bool `yaml:"characterize" toml:"characterize" env:"CHARACTERIZE"`
	CharacterizeOrder int  `yaml:"characterize_order" toml:"characterize_order" env:"CHARACTERIZE_ORDER"`
}

type BenchConfig struct {
	Actuators  int       `yaml:"actuators" toml:"actuators" env:"ACTUATORS"`
	Bias       float64   `yaml:"bias" toml:"bias" env:"BIAS"`
	MaxVoltage float64   `yaml:"max_voltage" toml:"max_voltage" env:"MAX_VOLTAGE"`
	Response   float64   `yaml:"response" toml:"response" env:"RESPONSE"`
	Gain       float64   `yaml:"gain" toml:"gain" env:"GAIN"`
	Noise      float64   `yaml:"noise" toml:"noise" env:"NOISE"`
	Drift      float64   `yaml:"drift" toml:"drift" env:"DRIFT"`
	Seed       int64     `yaml:"seed" toml:"seed" env:"SEED"`
	Aberration []float64 `yaml:"aberration" toml:"aberration" env:"ABERRATION" envSeparator:","`
}

type WatchConfig struct {
	// Targets are handed out in order, one per convergence.
	Targets    [][]float64   `yaml:"targets" toml:"targets"`
	Escalation string        `yaml:"escalation" toml:"escalation" env:"ESCALATION"`
	Interval   time.Duration `yaml:"interval" toml:"interval" env:"INTERVAL"`
	History    int           `yaml:"history" toml:"history" env:"HISTORY"`
}

func DefaultConfig() *Config {
	ctrl := stabilize.DefaultConfig()
	sess := session.DefaultConfig()
	p := bench.DefaultParams()
	cfg := &Config{
		Preset:   DefaultPreset,
		LogLevel: DefaultLogLevel,
		Controller: ControllerConfig{
			Tolerance:       ctrl.Tolerance,
			EscalationLimit: ctrl.EscalationLimit,
			FitOrder:        ctrl.FitOrder,
			ModeMask:        uint32(ctrl.Mask),
			ResetOnContinue: ctrl.ResetOnContinue,
		},
		Session: SessionConfig{
			Characterize:      sess.Characterize,
			CharacterizeOrder: sess.CharacterizeOrder,
		},
		Bench: BenchConfig{
			Actuators:  p.Actuators,
			Bias:       p.Bias,
			MaxVoltage: p.MaxVoltage,
			Response:   p.Response,
			Gain:       p.Gain,
		},
		Watch: WatchConfig{
			Escalation: DefaultEscalator,
			Interval:   DefaultInterval,
			History:    DefaultHistory,
		},
	}
	_ = cfg.ApplyPreset(DefaultPreset)
	return cfg
}

type presetHeader struct {
	Preset string `yaml:"preset" toml:"preset"`
}

// Load reads path over the defaults and the preset it names. Unknown keys
// are rejected.
func Load(path string) (*Config, error) {
	return load(path, "")
}

// load reads path over the defaults and a preset. A non-empty preset wins
// over the one the file names.
func load(path, preset string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var decode func(v any, strict bool) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		decode = func(v any, strict bool) error {
			meta, err := toml.Decode(string(data), v)
			if err != nil {
				return err
			}
			if undecoded := meta.Undecoded(); strict && len(undecoded) > 0 {
				return fmt.Errorf("%w: unknown keys %v", ErrInvalid, undecoded)
			}
			return nil
		}
	case ".yaml", ".yml":
		decode = func(v any, strict bool) error {
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(strict)
			if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}

	var head presetHeader
	if err := decode(&head, false); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if preset == "" {
		preset = head.Preset
	}
	cfg := DefaultConfig()
	if preset != "" {
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := decode(cfg, true); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if preset != "" {
		cfg.Preset = preset
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides cfg with the WFSLOCK_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Resolve layers the defaults, preset, file at path and environment, each
// over the last. Empty preset and path are skipped; a non-empty preset
// replaces the one the file names.
func Resolve(path, preset string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = load(path, preset); err != nil {
			return nil, err
		}
	} else if preset != "" {
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) StabilizeConfig() stabilize.Config {
	return stabilize.Config{
		Tolerance:       c.Controller.Tolerance,
		EscalationLimit: c.Controller.EscalationLimit,
		FitOrder:        c.Controller.FitOrder,
		Mask:            modal.Mask(c.Controller.ModeMask),
		ResetOnContinue: c.Controller.ResetOnContinue,
	}
}

func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Controller:        c.StabilizeConfig(),
		Characterize:      c.Session.Characterize,
		CharacterizeOrder: c.Session.CharacterizeOrder,
	}
}

func (c *Config) BenchParams() (bench.Params, error) {
	if len(c.Bench.Aberration) > modal.Modes {
		return bench.Params{}, fmt.Errorf("%w: aberration has %d modes, max %d", ErrInvalid, len(c.Bench.Aberration), modal.Modes)
	}
	return bench.Params{
		Actuators:  c.Bench.Actuators,
		Bias:       c.Bench.Bias,
		MaxVoltage: c.Bench.MaxVoltage,
		Response:   c.Bench.Response,
		Gain:       c.Bench.Gain,
		Noise:      c.Bench.Noise,
		Drift:      c.Bench.Drift,
		Seed:       c.Bench.Seed,
		Aberration: modal.VectorFrom(c.Bench.Aberration...),
	}, nil
}

func (c *Config) WatchTargets() ([]modal.Vector, error) {
	out := make([]modal.Vector, 0, len(c.Watch.Targets))
	for i, t := range c.Watch.Targets {
		if len(t) > modal.Modes {
			return nil, fmt.Errorf("%w: watch target %d has %d modes, max %d", ErrInvalid, i, len(t), modal.Modes)
		}
		v := modal.VectorFrom(t...)
		if !v.IsValid() {
			return nil, fmt.Errorf("%w: watch target %d is not finite", ErrInvalid, i)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Config) WatchEscalation() (operator.Decision, error) {
	d, err := operator.ParseDecision(c.Watch.Escalation)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return d, nil
}

func (c *Config) Validate() error {
	if err := c.SessionConfig().Validate(); err != nil {
		return err
	}
	p, err := c.BenchParams()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := c.WatchTargets(); err != nil {
		return err
	}
	if _, err := c.WatchEscalation(); err != nil {
		return err
	}
	if c.Watch.Interval < 0 || c.Watch.History < 0 {
		return fmt.Errorf("%w: watch interval and history must be non-negative", ErrInvalid)
	}
	return nil
}
