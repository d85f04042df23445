package config

import (
	"fmt"
	"sort"
)

// Preset is a named bench setup.
type Preset struct {
	Description string
	Bench       BenchConfig
	// Targets is the default watch script.
	Targets [][]float64
}

var Presets = map[string]Preset{
	"clean": {
		Description: "noise-free bench with a mild static aberration",
		Bench: BenchConfig{
			Actuators: 40, Bias: 50, MaxVoltage: 100, Response: 1, Gain: 0.5,
			Aberration: []float64{0, 0, 0, 0, 0.3, -0.2, 0.1, 0, 0.05},
		},
		Targets: [][]float64{{}, {0, 0, 0, 0, 0.1}, {0, 0, 0, 0, 0, 0, -0.05, 0.05}},
	},
	"noisy": {
		Description: "fit noise close to the tolerance band",
		Bench: BenchConfig{
			Actuators: 40, Bias: 50, MaxVoltage: 100, Response: 1, Gain: 0.4, Noise: 0.003, Seed: 7,
			Aberration: []float64{0, 0, 0, 0, 0.3, -0.2, 0.1, 0, 0.05},
		},
		Targets: [][]float64{{}, {0, 0, 0, 0, 0.1}},
	},
	"drifting": {
		Description: "aberration random walk the loop has to track",
		Bench: BenchConfig{
			Actuators: 40, Bias: 50, MaxVoltage: 100, Response: 1, Gain: 0.6, Drift: 0.002, Seed: 11,
			Aberration: []float64{0, 0, 0, 0, 0.2, 0.2, -0.1},
		},
		Targets: [][]float64{{}, {0, 0, 0, 0, -0.05}},
	},
	"saturated": {
		Description: "aberration beyond the mirror stroke; the loop cannot lock",
		Bench: BenchConfig{
			Actuators: 40, Bias: 50, MaxVoltage: 100, Response: 0.005, Gain: 0.5,
			Aberration: []float64{0, 0, 0, 0, 0.8},
		},
		Targets: [][]float64{{}},
	},
	"mismatched": {
		Description: "mirror response far from the uncharacterized estimate",
		Bench: BenchConfig{
			Actuators: 60, Bias: 50, MaxVoltage: 100, Response: 2.5, Gain: 0.5, Seed: 3,
			Aberration: []float64{0, 0, 0, 0, 0.15, 0, 0, -0.1},
		},
		Targets: [][]float64{{}, {0, 0, 0, 0, 0, 0.05}},
	},
}

func GetPreset(name string) *Preset {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	return &p
}

// ListPresets returns the preset names in order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset replaces the bench section and the watch targets with the
// named preset.
func (c *Config) ApplyPreset(name string) error {
	p := GetPreset(name)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	c.Preset = name
	c.Bench = p.Bench
	c.Bench.Aberration = append([]float64(nil), p.Bench.Aberration...)
	c.Watch.Targets = nil
	for _, t := range p.Targets {
		c.Watch.Targets = append(c.Watch.Targets, append([]float64(nil), t...))
	}
	return nil
}
