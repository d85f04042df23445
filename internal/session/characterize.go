package session

import (
	"context"
	"fmt"

	"github.com/san-kum/wfslock/internal/device"
)

// characterize runs the system-parameter measurement: acquire, hand the
// measurement to the characterizer, apply the pattern it returns, until it
// reports no remaining steps.
func (s *Session) characterize(ctx context.Context) error {
	ch := s.devs.Characterizer
	first := true
	for step := 1; ; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := s.devs.Sensor.CaptureAutoExposed()
		if err != nil {
			return fmt.Errorf("characterize: %w", device.Wrap("sensor", "capture", err))
		}
		measured, err := s.devs.Sensor.FitModal(frame, s.cfg.CharacterizeOrder)
		if err != nil {
			return fmt.Errorf("characterize: %w", device.Wrap("sensor", "fit", err))
		}
		pattern, remaining, err := ch.MeasureSystemParameters(first, measured)
		if err != nil {
			return fmt.Errorf("characterize: %w", device.Wrap("characterizer", "measure", err))
		}
		if err := pattern.Validate(); err != nil {
			return fmt.Errorf("characterize: %w", &device.DeviceError{Device: "characterizer", Op: "measure", Err: err})
		}
		if err := s.devs.Actuator.ApplyVoltages(pattern); err != nil {
			return fmt.Errorf("characterize: %w", device.Wrap("mirror", "apply", err))
		}

		s.log.Debug().Int("step", step).Int("remaining", remaining).Msg("characterization step")
		if remaining <= 0 {
			s.log.Info().Int("steps", step).Msg("mirror characterized")
			return nil
		}
		first = false
	}
}
