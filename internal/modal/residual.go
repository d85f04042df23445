package modal

import "errors"

var (
	ErrTooManyActuators = errors.New("modal: voltage command exceeds actuator count")
	ErrInvalidValue     = errors.New("modal: non-finite value")
)

// Residual returns measured - target element-wise. It is the error the loop
// drives toward zero.
func Residual(measured, target Vector) Vector {
	var r Vector
	for i := range r {
		r[i] = measured[i] - target[i]
	}
	return r
}
