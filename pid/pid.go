// Package pid implements the single-loop PID flow regulator from spec.md
// §4.4: proportional-integral-derivative control with output clamping and
// conditional-integration anti-windup.
package pid

import "math"

// Controller is a standard PID loop. The zero value is not usable;
// construct with New.
type Controller struct {
	kp, ki, kd float64
	min, max   float64

	setpoint float64
	integral float64
	prevErr  float64
	hasPrev  bool
}

// New constructs a Controller with the given gains, output clamp range,
// and initial setpoint.
func New(kp, ki, kd, min, max, setpoint float64) *Controller {
	return &Controller{kp: kp, ki: ki, kd: kd, min: min, max: max, setpoint: setpoint}
}

// SetTarget atomically replaces the setpoint.
func (c *Controller) SetTarget(setpoint float64) {
	c.setpoint = setpoint
}

// Reset zeroes the integral and derivative history.
func (c *Controller) Reset() {
	c.integral = 0
	c.prevErr = 0
	c.hasPrev = false
}

// Compute advances the controller by one step of duration dt, given the
// current measurement, and returns the clamped, finite output.
func (c *Controller) Compute(measurement float64, dt float64) float64 {
	err := c.setpoint - measurement
	p := c.kp * err

	c.integral += err * dt
	i := c.ki * c.integral

	var d float64
	if dt > 0 && c.hasPrev {
		d = c.kd * (err - c.prevErr) / dt
	}

	output := p + i + d
	clamped := clamp(output, c.min, c.max)
	if clamped != output {
		// Saturated: undo this tick's integral accumulation
		// (conditional-integration anti-windup).
		c.integral -= err * dt
	}

	c.prevErr = err
	c.hasPrev = true

	if math.IsNaN(clamped) || math.IsInf(clamped, 0) {
		return c.min
	}
	return clamped
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
