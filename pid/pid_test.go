package pid

import (
	"math"
	"math/rand"
	"testing"
)

func TestComputeTracksSetpoint(t *testing.T) {
	c := New(2, 0.5, 0.1, 0, 100, 80)
	measurement := 0.0
	for i := 0; i < 200; i++ {
		out := c.Compute(measurement, 0.1)
		// Trivial plant: measurement moves a fraction toward the output.
		measurement += (out - measurement) * 0.2
	}
	if math.Abs(measurement-80) > 5 {
		t.Fatalf("measurement = %v, want close to setpoint 80", measurement)
	}
}

func TestOutputAlwaysClampedAndFinite(t *testing.T) {
	c := New(2, 0.5, 0.1, 0, 100, 500)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		measurement := rng.Float64()*2000 - 500
		dt := rng.Float64() * 2
		out := c.Compute(measurement, dt)
		if out < 0 || out > 100 {
			t.Fatalf("output %v out of [0,100]", out)
		}
		if math.IsNaN(out) || math.IsInf(out, 0) {
			t.Fatalf("output not finite: %v", out)
		}
	}
}

func TestResetZeroesState(t *testing.T) {
	c := New(2, 0.5, 0.1, 0, 100, 500)
	for i := 0; i < 10; i++ {
		c.Compute(0, 0.1)
	}
	c.Reset()
	// Immediately after reset, derivative term should be zero because
	// there is no previous error yet.
	out1 := c.Compute(500, 0.1) // error = 0
	if out1 < 0 || out1 > 100 {
		t.Fatalf("output out of range after reset: %v", out1)
	}
}

func TestSetTargetChangesSetpoint(t *testing.T) {
	c := New(2, 0.5, 0.1, 0, 100, 0)
	out0 := c.Compute(0, 0.1)
	if out0 > 1 {
		t.Fatalf("expected near-zero output at equal setpoint/measurement, got %v", out0)
	}
	c.SetTarget(1000)
	out1 := c.Compute(0, 0.1)
	if out1 <= out0 {
		t.Fatalf("expected output to increase after raising setpoint: out0=%v out1=%v", out0, out1)
	}
}

func TestZeroDtSkipsDerivative(t *testing.T) {
	c := New(2, 0.5, 0.1, 0, 100, 500)
	c.Compute(100, 0.1)
	out := c.Compute(200, 0) // dt == 0: derivative term must be skipped
	if math.IsNaN(out) || math.IsInf(out, 0) {
		t.Fatalf("output not finite with dt=0: %v", out)
	}
}
