package fsm

import (
	"testing"
	"time"

	"scrubcore.dev/config"
	"scrubcore.dev/ports"
)

func newTestEngine() (*Engine, *Context) {
	cfg := config.Default()
	ctx := &Context{
		TickPeriod: time.Second,
		Config:     cfg,
	}
	e := NewEngine(Build(), ports.Idle)
	e.Start(ctx)
	return e, ctx
}

func TestActivateSequence(t *testing.T) {
	e, ctx := newTestEngine()

	ctx.Sensors.Nh3PPM = 12.0
	ctx.Sensors.Nh3AvgPPM = 12.0
	e.Tick(ctx)
	if e.State() != ports.Sensing {
		t.Fatalf("state = %v, want sensing", e.State())
	}

	confirm := int(ctx.Config.Nh3ConfirmDurationSecs)
	for i := 0; i < confirm; i++ {
		e.Tick(ctx)
	}
	if e.State() != ports.Active {
		t.Fatalf("state = %v, want active", e.State())
	}
	if ctx.Commands.PumpDuty == 0 {
		t.Fatal("expected pump duty > 0 in active")
	}
	if ctx.Commands.UvcDuty == 0 {
		t.Fatal("expected uvc duty > 0 in active")
	}

	ctx.Sensors.Nh3AvgPPM = 4.0
	e.Tick(ctx)
	if e.State() != ports.Purging {
		t.Fatalf("state = %v, want purging", e.State())
	}
	if ctx.Commands.UvcDuty != 0 {
		t.Fatal("expected uvc duty == 0 in purging")
	}

	purge := int(ctx.Config.PurgeDurationSecs)
	for i := 0; i < purge; i++ {
		e.Tick(ctx)
	}
	if e.State() != ports.Idle {
		t.Fatalf("state = %v, want idle", e.State())
	}
}

func TestFalseAlarm(t *testing.T) {
	e, ctx := newTestEngine()
	ctx.Sensors.Nh3PPM = 12.0
	ctx.Sensors.Nh3AvgPPM = 11.0
	e.Tick(ctx)
	if e.State() != ports.Sensing {
		t.Fatalf("state = %v, want sensing", e.State())
	}
	ctx.Sensors.Nh3AvgPPM = 8.0
	e.Tick(ctx)
	if e.State() != ports.Idle {
		t.Fatalf("state = %v, want idle", e.State())
	}
	if ctx.Commands.PumpDuty != 0 || ctx.Commands.UvcDuty != 0 {
		t.Fatal("actuators must never have been commanded during a false alarm")
	}
}

func TestInterlockTripForcesErrorAndKillsUvc(t *testing.T) {
	e, ctx := newTestEngine()
	ctx.Sensors.Nh3PPM = 30
	ctx.Sensors.Nh3AvgPPM = 30
	e.Tick(ctx)
	for i := 0; i < int(ctx.Config.Nh3ConfirmDurationSecs); i++ {
		e.Tick(ctx)
	}
	if e.State() != ports.Active {
		t.Fatalf("state = %v, want active", e.State())
	}

	ctx.Faults = ports.FaultUvcInterlockOpen
	e.Tick(ctx)
	if e.State() != ports.Error {
		t.Fatalf("state = %v, want error", e.State())
	}
	if ctx.Commands.PumpDuty != 0 || ctx.Commands.UvcDuty != 0 {
		t.Fatal("actuators must be all-off in error")
	}
}

// TestFSMReachability is testable property 1: for any sequence of inputs,
// the reached state is always one of the five defined states.
func TestFSMReachability(t *testing.T) {
	e, ctx := newTestEngine()
	inputs := []struct {
		nh3, avg float32
		faults   ports.FaultFlags
	}{
		{5, 5, 0}, {30, 30, 0}, {30, 30, 0}, {30, 30, 0}, {30, 30, 0},
		{30, 30, 0}, {30, 30, 0}, {30, 30, 0}, {30, 30, 0}, {30, 30, 0},
		{30, 30, 0}, {30, 4, 0}, {30, 4, ports.FaultOverTemperature},
		{30, 4, 0}, {1, 1, 0},
	}
	for _, in := range inputs {
		ctx.Sensors.Nh3PPM = in.nh3
		ctx.Sensors.Nh3AvgPPM = in.avg
		ctx.Faults = in.faults
		e.Tick(ctx)
		if !e.State().Valid() {
			t.Fatalf("invalid state ordinal %v", e.State())
		}
	}
}

// TestFaultForcesErrorWithinTwoTicks is testable property 2.
func TestFaultForcesErrorWithinTwoTicks(t *testing.T) {
	e, ctx := newTestEngine()
	ctx.Faults = ports.FaultWaterLevelLow
	e.Tick(ctx)
	if e.State() != ports.Error {
		t.Fatalf("state = %v after 1 tick, want error", e.State())
	}
}

// TestErrorActuatorsAlwaysOff is testable property 3.
func TestErrorActuatorsAlwaysOff(t *testing.T) {
	e, ctx := newTestEngine()
	ctx.Faults = ports.FaultOverTemperature
	for i := 0; i < 5; i++ {
		e.Tick(ctx)
		if e.State() == ports.Error {
			if ctx.Commands.PumpDuty != 0 {
				t.Fatal("pump duty must be 0 in error")
			}
			if ctx.Commands.UvcDuty != 0 {
				t.Fatal("uvc duty must be 0 in error")
			}
		}
	}
}

// TestThresholdAntiChatter is testable property 5: holding the reading
// between the two thresholds must not oscillate once Active.
func TestThresholdAntiChatter(t *testing.T) {
	e, ctx := newTestEngine()
	ctx.Sensors.Nh3PPM = 30
	ctx.Sensors.Nh3AvgPPM = 30
	for i := 0; i < int(ctx.Config.Nh3ConfirmDurationSecs)+1; i++ {
		e.Tick(ctx)
	}
	if e.State() != ports.Active {
		t.Fatalf("state = %v, want active", e.State())
	}
	mid := (ctx.Config.Nh3ActivateThresholdPPM + ctx.Config.Nh3DeactivateThresholdPPM) / 2
	ctx.Sensors.Nh3AvgPPM = mid
	for i := 0; i < 50; i++ {
		prev := e.State()
		e.Tick(ctx)
		if prev == ports.Active && e.State() != ports.Active {
			t.Fatalf("unexpected transition out of active on a steady mid-band reading at tick %d", i)
		}
	}
}

func TestForceTransitionSkipsUpdate(t *testing.T) {
	e, ctx := newTestEngine()
	e.ForceTransition(ctx, ports.Active)
	if e.State() != ports.Active {
		t.Fatalf("state = %v, want active", e.State())
	}
	if ctx.Commands.PumpDuty == 0 {
		t.Fatal("expected enterActive to have run")
	}
}
