package fsm

import "scrubcore.dev/ports"

// Descriptor is a static row in the FSM table: an optional on-enter/
// on-exit action plus a required on-update function returning the next
// state, if a transition is due. The table is immutable after Build.
type Descriptor struct {
	State       ports.State
	Name        string
	OnEnter     func(ctx *Context)
	OnExit      func(ctx *Context)
	OnUpdate    func(ctx *Context) (next ports.State, transition bool)
}

// Table is the fixed-size array of state descriptors indexed by state
// ordinal, giving O(1) lookup.
type Table [ports.NumStates]Descriptor

// Build constructs the standard five-state table described in spec.md §4.2.
func Build() Table {
	var t Table
	t[ports.Idle] = Descriptor{
		State:    ports.Idle,
		Name:     "idle",
		OnEnter:  enterIdle,
		OnUpdate: updateIdle,
	}
	t[ports.Sensing] = Descriptor{
		State:    ports.Sensing,
		Name:     "sensing",
		OnUpdate: updateSensing,
	}
	t[ports.Active] = Descriptor{
		State:    ports.Active,
		Name:     "active",
		OnEnter:  enterActive,
		OnExit:   exitActive,
		OnUpdate: updateActive,
	}
	t[ports.Purging] = Descriptor{
		State:    ports.Purging,
		Name:     "purging",
		OnEnter:  enterPurging,
		OnUpdate: updatePurging,
	}
	t[ports.Error] = Descriptor{
		State:    ports.Error,
		Name:     "error",
		OnEnter:  enterError,
		OnUpdate: updateError,
	}
	return t
}

func enterIdle(ctx *Context) {
	ctx.Commands.AllOff()
}

func updateIdle(ctx *Context) (ports.State, bool) {
	if ctx.Faults != 0 {
		return ports.Error, true
	}
	if ctx.Sensors.Nh3PPM > ctx.Config.Nh3ActivateThresholdPPM {
		return ports.Sensing, true
	}
	return 0, false
}

func updateSensing(ctx *Context) (ports.State, bool) {
	if ctx.Faults != 0 {
		return ports.Error, true
	}
	if ctx.Sensors.Nh3AvgPPM < ctx.Config.Nh3ActivateThresholdPPM {
		return ports.Idle, true
	}
	if ctx.SecsInState() >= float64(ctx.Config.Nh3ConfirmDurationSecs) &&
		ctx.Sensors.Nh3AvgPPM >= ctx.Config.Nh3ActivateThresholdPPM {
		return ports.Active, true
	}
	return 0, false
}

func enterActive(ctx *Context) {
	ctx.Commands.PumpDuty = ports.ClampDuty(int(ctx.Config.PumpDutyPercent))
	ctx.Commands.PumpForward = true
	ctx.Commands.UvcDuty = ports.ClampDuty(int(ctx.Config.UvcDutyPercent))
}

// exitActive force-disables the UV-C lamp before any transition out of
// Active — the lamp must never remain energized across a state boundary,
// per the UV-C interlock-gate invariant in spec.md §8.
func exitActive(ctx *Context) {
	ctx.Commands.UvcDuty = 0
}

func updateActive(ctx *Context) (ports.State, bool) {
	if ctx.Faults != 0 {
		return ports.Error, true
	}
	if ctx.Sensors.Nh3AvgPPM < ctx.Config.Nh3DeactivateThresholdPPM {
		return ports.Purging, true
	}
	return 0, false
}

func enterPurging(ctx *Context) {
	half := int(ctx.Config.PumpDutyPercent) / 2
	if half < 20 {
		half = 20
	}
	ctx.Commands.PumpDuty = ports.ClampDuty(half)
	ctx.Commands.UvcDuty = 0
}

func updatePurging(ctx *Context) (ports.State, bool) {
	if ctx.Faults != 0 {
		return ports.Error, true
	}
	if ctx.Sensors.Nh3AvgPPM > ctx.Config.Nh3ActivateThresholdPPM {
		return ports.Active, true
	}
	if ctx.SecsInState() >= float64(ctx.Config.PurgeDurationSecs) {
		return ports.Idle, true
	}
	return 0, false
}

func enterError(ctx *Context) {
	ctx.Commands.AllOff()
}

// errorBlinkPeriodTicks is the number of ticks each half of the red-blink
// cycle lasts while in Error.
const errorBlinkPeriodTicks = 1

func updateError(ctx *Context) (ports.State, bool) {
	// All-off except for a blinking red status LED; pump/UV-C must stay
	// off every tick while in Error, not just on enter.
	ctx.Commands.PumpDuty = 0
	ctx.Commands.UvcDuty = 0
	if (ctx.TicksInState/errorBlinkPeriodTicks)%2 == 0 {
		ctx.Commands.LED = ports.LED{R: 255}
	} else {
		ctx.Commands.LED = ports.LED{}
	}
	if ctx.Faults == 0 {
		return ports.Idle, true
	}
	return 0, false
}
