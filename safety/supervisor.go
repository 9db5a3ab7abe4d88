// Package safety implements the bitmask-accumulating fault supervisor from
// spec.md §4.3: evaluated before every FSM tick, it gates every actuator
// command via the fault mask it produces.
package safety

import (
	"scrubcore.dev/config"
	"scrubcore.dev/ports"
)

// graceTicks computes the no-flow grace period in ticks from the
// control-loop interval, per the Open Question resolution recorded in
// SPEC_FULL.md §9: floor(3000ms / interval_ms), minimum 1 tick.
func graceTicks(controlLoopIntervalMs uint32) uint32 {
	if controlLoopIntervalMs == 0 {
		return 1
	}
	g := 3000 / controlLoopIntervalMs
	if g < 1 {
		g = 1
	}
	return g
}

// Supervisor accumulates the fault bitmask across ticks, tracking the
// no-flow grace period since the pump last transitioned off->on.
type Supervisor struct {
	faults           ports.FaultFlags
	pumpWasCommanded bool
	ticksSincePumpOn uint32
}

// New constructs a Supervisor with no faults latched.
func New() *Supervisor {
	return &Supervisor{}
}

// Faults returns the current latched fault mask.
func (s *Supervisor) Faults() ports.FaultFlags {
	return s.faults
}

// Evaluate computes the new fault mask from snapshot and whether the pump
// is currently commanded on, given the live config (for max temperature
// and the no-flow grace period). It must be called exactly once per
// control tick, before the FSM update.
func (s *Supervisor) Evaluate(snapshot ports.SensorSnapshot, pumpCommandedOn bool, cfg config.SystemConfig) ports.FaultFlags {
	if pumpCommandedOn && !s.pumpWasCommanded {
		s.ticksSincePumpOn = 0
	}
	if pumpCommandedOn {
		s.ticksSincePumpOn++
	} else {
		s.ticksSincePumpOn = 0
	}
	s.pumpWasCommanded = pumpCommandedOn

	var next ports.FaultFlags

	if !snapshot.TankASupplyOK {
		next |= ports.FaultWaterLevelLow
	}

	if pumpCommandedOn && s.ticksSincePumpOn > graceTicks(cfg.ControlLoopIntervalMs) && !snapshot.FlowDetected {
		next |= ports.FaultNoFlowDetected
	}

	if snapshot.TemperatureC > cfg.MaxTemperatureC {
		next |= ports.FaultOverTemperature
	}

	if !snapshot.UvcInterlockClosed {
		next |= ports.FaultUvcInterlockOpen
	}

	s.faults = next
	return next
}

// Transition describes a single fault bit's edge, for structured
// fault-set/fault-clear event emission.
type Transition struct {
	Bit     ports.FaultFlags
	Raised  bool
}

// Transitions compares prev and next fault masks bit by bit and returns
// every bit that changed state.
func Transitions(prev, next ports.FaultFlags) []Transition {
	var out []Transition
	bits := []ports.FaultFlags{
		ports.FaultWaterLevelLow,
		ports.FaultNoFlowDetected,
		ports.FaultOverTemperature,
		ports.FaultUvcInterlockOpen,
	}
	for _, bit := range bits {
		was := prev.Has(bit)
		is := next.Has(bit)
		if was != is {
			out = append(out, Transition{Bit: bit, Raised: is})
		}
	}
	return out
}
