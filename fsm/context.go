// Package fsm implements the function-table finite state machine described
// in spec.md §4.2: a fixed array of five StateDescriptors indexed by state
// ordinal, advanced one tick at a time by the application service.
package fsm

import (
	"time"

	"scrubcore.dev/config"
	"scrubcore.dev/ports"
)

// Context is the blackboard passed to every state handler, mutated in
// place by the safety supervisor, the FSM handlers, and the PID post-pass
// each tick.
type Context struct {
	TicksInState    uint32
	TotalTicks      uint64
	TickPeriod      time.Duration
	Sensors         ports.SensorSnapshot
	Commands        ports.ActuatorCommands
	Config          config.SystemConfig
	Faults          ports.FaultFlags
}

// SecsInState returns the elapsed time in the current state, in seconds.
func (c *Context) SecsInState() float64 {
	return float64(c.TicksInState) * c.TickPeriod.Seconds()
}
