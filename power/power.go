// Package power implements the power manager from spec.md §4.10: a
// per-tick sleep-mode suggestion, wake-reason classification at boot, and
// the deterministic pre-sleep shutdown sequence. The outer loop remains
// authoritative — it only honors a sleep suggestion while the FSM is Idle.
package power

import (
	"errors"

	"scrubcore.dev/app"
	"scrubcore.dev/config"
	"scrubcore.dev/ports"
)

// Mode is a suggested power state for the outer loop to honor.
type Mode uint8

const (
	ModeActive Mode = iota
	ModeLightSleep
	ModeDeepSleep
)

func (m Mode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModeLightSleep:
		return "light-sleep"
	case ModeDeepSleep:
		return "deep-sleep"
	default:
		return "unknown"
	}
}

// Idle-tick thresholds before the manager suggests dropping into a deeper
// sleep mode. spec.md leaves the exact thresholds unspecified; these are
// chosen so light sleep kicks in well inside a human's "is it still doing
// something" patience window, and deep sleep only after the appliance has
// plainly been left alone.
const (
	lightSleepAfterIdleTicks = 30
	deepSleepAfterIdleTicks  = 300
)

// Manager tracks consecutive idle, activity-free ticks and suggests a
// Mode from that run length. The zero value is ready to use.
type Manager struct {
	idleTicks uint32
}

// New constructs a Manager with no accumulated idle run.
func New() *Manager {
	return &Manager{}
}

// SuggestMode produces this tick's suggested Mode from the current FSM
// state and whether anything happened this tick (a command, an RPC
// request, a sensor event worth noting). Any state other than Idle, or
// any activity, resets the idle run and suggests Active.
func (m *Manager) SuggestMode(state ports.State, activityThisTick bool) Mode {
	if state != ports.Idle || activityThisTick {
		m.idleTicks = 0
		return ModeActive
	}
	m.idleTicks++
	switch {
	case m.idleTicks >= deepSleepAfterIdleTicks:
		return ModeDeepSleep
	case m.idleTicks >= lightSleepAfterIdleTicks:
		return ModeLightSleep
	default:
		return ModeActive
	}
}

// ClassifyWake reads the platform's reset-cause register once at boot and
// maps it to the FSM state the service should start from: UlpWake resumes
// directly into Sensing (the ULP coprocessor already detected something
// worth a closer look), anything else starts from Idle.
func ClassifyWake(reader ports.ResetCauseReader) (ports.ResetCause, ports.State, error) {
	cause, err := reader.ReadResetCause()
	if err != nil {
		return ports.ResetCauseOther, ports.Idle, err
	}
	start := ports.Idle
	if cause == ports.ResetCauseUlpWake {
		start = ports.Sensing
	}
	return cause, start, nil
}

// Shutdown bundles the collaborators the deterministic pre-sleep sequence
// needs. Any field may be left nil; that step is then skipped.
type Shutdown struct {
	Mdns       ports.MdnsPort
	Actuator   ports.Actuator
	ConfigPort *config.Port
	Watchdog   ports.WatchdogPort
}

// Execute runs spec.md §4.10's fixed sequence — stop mDNS, kill actuators,
// force-save a dirty config, feed the watchdog one last time — in that
// exact order. It does not itself enter sleep; the caller does that once
// Execute returns, using mode to pick the platform sleep call.
func (s Shutdown) Execute(svc *app.Service) error {
	var errs []error
	if s.Mdns != nil {
		errs = append(errs, s.Mdns.Stop())
	}
	if s.Actuator != nil {
		errs = append(errs, s.Actuator.AllOff())
	}
	if s.ConfigPort != nil {
		errs = append(errs, svc.ForceSaveIfDirty(s.ConfigPort))
	}
	if s.Watchdog != nil {
		errs = append(errs, s.Watchdog.Feed())
	}
	return errors.Join(errs...)
}
