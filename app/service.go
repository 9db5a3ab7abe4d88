// Package app implements the hexagonal application service from
// spec.md §4.5: the core that owns the FSM, safety supervisor, PID
// regulator and config-dirty tracking, and drives them one ControlTick at
// a time over whatever Sensor/Actuator/EventSink/Config ports it is wired
// against.
package app

import (
	"errors"
	"time"

	"scrubcore.dev/config"
	"scrubcore.dev/fsm"
	"scrubcore.dev/pid"
	"scrubcore.dev/ports"
	"scrubcore.dev/safety"
)

// Hardware is the pair of ports a control tick needs: sensor readings in,
// actuator commands out.
type Hardware interface {
	ports.Sensor
	ports.Actuator
}

// autoSaveDelay is the minimum elapsed-since-dirty duration before
// AutoSaveIfNeeded will persist, per spec.md §4.5.
const autoSaveDelay = 5 * time.Second

// Service is the application core. The zero value is not usable;
// construct with NewService.
type Service struct {
	table      fsm.Table
	engine     *fsm.Engine
	ctx        *fsm.Context
	supervisor *safety.Supervisor
	pid        *pid.Controller

	tickPeriod time.Duration

	dirty          bool
	dirtySinceTick uint64
}

// NewService constructs a Service starting in startState with cfg as the
// live configuration, ticking every tickPeriod. pidCtl is the pump flow
// regulator, used with the setpoint it was constructed with; NewService
// does not set it from cfg.PumpFlowTargetMlPerMin.
func NewService(cfg config.SystemConfig, tickPeriod time.Duration, startState ports.State, pidCtl *pid.Controller) *Service {
	table := fsm.Build()
	ctx := &fsm.Context{TickPeriod: tickPeriod, Config: cfg}
	engine := fsm.NewEngine(table, startState)
	engine.Start(ctx)
	return &Service{
		table:      table,
		engine:     engine,
		ctx:        ctx,
		supervisor: safety.New(),
		pid:        pidCtl,
		tickPeriod: tickPeriod,
	}
}

// State returns the current FSM state.
func (s *Service) State() ports.State {
	return s.engine.State()
}

// Faults returns the fault mask last computed by the safety supervisor.
func (s *Service) Faults() ports.FaultFlags {
	return s.ctx.Faults
}

// LastSensors returns the SensorSnapshot read by the most recent Tick, so
// a caller (the event-loop composition layer) can diff it against the
// previous tick's reading to detect the interlock/water-level/NH3
// threshold edges spec.md §5 routes through the event queue.
func (s *Service) LastSensors() ports.SensorSnapshot {
	return s.ctx.Sensors
}

// Config returns a copy of the live configuration.
func (s *Service) Config() config.SystemConfig {
	return s.ctx.Config
}

// Dirty reports whether the live configuration has unsaved changes.
func (s *Service) Dirty() bool {
	return s.dirty
}

// OnScheduleFired implements ports.SchedulerDelegate so a Service can be
// handed directly to a scheduler.Scheduler as its delegate.
func (s *Service) OnScheduleFired(label string, kind ports.ScheduleFiredKind) {
	// The event loop composition layer is responsible for translating a
	// fired schedule into a Command (e.g. a Boost schedule issuing
	// StartScrub) and for narrating it; Service takes no action here.
}

// Tick runs one ControlTick: reads hardware, evaluates safety, advances
// the FSM, regulates pump flow, applies actuator commands, and narrates
// state changes and faults through sink. It implements spec.md §4.5's
// eight-step tick orchestration.
func (s *Service) Tick(hardware Hardware, sink ports.EventSinkCapability) error {
	// Step 1: the tick counter itself is bumped inside engine.Tick below.
	prevState := s.engine.State()

	snapshot, err := hardware.ReadAll(s.tickPeriod)
	if err != nil {
		return err
	}
	s.ctx.Sensors = snapshot

	pumpCommandedOn := s.ctx.Commands.PumpDuty > 0
	faults := s.supervisor.Evaluate(snapshot, pumpCommandedOn, s.ctx.Config)
	s.ctx.Faults = faults

	if faults != 0 && s.engine.State() != ports.Error {
		s.engine.ForceTransition(s.ctx, ports.Error)
		if sink != nil {
			sink.Emit(ports.AppEvent{Kind: ports.EventFaultDetected, Faults: faults})
		}
	}

	s.engine.Tick(s.ctx)

	if s.ctx.Commands.PumpDuty > 0 && s.ctx.Sensors.FlowDetected {
		out := s.pid.Compute(float64(s.ctx.Sensors.FlowMlPerMin), s.tickPeriod.Seconds())
		s.ctx.Commands.PumpDuty = clampDuty(out, 10, 100)
	} else if s.ctx.Commands.PumpDuty > 0 {
		s.pid.Reset()
	}

	if err := applyActuators(hardware, s.ctx.Commands, s.ctx.Sensors, s.ctx.Faults); err != nil {
		return err
	}

	if s.engine.State() != prevState && sink != nil {
		sink.Emit(ports.AppEvent{Kind: ports.EventStateChanged, From: prevState, To: s.engine.State()})
	}
	return nil
}

func clampDuty(v float64, lo, hi uint8) uint8 {
	if v < float64(lo) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return uint8(v)
}

// applyActuators is the small pure function of (commands, snapshot,
// faults, current UV-C state) spec.md §4.5 describes, issuing to the
// actuator port.
func applyActuators(a ports.Actuator, cmds ports.ActuatorCommands, snapshot ports.SensorSnapshot, faults ports.FaultFlags) error {
	hasFaults := faults != 0
	var errs []error

	if cmds.PumpDuty > 0 && !hasFaults {
		errs = append(errs, a.SetPump(cmds.PumpDuty, cmds.PumpForward))
	} else {
		errs = append(errs, a.StopPump())
	}

	switch {
	case cmds.UvcDuty > 0 && snapshot.UvcInterlockClosed && !hasFaults:
		errs = append(errs, a.EnableUvc(cmds.UvcDuty))
	case a.IsUvcOn():
		reason := "safety fault"
		if faults.Has(ports.FaultUvcInterlockOpen) {
			reason = "interlock open"
		}
		errs = append(errs, a.FaultShutdownUvc(reason))
	default:
		errs = append(errs, a.DisableUvc())
	}

	errs = append(errs, a.SetLED(cmds.LED.R, cmds.LED.G, cmds.LED.B))
	return errors.Join(errs...)
}

// HandleCommand maps an external intent to FSM/config changes, per
// spec.md §4.5.
func (s *Service) HandleCommand(cmd Command, actuator ports.Actuator, sink ports.EventSinkCapability) error {
	switch cmd.Kind {
	case CommandStartScrub:
		if s.engine.State() == ports.Idle {
			s.engine.ForceTransition(s.ctx, ports.Active)
			if sink != nil {
				sink.Emit(ports.AppEvent{Kind: ports.EventScrubStarted})
			}
		}
	case CommandStopScrub:
		s.engine.ForceTransition(s.ctx, ports.Idle)
		if sink != nil {
			sink.Emit(ports.AppEvent{Kind: ports.EventScrubStopped})
		}
	case CommandForceState:
		s.engine.ForceTransition(s.ctx, cmd.State)
	case CommandUpdateConfig:
		s.ctx.Config = cmd.Config
		s.markDirty()
	case CommandSaveConfig:
		// Accelerate the next auto-save check per spec.md §4.5: resetting
		// dirty-since-tick to 0 makes the elapsed-since-dirty window as
		// large as possible without actually saving here.
		s.dirty = true
		s.dirtySinceTick = 0
	}
	if sink != nil {
		sink.Emit(ports.AppEvent{Kind: ports.EventCommandReceived})
	}
	return nil
}

func (s *Service) markDirty() {
	s.dirty = true
	s.dirtySinceTick = s.ctx.TotalTicks
}

func (s *Service) elapsedSinceDirty() time.Duration {
	return time.Duration(s.ctx.TotalTicks-s.dirtySinceTick) * s.tickPeriod
}

// AutoSaveIfNeeded saves the live config through port when it is dirty and
// at least 5s have elapsed since it became dirty.
func (s *Service) AutoSaveIfNeeded(port *config.Port) error {
	if !s.dirty || s.elapsedSinceDirty() < autoSaveDelay {
		return nil
	}
	return s.saveNow(port)
}

// ForceSaveIfDirty flushes the live config unconditionally if dirty,
// regardless of elapsed time. Called before sleep and before reset.
func (s *Service) ForceSaveIfDirty(port *config.Port) error {
	if !s.dirty {
		return nil
	}
	return s.saveNow(port)
}

func (s *Service) saveNow(port *config.Port) error {
	if err := port.Save(s.ctx.Config); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Telemetry is a point-in-time snapshot combining FSM state, sensor
// reading, commands, fault flags, and optional signal strength, per
// spec.md §4.5's build_telemetry.
type Telemetry struct {
	State     ports.State
	Sensors   ports.SensorSnapshot
	Commands  ports.ActuatorCommands
	Faults    ports.FaultFlags
	WifiRSSI  *int32
}

// BuildTelemetry produces the current Telemetry snapshot. wifiRSSI is nil
// when signal strength is unavailable (e.g. no wireless adapter wired).
func (s *Service) BuildTelemetry(wifiRSSI *int32) Telemetry {
	return Telemetry{
		State:    s.engine.State(),
		Sensors:  s.ctx.Sensors,
		Commands: s.ctx.Commands,
		Faults:   s.ctx.Faults,
		WifiRSSI: wifiRSSI,
	}
}
