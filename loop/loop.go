// Package loop implements the event-loop composition from spec.md §5's
// control task: poll the RPC engine and the button, drain the event queue,
// run the application service's control tick, tick the scheduler, stream
// telemetry, auto-save a dirty config, and suggest/execute a power-mode
// transition —
// in the fixed order the teacher's own `for { a.Frame() }` main loop
// (cmd/controller/main.go) drives its single per-frame method, generalized
// here to several collaborators instead of one `gui.App`.
package loop

import (
	"time"

	"scrubcore.dev/app"
	"scrubcore.dev/config"
	"scrubcore.dev/eventqueue"
	"scrubcore.dev/ports"
	"scrubcore.dev/power"
	"scrubcore.dev/rpc"
	"scrubcore.dev/scheduler"
)

// Gesture thresholds from spec.md §5: short press < 2s, long press >= 5s,
// double press within a 300ms gap of the previous release. Detection runs
// at tick granularity, so each threshold is quantized to a whole number
// of ticks (minimum one).
const (
	shortPressMax = 2 * time.Second
	longPressMin  = 5 * time.Second
	doublePressGap = 300 * time.Millisecond
)

// Loop bundles every collaborator one control-task iteration touches. It
// implements both ports.SchedulerDelegate (a fired schedule becomes a
// start-scrub command) and rpc.ScheduleRequestDelegate (an RPC schedule
// request becomes a scheduler.Scheduler mutation) — the two directions
// spec.md §4.9 and §4.6 only describe informally as "the outer loop".
type Loop struct {
	Service    *app.Service
	Scheduler  *scheduler.Scheduler
	Engine     *rpc.Engine
	Power      *power.Manager
	Queue      *eventqueue.Queue
	Hardware   app.Hardware
	Sink       ports.EventSinkCapability
	ConfigPort *config.Port
	Watchdog   ports.WatchdogPort
	Mdns       ports.MdnsPort
	Button     ports.ButtonReader
	TickPeriod time.Duration
	QuietHours scheduler.QuietHours
	WifiRSSI   func() *int32
	SleepFunc  func(power.Mode)

	currentHour  int
	slotsByLabel map[string]int

	tickCounter   int
	buttonDown    bool
	buttonDownAt  int
	pendingUpAt   int
	havePendingUp bool

	havePrevSensors bool
	prevSensors     ports.SensorSnapshot
}

// New constructs a Loop. The hour of day that Tick hands to the scheduler
// for quiet-hours suppression starts at 0, and Loop never advances it.
func New(service *app.Service, sched *scheduler.Scheduler, engine *rpc.Engine, pm *power.Manager, queue *eventqueue.Queue, hardware app.Hardware, sink ports.EventSinkCapability, configPort *config.Port, tickPeriod time.Duration) *Loop {
	l := &Loop{
		Service:      service,
		Scheduler:    sched,
		Engine:       engine,
		Power:        pm,
		Queue:        queue,
		Hardware:     hardware,
		Sink:         sink,
		ConfigPort:   configPort,
		TickPeriod:   tickPeriod,
		slotsByLabel: make(map[string]int),
	}
	engine.SetScheduleDelegate(l)
	return l
}

// OnScheduleFired implements ports.SchedulerDelegate: any fired schedule —
// periodic, boost, or one-shot — starts a scrub cycle and narrates the
// fire through sink.
func (l *Loop) OnScheduleFired(label string, kind ports.ScheduleFiredKind) {
	l.Service.HandleCommand(app.Command{Kind: app.CommandStartScrub}, l.Hardware, l.Sink)
	if l.Sink != nil {
		l.Sink.Emit(ports.AppEvent{Kind: ports.EventScheduleFired, Label: label, ScheduleKind: kind})
	}
}

// RequestSetSchedule implements rpc.ScheduleRequestDelegate: an existing
// schedule under label is replaced, a new one is added, and its slot is
// tracked so a later CancelScheduleRequest can find it.
func (l *Loop) RequestSetSchedule(label string, kind uint8, intervalSecs, durationSecs, delaySecs uint32) {
	l.removeByLabel(label)
	slot, err := l.Scheduler.Add(scheduler.Schedule{
		Label:        label,
		Kind:         scheduler.Kind(kind),
		Enabled:      true,
		IntervalSecs: intervalSecs,
		DurationSecs: durationSecs,
		DelaySecs:    delaySecs,
	})
	if err != nil {
		return
	}
	l.slotsByLabel[label] = slot
}

// RequestCancelSchedule implements rpc.ScheduleRequestDelegate.
func (l *Loop) RequestCancelSchedule(label string) {
	l.removeByLabel(label)
}

func (l *Loop) removeByLabel(label string) {
	if slot, ok := l.slotsByLabel[label]; ok {
		l.Scheduler.Remove(slot)
		delete(l.slotsByLabel, label)
	}
}

// Tick runs one iteration of the control task. It never blocks beyond the
// work it does; the caller is responsible for pacing repeated calls to
// roughly TickPeriod (the event queue's own blocking wait primitive, from
// spec.md §5, is the degenerate single-task case this loop doesn't need
// since every collaborator here is driven synchronously).
//
// Producers run before the drain so everything they push this tick is
// handled the same tick: Engine.Poll feeds CommandReceived from RPC
// traffic directly into Queue (see rpc.Engine's Queue field), and
// pollButton feeds button gestures. The interlock/water-level/NH3 edge
// detectors run after Service.Tick, since they diff against the snapshot
// it just read; their events are narration-only and are handled on the
// following tick's drain — never the safety path, which Service.Tick
// already evaluates directly every tick regardless of the queue.
func (l *Loop) Tick() error {
	if err := l.Engine.Poll(); err != nil {
		return err
	}
	l.pollButton()

	activity := false
	l.Queue.Drain(func(ev eventqueue.Event) {
		activity = true
		l.handleEvent(ev)
	})

	if err := l.Service.Tick(l.Hardware, l.Sink); err != nil {
		return err
	}
	l.pollSensorEdges()

	tickSecs := uint32(l.TickPeriod / time.Second)
	if tickSecs == 0 {
		tickSecs = 1
	}
	l.Scheduler.Tick(&l.currentHour, tickSecs, l.QuietHours, l)

	l.Engine.RefillRateLimiters(l.TickPeriod.Seconds())

	var rssi *int32
	if l.WifiRSSI != nil {
		rssi = l.WifiRSSI()
	}
	l.Engine.StreamTelemetry(uint32(l.TickPeriod.Milliseconds()), rssi)

	if err := l.Service.AutoSaveIfNeeded(l.ConfigPort); err != nil {
		return err
	}

	mode := l.Power.SuggestMode(l.Service.State(), activity)
	if mode != power.ModeActive && l.Service.State() == ports.Idle {
		shutdown := power.Shutdown{Mdns: l.Mdns, Actuator: l.Hardware, ConfigPort: l.ConfigPort, Watchdog: l.Watchdog}
		if err := shutdown.Execute(l.Service); err != nil {
			return err
		}
		if l.SleepFunc != nil {
			l.SleepFunc(mode)
		}
		return nil
	}

	if l.Watchdog != nil {
		return l.Watchdog.Feed()
	}
	return nil
}

// handleEvent routes one drained queue event to its handler. Button
// gestures reduce to a Command per app.Command's own doc comment; every
// other tag is activity-only narration (the state it reports was already
// acted on directly by Service.Tick).
func (l *Loop) handleEvent(ev eventqueue.Event) {
	switch ev {
	case eventqueue.ButtonShortPress:
		if l.Service.State() == ports.Idle {
			l.Service.HandleCommand(app.Command{Kind: app.CommandStartScrub}, l.Hardware, l.Sink)
		} else {
			l.Service.HandleCommand(app.Command{Kind: app.CommandStopScrub}, l.Hardware, l.Sink)
		}
	case eventqueue.ButtonDoublePress:
		l.Service.HandleCommand(app.Command{Kind: app.CommandStartScrub}, l.Hardware, l.Sink)
	case eventqueue.ButtonLongPress:
		l.Service.HandleCommand(app.Command{Kind: app.CommandForceState, State: ports.Idle}, l.Hardware, l.Sink)
	}
}

// pollButton runs the tick-granularity debounce/gesture state machine
// spec.md §5 describes: a GPIO edge only stores a timestamp, and
// short/long/double-press classification happens here. Thresholds are
// quantized to whole ticks.
func (l *Loop) pollButton() {
	defer func() { l.tickCounter++ }()
	if l.Button == nil {
		return
	}
	shortMaxTicks := l.ticksFor(shortPressMax)
	longMinTicks := l.ticksFor(longPressMin)
	doubleGapTicks := l.ticksFor(doublePressGap)

	pressed := l.Button.Pressed()
	switch {
	case pressed && !l.buttonDown:
		l.buttonDown = true
		l.buttonDownAt = l.tickCounter
	case !pressed && l.buttonDown:
		l.buttonDown = false
		held := l.tickCounter - l.buttonDownAt
		switch {
		case held >= longMinTicks:
			l.Queue.Push(eventqueue.ButtonLongPress)
			l.havePendingUp = false
		case l.havePendingUp && l.tickCounter-l.pendingUpAt <= doubleGapTicks:
			l.Queue.Push(eventqueue.ButtonDoublePress)
			l.havePendingUp = false
		case held < shortMaxTicks:
			l.pendingUpAt = l.tickCounter
			l.havePendingUp = true
		default:
			l.havePendingUp = false
		}
	case !pressed && l.havePendingUp && l.tickCounter-l.pendingUpAt > doubleGapTicks:
		l.Queue.Push(eventqueue.ButtonShortPress)
		l.havePendingUp = false
	}
}

func (l *Loop) ticksFor(d time.Duration) int {
	if l.TickPeriod <= 0 {
		return 1
	}
	ticks := int((d + l.TickPeriod - 1) / l.TickPeriod)
	if ticks < 1 {
		return 1
	}
	return ticks
}

// pollSensorEdges diffs the snapshot Service.Tick just read against the
// previous tick's, pushing the interlock/water-level/NH3-threshold events
// spec.md §5's interrupt-context table assigns to their respective GPIO
// edges — this core has no real ISR, so the control task itself detects
// the edge one tick after the safety supervisor already acted on it.
func (l *Loop) pollSensorEdges() {
	cur := l.Service.LastSensors()
	cfg := l.Service.Config()
	if l.havePrevSensors {
		if cur.UvcInterlockClosed != l.prevSensors.UvcInterlockClosed {
			l.Queue.Push(eventqueue.InterlockChanged)
		}
		if cur.TankASupplyOK != l.prevSensors.TankASupplyOK || cur.TankBCollectionOK != l.prevSensors.TankBCollectionOK {
			l.Queue.Push(eventqueue.WaterLevelChanged)
		}
		crossedUp := l.prevSensors.Nh3PPM < cfg.Nh3ActivateThresholdPPM && cur.Nh3PPM >= cfg.Nh3ActivateThresholdPPM
		crossedDown := l.prevSensors.Nh3PPM > cfg.Nh3DeactivateThresholdPPM && cur.Nh3PPM <= cfg.Nh3DeactivateThresholdPPM
		if crossedUp || crossedDown {
			l.Queue.Push(eventqueue.Nh3ThresholdCrossed)
		}
	}
	l.prevSensors = cur
	l.havePrevSensors = true
}
