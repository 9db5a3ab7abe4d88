package scheduler

import (
	"errors"

	"scrubcore.dev/ports"
)

// Capacity is the fixed number of schedule slots.
const Capacity = 4

// ErrFull is returned by Add when no slot is free.
var ErrFull = errors.New("scheduler: no free slot")

// Scheduler holds up to Capacity schedules in fixed slots.
type Scheduler struct {
	slots [Capacity]*Schedule
}

// New constructs an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Add inserts schedule into the first free slot and returns its index, or
// ErrFull if none is free.
func (s *Scheduler) Add(sch Schedule) (int, error) {
	for i := range s.slots {
		if s.slots[i] == nil {
			cp := sch
			s.slots[i] = &cp
			return i, nil
		}
	}
	return -1, ErrFull
}

// Remove clears slot, if occupied. Out-of-range indices are a no-op.
func (s *Scheduler) Remove(slot int) {
	if slot < 0 || slot >= Capacity {
		return
	}
	s.slots[slot] = nil
}

// Get returns a copy of the schedule in slot, if any.
func (s *Scheduler) Get(slot int) (Schedule, bool) {
	if slot < 0 || slot >= Capacity || s.slots[slot] == nil {
		return Schedule{}, false
	}
	return *s.slots[slot], true
}

// Tick advances every enabled entry by one tick of tickSecs seconds,
// invoking delegate.OnScheduleFired for any entry that fires this tick.
// currentHour, when non-nil, is the wall-clock hour of day (0..23) used for
// quiet-hours suppression of Periodic schedules; pass nil when the
// wall clock is unknown (e.g. not yet synced), which disables quiet-hours
// suppression entirely.
//
// Same-tick tie-break when multiple schedules fire is array/slot order
// ascending — the Open Question resolution recorded in SPEC_FULL.md §9.
func (s *Scheduler) Tick(currentHour *int, tickSecs uint32, quiet QuietHours, delegate Delegate) {
	for i := range s.slots {
		sch := s.slots[i]
		if sch == nil || !sch.Enabled {
			continue
		}
		switch sch.Kind {
		case Periodic:
			tickPeriodic(sch, currentHour, tickSecs, quiet, delegate)
		case Boost:
			tickBoost(sch, tickSecs, delegate)
		case OneShot:
			tickOneShot(sch, tickSecs, delegate)
		}
	}
}

func tickPeriodic(sch *Schedule, currentHour *int, tickSecs uint32, quiet QuietHours, delegate Delegate) {
	sch.ElapsedSecs += tickSecs
	if currentHour != nil && quiet.Contains(*currentHour) {
		// Suppressed this tick; do not reset elapsed so a fire that was
		// due during quiet hours fires as soon as quiet hours end.
		return
	}
	if sch.ElapsedSecs >= sch.IntervalSecs {
		delegate.OnScheduleFired(sch.Label, ports.SchedulePeriodic)
		sch.ElapsedSecs = 0
	}
}

func tickBoost(sch *Schedule, tickSecs uint32, delegate Delegate) {
	if !sch.Fired {
		sch.RemainingSecs = sch.DurationSecs
		sch.Fired = true
		delegate.OnScheduleFired(sch.Label, ports.ScheduleBoost)
	}
	if sch.RemainingSecs <= tickSecs {
		sch.RemainingSecs = 0
		sch.Enabled = false
	} else {
		sch.RemainingSecs -= tickSecs
	}
}

func tickOneShot(sch *Schedule, tickSecs uint32, delegate Delegate) {
	sch.ElapsedSecs += tickSecs
	if !sch.Fired && sch.ElapsedSecs >= sch.DelaySecs {
		sch.Fired = true
		sch.Enabled = false
		delegate.OnScheduleFired(sch.Label, ports.ScheduleOneShot)
	}
}
