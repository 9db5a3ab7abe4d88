package eventqueue

// Event is a one-byte tagged event pushed onto the queue by ISRs, timers,
// or software. Ordinal order is the fixed priority order from spec.md §3
// (lower ordinal = higher priority); the queue itself always drains in
// FIFO order regardless of priority — priority is informational, for a
// consumer that wants to reorder a batch after draining.
type Event uint8

const (
	SafetyFault Event = iota
	InterlockChanged
	WaterLevelChanged
	SensorReadTick
	Nh3ThresholdCrossed
	ControlTick
	PurgeTimerExpired
	ScheduledScrub
	TelemetryTick
	CommandReceived
	ButtonShortPress
	ButtonLongPress
	ButtonDoublePress
	IdleTimeout
	UlpWake
	WatchdogTick
	BleConnected
	BleDisconnected
	BleSsidWrite
	BlePasswordWrite
	BlePskWrite
	numEvents
)

func (e Event) String() string {
	switch e {
	case SafetyFault:
		return "safety-fault"
	case InterlockChanged:
		return "interlock-changed"
	case WaterLevelChanged:
		return "water-level-changed"
	case SensorReadTick:
		return "sensor-read-tick"
	case Nh3ThresholdCrossed:
		return "nh3-threshold-crossed"
	case ControlTick:
		return "control-tick"
	case PurgeTimerExpired:
		return "purge-timer-expired"
	case ScheduledScrub:
		return "scheduled-scrub"
	case TelemetryTick:
		return "telemetry-tick"
	case CommandReceived:
		return "command-received"
	case ButtonShortPress:
		return "button-short-press"
	case ButtonLongPress:
		return "button-long-press"
	case ButtonDoublePress:
		return "button-double-press"
	case IdleTimeout:
		return "idle-timeout"
	case UlpWake:
		return "ulp-wake"
	case WatchdogTick:
		return "watchdog-tick"
	case BleConnected:
		return "ble-connected"
	case BleDisconnected:
		return "ble-disconnected"
	case BleSsidWrite:
		return "ble-ssid-write"
	case BlePasswordWrite:
		return "ble-password-write"
	case BlePskWrite:
		return "ble-psk-write"
	default:
		return "unknown"
	}
}

// Valid reports whether e is a defined event tag.
func (e Event) Valid() bool {
	return e < numEvents
}
