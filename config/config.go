// Package config defines the tunable runtime SystemConfig, its validation
// rules, and CBOR-encoded persistence, per spec.md §3 and §6.4.
package config

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SystemConfig holds the tunable runtime parameters. Every field has a
// validation range; a config that violates any range MUST be rejected by
// Validate (and therefore by Save), never silently clamped.
//
// Struct tags use the same `keyasint` CBOR convention the teacher's
// bc/urtypes package uses for its own compact wire encoding (see
// DESIGN.md): small integer keys instead of field names keep the encoded
// config blob compact, which matters on flash-constrained storage.
type SystemConfig struct {
	PumpFlowTargetMlPerMin float32 `cbor:"1,keyasint"`
	PumpDutyPercent        uint8   `cbor:"2,keyasint"`
	Nh3ActivateThresholdPPM   float32 `cbor:"3,keyasint"`
	Nh3DeactivateThresholdPPM float32 `cbor:"4,keyasint"`
	Nh3ConfirmDurationSecs    uint32  `cbor:"5,keyasint"`
	UvcDutyPercent            uint8   `cbor:"6,keyasint"`
	MaxTemperatureC           float32 `cbor:"7,keyasint"`
	PurgeDurationSecs         uint32  `cbor:"8,keyasint"`
	MinWaterLevelPercent      uint8   `cbor:"9,keyasint"`
	SensorReadIntervalMs      uint32  `cbor:"10,keyasint"`
	ControlLoopIntervalMs     uint32  `cbor:"11,keyasint"`
	TelemetryIntervalSecs     uint32  `cbor:"12,keyasint"`
}

// Default returns the factory-default configuration, used when no config
// is persisted or the persisted blob is corrupt.
func Default() SystemConfig {
	return SystemConfig{
		PumpFlowTargetMlPerMin:    500,
		PumpDutyPercent:           70,
		Nh3ActivateThresholdPPM:   10.0,
		Nh3DeactivateThresholdPPM: 6.0,
		Nh3ConfirmDurationSecs:    10,
		UvcDutyPercent:            100,
		MaxTemperatureC:           60.0,
		PurgeDurationSecs:         60,
		MinWaterLevelPercent:      10,
		SensorReadIntervalMs:      500,
		ControlLoopIntervalMs:     1000,
		TelemetryIntervalSecs:     30,
	}
}

// ValidationError names the single out-of-range or inconsistent field that
// caused Validate to fail.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: field %s invalid: %s", e.Field, e.Reason)
}

// Validate checks every range invariant in spec.md §3 and the
// deactivate < activate anti-chatter invariant. It returns the first
// violation found; validation never clamps.
func (c SystemConfig) Validate() error {
	type rangeCheck struct {
		field      string
		val        float64
		lo, hi     float64
	}
	// PumpFlowTargetMlPerMin has no range in spec.md §3 and is
	// deliberately not checked here.
	checks := []rangeCheck{
		{"pump_duty_percent", float64(c.PumpDutyPercent), 0, 100},
		{"nh3_activate_threshold_ppm", float64(c.Nh3ActivateThresholdPPM), 1.0, 200.0},
		{"nh3_deactivate_threshold_ppm", float64(c.Nh3DeactivateThresholdPPM), 0.5, 199.0},
		{"uvc_duty_percent", float64(c.UvcDutyPercent), 0, 100},
		{"max_temperature_c", float64(c.MaxTemperatureC), 40.0, 120.0},
		{"purge_duration_secs", float64(c.PurgeDurationSecs), 10, 600},
		{"min_water_level_percent", float64(c.MinWaterLevelPercent), 0, 100},
		{"control_loop_interval_ms", float64(c.ControlLoopIntervalMs), 100, 5000},
		{"telemetry_interval_secs", float64(c.TelemetryIntervalSecs), 5, 3600},
	}
	for _, chk := range checks {
		if chk.val < chk.lo || chk.val > chk.hi {
			return &ValidationError{Field: chk.field, Reason: fmt.Sprintf("must be in [%v, %v], got %v", chk.lo, chk.hi, chk.val)}
		}
	}
	if c.Nh3ConfirmDurationSecs == 0 {
		return &ValidationError{Field: "nh3_confirm_duration_secs", Reason: "must be greater than zero"}
	}
	if c.SensorReadIntervalMs == 0 {
		return &ValidationError{Field: "sensor_read_interval_ms", Reason: "must be greater than zero"}
	}
	if c.Nh3DeactivateThresholdPPM >= c.Nh3ActivateThresholdPPM {
		return &ValidationError{Field: "nh3_deactivate_threshold_ppm", Reason: "must be strictly less than nh3_activate_threshold_ppm"}
	}
	return nil
}

var encMode = func() cbor.EncMode {
	m, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// Encode serializes c as a deterministic compact CBOR blob, suitable for
// the single config-namespace entry described in spec.md §6.4.
func Encode(c SystemConfig) ([]byte, error) {
	return encMode.Marshal(c)
}

// Decode parses a CBOR blob produced by Encode.
func Decode(data []byte) (SystemConfig, error) {
	var c SystemConfig
	if err := cbor.Unmarshal(data, &c); err != nil {
		return SystemConfig{}, err
	}
	return c, nil
}
