// Package gpiohw implements ports.Sensor and ports.Actuator over discrete
// GPIO pins via periph.io, the same GPIO library the teacher's
// driver/wshat button poller uses, generalized from buttons to the
// scrubber's pump/UV-C/LED actuators and digital sensor inputs.
package gpiohw

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3"

	"scrubcore.dev/ports"
)

// AnalogReader abstracts whatever ADC channel the target board exposes
// for the ammonia, flow-rate, and temperature sensors. periph.io/x/conn/v3
// has no single generic ADC interface across boards, so the concrete
// channel is supplied by the caller at Open time.
type AnalogReader func() (float32, error)

// Pins names every discrete GPIO line this adapter drives or reads.
type Pins struct {
	PumpEnable    gpio.PinOut
	PumpDirection gpio.PinOut
	UvcEnable     gpio.PinOut
	LedR, LedG, LedB gpio.PinOut

	InterlockClosed   gpio.PinIn
	TankASupplyOK     gpio.PinIn
	TankBCollectionOK gpio.PinIn
	Button            gpio.PinIn
}

// Hardware is the gpio-backed app.Hardware implementation.
type Hardware struct {
	pins Pins

	readNh3         AnalogReader
	readFlow        AnalogReader
	readTemperature AnalogReader

	uvcOn bool
}

// Open initializes the periph.io host drivers and returns a Hardware
// driving pins, sampling the three analog channels on every ReadAll.
func Open(pins Pins, nh3, flow, temperature AnalogReader) (*Hardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpiohw: host init: %w", err)
	}
	return &Hardware{pins: pins, readNh3: nh3, readFlow: flow, readTemperature: temperature}, nil
}

func (h *Hardware) ReadAll(elapsed time.Duration) (ports.SensorSnapshot, error) {
	nh3, err := h.readNh3()
	if err != nil {
		return ports.SensorSnapshot{}, fmt.Errorf("gpiohw: read nh3: %w", err)
	}
	flow, err := h.readFlow()
	if err != nil {
		return ports.SensorSnapshot{}, fmt.Errorf("gpiohw: read flow: %w", err)
	}
	temp, err := h.readTemperature()
	if err != nil {
		return ports.SensorSnapshot{}, fmt.Errorf("gpiohw: read temperature: %w", err)
	}
	return ports.SensorSnapshot{
		Nh3PPM:             nh3,
		Nh3AvgPPM:          nh3,
		FlowMlPerMin:       flow,
		FlowDetected:       flow > 0,
		TankASupplyOK:      readLevel(h.pins.TankASupplyOK),
		TankBCollectionOK:  readLevel(h.pins.TankBCollectionOK),
		TemperatureC:       temp,
		UvcInterlockClosed: readLevel(h.pins.InterlockClosed),
	}, nil
}

func (h *Hardware) ReadAmmoniaFast() (float32, error) {
	return h.readNh3()
}

func (h *Hardware) SetPump(duty uint8, forward bool) error {
	if err := h.pins.PumpDirection.Out(level(forward)); err != nil {
		return err
	}
	return h.pins.PumpEnable.Out(level(duty > 0))
}

func (h *Hardware) StopPump() error {
	return h.pins.PumpEnable.Out(gpio.Low)
}

func (h *Hardware) EnableUvc(duty uint8) error {
	if err := h.pins.UvcEnable.Out(gpio.High); err != nil {
		return err
	}
	h.uvcOn = true
	return nil
}

func (h *Hardware) DisableUvc() error {
	if err := h.pins.UvcEnable.Out(gpio.Low); err != nil {
		return err
	}
	h.uvcOn = false
	return nil
}

func (h *Hardware) FaultShutdownUvc(reason string) error {
	return h.DisableUvc()
}

func (h *Hardware) IsUvcOn() bool {
	return h.uvcOn
}

// Pressed implements ports.ButtonReader: the front-panel button's raw pin
// level, read once per call with no debouncing of its own. Tick-granular
// sampling and gesture detection happen one layer up, in the control
// task. Unlike readLevel's fail-open convention for safety inputs, an
// unwired button pin reads as not pressed rather than permanently held.
func (h *Hardware) Pressed() bool {
	if h.pins.Button == nil {
		return false
	}
	return h.pins.Button.Read() == gpio.High
}

func (h *Hardware) SetLED(r, g, b uint8) error {
	return errors.Join(
		h.pins.LedR.Out(level(r > 0)),
		h.pins.LedG.Out(level(g > 0)),
		h.pins.LedB.Out(level(b > 0)),
	)
}

func (h *Hardware) AllOff() error {
	return errors.Join(h.StopPump(), h.DisableUvc(), h.SetLED(0, 0, 0))
}

func level(on bool) gpio.Level {
	if on {
		return gpio.High
	}
	return gpio.Low
}

func readLevel(pin gpio.PinIn) bool {
	if pin == nil {
		return true
	}
	return pin.Read() == gpio.High
}
