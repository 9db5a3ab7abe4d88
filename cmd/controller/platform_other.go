//go:build !linux

package main

import (
	"time"

	"scrubcore.dev/loop"
	"scrubcore.dev/ports"
)

const hardwareRevision = "dev-host"

// Init wires an in-memory, no-hardware build for development off-target,
// mirroring the teacher's platform_dummy.go fallback for non-Raspberry-Pi
// hosts: every adapter is a harmless in-process stand-in so `go run` on a
// developer's laptop exercises the control loop without real I/O.
func Init() (*loop.Loop, ports.ResetCause, error) {
	hw := &dummyHardware{}
	storage := newMemStorage()
	l, cause, err := buildLoop(hw, dummyTransport{}, storage, dummyResetReader{}, dummyWatchdog{}, dummyMdns{}, nil, nil, nil, func() uint64 { return 0 }, hardwareRevision, "dev-serial", randomPSK(), nil, nil)
	return l, cause, err
}

type dummyHardware struct {
	uvcOn bool
}

func (h *dummyHardware) ReadAll(elapsed time.Duration) (ports.SensorSnapshot, error) {
	return ports.SensorSnapshot{
		TankASupplyOK:      true,
		TankBCollectionOK:  true,
		UvcInterlockClosed: true,
		FlowDetected:       true,
	}, nil
}
func (h *dummyHardware) ReadAmmoniaFast() (float32, error)      { return 0, nil }
func (h *dummyHardware) SetPump(duty uint8, forward bool) error { return nil }
func (h *dummyHardware) StopPump() error                        { return nil }
func (h *dummyHardware) EnableUvc(duty uint8) error              { h.uvcOn = true; return nil }
func (h *dummyHardware) DisableUvc() error                       { h.uvcOn = false; return nil }
func (h *dummyHardware) FaultShutdownUvc(reason string) error    { h.uvcOn = false; return nil }
func (h *dummyHardware) IsUvcOn() bool                           { return h.uvcOn }
func (h *dummyHardware) SetLED(r, g, b uint8) error              { return nil }
func (h *dummyHardware) AllOff() error                           { h.uvcOn = false; return nil }

type dummyTransport struct{}

func (dummyTransport) TryAccept() (ports.ClientID, bool, error)        { return 0, false, nil }
func (dummyTransport) ReadClient(ports.ClientID, []byte) (int, error)  { return 0, nil }
func (dummyTransport) WriteClient(ports.ClientID, []byte) (int, error) { return 0, nil }
func (dummyTransport) FlushClient(ports.ClientID) error                { return nil }
func (dummyTransport) IsConnected(ports.ClientID) bool                 { return false }
func (dummyTransport) Disconnect(ports.ClientID) error                 { return nil }

type dummyResetReader struct{}

func (dummyResetReader) ReadResetCause() (ports.ResetCause, error) {
	return ports.ResetCausePowerOn, nil
}

type dummyWatchdog struct{}

func (dummyWatchdog) Feed() error { return nil }

type dummyMdns struct{}

func (dummyMdns) Stop() error { return nil }

type memStorage struct {
	data map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{data: map[string][]byte{}} }

func (m *memStorage) key(ns, k string) string { return ns + "/" + k }

func (m *memStorage) Read(ns, k string) ([]byte, error) {
	v, ok := m.data[m.key(ns, k)]
	if !ok {
		return nil, &ports.StorageError{Kind: ports.StorageNotFound}
	}
	return v, nil
}

func (m *memStorage) Write(ns, k string, v []byte) error {
	m.data[m.key(ns, k)] = v
	return nil
}

func (m *memStorage) Delete(ns, k string) error {
	delete(m.data, m.key(ns, k))
	return nil
}

func (m *memStorage) Exists(ns, k string) (bool, error) {
	_, ok := m.data[m.key(ns, k)]
	return ok, nil
}
