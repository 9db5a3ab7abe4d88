package power

import (
	"errors"
	"testing"
	"time"

	"scrubcore.dev/app"
	"scrubcore.dev/config"
	"scrubcore.dev/pid"
	"scrubcore.dev/ports"
)

func TestSuggestModeStaysActiveUntilIdleThreshold(t *testing.T) {
	m := New()
	for i := 0; i < lightSleepAfterIdleTicks-1; i++ {
		if mode := m.SuggestMode(ports.Idle, false); mode != ModeActive {
			t.Fatalf("tick %d: mode = %v, want Active", i, mode)
		}
	}
}

func TestSuggestModeEscalatesToLightThenDeepSleep(t *testing.T) {
	m := New()
	for i := 0; i < lightSleepAfterIdleTicks; i++ {
		m.SuggestMode(ports.Idle, false)
	}
	if mode := m.SuggestMode(ports.Idle, false); mode != ModeLightSleep {
		t.Fatalf("mode = %v, want LightSleep", mode)
	}
	for i := 0; i < deepSleepAfterIdleTicks-lightSleepAfterIdleTicks-1; i++ {
		m.SuggestMode(ports.Idle, false)
	}
	if mode := m.SuggestMode(ports.Idle, false); mode != ModeDeepSleep {
		t.Fatalf("mode = %v, want DeepSleep", mode)
	}
}

func TestSuggestModeActivityResetsIdleRun(t *testing.T) {
	m := New()
	for i := 0; i < lightSleepAfterIdleTicks+5; i++ {
		m.SuggestMode(ports.Idle, false)
	}
	if mode := m.SuggestMode(ports.Idle, true); mode != ModeActive {
		t.Fatalf("mode = %v, want Active on activity", mode)
	}
	if mode := m.SuggestMode(ports.Idle, false); mode != ModeActive {
		t.Fatalf("idle run should have reset, got %v", mode)
	}
}

func TestSuggestModeNonIdleStateIsAlwaysActive(t *testing.T) {
	m := New()
	for i := 0; i < deepSleepAfterIdleTicks+5; i++ {
		m.SuggestMode(ports.Idle, false)
	}
	if mode := m.SuggestMode(ports.Active, false); mode != ModeActive {
		t.Fatalf("mode = %v, want Active while FSM is Active", mode)
	}
}

type fakeResetReader struct {
	cause ports.ResetCause
	err   error
}

func (f fakeResetReader) ReadResetCause() (ports.ResetCause, error) {
	return f.cause, f.err
}

func TestClassifyWakeUlpWakeStartsAtSensing(t *testing.T) {
	cause, start, err := ClassifyWake(fakeResetReader{cause: ports.ResetCauseUlpWake})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cause != ports.ResetCauseUlpWake || start != ports.Sensing {
		t.Fatalf("cause=%v start=%v", cause, start)
	}
}

func TestClassifyWakePowerOnStartsAtIdle(t *testing.T) {
	cause, start, err := ClassifyWake(fakeResetReader{cause: ports.ResetCausePowerOn})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cause != ports.ResetCausePowerOn || start != ports.Idle {
		t.Fatalf("cause=%v start=%v", cause, start)
	}
}

func TestClassifyWakeReadErrorFallsBackToIdle(t *testing.T) {
	wantErr := errors.New("register unavailable")
	_, start, err := ClassifyWake(fakeResetReader{err: wantErr})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if start != ports.Idle {
		t.Fatalf("start = %v, want Idle on read failure", start)
	}
}

type fakeMdns struct {
	stopped bool
	err     error
}

func (f *fakeMdns) Stop() error {
	f.stopped = true
	return f.err
}

type fakeActuator struct {
	offCalled bool
}

func (a *fakeActuator) SetPump(duty uint8, forward bool) error { return nil }
func (a *fakeActuator) StopPump() error                        { return nil }
func (a *fakeActuator) EnableUvc(duty uint8) error              { return nil }
func (a *fakeActuator) DisableUvc() error                       { return nil }
func (a *fakeActuator) FaultShutdownUvc(reason string) error    { return nil }
func (a *fakeActuator) IsUvcOn() bool                           { return false }
func (a *fakeActuator) SetLED(r, g, b uint8) error              { return nil }
func (a *fakeActuator) AllOff() error                           { a.offCalled = true; return nil }

type fakeWatchdog struct {
	fed bool
}

func (w *fakeWatchdog) Feed() error {
	w.fed = true
	return nil
}

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
func (m *memStorage) Delete(ns, k string) error { delete(m.data, m.key(ns, k)); return nil }
func (m *memStorage) Exists(ns, k string) (bool, error) {
	_, ok := m.data[m.key(ns, k)]
	return ok, nil
}

func TestShutdownExecutesStepsInOrderAndSavesDirtyConfig(t *testing.T) {
	cfg := config.Default()
	pidCtl := pid.New(1, 0.2, 0, 10, 100, float64(cfg.PumpFlowTargetMlPerMin))
	svc := app.NewService(cfg, time.Second, ports.Idle, pidCtl)
	cfg.PumpDutyPercent = 55
	svc.HandleCommand(app.Command{Kind: app.CommandUpdateConfig, Config: cfg}, &fakeActuator{}, nil)
	if !svc.Dirty() {
		t.Fatal("expected service to be dirty after config update")
	}

	mdns := &fakeMdns{}
	act := &fakeActuator{}
	wd := &fakeWatchdog{}
	port := config.NewPort(newMemStorage())

	s := Shutdown{Mdns: mdns, Actuator: act, ConfigPort: port, Watchdog: wd}
	if err := s.Execute(svc); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !mdns.stopped {
		t.Error("expected mDNS to be stopped")
	}
	if !act.offCalled {
		t.Error("expected actuators to be killed")
	}
	if svc.Dirty() {
		t.Error("expected config to be force-saved")
	}
	if !wd.fed {
		t.Error("expected watchdog to be fed")
	}

	loaded, err := port.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PumpDutyPercent != 55 {
		t.Fatalf("loaded pump duty = %d, want 55", loaded.PumpDutyPercent)
	}
}

func TestShutdownToleratesNilCollaborators(t *testing.T) {
	cfg := config.Default()
	pidCtl := pid.New(1, 0.2, 0, 10, 100, float64(cfg.PumpFlowTargetMlPerMin))
	svc := app.NewService(cfg, time.Second, ports.Idle, pidCtl)

	s := Shutdown{}
	if err := s.Execute(svc); err != nil {
		t.Fatalf("execute with no collaborators: %v", err)
	}
}
