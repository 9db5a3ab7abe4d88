package main

import (
	"crypto/rand"
	"log"
	"os"
	"time"

	"scrubcore.dev/app"
	"scrubcore.dev/config"
	"scrubcore.dev/diagnostics"
	"scrubcore.dev/driver/logsink"
	"scrubcore.dev/eventqueue"
	"scrubcore.dev/loop"
	"scrubcore.dev/pid"
	"scrubcore.dev/ports"
	"scrubcore.dev/power"
	"scrubcore.dev/rpc"
	"scrubcore.dev/scheduler"
)

const firmwareVersion = "1.0.0"

// buildLoop wires the platform-independent collaborators around the
// platform-specific adapters a concrete Init supplies, and returns the
// composed loop.Loop ready to Tick, plus the boot reset cause for logging.
func buildLoop(
	hw app.Hardware,
	transport ports.Transport,
	storage ports.StoragePort,
	resetReader ports.ResetCauseReader,
	watchdog ports.WatchdogPort,
	mdns ports.MdnsPort,
	button ports.ButtonReader,
	wifiRSSI func() *int32,
	sleepFunc func(power.Mode),
	freeHeap func() uint64,
	hardwareRevision, serialNumber string,
	psk []byte,
	openOtaPartition rpc.PartitionOpener,
	reboot func(),
) (*loop.Loop, ports.ResetCause, error) {
	configPort := config.NewPort(storage)
	cfg, _ := configPort.Load()

	cause, startState, wakeErr := power.ClassifyWake(resetReader)

	tickPeriod := time.Duration(cfg.ControlLoopIntervalMs) * time.Millisecond
	pidCtl := pid.New(2.0, 0.3, 0.05, 0, 100, float64(cfg.PumpFlowTargetMlPerMin))
	svc := app.NewService(cfg, tickPeriod, startState, pidCtl)

	sink := logsink.New(log.New(os.Stdout, "", log.LstdFlags))
	queue := eventqueue.New()

	engine := rpc.NewEngine(rpc.Config{
		Transport:        transport,
		Service:          svc,
		Hardware:         hw,
		Sink:             sink,
		ConfigPort:       configPort,
		PSK:              psk,
		FirmwareVersion:  firmwareVersion,
		HardwareRevision: hardwareRevision,
		SerialNumber:     serialNumber,
		Metrics:          diagnostics.NewCollector(freeHeap),
		CrashRing:        diagnostics.NewCrashRing(),
		Queue:            queue,
		OpenOtaPartition: openOtaPartition,
		RebootFunc:       reboot,
	})

	l := loop.New(svc, scheduler.New(), engine, power.New(), queue, hw, sink, configPort, tickPeriod)
	l.Watchdog = watchdog
	l.Mdns = mdns
	l.Button = button
	l.WifiRSSI = wifiRSSI
	l.SleepFunc = sleepFunc
	return l, cause, wakeErr
}

// randomPSK is used the first time a platform boots with no pairing PSK yet
// provisioned in secure storage; the engine's auth gate then rejects every
// client until the real PSK is written during onboarding.
func randomPSK() []byte {
	b := make([]byte, 32)
	rand.Read(b)
	return b
}
