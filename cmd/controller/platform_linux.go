//go:build linux

package main

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"syscall"

	"periph.io/x/host/v3/bcm283x"

	"scrubcore.dev/driver/filestore"
	"scrubcore.dev/driver/gpiohw"
	"scrubcore.dev/driver/resetcause"
	"scrubcore.dev/driver/securestore"
	"scrubcore.dev/driver/serialtransport"
	"scrubcore.dev/loop"
	"scrubcore.dev/ports"
	"scrubcore.dev/rpc"
)

const (
	stateDir      = "/var/lib/scrubcore"
	debugUartName = "/dev/ttyAMA0"
	debugUartBaud = 115200

	resetCauseRegisterPath = "/dev/scrubcore-reset-cause"
	resetCausePowerOnValue = 0x00
	resetCauseUlpWakeValue = 0x01

	hardwareRevision = "rpi-rev-a"

	stagingImagePath = stateDir + "/ota-staging.bin"
)

// Init wires the Raspberry-Pi target: real GPIO over periph.io's bcm283x
// driver, a UART debug transport, and secure on-disk storage keyed from
// the kernel's machine-id.
func Init() (*loop.Loop, ports.ResetCause, error) {
	pins := gpiohw.Pins{
		PumpEnable:    bcm283x.GPIO17,
		PumpDirection: bcm283x.GPIO27,
		UvcEnable:     bcm283x.GPIO22,
		LedR:          bcm283x.GPIO23,
		LedG:          bcm283x.GPIO24,
		LedB:          bcm283x.GPIO25,

		InterlockClosed:   bcm283x.GPIO5,
		TankASupplyOK:     bcm283x.GPIO6,
		TankBCollectionOK: bcm283x.GPIO13,
		Button:            bcm283x.GPIO26,
	}
	hw, err := gpiohw.Open(pins, adcChannel("nh3"), adcChannel("flow"), adcChannel("temperature"))
	if err != nil {
		return nil, ports.ResetCauseOther, err
	}

	transport, err := serialtransport.Open(debugUartName, debugUartBaud)
	if err != nil {
		return nil, ports.ResetCauseOther, err
	}

	rawStorage, err := filestore.Open(stateDir)
	if err != nil {
		return nil, ports.ResetCauseOther, err
	}
	secureStorage := securestore.New(rawStorage, machineKey())

	resetReader := resetcause.New(resetCauseRegisterPath, 0, resetCausePowerOnValue, resetCauseUlpWakeValue)

	psk, err := loadOrProvisionPSK(secureStorage)
	if err != nil {
		return nil, ports.ResetCauseOther, err
	}

	return buildLoop(hw, transport, secureStorage, resetReader, noopWatchdog{}, noopMdns{}, hw, nil, nil, freeHeap, hardwareRevision, serialNumber(), psk, openStagingPartition, rebootNow)
}

// adcChannel stands in for whatever ADC front-end the board carries for
// the named analog input; spec.md places the concrete sensor transducer
// out of scope, so this returns a fixed placeholder reading until the
// board-specific channel is wired in.
func adcChannel(name string) gpiohw.AnalogReader {
	return func() (float32, error) { return 0, nil }
}

func freeHeap() uint64 {
	return 0
}

func serialNumber() string {
	b, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	return string(b[:min(len(b), 16)])
}

func machineKey() [32]byte {
	var key [32]byte
	id, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		return key
	}
	copy(key[:], sha256sum(id))
	return key
}

func sha256sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func loadOrProvisionPSK(store *securestore.Store) ([]byte, error) {
	exists, err := store.Exists("psk", "pairing")
	if err != nil {
		return nil, err
	}
	if exists {
		return store.Read("psk", "pairing")
	}
	psk := randomPSK()
	if err := store.Write("psk", "pairing", psk); err != nil {
		return nil, err
	}
	return psk, nil
}

type noopWatchdog struct{}

func (noopWatchdog) Feed() error { return nil }

type noopMdns struct{}

func (noopMdns) Stop() error { return nil }

// stagingPartition implements rpc.OtaPartition by staging the incoming
// image at stagingImagePath and renaming it over the running binary on
// commit. Real A/B flash-partition switching is out of scope (spec.md
// §6.4); this is the full extent of the core's involvement in applying an
// update on this target.
type stagingPartition struct {
	f *os.File
}

func openStagingPartition() (rpc.OtaPartition, error) {
	f, err := os.OpenFile(stagingImagePath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o700)
	if err != nil {
		return nil, err
	}
	return &stagingPartition{f: f}, nil
}

func (p *stagingPartition) Write(offset uint32, data []byte) error {
	_, err := p.f.WriteAt(data, int64(offset))
	return err
}

func (p *stagingPartition) Verify(sha [32]byte) error {
	if _, err := p.f.Seek(0, 0); err != nil {
		return err
	}
	h := sha256.New()
	if _, err := io.Copy(h, p.f); err != nil {
		return err
	}
	var got [32]byte
	copy(got[:], h.Sum(nil))
	if got != sha {
		return fmt.Errorf("staging image checksum mismatch")
	}
	return nil
}

func (p *stagingPartition) Commit() error {
	if err := p.f.Close(); err != nil {
		return err
	}
	self, err := os.Executable()
	if err != nil {
		return err
	}
	return os.Rename(stagingImagePath, self)
}

func rebootNow() {
	syscall.Sync()
	syscall.Reboot(syscall.LINUX_REBOOT_CMD_RESTART)
}
