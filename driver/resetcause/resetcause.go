//go:build linux

// Package resetcause implements ports.ResetCauseReader by mmap-ing a
// platform pseudo-register file via golang.org/x/sys/unix, the teacher's
// own low-level-OS-access library (used for inotify in
// cmd/controller/platform_rpi.go), standing in for the microcontroller's
// dedicated reset-cause register that spec.md places out of scope.
package resetcause

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"scrubcore.dev/ports"
)

const registerSize = 4

// Reader reads a 32-bit reset-cause value at offset within path.
type Reader struct {
	path   string
	offset int64

	powerOnValue uint32
	ulpWakeValue uint32
}

// New constructs a Reader over path; powerOnValue/ulpWakeValue are the
// register encodings the platform defines for each cause, with anything
// else classified ResetCauseOther.
func New(path string, offset int64, powerOnValue, ulpWakeValue uint32) *Reader {
	return &Reader{path: path, offset: offset, powerOnValue: powerOnValue, ulpWakeValue: ulpWakeValue}
}

func (r *Reader) ReadResetCause() (ports.ResetCause, error) {
	f, err := os.OpenFile(r.path, os.O_RDONLY, 0)
	if err != nil {
		return ports.ResetCauseOther, fmt.Errorf("resetcause: open %s: %w", r.path, err)
	}
	defer f.Close()

	pageSize := int64(os.Getpagesize())
	pageOffset := r.offset % pageSize
	mapStart := r.offset - pageOffset

	mem, err := unix.Mmap(int(f.Fd()), mapStart, int(pageOffset)+registerSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return ports.ResetCauseOther, fmt.Errorf("resetcause: mmap: %w", err)
	}
	defer unix.Munmap(mem)

	value := binary.LittleEndian.Uint32(mem[pageOffset : pageOffset+registerSize])
	switch value {
	case r.powerOnValue:
		return ports.ResetCausePowerOn, nil
	case r.ulpWakeValue:
		return ports.ResetCauseUlpWake, nil
	default:
		return ports.ResetCauseOther, nil
	}
}
