// Package serialtransport implements ports.Transport over a single local
// UART, using github.com/tarm/serial exactly as the teacher's
// driver/mjolnir device opener does — a single long-lived serial.Port
// standing in for one connected debug client, since a UART has no notion
// of multiple concurrent peers.
package serialtransport

import (
	"io"

	"github.com/tarm/serial"

	"scrubcore.dev/ports"
)

// soleClientID is the only ports.ClientID this transport ever hands out.
const soleClientID ports.ClientID = 0

// Transport is a single-client ports.Transport over an open UART.
type Transport struct {
	port      *serial.Port
	accepted  bool
	connected bool
}

// Open opens name at baud and returns a Transport ready to accept its one
// client on the first Poll.
func Open(name string, baud int) (*Transport, error) {
	p, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, err
	}
	return &Transport{port: p}, nil
}

func (t *Transport) TryAccept() (ports.ClientID, bool, error) {
	if t.accepted {
		return 0, false, nil
	}
	t.accepted = true
	t.connected = true
	return soleClientID, true, nil
}

func (t *Transport) ReadClient(id ports.ClientID, buf []byte) (int, error) {
	if id != soleClientID || !t.connected {
		return 0, nil
	}
	n, err := t.port.Read(buf)
	if err != nil {
		if err == io.EOF {
			return n, nil
		}
		t.connected = false
		return n, err
	}
	return n, nil
}

func (t *Transport) WriteClient(id ports.ClientID, data []byte) (int, error) {
	if id != soleClientID || !t.connected {
		return 0, io.ErrClosedPipe
	}
	return t.port.Write(data)
}

func (t *Transport) FlushClient(id ports.ClientID) error {
	if id != soleClientID {
		return nil
	}
	return t.port.Flush()
}

func (t *Transport) IsConnected(id ports.ClientID) bool {
	return id == soleClientID && t.connected
}

func (t *Transport) Disconnect(id ports.ClientID) error {
	if id != soleClientID {
		return nil
	}
	t.connected = false
	return t.port.Close()
}
