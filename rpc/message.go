// Package rpc implements the binary RPC engine from spec.md §4.9: a
// dispatch pipeline (rate gate, public passthrough, auth gate, sequence
// gate, dispatch) driven over a ports.Transport, framed with the codec
// in rpc/codec and authenticated with rpc/auth.
//
// spec.md calls for a FlatBuffer-encoded payload; no FlatBuffers library
// is present anywhere in the example corpus this module was grounded on.
// Message envelopes are instead CBOR-encoded with the same keyasint
// struct-tag convention package config uses for SystemConfig persistence
// (see DESIGN.md for the substitution rationale) — deterministic core
// encoding via cbor.CoreDetEncOptions, and a nested raw CBOR payload
// standing in for FlatBuffers' union.
package rpc

import "github.com/fxamacker/cbor/v2"

// PayloadKind tags which request/response variant a Message carries.
type PayloadKind uint8

const (
	KindAuthChallengeRequest PayloadKind = iota
	KindAuthChallengeResponse
	KindAuthVerifyRequest
	KindAuthVerifyResponse
	KindGetDeviceInfoRequest
	KindDeviceInfoResponse
	KindGetStatusRequest
	KindStatusResponse
	KindStartScrubRequest
	KindStopScrubRequest
	KindClearFaultsRequest
	KindSetConfigRequest
	KindSetScheduleRequest
	KindCancelScheduleRequest
	KindSubscribeTelemetryRequest
	KindUnsubscribeTelemetryRequest
	KindOtaBeginRequest
	KindOtaChunkRequest
	KindOtaFinalizeRequest
	KindOtaResponse
	KindGetDiagnosticsRequest
	KindDiagnosticsResponse
	KindClearDiagnosticsRequest
	KindAck
)

// outboundIDFlag marks an id as device-initiated rather than a reply to a
// client request, per spec.md §6.2.
const outboundIDFlag uint32 = 1 << 31

// Message is the RPC envelope. Payload is the nested, kind-specific
// struct encoded as a raw CBOR value — the union-emulation noted above.
type Message struct {
	ID      uint32          `cbor:"1,keyasint"`
	Kind    PayloadKind     `cbor:"2,keyasint"`
	Payload cbor.RawMessage `cbor:"3,keyasint"`
}

var encMode = func() cbor.EncMode {
	m, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// EncodeMessage serializes id/kind/payload as a Message.
func EncodeMessage(id uint32, kind PayloadKind, payload any) ([]byte, error) {
	raw, err := encMode.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(Message{ID: id, Kind: kind, Payload: raw})
}

// DecodeMessage parses a Message envelope, leaving Payload undecoded.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	err := cbor.Unmarshal(data, &m)
	return m, err
}

// DecodePayload unmarshals msg.Payload into out, a pointer to the
// kind-specific payload struct.
func DecodePayload(payload cbor.RawMessage, out any) error {
	return cbor.Unmarshal(payload, out)
}

// AckPayload is the generic success/failure response most handlers use.
type AckPayload struct {
	Success bool   `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

type AuthChallengeResponsePayload struct {
	Nonce     [32]byte `cbor:"1,keyasint"`
	SessionID uint64   `cbor:"2,keyasint"`
}

type AuthVerifyRequestPayload struct {
	SessionID uint64 `cbor:"1,keyasint"`
	Hmac      []byte `cbor:"2,keyasint"`
}

type AuthVerifyResponsePayload struct {
	Success bool   `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

type DeviceInfoResponsePayload struct {
	FirmwareVersion  string `cbor:"1,keyasint"`
	HardwareRevision string `cbor:"2,keyasint"`
	SerialNumber     string `cbor:"3,keyasint"`
	UptimeSecs       uint64 `cbor:"4,keyasint"`
}

// TelemetryWire is the wire shape of app.Telemetry, decoupled from the
// in-process ports types so the envelope's encoding doesn't leak internal
// struct layout.
type TelemetryWire struct {
	State        uint8   `cbor:"1,keyasint"`
	Nh3PPM       float32 `cbor:"2,keyasint"`
	Nh3AvgPPM    float32 `cbor:"3,keyasint"`
	FlowMlPerMin float32 `cbor:"4,keyasint"`
	FlowDetected bool    `cbor:"5,keyasint"`
	TemperatureC float32 `cbor:"6,keyasint"`
	Faults       uint8   `cbor:"7,keyasint"`
	PumpDuty     uint8   `cbor:"8,keyasint"`
	UvcDuty      uint8   `cbor:"9,keyasint"`
	HasWifiRSSI  bool    `cbor:"10,keyasint"`
	WifiRSSI     int32   `cbor:"11,keyasint"`
}

type StatusResponsePayload struct {
	Telemetry TelemetryWire `cbor:"1,keyasint"`
}

type SetConfigRequestPayload struct {
	PumpFlowTargetMlPerMin    float32 `cbor:"1,keyasint"`
	PumpDutyPercent           uint8   `cbor:"2,keyasint"`
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

type SetScheduleRequestPayload struct {
	Label        string `cbor:"1,keyasint"`
	Kind         uint8  `cbor:"2,keyasint"`
	IntervalSecs uint32 `cbor:"3,keyasint"`
	DurationSecs uint32 `cbor:"4,keyasint"`
	DelaySecs    uint32 `cbor:"5,keyasint"`
}

type CancelScheduleRequestPayload struct {
	Label string `cbor:"1,keyasint"`
}

type SubscribeTelemetryRequestPayload struct {
	IntervalMs uint32 `cbor:"1,keyasint"`
}

type OtaBeginRequestPayload struct {
	SizeBytes uint32   `cbor:"1,keyasint"`
	Sha256    [32]byte `cbor:"2,keyasint"`
}

type OtaChunkRequestPayload struct {
	Offset uint32 `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint"`
}

type OtaResponsePayload struct {
	Success      bool   `cbor:"1,keyasint"`
	Message      string `cbor:"2,keyasint"`
	BytesWritten uint32 `cbor:"3,keyasint"`
}

type DiagnosticsResponsePayload struct {
	UptimeSecs    uint64 `cbor:"1,keyasint"`
	FreeHeapBytes uint64 `cbor:"2,keyasint"`
	CrashCount    uint32 `cbor:"3,keyasint"`
}
