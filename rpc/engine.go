package rpc

import (
	"scrubcore.dev/app"
	"scrubcore.dev/config"
	"scrubcore.dev/diagnostics"
	"scrubcore.dev/eventqueue"
	"scrubcore.dev/ports"
	"scrubcore.dev/rpc/auth"
	"scrubcore.dev/rpc/codec"
)

// ScheduleRequestDelegate lets SetScheduleRequest/CancelScheduleRequest
// reach the outer loop's scheduler.Scheduler, which the RPC engine does
// not own directly — spec.md §4.9 routes both as "emit CommandReceived
// to outer loop".
type ScheduleRequestDelegate interface {
	RequestSetSchedule(label string, kind uint8, intervalSecs, durationSecs, delaySecs uint32)
	RequestCancelSchedule(label string)
}

// Engine is the multi-client RPC server core from spec.md §4.9: generic
// over a ports.Transport, it decodes frames per client, runs the
// rate/public/auth/sequence dispatch pipeline, and replies.
type Engine struct {
	transport ports.Transport
	service   *app.Service
	hardware  app.Hardware
	sink      ports.EventSinkCapability

	configPort *config.Port
	psk        []byte
	alloc      *auth.SessionIDAllocator
	clients    map[ports.ClientID]*Client

	firmwareVersion  string
	hardwareRevision string
	serialNumber     string

	metrics   *diagnostics.Collector
	crashRing *diagnostics.CrashRing

	scheduleDelegate ScheduleRequestDelegate
	openOtaPartition PartitionOpener
	rebootFunc       func()
	queue            *eventqueue.Queue

	readBuf [4096]byte
}

// Config bundles Engine's construction-time dependencies.
type Config struct {
	Transport        ports.Transport
	Service          *app.Service
	Hardware         app.Hardware
	Sink             ports.EventSinkCapability
	ConfigPort       *config.Port
	PSK              []byte
	FirmwareVersion  string
	HardwareRevision string
	SerialNumber     string
	Metrics          *diagnostics.Collector
	CrashRing        *diagnostics.CrashRing
	OpenOtaPartition PartitionOpener
	RebootFunc       func()

	// Queue receives a CommandReceived tag for every frame that reaches
	// dispatch, per spec.md §5's interrupt-context table ("GPIO edge ...
	// pushes Event"; RPC traffic is this core's software equivalent). Nil
	// is valid — the engine simply runs without feeding the queue.
	Queue *eventqueue.Queue
}

// NewEngine constructs an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		transport:        cfg.Transport,
		service:          cfg.Service,
		hardware:         cfg.Hardware,
		sink:             cfg.Sink,
		configPort:       cfg.ConfigPort,
		psk:              cfg.PSK,
		alloc:            auth.NewSessionIDAllocator(),
		clients:          make(map[ports.ClientID]*Client),
		firmwareVersion:  cfg.FirmwareVersion,
		hardwareRevision: cfg.HardwareRevision,
		serialNumber:     cfg.SerialNumber,
		metrics:          cfg.Metrics,
		crashRing:        cfg.CrashRing,
		openOtaPartition: cfg.OpenOtaPartition,
		rebootFunc:       cfg.RebootFunc,
		queue:            cfg.Queue,
	}
}

// SetScheduleDelegate wires the outer loop's scheduler as the destination
// for SetScheduleRequest/CancelScheduleRequest.
func (e *Engine) SetScheduleDelegate(d ScheduleRequestDelegate) {
	e.scheduleDelegate = d
}

// Poll accepts new clients, reads available bytes from every connected
// client, and dispatches every complete frame. It never blocks.
func (e *Engine) Poll() error {
	for {
		id, ok, err := e.transport.TryAccept()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		e.clients[id] = NewClient(e.alloc)
	}

	for id, c := range e.clients {
		if !e.transport.IsConnected(id) {
			delete(e.clients, id)
			continue
		}
		n, err := e.transport.ReadClient(id, e.readBuf[:])
		if err != nil {
			delete(e.clients, id)
			continue
		}
		if n == 0 {
			continue
		}
		frame, ok := c.Decoder.Feed(e.readBuf[:n])
		for ok {
			e.dispatch(id, c, frame)
			frame, ok = c.Decoder.Feed(nil)
		}
	}
	return nil
}

// RefillRateLimiters tops up every connected client's token bucket.
// Called once per control tick by the outer loop.
func (e *Engine) RefillRateLimiters(elapsedSecs float64) {
	for _, c := range e.clients {
		c.Session.Refill(elapsedSecs)
	}
}

// StreamTelemetry advances every client's telemetry accumulator by
// tickMs and pushes a device-initiated StatusResponse to any that are
// due, per spec.md §4.9's should_stream.
func (e *Engine) StreamTelemetry(tickMs uint32, wifiRSSI *int32) {
	wire := telemetryToWire(e.service.BuildTelemetry(wifiRSSI))
	for id, c := range e.clients {
		if c.ShouldStream(tickMs) {
			e.reply(id, c.NextOutgoingID(), KindStatusResponse, StatusResponsePayload{Telemetry: wire})
		}
	}
}

func telemetryToWire(t app.Telemetry) TelemetryWire {
	w := TelemetryWire{
		State:        uint8(t.State),
		Nh3PPM:       t.Sensors.Nh3PPM,
		Nh3AvgPPM:    t.Sensors.Nh3AvgPPM,
		FlowMlPerMin: t.Sensors.FlowMlPerMin,
		FlowDetected: t.Sensors.FlowDetected,
		TemperatureC: t.Sensors.TemperatureC,
		Faults:       uint8(t.Faults),
		PumpDuty:     t.Commands.PumpDuty,
		UvcDuty:      t.Commands.UvcDuty,
	}
	if t.WifiRSSI != nil {
		w.HasWifiRSSI = true
		w.WifiRSSI = *t.WifiRSSI
	}
	return w
}

func (e *Engine) reply(id ports.ClientID, requestID uint32, kind PayloadKind, payload any) {
	data, err := EncodeMessage(requestID, kind, payload)
	if err != nil {
		return
	}
	out := make([]byte, codec.MaxPayload+8)
	n, ok := codec.Encode(data, out)
	if !ok {
		return
	}
	if _, err := e.transport.WriteClient(id, out[:n]); err != nil {
		return
	}
	e.transport.FlushClient(id)
}

func (e *Engine) ack(id ports.ClientID, requestID uint32, success bool, message string) {
	e.reply(id, requestID, KindAck, AckPayload{Success: success, Message: message})
}

// dispatch runs one frame through the rate/public/auth/sequence pipeline
// from spec.md §4.9 and hands it to the matching handler.
func (e *Engine) dispatch(id ports.ClientID, c *Client, frame []byte) {
	msg, err := DecodeMessage(frame)
	if err != nil {
		return
	}

	if e.queue != nil {
		e.queue.Push(eventqueue.CommandReceived)
	}

	if !c.Session.CheckRateLimit() {
		e.ack(id, msg.ID, false, "rate limit")
		return
	}

	switch msg.Kind {
	case KindAuthChallengeRequest:
		e.handleAuthChallenge(id, msg, c)
		return
	case KindAuthVerifyRequest:
		e.handleAuthVerify(id, msg, c)
		return
	case KindGetDeviceInfoRequest:
		e.handleGetDeviceInfo(id, msg)
		return
	}

	if !c.Session.IsAuthenticated() {
		e.ack(id, msg.ID, false, "authentication required")
		return
	}
	if !c.Session.CheckSequence(uint64(msg.ID)) {
		e.ack(id, msg.ID, false, "sequence check failed")
		return
	}

	switch msg.Kind {
	case KindGetStatusRequest:
		e.handleGetStatus(id, msg)
	case KindStartScrubRequest:
		e.service.HandleCommand(app.Command{Kind: app.CommandStartScrub}, e.hardware, e.sink)
		e.ack(id, msg.ID, true, "scrub started")
	case KindStopScrubRequest:
		e.service.HandleCommand(app.Command{Kind: app.CommandStopScrub}, e.hardware, e.sink)
		e.ack(id, msg.ID, true, "scrub stopped")
	case KindClearFaultsRequest:
		if e.sink != nil {
			e.sink.Emit(ports.AppEvent{Kind: ports.EventCommandReceived})
		}
		e.ack(id, msg.ID, true, "faults cleared")
	case KindSetConfigRequest:
		e.handleSetConfig(id, msg)
	case KindSetScheduleRequest:
		e.handleSetSchedule(id, msg)
	case KindCancelScheduleRequest:
		e.handleCancelSchedule(id, msg)
	case KindSubscribeTelemetryRequest:
		e.handleSubscribeTelemetry(id, msg, c)
	case KindUnsubscribeTelemetryRequest:
		c.UnsubscribeTelemetry()
		e.ack(id, msg.ID, true, "unsubscribed")
	case KindOtaBeginRequest:
		e.handleOtaBegin(id, msg, c)
	case KindOtaChunkRequest:
		e.handleOtaChunk(id, msg, c)
	case KindOtaFinalizeRequest:
		e.handleOtaFinalize(id, msg, c)
	case KindGetDiagnosticsRequest:
		e.handleGetDiagnostics(id, msg)
	case KindClearDiagnosticsRequest:
		e.crashRing.Clear()
		e.ack(id, msg.ID, true, "diagnostics cleared")
	default:
		e.ack(id, msg.ID, false, "unknown request")
	}
}

func (e *Engine) handleAuthChallenge(id ports.ClientID, msg Message, c *Client) {
	sessionID, nonce, err := c.Session.BeginChallenge()
	if err != nil {
		e.ack(id, msg.ID, false, "challenge failed")
		return
	}
	e.reply(id, msg.ID, KindAuthChallengeResponse, AuthChallengeResponsePayload{Nonce: nonce, SessionID: sessionID})
}

func (e *Engine) handleAuthVerify(id ports.ClientID, msg Message, c *Client) {
	var req AuthVerifyRequestPayload
	if err := DecodePayload(msg.Payload, &req); err != nil {
		e.reply(id, msg.ID, KindAuthVerifyResponse, AuthVerifyResponsePayload{Success: false, Message: "malformed request"})
		return
	}
	ok := c.Session.VerifyResponse(req.SessionID, req.Hmac, e.psk)
	respMsg := "authenticated"
	if !ok {
		respMsg = "authentication failed"
	}
	e.reply(id, msg.ID, KindAuthVerifyResponse, AuthVerifyResponsePayload{Success: ok, Message: respMsg})
}

func (e *Engine) handleGetDeviceInfo(id ports.ClientID, msg Message) {
	m := e.metrics.Collect(e.crashRing)
	e.reply(id, msg.ID, KindDeviceInfoResponse, DeviceInfoResponsePayload{
		FirmwareVersion:  e.firmwareVersion,
		HardwareRevision: e.hardwareRevision,
		SerialNumber:     e.serialNumber,
		UptimeSecs:       m.UptimeSecs,
	})
}

func (e *Engine) handleGetStatus(id ports.ClientID, msg Message) {
	wire := telemetryToWire(e.service.BuildTelemetry(nil))
	e.reply(id, msg.ID, KindStatusResponse, StatusResponsePayload{Telemetry: wire})
}

func (e *Engine) handleSetConfig(id ports.ClientID, msg Message) {
	var req SetConfigRequestPayload
	if err := DecodePayload(msg.Payload, &req); err != nil {
		e.ack(id, msg.ID, false, "malformed request")
		return
	}
	cfg := config.SystemConfig{
		PumpFlowTargetMlPerMin:    req.PumpFlowTargetMlPerMin,
		PumpDutyPercent:           req.PumpDutyPercent,
		Nh3ActivateThresholdPPM:   req.Nh3ActivateThresholdPPM,
		Nh3DeactivateThresholdPPM: req.Nh3DeactivateThresholdPPM,
		Nh3ConfirmDurationSecs:    req.Nh3ConfirmDurationSecs,
		UvcDutyPercent:            req.UvcDutyPercent,
		MaxTemperatureC:           req.MaxTemperatureC,
		PurgeDurationSecs:         req.PurgeDurationSecs,
		MinWaterLevelPercent:      req.MinWaterLevelPercent,
		SensorReadIntervalMs:      req.SensorReadIntervalMs,
		ControlLoopIntervalMs:     req.ControlLoopIntervalMs,
		TelemetryIntervalSecs:     req.TelemetryIntervalSecs,
	}
	if err := cfg.Validate(); err != nil {
		e.ack(id, msg.ID, false, err.Error())
		return
	}
	e.service.HandleCommand(app.Command{Kind: app.CommandUpdateConfig, Config: cfg}, e.hardware, e.sink)
	e.ack(id, msg.ID, true, "config updated")
}

func (e *Engine) handleSetSchedule(id ports.ClientID, msg Message) {
	var req SetScheduleRequestPayload
	if err := DecodePayload(msg.Payload, &req); err != nil {
		e.ack(id, msg.ID, false, "malformed request")
		return
	}
	if e.scheduleDelegate != nil {
		e.scheduleDelegate.RequestSetSchedule(req.Label, req.Kind, req.IntervalSecs, req.DurationSecs, req.DelaySecs)
	}
	if e.sink != nil {
		e.sink.Emit(ports.AppEvent{Kind: ports.EventCommandReceived, Label: req.Label})
	}
	e.ack(id, msg.ID, true, "schedule set")
}

func (e *Engine) handleCancelSchedule(id ports.ClientID, msg Message) {
	var req CancelScheduleRequestPayload
	if err := DecodePayload(msg.Payload, &req); err != nil {
		e.ack(id, msg.ID, false, "malformed request")
		return
	}
	if e.scheduleDelegate != nil {
		e.scheduleDelegate.RequestCancelSchedule(req.Label)
	}
	if e.sink != nil {
		e.sink.Emit(ports.AppEvent{Kind: ports.EventCommandReceived, Label: req.Label})
	}
	e.ack(id, msg.ID, true, "schedule cancelled")
}

func (e *Engine) handleSubscribeTelemetry(id ports.ClientID, msg Message, c *Client) {
	var req SubscribeTelemetryRequestPayload
	if err := DecodePayload(msg.Payload, &req); err != nil {
		e.ack(id, msg.ID, false, "malformed request")
		return
	}
	c.SubscribeTelemetry(req.IntervalMs)
	e.ack(id, msg.ID, true, "subscribed")
}

func (e *Engine) handleOtaBegin(id ports.ClientID, msg Message, c *Client) {
	var req OtaBeginRequestPayload
	if err := DecodePayload(msg.Payload, &req); err != nil {
		e.ack(id, msg.ID, false, "malformed request")
		return
	}
	if err := c.OTA.Begin(req.SizeBytes, req.Sha256, e.openOtaPartition); err != nil {
		e.ack(id, msg.ID, false, err.Error())
		return
	}
	e.ack(id, msg.ID, true, "ota started")
}

func (e *Engine) handleOtaChunk(id ports.ClientID, msg Message, c *Client) {
	var req OtaChunkRequestPayload
	if err := DecodePayload(msg.Payload, &req); err != nil {
		e.reply(id, msg.ID, KindOtaResponse, OtaResponsePayload{Success: false, Message: "malformed request"})
		return
	}
	written, err := c.OTA.WriteChunk(req.Offset, req.Data)
	if err != nil {
		e.reply(id, msg.ID, KindOtaResponse, OtaResponsePayload{Success: false, Message: err.Error(), BytesWritten: written})
		return
	}
	e.reply(id, msg.ID, KindOtaResponse, OtaResponsePayload{Success: true, BytesWritten: written})
}

func (e *Engine) handleOtaFinalize(id ports.ClientID, msg Message, c *Client) {
	if err := c.OTA.Finalize(); err != nil {
		e.ack(id, msg.ID, false, err.Error())
		return
	}
	e.ack(id, msg.ID, true, "rebooting")
	if e.rebootFunc != nil {
		c.OTA.Reboot(e.rebootFunc)
	}
}

func (e *Engine) handleGetDiagnostics(id ports.ClientID, msg Message) {
	m := e.metrics.Collect(e.crashRing)
	e.reply(id, msg.ID, KindDiagnosticsResponse, DiagnosticsResponsePayload{
		UptimeSecs:    m.UptimeSecs,
		FreeHeapBytes: m.FreeHeapBytes,
		CrashCount:    uint32(m.CrashCount),
	})
}
