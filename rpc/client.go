package rpc

import (
	"scrubcore.dev/rpc/auth"
	"scrubcore.dev/rpc/codec"
)

// minTelemetryIntervalMs is the floor SubscribeTelemetryRequest clamps
// its requested interval to.
const minTelemetryIntervalMs = 100

// Client is one connected RPC client's decoder, auth session, telemetry
// subscription, outgoing id counter, and OTA session, per spec.md §4.9.
type Client struct {
	Decoder codec.Decoder
	Session *auth.Session
	OTA     *OtaSession

	telemetrySubscribed bool
	telemetryIntervalMs uint32
	telemetryAccumMs    uint32

	nextOutgoingID uint32
}

// NewClient constructs a fresh per-connection Client state, allocating
// its auth session id from alloc.
func NewClient(alloc *auth.SessionIDAllocator) *Client {
	return &Client{
		Session: auth.NewSession(alloc),
		OTA:     NewOtaSession(),
	}
}

// NextOutgoingID returns the next device-initiated message id, with the
// high bit set per spec.md §6.2.
func (c *Client) NextOutgoingID() uint32 {
	c.nextOutgoingID++
	return c.nextOutgoingID | outboundIDFlag
}

// SubscribeTelemetry enables streaming at intervalMs, clamped to a
// minimum of 100ms. Per the Open Question resolution recorded in
// SPEC_FULL.md §9, re-subscribing carries the accumulator forward rather
// than resetting it — only the interval changes.
func (c *Client) SubscribeTelemetry(intervalMs uint32) {
	if intervalMs < minTelemetryIntervalMs {
		intervalMs = minTelemetryIntervalMs
	}
	c.telemetrySubscribed = true
	c.telemetryIntervalMs = intervalMs
}

// UnsubscribeTelemetry disables streaming.
func (c *Client) UnsubscribeTelemetry() {
	c.telemetrySubscribed = false
}

// ShouldStream increments the per-client accumulator by tickMs; when it
// reaches the configured interval it resets and returns true.
func (c *Client) ShouldStream(tickMs uint32) bool {
	if !c.telemetrySubscribed {
		return false
	}
	c.telemetryAccumMs += tickMs
	if c.telemetryAccumMs >= c.telemetryIntervalMs {
		c.telemetryAccumMs = 0
		return true
	}
	return false
}
