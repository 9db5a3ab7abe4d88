// Package auth implements the challenge-response PSK authentication and
// per-client rate limiting described in spec.md §4.8: a small state
// machine (Unauthenticated/Challenged/Authenticated) guarding sequence
// and HMAC checks, plus a token-bucket limiter refilled by the outer loop.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"sync/atomic"
)

type state uint8

const (
	stateUnauthenticated state = iota
	stateChallenged
	stateAuthenticated
)

// NonceSize is the length, in bytes, of the challenge nonce.
const NonceSize = 32

// defaultBucketCapacity and defaultRefillRate are spec.md §4.8's defaults:
// capacity 10, refilled at 1 token/second.
const (
	defaultBucketCapacity = 10
	defaultRefillRate     = 1
)

// SessionIDAllocator hands out fresh, process-wide monotonically
// increasing session ids. One allocator is shared by every per-client
// Session so ids never collide across clients.
type SessionIDAllocator struct {
	next atomic.Uint64
}

// NewSessionIDAllocator constructs an allocator starting at 1 (0 is
// reserved to mean "no session").
func NewSessionIDAllocator() *SessionIDAllocator {
	return &SessionIDAllocator{}
}

// Next returns the next session id.
func (a *SessionIDAllocator) Next() uint64 {
	return a.next.Add(1)
}

// Session is one client's authentication and rate-limit state.
type Session struct {
	alloc *SessionIDAllocator

	state      state
	sessionID  uint64
	nonce      [NonceSize]byte
	lastMsgSeq uint64

	tokens     float64
	capacity   float64
	refillRate float64
}

// NewSession constructs a Session in the Unauthenticated state with a
// full rate-limit bucket, allocating session ids from alloc.
func NewSession(alloc *SessionIDAllocator) *Session {
	return &Session{
		alloc:      alloc,
		capacity:   defaultBucketCapacity,
		refillRate: defaultRefillRate,
		tokens:     defaultBucketCapacity,
	}
}

// IsAuthenticated reports whether the session has completed the
// challenge-response handshake.
func (s *Session) IsAuthenticated() bool {
	return s.state == stateAuthenticated
}

// BeginChallenge allocates a fresh session id and a cryptographically
// random nonce, and moves the session to Challenged. It is safe to call
// again from any state (e.g. a client retrying after a dropped response);
// each call discards any prior nonce.
func (s *Session) BeginChallenge() (sessionID uint64, nonce [NonceSize]byte, err error) {
	var n [NonceSize]byte
	if _, err := rand.Read(n[:]); err != nil {
		return 0, [NonceSize]byte{}, err
	}
	s.sessionID = s.alloc.Next()
	s.nonce = n
	s.state = stateChallenged
	return s.sessionID, s.nonce, nil
}

// VerifyResponse checks an HMAC-SHA256(psk, nonce) response against the
// outstanding challenge. It is valid only from Challenged; any mismatch —
// wrong session id, wrong hmac length, wrong hmac content — resets the
// session to Unauthenticated and returns false. On success the session
// becomes Authenticated with last_msg_seq reset to 0.
func (s *Session) VerifyResponse(sessionID uint64, hmacBytes []byte, psk []byte) bool {
	if s.state != stateChallenged || sessionID != s.sessionID {
		s.Reset()
		return false
	}
	mac := hmac.New(sha256.New, psk)
	mac.Write(s.nonce[:])
	expected := mac.Sum(nil)
	if !hmac.Equal(hmacBytes, expected) {
		s.Reset()
		return false
	}
	s.state = stateAuthenticated
	s.lastMsgSeq = 0
	return true
}

// CheckSequence accepts msgID iff the session is Authenticated and
// msgID is strictly greater than the last accepted id. A regression
// terminates the session back to Unauthenticated, per spec.md §6.3.
func (s *Session) CheckSequence(msgID uint64) bool {
	if s.state != stateAuthenticated {
		return false
	}
	if msgID <= s.lastMsgSeq {
		s.Reset()
		return false
	}
	s.lastMsgSeq = msgID
	return true
}

// CheckRateLimit consumes one token from the bucket, returning false if
// none are available.
func (s *Session) CheckRateLimit() bool {
	if s.tokens < 1 {
		return false
	}
	s.tokens--
	return true
}

// Refill tops up the bucket by elapsedSecs*refillRate tokens, capped at
// capacity. Called by the outer loop once per control tick.
func (s *Session) Refill(elapsedSecs float64) {
	s.tokens += elapsedSecs * s.refillRate
	if s.tokens > s.capacity {
		s.tokens = s.capacity
	}
}

// Reset transitions the session back to Unauthenticated, clearing the
// challenge and sequence state. The rate-limit bucket is left untouched —
// it is tracked per connection, not per authentication attempt.
func (s *Session) Reset() {
	s.state = stateUnauthenticated
	s.sessionID = 0
	s.nonce = [NonceSize]byte{}
	s.lastMsgSeq = 0
}
