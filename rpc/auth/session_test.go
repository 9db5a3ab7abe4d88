package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"
)

func authenticate(t *testing.T, s *Session, psk []byte) uint64 {
	t.Helper()
	id, nonce, err := s.BeginChallenge()
	if err != nil {
		t.Fatalf("begin challenge: %v", err)
	}
	mac := hmac.New(sha256.New, psk)
	mac.Write(nonce[:])
	sum := mac.Sum(nil)
	if !s.VerifyResponse(id, sum, psk) {
		t.Fatal("expected verify to succeed with a correct hmac")
	}
	return id
}

// TestAuthHandshake is concrete scenario 5.
func TestAuthHandshake(t *testing.T) {
	psk := []byte("shared-secret")
	s := NewSession(NewSessionIDAllocator())
	authenticate(t, s, psk)
	if !s.IsAuthenticated() {
		t.Fatal("expected session to be authenticated")
	}
	if !s.CheckSequence(1) {
		t.Fatal("expected id=1 to be accepted")
	}
	if s.CheckSequence(1) {
		t.Fatal("expected a repeated id=1 to be rejected")
	}
}

func TestVerifyResponseRejectsWrongSessionID(t *testing.T) {
	psk := []byte("shared-secret")
	s := NewSession(NewSessionIDAllocator())
	id, nonce, _ := s.BeginChallenge()
	mac := hmac.New(sha256.New, psk)
	mac.Write(nonce[:])
	sum := mac.Sum(nil)
	if s.VerifyResponse(id+1, sum, psk) {
		t.Fatal("expected wrong session id to be rejected")
	}
	if s.IsAuthenticated() {
		t.Fatal("session must not be authenticated after rejection")
	}
}

func TestVerifyResponseRejectsWrongHmac(t *testing.T) {
	s := NewSession(NewSessionIDAllocator())
	id, _, _ := s.BeginChallenge()
	if s.VerifyResponse(id, []byte("garbage"), []byte("psk")) {
		t.Fatal("expected wrong hmac to be rejected")
	}
}

func TestVerifyResponseOnlyValidFromChallenged(t *testing.T) {
	s := NewSession(NewSessionIDAllocator())
	if s.VerifyResponse(1, []byte("anything"), []byte("psk")) {
		t.Fatal("expected verify to fail outside Challenged")
	}
}

// TestSequenceMonotonicity is testable property 6.
func TestSequenceMonotonicity(t *testing.T) {
	psk := []byte("psk")
	s := NewSession(NewSessionIDAllocator())
	authenticate(t, s, psk)
	if !s.CheckSequence(5) {
		t.Fatal("expected 5 to be accepted")
	}
	for _, n := range []uint64{1, 4, 5} {
		if s.CheckSequence(n) {
			t.Fatalf("expected %d <= 5 to be rejected", n)
		}
		// a rejection resets the session; re-authenticate to keep probing.
		authenticate(t, s, psk)
		if !s.CheckSequence(5) {
			t.Fatal("expected 5 to be accepted again after re-authenticating")
		}
	}
}

func TestSequenceRegressionTerminatesSession(t *testing.T) {
	psk := []byte("psk")
	s := NewSession(NewSessionIDAllocator())
	authenticate(t, s, psk)
	s.CheckSequence(10)
	if s.CheckSequence(3) {
		t.Fatal("expected regression to be rejected")
	}
	if s.IsAuthenticated() {
		t.Fatal("expected a sequence regression to force the session back to Unauthenticated")
	}
}

func TestCheckSequenceRequiresAuthenticated(t *testing.T) {
	s := NewSession(NewSessionIDAllocator())
	if s.CheckSequence(1) {
		t.Fatal("expected check_sequence to fail outside Authenticated")
	}
}

// TestRateLimitBound is testable property 7: across any window, accepted
// requests never exceed capacity + elapsed*refillRate.
func TestRateLimitBound(t *testing.T) {
	s := NewSession(NewSessionIDAllocator())
	accepted := 0
	for i := 0; i < int(defaultBucketCapacity); i++ {
		if s.CheckRateLimit() {
			accepted++
		}
	}
	if accepted != defaultBucketCapacity {
		t.Fatalf("accepted %d of the initial bucket, want %d", accepted, defaultBucketCapacity)
	}
	if s.CheckRateLimit() {
		t.Fatal("expected the bucket to be empty")
	}
	s.Refill(1) // +1 token/sec * 1s
	if !s.CheckRateLimit() {
		t.Fatal("expected one token to be available after a 1s refill")
	}
	if s.CheckRateLimit() {
		t.Fatal("expected exactly one token from the refill, not two")
	}
}

func TestRefillNeverExceedsCapacity(t *testing.T) {
	s := NewSession(NewSessionIDAllocator())
	s.Refill(1000)
	count := 0
	for s.CheckRateLimit() {
		count++
	}
	if count != defaultBucketCapacity {
		t.Fatalf("drained %d tokens, want capacity %d", count, defaultBucketCapacity)
	}
}

func TestSessionIDAllocatorIsMonotonic(t *testing.T) {
	a := NewSessionIDAllocator()
	prev := a.Next()
	for i := 0; i < 100; i++ {
		next := a.Next()
		if next <= prev {
			t.Fatalf("allocator went backwards: %d then %d", prev, next)
		}
		prev = next
	}
}
