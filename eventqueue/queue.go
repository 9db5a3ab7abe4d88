// Package eventqueue implements the lock-free single-producer/
// single-consumer event ring the control loop drains every tick. Any
// interrupt handler, timer, or task other than the designated consumer may
// push; only the consumer may pop or drain.
package eventqueue

import "sync/atomic"

// capacity is fixed and must be a power of two so index wraparound reduces
// to a mask, per spec.md §4.1.
const capacity = 32
const mask = capacity - 1

// Queue is a fixed-capacity ring of Event tags. The zero value is not
// usable; construct with New.
//
// head is advanced by producers via compare-and-swap, so multiple
// interrupt sources (possibly on different cores) may call Push
// concurrently without corrupting the ring; tail is advanced only by the
// single designated consumer. A per-slot ready flag closes the window
// between a producer claiming a slot and actually writing into it, so the
// consumer never observes a claimed-but-not-yet-written slot as ready.
type Queue struct {
	buf   [capacity]Event
	ready [capacity]atomic.Bool
	head  atomic.Uint32 // next free write slot; advanced by producers
	tail  atomic.Uint32 // next slot to read; advanced only by the consumer

	// wake is the doorbell: a depth-1 channel the consumer blocks on, and
	// every successful Push notifies without blocking. Mirrors the
	// wakeups chan struct{} field used for the same purpose in the
	// teacher's platform wiring.
	wake chan struct{}
}

// New constructs an empty Queue.
func New() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Push enqueues e. It is safe to call from any context, including
// interrupt handlers: it never allocates, never blocks, and never takes a
// lock (compare-and-swap only). It returns false (dropping e) when the
// queue is full.
func (q *Queue) Push(e Event) bool {
	for {
		h := q.head.Load()
		t := q.tail.Load()
		next := (h + 1) & mask
		if next == (t & mask) {
			return false
		}
		if q.head.CompareAndSwap(h, h+1) {
			idx := h & mask
			q.buf[idx] = e
			q.ready[idx].Store(true)
			q.notify()
			return true
		}
	}
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest event. It must only be called from the
// designated consumer. The second return is false when the queue is empty
// (or the next slot has been claimed by a producer but not yet written).
func (q *Queue) Pop() (Event, bool) {
	t := q.tail.Load()
	h := q.head.Load()
	if t == h {
		return 0, false
	}
	idx := t & mask
	if !q.ready[idx].Load() {
		return 0, false
	}
	e := q.buf[idx]
	q.ready[idx].Store(false)
	q.tail.Store(t + 1)
	return e, true
}

// Drain repeatedly pops until empty, invoking handler in FIFO order. It
// must only be called from the designated consumer.
func (q *Queue) Drain(handler func(Event)) {
	for {
		e, ok := q.Pop()
		if !ok {
			return
		}
		handler(e)
	}
}

// Len returns a snapshot count of queued events (including any slot
// currently mid-claim by a producer that hasn't finished writing yet).
func (q *Queue) Len() int {
	h := q.head.Load()
	t := q.tail.Load()
	return int(h - t)
}

// IsEmpty is a snapshot query equivalent to Len() == 0.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Wait blocks the consumer until a producer notifies via Push, or until a
// value arrives on done (the caller's cancellation/timeout channel). On
// platforms without a wait primitive, callers may instead poll Len on a
// bounded sleep; Wait is provided for platforms that do have one.
func (q *Queue) Wait(done <-chan struct{}) {
	select {
	case <-q.wake:
	case <-done:
	}
}
