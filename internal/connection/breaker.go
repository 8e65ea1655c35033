package connection

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker position for one connection.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// ErrCircuitOpen rejects a call without touching the transport.
var ErrCircuitOpen = errors.New("circuit open")

// Breaker is the three-state failure guard for one external server.
// Invariant: state == open implies failureCount >= threshold.
type Breaker struct {
	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time
	probing         bool

	threshold  int
	resetAfter time.Duration

	now func() time.Time // test hook
}

func NewBreaker(threshold int, resetAfter time.Duration) *Breaker {
	return &Breaker{
		state:      BreakerClosed,
		threshold:  threshold,
		resetAfter: resetAfter,
		now:        time.Now,
	}
}

// Allow reports whether a call may proceed. When the reset window has
// elapsed on an open breaker, it transitions to half-open and lets exactly
// one probe call through; halfOpened reports that transition. Further
// callers are rejected until the probe outcome is recorded.
func (b *Breaker) Allow() (halfOpened bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return false, nil
	case BreakerHalfOpen:
		if b.probing {
			return false, ErrCircuitOpen
		}
		b.probing = true
		return false, nil
	case BreakerOpen:
		if b.now().Sub(b.lastFailureTime) >= b.resetAfter {
			b.state = BreakerHalfOpen
			b.probing = true
			return true, nil
		}
		return false, ErrCircuitOpen
	default:
		return false, nil
	}
}

// RecordSuccess resets the failure count in every state; a half-open probe
// success closes the breaker. closed reports the half-open to closed
// transition.
func (b *Breaker) RecordSuccess() (closed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	closed = b.state == BreakerHalfOpen
	b.state = BreakerClosed
	b.failureCount = 0
	b.probing = false
	return closed
}

// RecordFailure counts a failed call; crossing the threshold (or failing the
// half-open probe) opens the breaker. opened reports a transition to open.
func (b *Breaker) RecordFailure() (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.probing = false

	switch b.state {
	case BreakerClosed:
		if b.failureCount >= b.threshold {
			b.state = BreakerOpen
			b.lastFailureTime = b.now()
			return true
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.lastFailureTime = b.now()
		return true
	case BreakerOpen:
		b.lastFailureTime = b.now()
	}
	return false
}

// State returns the current breaker position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failure tally.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
