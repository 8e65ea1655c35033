package connection

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int, resetAfter time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(threshold, resetAfter)
	current := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return current }
	return b, &current
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		if opened := b.RecordFailure(); opened {
			t.Fatalf("breaker opened after %d failures, want threshold 5", i+1)
		}
	}
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("state = %s after 4 failures, want closed", got)
	}

	if opened := b.RecordFailure(); !opened {
		t.Fatal("fifth failure did not open the breaker")
	}
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %s, want open", got)
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b, clock := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	// Inside the reset window every call is rejected.
	*clock = clock.Add(30 * time.Second)
	if _, err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() err = %v, want ErrCircuitOpen", err)
	}
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %s, want open", got)
	}
}

func TestBreakerHalfOpensAfterResetWindow(t *testing.T) {
	b, clock := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	*clock = clock.Add(time.Minute)
	halfOpened, err := b.Allow()
	if err != nil {
		t.Fatalf("Allow() after reset window: %v", err)
	}
	if !halfOpened {
		t.Fatal("Allow() did not report half-open transition")
	}
	if got := b.State(); got != BreakerHalfOpen {
		t.Fatalf("state = %s, want half-open", got)
	}
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	b, clock := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*clock = clock.Add(time.Minute)

	if _, err := b.Allow(); err != nil {
		t.Fatalf("Allow() for the probe: %v", err)
	}
	// A concurrent caller must not slip through while the probe is in flight.
	if _, err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() during probe err = %v, want ErrCircuitOpen", err)
	}

	// The probe outcome frees the slot: success closes the breaker entirely.
	b.RecordSuccess()
	if _, err := b.Allow(); err != nil {
		t.Fatalf("Allow() after probe success: %v", err)
	}
}

func TestBreakerProbeFailureFreesProbeSlot(t *testing.T) {
	b, clock := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*clock = clock.Add(time.Minute)
	b.Allow()
	b.RecordFailure()

	// After the reopen another reset window earns a fresh probe slot.
	*clock = clock.Add(time.Minute)
	halfOpened, err := b.Allow()
	if err != nil {
		t.Fatalf("Allow() after second reset window: %v", err)
	}
	if !halfOpened {
		t.Fatal("Allow() did not report half-open transition")
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*clock = clock.Add(time.Minute)
	if _, err := b.Allow(); err != nil {
		t.Fatalf("Allow(): %v", err)
	}

	if closed := b.RecordSuccess(); !closed {
		t.Fatal("probe success did not report closed transition")
	}
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("state = %s, want closed", got)
	}
	if got := b.FailureCount(); got != 0 {
		t.Fatalf("failure count = %d after close, want 0", got)
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*clock = clock.Add(time.Minute)
	if _, err := b.Allow(); err != nil {
		t.Fatalf("Allow(): %v", err)
	}

	if opened := b.RecordFailure(); !opened {
		t.Fatal("probe failure did not reopen the breaker")
	}

	// The reset window restarts from the probe failure.
	*clock = clock.Add(30 * time.Second)
	if _, err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsCountWhileClosed(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	if got := b.FailureCount(); got != 0 {
		t.Fatalf("failure count = %d after success, want 0", got)
	}

	// A fresh run of failures is needed to open again.
	for i := 0; i < 4; i++ {
		if opened := b.RecordFailure(); opened {
			t.Fatalf("breaker opened after %d post-reset failures", i+1)
		}
	}
}
