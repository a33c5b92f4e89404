package remparo

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errDownstream = errors.New("downstream failed")

func failingOp() error { return errDownstream }
func successOp() error { return nil }

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{})

	if cb.config.FailureThreshold != 5 {
		t.Errorf("expected default threshold 5, got %d", cb.config.FailureThreshold)
	}
	if cb.config.RecoveryTimeout != 60*time.Second {
		t.Errorf("expected default recovery timeout 60s, got %v", cb.config.RecoveryTimeout)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected initial state CLOSED, got %s", cb.State())
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(failingOp)
		if cb.State() != StateClosed {
			t.Fatalf("breaker should stay CLOSED below threshold, got %s after %d failures", cb.State(), i+1)
		}
	}

	_ = cb.Execute(failingOp)
	if cb.State() != StateOpen {
		t.Errorf("expected OPEN after 3 consecutive failures, got %s", cb.State())
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	_ = cb.Execute(failingOp)
	_ = cb.Execute(failingOp)
	_ = cb.Execute(successOp)

	if cb.Failures() != 0 {
		t.Errorf("expected failure count reset on success, got %d", cb.Failures())
	}

	// Two more failures must not trip the breaker: the count restarted.
	_ = cb.Execute(failingOp)
	_ = cb.Execute(failingOp)
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", cb.State())
	}
}

func TestCircuitBreakerOpenRejectsWithoutInvoking(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(
		BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute},
		WithBreakerNow(clock.Now),
	)

	_ = cb.Execute(failingOp)
	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	invoked := false
	err := cb.Execute(func() error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if invoked {
		t.Error("operation must not run while the circuit is open")
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(
		BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second},
		WithBreakerNow(clock.Now),
	)

	_ = cb.Execute(failingOp)
	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	clock.Advance(31 * time.Second)

	// The next call is the half-open probe and must be allowed through.
	invoked := false
	err := cb.Execute(func() error {
		invoked = true
		return nil
	})
	if err != nil {
		t.Fatalf("probe should succeed, got %v", err)
	}
	if !invoked {
		t.Fatal("probe must invoke the operation")
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED after successful probe, got %s", cb.State())
	}
	if cb.Failures() != 0 {
		t.Errorf("expected failure count 0 after recovery, got %d", cb.Failures())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(
		BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second},
		WithBreakerNow(clock.Now),
	)

	_ = cb.Execute(failingOp)
	clock.Advance(31 * time.Second)

	if err := cb.Execute(failingOp); !errors.Is(err, errDownstream) {
		t.Fatalf("probe should run and return the operation's error, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("expected OPEN after failed probe, got %s", cb.State())
	}

	// The cooldown restarts from the probe's failure.
	if err := cb.Execute(successOp); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected rejection inside restarted cooldown, got %v", err)
	}
}

func TestCircuitBreakerRejectsBeforeCooldown(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(
		BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute},
		WithBreakerNow(clock.Now),
	)

	_ = cb.Execute(failingOp)

	clock.Advance(59 * time.Second)
	if err := cb.Execute(successOp); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected rejection before cooldown elapsed, got %v", err)
	}
}

func TestCircuitBreakerClassifier(t *testing.T) {
	// Only errDownstream counts as a breaker failure.
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		Classifier:       func(err error) bool { return errors.Is(err, errDownstream) },
	})

	benign := errors.New("validation error")
	_ = cb.Execute(func() error { return benign })
	if cb.State() != StateClosed {
		t.Errorf("unclassified error must not trip the breaker, got %s", cb.State())
	}

	_ = cb.Execute(failingOp)
	if cb.State() != StateOpen {
		t.Errorf("classified error must trip the breaker, got %s", cb.State())
	}
}

func TestGuardPreservesResult(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{})

	got, err := Guard(cb, func() (string, error) {
		return "payload", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "payload" {
		t.Errorf("expected 'payload', got %q", got)
	}

	_, err = Guard(cb, func() (string, error) {
		return "", errDownstream
	})
	if !errors.Is(err, errDownstream) {
		t.Errorf("expected operation error to pass through, got %v", err)
	}
}

func TestCircuitBreakerConcurrentFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 10, RecoveryTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(failingOp)
		}()
	}
	wg.Wait()

	if cb.State() != StateOpen {
		t.Errorf("expected OPEN after concurrent failures past threshold, got %s", cb.State())
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF_OPEN"},
		{CircuitState(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("state %d: expected %q, got %q", tt.state, tt.want, got)
		}
	}
}
