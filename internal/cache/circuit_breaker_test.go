package cache

import (
	"fmt"
	"testing"
	"time"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time { return c.t }

func newTestBreaker(maxFailures, halfOpen int) (*CircuitBreaker, *manualClock) {
	clk := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:      maxFailures,
		Timeout:          100 * time.Millisecond,
		HalfOpenMaxCalls: halfOpen,
	}).WithClock(clk.now)
	return cb, clk
}

func fail() error    { return fmt.Errorf("operation failed") }
func succeed() error { return nil }

func TestCircuitBreakerBasicFlow(t *testing.T) {
	cb, _ := newTestBreaker(3, 2)

	if cb.GetState() != CircuitBreakerClosed {
		t.Errorf("Expected initial state to be Closed, got %v", cb.GetState())
	}

	if err := cb.Execute(succeed); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cb.GetState() != CircuitBreakerClosed {
		t.Errorf("Expected state to remain Closed after success, got %v", cb.GetState())
	}
}

func TestCircuitBreakerFailureTransition(t *testing.T) {
	cb, _ := newTestBreaker(2, 2)

	if err := cb.Execute(fail); err == nil {
		t.Error("Expected error, got nil")
	}
	if cb.GetState() != CircuitBreakerClosed {
		t.Errorf("Expected state to be Closed after first failure, got %v", cb.GetState())
	}

	if err := cb.Execute(fail); err == nil {
		t.Error("Expected error, got nil")
	}
	if cb.GetState() != CircuitBreakerOpen {
		t.Errorf("Expected state to be Open after reaching failure threshold, got %v", cb.GetState())
	}
}

func TestCircuitBreakerOpenState(t *testing.T) {
	cb, _ := newTestBreaker(1, 2)
	_ = cb.Execute(fail)

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if err != ErrCircuitBreakerOpen {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
	if called {
		t.Error("Expected function not to be called while open")
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(1, 2)
	_ = cb.Execute(fail)

	clk.t = clk.t.Add(150 * time.Millisecond)

	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("Expected trial call to pass, got %v", err)
	}
	if cb.GetState() != CircuitBreakerHalfOpen {
		t.Errorf("Expected Half-Open after first trial, got %v", cb.GetState())
	}

	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("Expected second trial call to pass, got %v", err)
	}
	if cb.GetState() != CircuitBreakerClosed {
		t.Errorf("Expected Closed after enough successes, got %v", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(1, 2)
	_ = cb.Execute(fail)
	clk.t = clk.t.Add(150 * time.Millisecond)

	_ = cb.Execute(fail)

	if cb.GetState() != CircuitBreakerOpen {
		t.Errorf("Expected Open after a failed trial, got %v", cb.GetState())
	}
	if err := cb.Execute(succeed); err != ErrCircuitBreakerOpen {
		t.Errorf("Expected ErrCircuitBreakerOpen right after reopening, got %v", err)
	}
}

func TestCircuitBreakerStats(t *testing.T) {
	cb, _ := newTestBreaker(3, 2)
	_ = cb.Execute(fail)

	stats := cb.GetStats()
	if stats["state"] != "closed" {
		t.Errorf("Expected state closed, got %v", stats["state"])
	}
	if stats["failure_count"] != 1 {
		t.Errorf("Expected failure_count 1, got %v", stats["failure_count"])
	}
}
