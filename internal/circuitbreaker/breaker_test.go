package circuitbreaker

import (
	"sync"
	"testing"
	"time"
)

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	if !b.Allow("payment-service") {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	// 2 failures = still closed
	b.RecordFailure("payment-service")
	b.RecordFailure("payment-service")
	if !b.Allow("payment-service") {
		t.Fatal("should still allow before threshold")
	}

	// 3rd failure = open
	b.RecordFailure("payment-service")
	if b.Allow("payment-service") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("payment-service") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("payment-service"))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("payment-service")
	b.RecordFailure("payment-service")
	if b.Allow("payment-service") {
		t.Fatal("should be open")
	}

	// Wait for open duration.
	time.Sleep(60 * time.Millisecond)

	// Should transition to half-open and allow one probe.
	if !b.Allow("payment-service") {
		t.Fatal("should allow probe in half-open")
	}
	if b.State("payment-service") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("payment-service"))
	}

	// Second request while half-open should be rejected.
	if b.Allow("payment-service") {
		t.Fatal("should reject second request in half-open")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("payment-service")
	b.RecordFailure("payment-service")
	time.Sleep(60 * time.Millisecond)
	b.Allow("payment-service") // Transitions to half-open

	b.RecordSuccess("payment-service")
	if b.State("payment-service") != StateClosed {
		t.Fatalf("expected StateClosed after success, got %v", b.State("payment-service"))
	}
	if !b.Allow("payment-service") {
		t.Fatal("should allow after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("payment-service")
	b.RecordFailure("payment-service")
	time.Sleep(60 * time.Millisecond)
	b.Allow("payment-service") // Transitions to half-open

	b.RecordFailure("payment-service")
	if b.State("payment-service") != StateOpen {
		t.Fatalf("expected StateOpen after half-open failure, got %v", b.State("payment-service"))
	}
}

func TestBreaker_SuccessResets(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure("payment-service")
	b.RecordFailure("payment-service")
	b.RecordSuccess("payment-service")

	// Should not trip with only 1 more failure (counter was reset).
	b.RecordFailure("payment-service")
	if !b.Allow("payment-service") {
		t.Fatal("should still be closed after reset")
	}
}

func TestBreaker_IndependentKeys(t *testing.T) {
	b := New(2, 100*time.Millisecond)

	b.RecordFailure("payment-service")
	b.RecordFailure("payment-service")

	// svc1 is open, svc2 should be unaffected.
	if b.Allow("payment-service") {
		t.Fatal("payment-service should be open")
	}
	if !b.Allow("account-service") {
		t.Fatal("account-service should be closed")
	}
}

func TestBreaker_UnknownKeyIsClosed(t *testing.T) {
	b := New(2, 100*time.Millisecond)
	if b.State("unknown") != StateClosed {
		t.Fatalf("expected StateClosed for unknown key, got %v", b.State("unknown"))
	}
}

func TestBreaker_OnTransitionCallback(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	var mu sync.Mutex
	var transitions []struct{ from, to State }
	b.OnTransition(func(key string, from, to State) {
		mu.Lock()
		transitions = append(transitions, struct{ from, to State }{from, to})
		mu.Unlock()
	})

	b.RecordFailure("payment-service")
	b.RecordFailure("payment-service") // Should trigger closed→open.

	// Give goroutine time to run.
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].from != StateClosed || transitions[0].to != StateOpen {
		t.Fatalf("expected closed→open, got %v→%v", transitions[0].from, transitions[0].to)
	}
	mu.Unlock()
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestBreaker_AbandonReturnsProbeToOpen(t *testing.T) {
	b := New(1, 20*time.Millisecond)
	b.RecordFailure("payment-service")
	time.Sleep(30 * time.Millisecond)

	if !b.Allow("payment-service") {
		t.Fatal("expected probe to be allowed")
	}
	b.Abandon("payment-service")
	if b.State("payment-service") != StateOpen {
		t.Fatalf("expected StateOpen after abandon, got %v", b.State("payment-service"))
	}
	// Open duration already elapsed, so another probe is allowed at once.
	if !b.Allow("payment-service") {
		t.Fatal("expected a new probe after abandon")
	}
}

func TestBreaker_AbandonIgnoresClosed(t *testing.T) {
	b := New(3, time.Second)
	b.RecordFailure("payment-service")
	b.Abandon("payment-service")
	if b.State("payment-service") != StateClosed {
		t.Fatalf("expected StateClosed, got %v", b.State("payment-service"))
	}
}

func TestBreaker_Snapshot(t *testing.T) {
	b := New(1, time.Minute)
	b.RecordFailure("payment-service")
	b.RecordFailure("account-service")
	b.RecordSuccess("account-service")

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(snap))
	}
	if snap["payment-service"] != StateOpen {
		t.Errorf("payment-service: expected open, got %v", snap["payment-service"])
	}
	if snap["account-service"] != StateOpen {
		t.Errorf("account-service: success while open does not close, got %v", snap["account-service"])
	}
}
