package retry

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	gwerr "gobridge/internal/errors"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errRefused = gwerr.Wrap("dial", "127.0.0.1:25334", syscall.ECONNREFUSED)

func refuse() error { return errRefused }
func answer() error { return nil }

func TestCircuitBreaker_NormalOperation(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if err := cb.Execute(answer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %s", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 3})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(refuse); err != errRefused {
			t.Fatalf("attempt %d: err = %v, want the dial error", i, err)
		}
	}

	if cb.CurrentState() != StateOpen {
		t.Errorf("expected open after 3 failures, got %s", cb.CurrentState())
	}
	if cb.Failures() != 3 {
		t.Errorf("expected 3 failures, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures: 1,
		Cooldown:    time.Second,
		Now:         clock.Now,
	})
	cb.Execute(refuse) //nolint:errcheck
	clock.Advance(400 * time.Millisecond)

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if !gwerr.Is(err, gwerr.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn should not have been called when circuit is open")
	}
	want := "circuit breaker is open: 1 consecutive failures, retry in 600ms"
	if err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
	if got := cb.Counts().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:    1,
		Cooldown:       time.Second,
		ProbeSuccesses: 2,
		Now:            clock.Now,
	})

	cb.Execute(refuse) //nolint:errcheck
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.CurrentState())
	}
	clock.Advance(time.Second)

	// First probe succeeds, but two are required to close.
	if err := cb.Execute(answer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.CurrentState() != StateHalfOpen {
		t.Errorf("expected half-open after first probe, got %s", cb.CurrentState())
	}

	if err := cb.Execute(answer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after 2 probes, got %s", cb.CurrentState())
	}
	if cb.Failures() != 0 {
		t.Errorf("expected failures cleared, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures: 1,
		Cooldown:    time.Second,
		Now:         clock.Now,
	})

	cb.Execute(refuse) //nolint:errcheck
	clock.Advance(2 * time.Second)

	// The probe fails, which reopens the circuit for a full cooldown.
	cb.Execute(refuse) //nolint:errcheck
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected open after failed probe, got %s", cb.CurrentState())
	}
	clock.Advance(999 * time.Millisecond)
	if err := cb.Execute(answer); !gwerr.Is(err, gwerr.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen during the new cooldown", err)
	}
}

func TestCircuitBreaker_SingleProbeInFlight(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures: 1,
		Cooldown:    time.Second,
		Now:         clock.Now,
	})
	cb.Execute(refuse) //nolint:errcheck
	clock.Advance(time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe

	if err := cb.Execute(answer); !gwerr.Is(err, gwerr.ErrCircuitOpen) {
		t.Errorf("second caller during probe: err = %v, want ErrCircuitOpen", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after probe, got %s", cb.CurrentState())
	}
}

func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1})

	for _, err := range []error{
		context.Canceled,
		fmt.Errorf("retry cancelled: %w", context.DeadlineExceeded),
	} {
		cb.Execute(func() error { return err }) //nolint:errcheck
	}
	if cb.CurrentState() != StateClosed || cb.Failures() != 0 {
		t.Errorf("state = %s failures = %d, want closed with 0", cb.CurrentState(), cb.Failures())
	}
}

func TestCircuitBreaker_CustomIsFailure(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !gwerr.Is(err, gwerr.ErrUnknownCommand) },
	})

	cb.Execute(func() error { return gwerr.ErrUnknownCommand }) //nolint:errcheck
	if cb.CurrentState() != StateClosed {
		t.Errorf("ignored error should not trip, got %s", cb.CurrentState())
	}
	cb.Execute(refuse) //nolint:errcheck
	if cb.CurrentState() != StateOpen {
		t.Errorf("counted error should trip, got %s", cb.CurrentState())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures: 1,
		Cooldown:    time.Hour,
	})

	cb.Execute(refuse) //nolint:errcheck
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.CurrentState())
	}

	cb.Reset()
	want := Counts{State: StateClosed}
	if diff := cmp.Diff(want, cb.Counts()); diff != "" {
		t.Errorf("Counts() after reset mismatch (-want +got):\n%s", diff)
	}
}

func TestCircuitBreaker_StateChange(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures: 1,
		Cooldown:    time.Second,
		Now:         clock.Now,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s→%s", from, to))
		},
	})

	cb.Execute(refuse) //nolint:errcheck
	clock.Advance(time.Second)
	cb.Execute(answer) //nolint:errcheck
	cb.Execute(refuse) //nolint:errcheck
	cb.Reset()

	want := []string{"closed→open", "open→half-open", "half-open→closed", "closed→open", "open→closed"}
	if diff := cmp.Diff(want, transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestCircuitBreaker_StateChangeMayInspectBreaker(t *testing.T) {
	var cb *CircuitBreaker
	var seen []State
	cb = NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures: 1,
		OnStateChange: func(_, _ State) {
			seen = append(seen, cb.CurrentState())
		},
	})

	cb.Execute(refuse) //nolint:errcheck
	if diff := cmp.Diff([]State{StateOpen}, seen); diff != "" {
		t.Errorf("states seen from hook (-want +got):\n%s", diff)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCircuitBreaker_NilConfig(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	if cb.maxFailures != defaultMaxFailures {
		t.Errorf("maxFailures = %d, want %d", cb.maxFailures, defaultMaxFailures)
	}
	if cb.cooldown != defaultCooldown {
		t.Errorf("cooldown = %v, want %v", cb.cooldown, defaultCooldown)
	}
	if cb.probeSuccesses != defaultProbeSuccesses {
		t.Errorf("probeSuccesses = %d, want %d", cb.probeSuccesses, defaultProbeSuccesses)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 3})

	cb.Execute(refuse) //nolint:errcheck
	cb.Execute(refuse) //nolint:errcheck
	cb.Execute(answer) //nolint:errcheck

	if cb.Failures() != 0 {
		t.Errorf("expected 0 failures after success, got %d", cb.Failures())
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %s", cb.CurrentState())
	}
}
