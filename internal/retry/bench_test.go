package retry

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	gwerr "gobridge/internal/errors"
)

// BenchmarkBackoff_FirstDialSucceeds measures the overhead a callback
// dial pays when the remote side answers at once.
func BenchmarkBackoff_FirstDialSucceeds(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(_ int) error { return nil }) //nolint:errcheck
	}
}

// BenchmarkBackoff_ClassifiedAsFatal measures early exit when the
// classifier rejects the first error.
func BenchmarkBackoff_ClassifiedAsFatal(b *testing.B) {
	bo := DefaultBackoff()
	bo.Retryable = func(err error) bool { return !errors.Is(err, syscall.ECONNREFUSED) }
	ctx := context.Background()
	refused := gwerr.Wrap("dial", "127.0.0.1:25334", syscall.ECONNREFUSED)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(_ int) error { return refused }) //nolint:errcheck
	}
}

// BenchmarkCircuitBreaker_ClosedPath benchmarks the fast path when the
// circuit is closed and the dial succeeds.
func BenchmarkCircuitBreaker_ClosedPath(b *testing.B) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Execute(func() error { return nil }) //nolint:errcheck
	}
}

// BenchmarkCircuitBreaker_Rejecting benchmarks how quickly an open
// circuit turns callbacks away with ErrCircuitOpen.
func BenchmarkCircuitBreaker_Rejecting(b *testing.B) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:    1,
		Cooldown:       time.Hour,
		ProbeSuccesses: 1,
	})
	cb.Execute(func() error { return syscall.ECONNREFUSED }) //nolint:errcheck

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cb.Execute(func() error { return nil }); !errors.Is(err, gwerr.ErrCircuitOpen) {
			b.Fatalf("expected ErrCircuitOpen, got %v", err)
		}
	}
}

func BenchmarkJitter(b *testing.B) {
	d := defaultInitialDelay
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = addJitter(d)
	}
}
