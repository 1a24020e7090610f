package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gwerr "gobridge/internal/errors"
)

// ── Circuit breaker state ────────────────────────────────────────────

// State represents the circuit breaker's operational state.
type State int

const (
	// StateClosed is normal operation: dials pass through.
	StateClosed State = iota
	// StateOpen means the remote side is not answering and dials are
	// rejected until the cooldown expires.
	StateOpen
	// StateHalfOpen lets a single probe through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ── Configuration ────────────────────────────────────────────────────

const (
	defaultMaxFailures    = 5
	defaultCooldown       = 5 * time.Second
	defaultProbeSuccesses = 1
)

// CircuitBreakerConfig configures a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open the
	// circuit (default 5).
	MaxFailures int
	// Cooldown is how long an open circuit rejects calls before letting
	// a probe through (default 5s).
	Cooldown time.Duration
	// ProbeSuccesses is the number of consecutive successful probes
	// that close a half-open circuit (default 1).
	ProbeSuccesses int
	// IsFailure decides whether an error counts against the remote
	// side.  The default counts every error except context
	// cancellation and deadline expiry, which are the caller's doing.
	IsFailure func(err error) bool
	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(from, to State)
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns the defaults used for callbacks.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:    defaultMaxFailures,
		Cooldown:       defaultCooldown,
		ProbeSuccesses: defaultProbeSuccesses,
	}
}

func callerFault(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Counts is a point-in-time view of a breaker.
type Counts struct {
	State               State
	ConsecutiveFailures int
	Rejected            int64
}

// ── CircuitBreaker ───────────────────────────────────────────────────

// CircuitBreaker stops a client from hammering a remote side that is
// not listening.  After MaxFailures consecutive failures it opens and
// turns calls away with an error wrapping [gwerr.ErrCircuitOpen]; after
// the cooldown it admits one probe at a time until ProbeSuccesses of
// them succeed.
type CircuitBreaker struct {
	maxFailures    int
	cooldown       time.Duration
	probeSuccesses int
	isFailure      func(error) bool
	onStateChange  func(from, to State)
	now            func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
	rejected  int64
}

// NewCircuitBreaker creates a circuit breaker with the given config.
// A nil config selects the defaults.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	cb := &CircuitBreaker{
		maxFailures:    cfg.MaxFailures,
		cooldown:       cfg.Cooldown,
		probeSuccesses: cfg.ProbeSuccesses,
		isFailure:      cfg.IsFailure,
		onStateChange:  cfg.OnStateChange,
		now:            cfg.Now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = defaultMaxFailures
	}
	if cb.cooldown <= 0 {
		cb.cooldown = defaultCooldown
	}
	if cb.probeSuccesses <= 0 {
		cb.probeSuccesses = defaultProbeSuccesses
	}
	if cb.isFailure == nil {
		cb.isFailure = func(err error) bool { return !callerFault(err) }
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb
}

// Execute runs fn through the circuit breaker.  When the circuit is
// open, or a half-open probe is already in flight, fn is not called and
// an error wrapping ErrCircuitOpen is returned.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Counts returns the breaker's state and counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Counts{State: cb.state, ConsecutiveFailures: cb.failures, Rejected: cb.rejected}
}

// Reset forces the circuit breaker back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures = 0
	cb.successes = 0
	cb.probing = false
	from, changed := cb.transition(StateClosed)
	cb.mu.Unlock()
	cb.notify(from, StateClosed, changed)
}

// ── internal ─────────────────────────────────────────────────────────

// admit decides whether a call may proceed.  probe reports that the
// call is the half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()

	var from State
	var changed bool
	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.openedAt)
		if elapsed < cb.cooldown {
			cb.rejected++
			failures := cb.failures
			cb.mu.Unlock()
			return false, fmt.Errorf("%w: %d consecutive failures, retry in %v",
				gwerr.ErrCircuitOpen, failures, (cb.cooldown - elapsed).Truncate(time.Millisecond))
		}
		from, changed = cb.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			cb.mu.Unlock()
			return false, fmt.Errorf("%w: probe in flight", gwerr.ErrCircuitOpen)
		}
		cb.probing = true
		probe = true
	}
	cb.mu.Unlock()

	cb.notify(from, StateHalfOpen, changed)
	return probe, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	if probe {
		cb.probing = false
	}

	var from, to State
	var changed bool
	switch {
	case err != nil && cb.isFailure(err):
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.openedAt = cb.now()
			to = StateOpen
			from, changed = cb.transition(to)
		}

	case err != nil:
		// Not the remote side's fault; leaves the counters alone.

	case cb.state == StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.probeSuccesses {
			cb.failures = 0
			cb.successes = 0
			to = StateClosed
			from, changed = cb.transition(to)
		}

	default:
		cb.failures = 0
	}
	cb.mu.Unlock()

	cb.notify(from, to, changed)
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) (from State, changed bool) {
	from = cb.state
	if from == to {
		return from, false
	}
	cb.state = to
	return from, true
}

func (cb *CircuitBreaker) notify(from, to State, changed bool) {
	if changed && cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
