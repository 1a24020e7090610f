// Package metrics provides lightweight, lock-free counters and gauges
// for tracking the runtime statistics of a gateway.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a gateway and its callback
// client.  A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsAccepted atomic.Int64
	sessionsActive      atomic.Int64
	connectionErrors    atomic.Int64
	serverErrors        atomic.Int64
	listenerPanics      atomic.Int64
	commandsHandled     atomic.Int64
	callbacksSent       atomic.Int64
	callbacksFailed     atomic.Int64
	callbackDials       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Acceptor metrics ─────────────────────────────────────────────────

// ConnectionAccepted records one successful accept.
func (c *Collector) ConnectionAccepted() {
	if c == nil {
		return
	}
	c.connectionsAccepted.Add(1)
}

// ConnectionsAccepted returns the lifetime accept count.
func (c *Collector) ConnectionsAccepted() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsAccepted.Load()
}

// ConnectionError records a per-connection failure and its message.
func (c *Collector) ConnectionError(msg string) {
	if c == nil {
		return
	}
	c.connectionErrors.Add(1)
	c.recordLast(msg)
}

// ConnectionErrors returns the number of per-connection failures.
func (c *Collector) ConnectionErrors() int64 {
	if c == nil {
		return 0
	}
	return c.connectionErrors.Load()
}

// ServerError records an accept-loop failure and its message.
func (c *Collector) ServerError(msg string) {
	if c == nil {
		return
	}
	c.serverErrors.Add(1)
	c.recordLast(msg)
}

// ServerErrors returns the number of accept-loop failures.
func (c *Collector) ServerErrors() int64 {
	if c == nil {
		return 0
	}
	return c.serverErrors.Load()
}

// ListenerPanic records a lifecycle listener that panicked.
func (c *Collector) ListenerPanic() {
	if c == nil {
		return
	}
	c.listenerPanics.Add(1)
}

// ListenerPanics returns the number of recovered listener panics.
func (c *Collector) ListenerPanics() int64 {
	if c == nil {
		return 0
	}
	return c.listenerPanics.Load()
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments the active session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
}

// SessionClosed decrements the active session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of running sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// CommandHandled records one dispatched protocol command.
func (c *Collector) CommandHandled() {
	if c == nil {
		return
	}
	c.commandsHandled.Add(1)
}

// CommandsHandled returns the number of dispatched commands.
func (c *Collector) CommandsHandled() int64 {
	if c == nil {
		return 0
	}
	return c.commandsHandled.Load()
}

// ── Callback metrics ─────────────────────────────────────────────────

// CallbackSent records a successful callback round trip.
func (c *Collector) CallbackSent() {
	if c == nil {
		return
	}
	c.callbacksSent.Add(1)
}

// CallbackFailed records a failed callback and its message.
func (c *Collector) CallbackFailed(msg string) {
	if c == nil {
		return
	}
	c.callbacksFailed.Add(1)
	c.recordLast(msg)
}

// CallbackDial records an outbound dial to the remote side.
func (c *Collector) CallbackDial() {
	if c == nil {
		return
	}
	c.callbackDials.Add(1)
}

// CallbacksSent returns the number of successful callbacks.
func (c *Collector) CallbacksSent() int64 {
	if c == nil {
		return 0
	}
	return c.callbacksSent.Load()
}

// CallbacksFailed returns the number of failed callbacks.
func (c *Collector) CallbacksFailed() int64 {
	if c == nil {
		return 0
	}
	return c.callbacksFailed.Load()
}

// CallbackDials returns the number of outbound dials.
func (c *Collector) CallbackDials() int64 {
	if c == nil {
		return 0
	}
	return c.callbackDials.Load()
}

func (c *Collector) recordLast(msg string) {
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime              string `json:"uptime"`
	ConnectionsAccepted int64  `json:"connections_accepted"`
	SessionsActive      int64  `json:"sessions_active"`
	ConnectionErrors    int64  `json:"connection_errors"`
	ServerErrors        int64  `json:"server_errors"`
	ListenerPanics      int64  `json:"listener_panics"`
	CommandsHandled     int64  `json:"commands_handled"`
	CallbacksSent       int64  `json:"callbacks_sent"`
	CallbacksFailed     int64  `json:"callbacks_failed"`
	CallbackDials       int64  `json:"callback_dials"`
	LastError           string `json:"last_error,omitempty"`
	LastErrorMessage    string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:              time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsAccepted: c.connectionsAccepted.Load(),
		SessionsActive:      c.sessionsActive.Load(),
		ConnectionErrors:    c.connectionErrors.Load(),
		ServerErrors:        c.serverErrors.Load(),
		ListenerPanics:      c.listenerPanics.Load(),
		CommandsHandled:     c.commandsHandled.Load(),
		CallbacksSent:       c.callbacksSent.Load(),
		CallbacksFailed:     c.callbacksFailed.Load(),
		CallbackDials:       c.callbackDials.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
