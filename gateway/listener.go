package gateway

import (
	"fmt"
	"reflect"
	"sync"

	"gobridge/internal/metrics"
	"gobridge/util"
)

// Listener observes gateway lifecycle events.  Methods are called
// synchronously from whichever goroutine triggered the event.  A
// panicking listener is recovered and logged; it never affects other
// listeners or the gateway.
type Listener interface {
	ServerStarted()
	ServerStopped()
	ServerError(err error)
	ServerPreShutdown()
	ServerPostShutdown()
	ConnectionStarted()
	ConnectionError(err error)
}

// ListenerFuncs adapts optional functions to Listener.  Register it by
// pointer; nil fields are skipped.
type ListenerFuncs struct {
	OnServerStarted      func()
	OnServerStopped      func()
	OnServerError        func(err error)
	OnServerPreShutdown  func()
	OnServerPostShutdown func()
	OnConnectionStarted  func()
	OnConnectionError    func(err error)
}

func (f *ListenerFuncs) ServerStarted() {
	if f.OnServerStarted != nil {
		f.OnServerStarted()
	}
}

func (f *ListenerFuncs) ServerStopped() {
	if f.OnServerStopped != nil {
		f.OnServerStopped()
	}
}

func (f *ListenerFuncs) ServerError(err error) {
	if f.OnServerError != nil {
		f.OnServerError(err)
	}
}

func (f *ListenerFuncs) ServerPreShutdown() {
	if f.OnServerPreShutdown != nil {
		f.OnServerPreShutdown()
	}
}

func (f *ListenerFuncs) ServerPostShutdown() {
	if f.OnServerPostShutdown != nil {
		f.OnServerPostShutdown()
	}
}

func (f *ListenerFuncs) ConnectionStarted() {
	if f.OnConnectionStarted != nil {
		f.OnConnectionStarted()
	}
}

func (f *ListenerFuncs) ConnectionError(err error) {
	if f.OnConnectionError != nil {
		f.OnConnectionError(err)
	}
}

// ── Registry ─────────────────────────────────────────────────────────

// ListenerRegistry is an ordered set of listeners.  Writers replace the
// slice under a mutex; broadcasts iterate the slice they loaded, so a
// listener added or removed mid-broadcast takes effect from the next
// event.
type ListenerRegistry struct {
	mu        sync.Mutex
	listeners []Listener

	logger  *util.Logger
	metrics *metrics.Collector
}

// NewListenerRegistry returns an empty registry.
func NewListenerRegistry(logger *util.Logger, m *metrics.Collector) *ListenerRegistry {
	return &ListenerRegistry{logger: util.EnsureLogger(logger), metrics: m}
}

// Add appends l unless it is already registered.  It reports whether
// l is registered afterwards; nil and non-comparable listeners (e.g. a
// ListenerFuncs passed by value) are rejected.
func (r *ListenerRegistry) Add(l Listener) bool {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.listeners {
		if sameListener(existing, l) {
			return true
		}
	}
	next := make([]Listener, len(r.listeners), len(r.listeners)+1)
	copy(next, r.listeners)
	r.listeners = append(next, l)
	return true
}

// Remove deletes every registration equal to l and reports whether
// anything was removed.
func (r *ListenerRegistry) Remove(l Listener) bool {
	if l == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]Listener, 0, len(r.listeners))
	for _, existing := range r.listeners {
		if !sameListener(existing, l) {
			next = append(next, existing)
		}
	}
	removed := len(next) != len(r.listeners)
	r.listeners = next
	return removed
}

// Len returns the number of registered listeners.
func (r *ListenerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

func (r *ListenerRegistry) snapshot() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listeners
}

// sameListener compares listeners by interface equality.  Dynamic
// values that are not comparable compare unequal instead of panicking.
func sameListener(a, b Listener) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// ── Broadcast ────────────────────────────────────────────────────────

func (r *ListenerRegistry) FireServerStarted() {
	r.logger.Info("gateway server started")
	r.broadcast("server started", func(l Listener) { l.ServerStarted() })
}

func (r *ListenerRegistry) FireServerStopped() {
	r.logger.Info("gateway server stopped")
	r.broadcast("server stopped", func(l Listener) { l.ServerStopped() })
}

func (r *ListenerRegistry) FireServerError(err error) {
	r.broadcast("server error", func(l Listener) { l.ServerError(err) })
}

func (r *ListenerRegistry) FireServerPreShutdown() {
	r.logger.Verbose("gateway server pre shutdown")
	r.broadcast("pre shutdown", func(l Listener) { l.ServerPreShutdown() })
}

func (r *ListenerRegistry) FireServerPostShutdown() {
	r.logger.Verbose("gateway server post shutdown")
	r.broadcast("post shutdown", func(l Listener) { l.ServerPostShutdown() })
}

func (r *ListenerRegistry) FireConnectionStarted() {
	r.logger.Verbose("connection started")
	r.broadcast("connection started", func(l Listener) { l.ConnectionStarted() })
}

// FireConnectionError also satisfies the session package's Notifier.
func (r *ListenerRegistry) FireConnectionError(err error) {
	r.logger.Warn("connection error: %v", err)
	r.broadcast("connection error", func(l Listener) { l.ConnectionError(err) })
}

func (r *ListenerRegistry) broadcast(event string, fn func(Listener)) {
	for _, l := range r.snapshot() {
		r.invoke(event, l, fn)
	}
}

func (r *ListenerRegistry) invoke(event string, l Listener, fn func(Listener)) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.ListenerPanic()
			r.logger.Error("listener %s crashed on %s: %v", describe(l), event, p)
		}
	}()
	fn(l)
}

func describe(l Listener) string {
	return fmt.Sprintf("%T", l)
}
