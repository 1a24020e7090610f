package gateway

import (
	"net"
	"sync"
	"time"
)

// connRegistry is the set of accepted connections, kept so Shutdown can
// close them all.  Entries are not removed when a session ends on its
// own; closing an already closed conn at shutdown is harmless.
type connRegistry struct {
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	sealed bool
}

func newConnRegistry() *connRegistry {
	return &connRegistry{conns: make(map[net.Conn]struct{})}
}

// Add records c.  Once CloseAll has run the registry is sealed: c is
// closed immediately and Add returns false.
func (r *connRegistry) Add(c net.Conn) bool {
	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		c.Close()
		return false
	}
	r.conns[c] = struct{}{}
	r.mu.Unlock()
	return true
}

func (r *connRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll seals the registry, closes every recorded conn and empties
// the set.  Close errors are ignored so one bad conn cannot keep the
// rest open.  It returns the number of conns closed.
func (r *connRegistry) CloseAll() int {
	r.mu.Lock()
	r.sealed = true
	conns := r.conns
	r.conns = make(map[net.Conn]struct{})
	r.mu.Unlock()

	for c := range conns {
		c.Close() //nolint:errcheck
	}
	return len(conns)
}

// ── idle timeout ─────────────────────────────────────────────────────

// idleConn pushes the read deadline forward before every Read, so the
// deadline bounds the gap between reads rather than the session's
// total lifetime.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func withIdleTimeout(c net.Conn, d time.Duration) net.Conn {
	if d <= 0 {
		return c
	}
	return &idleConn{Conn: c, timeout: d}
}

func (c *idleConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
