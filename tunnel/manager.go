package tunnel

import (
	"context"
	"net"
	"sync"
	"time"

	"gobridge/util"
)

// DefaultKeepAlive is the interval between keepalive probes.
const DefaultKeepAlive = 15 * time.Second

// Manager owns a [Tunnel] for the lifetime of a callback client.  It
// connects lazily on the first Dial, reconnects when the tunnel has
// dropped, and probes it periodically so a dead bastion is noticed
// before the next callback needs it.
type Manager struct {
	tunnel   Tunnel
	logger   *util.Logger
	interval time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager returns a Manager for the given tunnel.  An interval of
// zero selects [DefaultKeepAlive]; a negative one disables probing.
func NewManager(t Tunnel, interval time.Duration, logger *util.Logger) *Manager {
	if interval == 0 {
		interval = DefaultKeepAlive
	}
	return &Manager{tunnel: t, interval: interval, logger: util.EnsureLogger(logger)}
}

// Dial connects the tunnel if needed and opens a connection through it.
func (m *Manager) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := m.ensure(ctx); err != nil {
		return nil, err
	}
	return m.tunnel.Dial(ctx, network, address)
}

func (m *Manager) ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return net.ErrClosed
	}
	if m.tunnel.IsAlive() {
		return nil
	}
	if m.started {
		m.logger.Warn("ssh tunnel lost, reconnecting")
	}
	if err := m.tunnel.Connect(ctx); err != nil {
		return err
	}
	if !m.started {
		m.started = true
		if m.interval > 0 {
			hctx, cancel := context.WithCancel(context.Background())
			m.cancel = cancel
			m.done = make(chan struct{})
			go m.healthLoop(hctx, m.done)
		}
	}
	return nil
}

// Close stops health checks and shuts down the tunnel.  It is safe to
// call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return m.tunnel.Close()
}

type pinger interface {
	Ping() error
}

func (m *Manager) healthLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	tick := time.NewTicker(m.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !m.tunnel.IsAlive() {
				m.logger.Error("ssh tunnel connection lost")
				continue
			}
			if p, ok := m.tunnel.(pinger); ok {
				if err := p.Ping(); err != nil {
					m.logger.Warn("ssh keepalive failed: %v", err)
				}
			}
		}
	}
}
