// Package callback implements the reverse channel: the client the
// gateway side uses to invoke callbacks on objects the remote side
// exposes on its own listening port.
//
// Every callback is one request line answered by one reply line.
// Connections are dialed on demand, kept in a small idle pool between
// calls, and closed when the client shuts down.
package callback

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"gobridge/command"
	gwerr "gobridge/internal/errors"
	"gobridge/internal/metrics"
	"gobridge/internal/retry"
	"gobridge/internal/transport"
	"gobridge/util"
)

const (
	// DefaultAddress is the host the remote side listens on.
	DefaultAddress = "127.0.0.1"

	// DefaultMaxIdle bounds the idle connection pool.
	DefaultMaxIdle = 4

	defaultDialTimeout = 5 * time.Second
)

// RemoteError is a failure reported by the remote side in an error reply.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "remote: " + e.Message }

// ── Options ──────────────────────────────────────────────────────────

// Option configures a Client.
type Option func(*Client)

// WithAddress sets the host the remote side listens on.
func WithAddress(host string) Option {
	return func(c *Client) { c.host = host }
}

// WithDialer replaces the default TCP dialer, e.g. with an SSH dialer.
// The client takes ownership and closes it on Shutdown.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets the client logger.
func WithLogger(l *util.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records callback counters on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBackoff sets the dial retry policy.
func WithBackoff(b *retry.Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithBreaker sets the circuit breaker guarding dials.
func WithBreaker(cb *retry.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithMaxIdle bounds the idle pool; zero disables pooling.
func WithMaxIdle(n int) Option {
	return func(c *Client) { c.maxIdle = n }
}

// ── Client ───────────────────────────────────────────────────────────

type pooledConn struct {
	net.Conn
	br *bufio.Reader
}

// Client delivers callback invocations to the remote side.
type Client struct {
	port    int
	host    string
	dialer  transport.Dialer
	logger  *util.Logger
	metrics *metrics.Collector
	backoff *retry.Backoff
	breaker *retry.CircuitBreaker
	maxIdle int

	mu     sync.Mutex
	idle   []*pooledConn
	closed bool
}

// NewClient returns a client for the remote side listening on port.
// No connection is made until the first Send.
func NewClient(port int, opts ...Option) *Client {
	c := &Client{
		port:    port,
		host:    DefaultAddress,
		maxIdle: DefaultMaxIdle,
	}
	for _, o := range opts {
		o(c)
	}
	if c.dialer == nil {
		c.dialer = &transport.TCPDialer{Timeout: defaultDialTimeout}
	}
	if c.backoff == nil {
		c.backoff = retry.DefaultBackoff()
		c.backoff.Retryable = gwerr.IsRetryable
	}
	c.logger = util.EnsureLogger(c.logger).With("callback", c.Address())
	if c.breaker == nil {
		cfg := retry.DefaultCircuitBreakerConfig()
		cfg.OnStateChange = func(from, to retry.State) {
			if to == retry.StateOpen {
				c.logger.Warn("remote side unreachable, circuit %s → %s", from, to)
				return
			}
			c.logger.Verbose("circuit %s → %s", from, to)
		}
		c.breaker = retry.NewCircuitBreaker(cfg)
	}
	return c
}

// Port returns the remote port callbacks are delivered to.
func (c *Client) Port() int { return c.port }

// Address returns host:port of the remote side.
func (c *Client) Address() string { return util.FormatAddr(c.host, c.port) }

// Send delivers one request line and returns the payload of the
// success reply.  An error reply comes back as *RemoteError.
func (c *Client) Send(ctx context.Context, line string) (string, error) {
	if strings.ContainsAny(line, "\r\n") {
		return "", fmt.Errorf("callback request must be a single line")
	}

	pc, pooled, err := c.get(ctx)
	if err != nil {
		c.metrics.CallbackFailed(err.Error())
		return "", err
	}

	reply, err := c.exchange(ctx, pc, line)
	if err != nil && pooled && !gwerr.Is(err, context.Canceled) && ctx.Err() == nil {
		// A pooled conn may have been closed by the remote side while idle.
		c.logger.Debug("stale pooled conn: %v", err)
		pc.Close()
		pc, err = c.dial(ctx)
		if err == nil {
			reply, err = c.exchange(ctx, pc, line)
		}
	}
	if err != nil {
		if pc != nil {
			pc.Close()
		}
		c.metrics.CallbackFailed(err.Error())
		return "", err
	}

	c.put(pc)
	c.metrics.CallbackSent()
	return decodeReply(reply)
}

func (c *Client) exchange(ctx context.Context, pc *pooledConn, line string) (string, error) {
	dl, hasDeadline := ctx.Deadline()
	if hasDeadline {
		pc.SetDeadline(dl) //nolint:errcheck
	} else {
		pc.SetDeadline(time.Time{}) //nolint:errcheck
	}

	stop := context.AfterFunc(ctx, func() {
		pc.SetDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	if _, err := pc.Write([]byte(line + "\n")); err != nil {
		return "", gwerr.Wrap("write", c.Address(), err)
	}
	reply, err := util.ReadLine(pc.br)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if hasDeadline && gwerr.IsTimeout(err) {
			return "", fmt.Errorf("%w: %w", context.DeadlineExceeded, gwerr.Wrap("read", c.Address(), err))
		}
		return "", gwerr.Wrap("read", c.Address(), err)
	}
	return reply, nil
}

func decodeReply(reply string) (string, error) {
	switch {
	case strings.HasPrefix(reply, command.ReplySuccess):
		return reply[len(command.ReplySuccess):], nil
	case strings.HasPrefix(reply, command.ReplyError):
		return "", &RemoteError{Message: reply[len(command.ReplyError):]}
	default:
		return "", fmt.Errorf("malformed callback reply %q", reply)
	}
}

// get returns an idle conn if one is pooled, otherwise dials.
func (c *Client) get(ctx context.Context) (*pooledConn, bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false, gwerr.ErrClientClosed
	}
	if n := len(c.idle); n > 0 {
		pc := c.idle[n-1]
		c.idle = c.idle[:n-1]
		c.mu.Unlock()
		return pc, true, nil
	}
	c.mu.Unlock()

	pc, err := c.dial(ctx)
	return pc, false, err
}

// dial opens a new conn under the retry policy and circuit breaker.
func (c *Client) dial(ctx context.Context) (*pooledConn, error) {
	var conn net.Conn
	err := c.breaker.Execute(func() error {
		return c.backoff.Do(ctx, func(attempt int) error {
			c.metrics.CallbackDial()
			var derr error
			conn, derr = c.dialer.Dial(ctx, "tcp", c.Address())
			if derr != nil {
				c.logger.Verbose("dial attempt %d failed: %v", attempt, derr)
				if ctx.Err() != nil {
					return retry.Permanent(derr)
				}
			}
			return derr
		})
	})
	if err != nil {
		return nil, err
	}
	return &pooledConn{Conn: conn, br: bufio.NewReaderSize(conn, util.DefaultBufSize)}, nil
}

// put returns a healthy conn to the idle pool or closes it.
func (c *Client) put(pc *pooledConn) {
	pc.SetDeadline(time.Time{}) //nolint:errcheck

	c.mu.Lock()
	if c.closed || len(c.idle) >= c.maxIdle {
		c.mu.Unlock()
		pc.Close()
		return
	}
	c.idle = append(c.idle, pc)
	c.mu.Unlock()
}

// Idle returns the number of pooled connections.
func (c *Client) Idle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idle)
}

// Shutdown closes pooled connections and the dialer.  Later calls to
// Send fail with ErrClientClosed.  It is safe to call more than once.
func (c *Client) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	idle := c.idle
	c.idle = nil
	c.mu.Unlock()

	for _, pc := range idle {
		pc.Close()
	}
	if err := c.dialer.Close(); err != nil {
		c.logger.Debug("closing dialer: %v", err)
	}
	c.logger.Verbose("callback client shut down")
}
