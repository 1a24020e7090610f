// Package gateway is the acceptor of the bridge: it binds the gateway
// port, accepts connections from the remote runtime, starts a session
// for each, and tears everything down in a fixed order on Shutdown.
//
// A Server owns one binding table (with the entry point and a
// self-binding under ServerKey) and one callback client for the reverse
// channel.  Lifecycle events are reported to registered Listeners;
// apart from a bind failure in Start, they are the only place errors
// surface.
package gateway

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"gobridge/callback"
	"gobridge/command"
	"gobridge/internal/bindings"
	gwerr "gobridge/internal/errors"
	"gobridge/internal/metrics"
	"gobridge/util"
)

// ServerKey is the binding under which a Server registers itself.
const ServerKey = bindings.ServerKey

// NetworkError is the error kind for bind and accept failures.
type NetworkError = gwerr.NetworkError

// Callback is the reverse channel a Server owns.
type Callback = bindings.Callback

var (
	ErrAlreadyStarted = gwerr.ErrAlreadyStarted
	ErrServerStopped  = gwerr.ErrServerStopped
)

// Server accepts connections from the remote runtime.
type Server struct {
	cfg       Config
	logger    *util.Logger
	metrics   *metrics.Collector
	bindings  *bindings.Table
	callback  Callback
	commands  *command.Registry
	factory   SessionFactory
	listeners *ListenerRegistry
	conns     *connRegistry

	// sessions run under ctx; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	ln       net.Listener
	stopping bool

	done     chan struct{}
	doneOnce sync.Once

	// shutdownDone is closed when the first Shutdown returns.
	shutdownDone chan struct{}
}

// New builds a Server from cfg.  It creates the callback client (unless
// one is supplied), the binding table and the self-binding; no socket
// is touched until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, &gwerr.ConfigError{Field: "port", Value: cfg.Port, Message: "out of range 0-65535"}
	}
	if cfg.AcceptTimeout < 0 || cfg.IdleTimeout < 0 {
		return nil, &gwerr.ConfigError{Field: "timeout", Message: "timeouts must not be negative"}
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	cfg.Commands = append([]command.Command(nil), cfg.Commands...)

	logger := util.EnsureLogger(cfg.Logger)

	cb := cfg.CallbackClient
	if cb == nil {
		port := cfg.CallbackPort
		if port == 0 {
			port = DefaultCallbackPort
		}
		opts := []callback.Option{callback.WithLogger(logger), callback.WithMetrics(cfg.Metrics)}
		if cfg.CallbackAddress != "" {
			opts = append(opts, callback.WithAddress(cfg.CallbackAddress))
		}
		cb = callback.NewClient(port, opts...)
	}
	cfg.CallbackPort = cb.Port()

	factory := cfg.SessionFactory
	if factory == nil {
		factory = DefaultSessionFactory
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   cfg.Metrics,
		bindings:  bindings.New(cfg.EntryPoint, cb),
		callback:  cb,
		commands:  command.NewRegistry(cfg.Commands...),
		factory:   factory,
		listeners: NewListenerRegistry(logger, cfg.Metrics),
		conns:     newConnRegistry(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),

		shutdownDone: make(chan struct{}),
	}
	s.bindings.Put(ServerKey, s)
	return s, nil
}

// ── Start ────────────────────────────────────────────────────────────

// Start binds the gateway port and runs the accept loop: on a new
// goroutine when fork is true, otherwise on the caller's goroutine
// until the loop exits.  Only a bind failure is returned, as a
// *NetworkError, and the server then stays in StateCreated.
func (s *Server) Start(fork bool) error {
	s.mu.Lock()
	switch {
	case s.stopping || s.state == StateStopped:
		s.mu.Unlock()
		return ErrServerStopped
	case s.state == StateListening:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	ln, err := s.startSocket()
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("%v", err)
		return err
	}
	s.ln = ln
	s.state = StateListening
	s.mu.Unlock()

	s.logger.Verbose("listening on %s", ln.Addr())

	if fork {
		go s.run(ln)
		return nil
	}
	s.run(ln)
	return nil
}

// StartBackground is Start(true).
func (s *Server) StartBackground() error { return s.Start(true) }

// startSocket binds the listener.  Go sets SO_REUSEADDR on listening
// sockets, so a port in TIME_WAIT can be rebound.
func (s *Server) startSocket() (net.Listener, error) {
	addr := util.FormatAddr(s.cfg.Host, s.cfg.Port)
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, gwerr.Wrap("listen", addr, err)
	}
	return ln, nil
}

type deadlineListener interface {
	SetDeadline(t time.Time) error
}

// run is the accept loop.  It exits on the first accept failure, which
// includes an expired accept timeout and the listener being closed by
// Shutdown.  A failed entry point startup is reported like an accept
// failure and the loop never runs.  It closes nothing itself.
func (s *Server) run(ln net.Listener) {
	defer s.closeDone()

	if err := s.bindings.Startup(); err != nil {
		s.logger.Error("gateway server error: %v", err)
		s.metrics.ServerError(err.Error())
		s.listeners.FireServerError(err)
	} else {
		s.listeners.FireServerStarted()
		s.acceptLoop(ln)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.listeners.FireServerStopped()
}

func (s *Server) acceptLoop(ln net.Listener) {
	addr := ln.Addr().String()
	for {
		if s.cfg.AcceptTimeout > 0 {
			if dl, ok := ln.(deadlineListener); ok {
				dl.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout)) //nolint:errcheck
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			var nerr *NetworkError
			if gwerr.IsTimeout(err) {
				nerr = gwerr.WrapTimeout("accept", addr, err)
			} else {
				nerr = gwerr.Wrap("accept", addr, err)
			}
			if s.isStopping() {
				s.logger.Verbose("accept loop ending: %v", nerr)
			} else {
				s.logger.Error("gateway server error: %v", nerr)
				s.metrics.ServerError(nerr.Error())
			}
			s.listeners.FireServerError(nerr)
			return
		}
		s.processConn(conn)
	}
}

// processConn registers an accepted conn and hands it to the session
// factory.  A factory failure is a connection error; the conn stays
// registered and is closed at Shutdown.
func (s *Server) processConn(conn net.Conn) {
	s.metrics.ConnectionAccepted()
	conn = withIdleTimeout(conn, s.cfg.IdleTimeout)

	if !s.conns.Add(conn) {
		s.logger.Verbose("connection from %s arrived during shutdown, closed", conn.RemoteAddr())
		return
	}
	s.listeners.FireConnectionStarted()

	if err := s.createSession(conn); err != nil {
		s.metrics.ConnectionError(err.Error())
		s.listeners.FireConnectionError(err)
	}
}

func (s *Server) createSession(conn net.Conn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session factory panic: %v", r)
		}
	}()
	return s.factory(s.ctx, SessionParams{
		Conn:      conn,
		Bindings:  s.bindings,
		Commands:  s.commands,
		Listeners: s.listeners,
		Logger:    s.logger,
		Metrics:   s.metrics,
	})
}

// ── Shutdown ─────────────────────────────────────────────────────────

// Shutdown stops accepting, closes every accepted connection, shuts
// down the binding table and the callback client, and reports
// pre/post-shutdown events around it.  Close errors are ignored.  It is
// safe from any goroutine and from any state.  Only the first call does
// the work; later calls block until it has finished, so every caller
// sees all connections closed on return.  A ServerPreShutdown or
// ServerPostShutdown listener must therefore not call Shutdown.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		<-s.shutdownDone
		return
	}
	s.stopping = true
	s.mu.Unlock()
	defer close(s.shutdownDone)

	s.listeners.FireServerPreShutdown()

	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	neverStarted := s.state == StateCreated
	s.state = StateStopped
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil {
			s.logger.Debug("closing listener: %v", err)
		}
	}
	n := s.conns.CloseAll()
	s.logger.Verbose("closed %d connection(s)", n)
	s.cancel()

	s.bindings.Shutdown()
	s.callback.Shutdown()

	s.listeners.FireServerPostShutdown()

	if neverStarted {
		s.closeDone()
	}
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Server) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed when the accept loop has exited, or at Shutdown if the
// server was never started.
func (s *Server) Done() <-chan struct{} { return s.done }

// ── Listeners ────────────────────────────────────────────────────────

// AddListener registers l; see ListenerRegistry.Add.
func (s *Server) AddListener(l Listener) bool { return s.listeners.Add(l) }

// RemoveListener unregisters l; see ListenerRegistry.Remove.
func (s *Server) RemoveListener(l Listener) bool { return s.listeners.Remove(l) }

// Listeners returns the server's listener registry.
func (s *Server) Listeners() *ListenerRegistry { return s.listeners }

// ── Accessors ────────────────────────────────────────────────────────

// Port returns the configured port, which is 0 for an ephemeral port.
func (s *Server) Port() int { return s.cfg.Port }

// ListeningPort returns the port actually bound, or -1 when no
// listener is bound.  If the accept loop ended on its own the listener
// is still held, and reported, until Shutdown.
func (s *Server) ListeningPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return -1
	}
	return util.PortOf(s.ln.Addr())
}

// Host returns the bind host.
func (s *Server) Host() string { return s.cfg.Host }

// Addr returns the configured bind address as host:port.
func (s *Server) Addr() string { return util.FormatAddr(s.cfg.Host, s.cfg.Port) }

// CallbackPort returns the port of the remote side's callback server.
func (s *Server) CallbackPort() int { return s.cfg.CallbackPort }

// AcceptTimeout returns the configured accept timeout.
func (s *Server) AcceptTimeout() time.Duration { return s.cfg.AcceptTimeout }

// IdleTimeout returns the configured per-session idle timeout.
func (s *Server) IdleTimeout() time.Duration { return s.cfg.IdleTimeout }

// CallbackClient returns the reverse channel.
func (s *Server) CallbackClient() Callback { return s.callback }

// Bindings returns the binding table shared with sessions.
func (s *Server) Bindings() Bindings { return s.bindings }

// EntryPoint returns the configured entry point, possibly nil.
func (s *Server) EntryPoint() interface{} { return s.cfg.EntryPoint }

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionCount returns the number of registered connections.
func (s *Server) ConnectionCount() int { return s.conns.Len() }
