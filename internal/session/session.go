// Package session runs the per-connection command loop of the gateway.
//
// A Session owns one accepted connection.  It reads newline-terminated
// command lines, dispatches each to the verb registry, and writes one
// reply line per command until the peer hangs up, asks to quit, goes
// idle past its read deadline, or the context is cancelled.
package session

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"gobridge/command"
	gwerr "gobridge/internal/errors"
	"gobridge/internal/metrics"
	"gobridge/util"
)

// Notifier receives connection-level failures.  The gateway's listener
// registry satisfies it.
type Notifier interface {
	FireConnectionError(err error)
}

// Options configures a Session.  Every field is optional.
type Options struct {
	Bindings command.Bindings
	Commands *command.Registry
	Events   Notifier
	Logger   *util.Logger
	Metrics  *metrics.Collector
}

// Session encapsulates the runtime context for a single connection.
type Session struct {
	ID   string
	Conn net.Conn

	bindings command.Bindings
	commands *command.Registry
	events   Notifier
	logger   *util.Logger
	metrics  *metrics.Collector

	closeOnce sync.Once
}

// New creates a Session bound to conn.
func New(conn net.Conn, opts Options) *Session {
	id := uuid.NewString()
	commands := opts.Commands
	if commands == nil {
		commands = command.NewRegistry()
	}
	return &Session{
		ID:       id,
		Conn:     conn,
		bindings: opts.Bindings,
		commands: commands,
		events:   opts.Events,
		logger: util.EnsureLogger(opts.Logger).
			With("session", id[:8]).
			With("remote", conn.RemoteAddr()),
		metrics: opts.Metrics,
	}
}

// Run serves the connection until it ends and closes it on return.
// Expected terminations (EOF, quit, idle timeout, cancellation, a conn
// closed by gateway shutdown) return nil; anything else is reported to
// the Notifier and returned.
func (s *Session) Run(ctx context.Context) (err error) {
	s.metrics.SessionOpened()
	s.logger.Verbose("session started")

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session panic: %v", r)
		}
		close(stop)
		s.Close()
		s.metrics.SessionClosed()
		if err != nil {
			s.logger.Warn("session ended: %v", err)
			s.metrics.ConnectionError(err.Error())
			if s.events != nil {
				s.events.FireConnectionError(err)
			}
			return
		}
		s.logger.Verbose("session closed")
	}()

	return s.serve(ctx)
}

func (s *Session) serve(ctx context.Context) error {
	br := util.GetReader(s.Conn)
	defer util.PutReader(br)

	for {
		line, err := util.ReadLine(br)
		if err != nil {
			return s.classify(ctx, "read", err)
		}

		req, ok := command.Parse(line)
		if !ok {
			continue
		}
		req.Bindings = s.bindings

		result, cerr := s.dispatch(ctx, req)
		s.metrics.CommandHandled()

		if _, werr := s.Conn.Write([]byte(command.FormatReply(result, cerr) + "\n")); werr != nil {
			return s.classify(ctx, "write", werr)
		}
		if gwerr.Is(cerr, command.ErrQuit) {
			s.logger.Debug("quit requested")
			return nil
		}
	}
}

// dispatch runs one command, turning a panic into an error reply.
func (s *Session) dispatch(ctx context.Context, req *command.Request) (result string, err error) {
	c, ok := s.commands.Lookup(req.Name)
	if !ok {
		return "", command.Unknown(req.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command %s panicked: %v", req.Name, r)
			result, err = "", fmt.Errorf("command %s failed: %v", req.Name, r)
		}
	}()
	s.logger.Debug("dispatch %s %v", req.Name, req.Args)
	return c.Execute(ctx, req)
}

// classify maps a read or write failure onto the session outcome.
func (s *Session) classify(ctx context.Context, op string, err error) error {
	switch {
	case ctx.Err() != nil:
		return nil
	case util.IsHarmless(err):
		return nil
	case gwerr.IsTimeout(err):
		s.logger.Verbose("idle timeout, closing")
		return nil
	default:
		return gwerr.Wrap(op, s.remote(), err)
	}
}

func (s *Session) remote() string {
	if a := s.Conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// Close closes the underlying connection.  It is safe to call more than
// once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Conn.Close()
	})
}
