package gateway

import (
	"context"
	"net"

	"gobridge/command"
	"gobridge/internal/metrics"
	"gobridge/internal/session"
	"gobridge/util"
)

// Bindings is the binding table as seen by sessions.
type Bindings interface {
	Put(key string, value interface{})
	Get(key string) (interface{}, bool)
	Remove(key string)
	EntryPoint() interface{}
}

// SessionParams is what a SessionFactory gets for one accepted conn.
type SessionParams struct {
	Conn      net.Conn
	Bindings  Bindings
	Commands  *command.Registry
	Listeners *ListenerRegistry
	Logger    *util.Logger
	Metrics   *metrics.Collector
}

// SessionFactory creates and starts the handler for one connection.
// It must not block for the life of the session.  A returned error or
// a panic is reported as a connection error; the accept loop goes on.
// ctx is cancelled when the gateway shuts down.
type SessionFactory func(ctx context.Context, p SessionParams) error

// DefaultSessionFactory runs a line-protocol session on its own
// goroutine.
func DefaultSessionFactory(ctx context.Context, p SessionParams) error {
	sess := session.New(p.Conn, session.Options{
		Bindings: p.Bindings,
		Commands: p.Commands,
		Events:   p.Listeners,
		Logger:   p.Logger,
		Metrics:  p.Metrics,
	})
	go sess.Run(ctx) //nolint:errcheck
	return nil
}
