// Package core is the orchestration layer.  It turns a daemon
// configuration into a running gateway: the builder assembles the
// callback channel and the server, and GatewayMode owns the server's
// lifetime under a context.
//
// Architecture layers (bottom → top):
//
//	transport  →  callback  →  session  →  gateway  →  core  →  cmd (CLI)
package core

import (
	"context"

	"gobridge/gateway"
	"gobridge/util"
)

// Mode is a complete operational mode of the daemon.  It owns its full
// lifecycle from bind to teardown.
type Mode interface {
	Run(ctx context.Context) error
}

// GatewayMode runs a gateway Server until ctx is cancelled or the
// accept loop ends on its own.
type GatewayMode struct {
	Server *gateway.Server
	Logger *util.Logger
}

// NewGatewayMode wraps srv.
func NewGatewayMode(srv *gateway.Server, logger *util.Logger) *GatewayMode {
	return &GatewayMode{Server: srv, Logger: util.EnsureLogger(logger)}
}

// Run starts the accept loop in the background and blocks.  Cancelling
// ctx shuts the server down and returns nil.  If the loop dies first,
// for example on an expired accept timeout, the server is shut down and
// the error that ended the loop is returned.
func (m *GatewayMode) Run(ctx context.Context) error {
	logger := util.EnsureLogger(m.Logger)

	loopErr := make(chan error, 1)
	watch := &gateway.ListenerFuncs{
		OnServerError: func(err error) {
			select {
			case loopErr <- err:
			default:
			}
		},
	}
	m.Server.AddListener(watch)
	defer m.Server.RemoveListener(watch)

	if err := m.Server.StartBackground(); err != nil {
		return err
	}
	logger.Info("gateway listening on %s, callbacks to port %d",
		util.FormatAddr(m.Server.Host(), m.Server.ListeningPort()),
		m.Server.CallbackPort())

	select {
	case <-ctx.Done():
		logger.Verbose("shutting down: %v", context.Cause(ctx))
		m.Server.Shutdown()
		<-m.Server.Done()
		return nil

	case <-m.Server.Done():
		m.Server.Shutdown()
		select {
		case err := <-loopErr:
			return err
		default:
			return nil
		}
	}
}
