package transport

import (
	"context"
	"net"
	"time"

	"gobridge/tunnel"
	"gobridge/util"
)

// SSHDialer routes callback connections through an SSH bastion.  The
// tunnel is connected lazily on the first Dial, re-established if it
// drops, and torn down on Close.
type SSHDialer struct {
	manager *tunnel.Manager
	logger  *util.Logger
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel.  keepAlive follows [tunnel.NewManager].
func NewSSHDialer(cfg *tunnel.SSHConfig, keepAlive time.Duration, logger *util.Logger) *SSHDialer {
	logger = util.EnsureLogger(logger)
	return newSSHDialer(tunnel.NewSSHTunnel(cfg, logger), keepAlive, logger)
}

func newSSHDialer(t tunnel.Tunnel, keepAlive time.Duration, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		manager: tunnel.NewManager(t, keepAlive, logger),
		logger:  logger,
	}
}

// Dial connects to address through the SSH tunnel.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	d.logger.Verbose("dialing %s through ssh tunnel", address)
	return d.manager.Dial(ctx, network, address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	return d.manager.Close()
}
