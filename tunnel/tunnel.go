// Package tunnel carries callback traffic to a remote side that is only
// reachable through an SSH bastion.  The gateway itself always listens
// locally; only the outbound callback connections use a tunnel.
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted channel through which callback
// connections can be forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the bastion.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
