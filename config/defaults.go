package config

import (
	"time"

	"gobridge/gateway"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultHost is the address the gateway binds.
	DefaultHost = gateway.DefaultHost

	// DefaultPort is the gateway port.
	DefaultPort = gateway.DefaultPort

	// DefaultCallbackPort is the remote side's callback port.
	DefaultCallbackPort = gateway.DefaultCallbackPort

	// DefaultCallbackRetries is how many dial attempts one callback
	// makes before giving up.
	DefaultCallbackRetries = 3

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultTunnelKeepAlive is the interval between SSH keepalive probes.
	DefaultTunnelKeepAlive = 15 * time.Second

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 15 * time.Second

	// EnvPrefix prefixes every environment variable, e.g. GOBRIDGE_PORT.
	EnvPrefix = "GOBRIDGE"
)

// Default returns a Config populated with the defaults above.
func Default() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		CallbackPort:    DefaultCallbackPort,
		CallbackRetries: DefaultCallbackRetries,
		TunnelKeepAlive: DefaultTunnelKeepAlive,
		ConnTimeout:     DefaultConnTimeout,
	}
}
