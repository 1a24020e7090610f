package gateway

import (
	"time"

	"gobridge/command"
	"gobridge/internal/metrics"
	"gobridge/util"
)

const (
	// DefaultHost is the address the gateway binds when Config.Host is empty.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the conventional gateway port.
	DefaultPort = 25333

	// DefaultCallbackPort is the conventional port of the remote side's
	// callback server.
	DefaultCallbackPort = 25334
)

// Config fixes everything about a Server at construction.  The zero
// value is usable, but note that Config{} listens on port 0, an
// ephemeral port picked by the OS, and not on DefaultPort.  It binds
// DefaultHost and sends callbacks to DefaultCallbackPort.  Start from
// DefaultConfig for the conventional 25333/25334 pair.
type Config struct {
	// EntryPoint is the root object remote calls start from.  May be nil.
	EntryPoint interface{}

	// Host is the bind address (default DefaultHost).
	Host string

	// Port is the listening port; 0 asks the OS for an ephemeral port.
	Port int

	// CallbackPort is the remote side's callback port, used to build a
	// callback client when CallbackClient is nil.  0 selects
	// DefaultCallbackPort.
	CallbackPort int

	// CallbackAddress is the remote side's host for the built callback
	// client (default: the callback package's default).
	CallbackAddress string

	// CallbackClient is a pre-built reverse channel.  When set, the
	// callback port is taken from it and CallbackPort is ignored.
	CallbackClient Callback

	// AcceptTimeout bounds each wait for a connection; 0 waits forever.
	// An expired wait ends the accept loop.
	AcceptTimeout time.Duration

	// IdleTimeout bounds how long a session may go without reading
	// anything before its connection is closed; 0 disables it.
	IdleTimeout time.Duration

	// Commands are pluggable verbs merged over the built-ins.
	Commands []command.Command

	// SessionFactory builds the handler for each accepted connection
	// (default DefaultSessionFactory).
	SessionFactory SessionFactory

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// DefaultConfig returns a Config on the conventional ports with no
// timeouts.
func DefaultConfig() Config {
	return Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		CallbackPort: DefaultCallbackPort,
	}
}
