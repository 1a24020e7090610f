// Package config defines the daemon configuration for gobridge and the
// helpers that load and check it.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	gwerr "gobridge/internal/errors"
)

// Config holds every tuneable of a gobridge daemon.  Field tags name
// the keys used in config files; the environment variable for a key is
// EnvPrefix + "_" + upper-cased key.
type Config struct {
	// ── Gateway ──────────────────────────────────────────────────────
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"` // 0 = ephemeral
	AcceptTimeout time.Duration `mapstructure:"accept_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`

	// ── Callback channel ─────────────────────────────────────────────
	CallbackAddress string `mapstructure:"callback_address"`
	CallbackPort    int    `mapstructure:"callback_port"`
	CallbackRetries int    `mapstructure:"callback_retries"`

	// ── SSH tunnel for callbacks ─────────────────────────────────────
	TunnelSpec      string        `mapstructure:"tunnel"` // raw [user@]host[:port]
	SSHKeyPath      string        `mapstructure:"ssh_key"`
	SSHPassword     bool          `mapstructure:"ssh_password"` // true → prompt interactively
	UseSSHAgent     bool          `mapstructure:"ssh_agent"`
	StrictHostKey   bool          `mapstructure:"strict_hostkey"`
	KnownHostsPath  string        `mapstructure:"known_hosts"`
	TunnelKeepAlive time.Duration `mapstructure:"tunnel_keepalive"`
	ConnTimeout     time.Duration `mapstructure:"conn_timeout"`

	// Derived from TunnelSpec by ResolveTunnel.
	TunnelEnabled bool   `mapstructure:"-"`
	TunnelUser    string `mapstructure:"-"`
	TunnelHost    string `mapstructure:"-"`
	TunnelPort    int    `mapstructure:"-"`

	// ── Observability ────────────────────────────────────────────────
	MetricsAddress string `mapstructure:"metrics_address"` // empty = disabled
	Verbose        int    `mapstructure:"verbose"`
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q: expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ResolveTunnel fills the derived tunnel fields from TunnelSpec.  A
// spec without a user falls back to $USER.
func (c *Config) ResolveTunnel() error {
	if c.TunnelSpec == "" {
		c.TunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &gwerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: err.Error(),
			Hint:    "example: --tunnel deploy@bastion.example.com:2222",
		}
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent and
// returns a *errors.ConfigError naming the first bad field.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &gwerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 0-65535",
			Hint:    "use 0 for an ephemeral port",
		}
	}
	if c.CallbackPort < 1 || c.CallbackPort > 65535 {
		return &gwerr.ConfigError{
			Field:   "callback-port",
			Value:   c.CallbackPort,
			Message: "out of range 1-65535",
			Hint:    fmt.Sprintf("the remote side listens on %d by default", DefaultCallbackPort),
		}
	}
	if c.AcceptTimeout < 0 {
		return &gwerr.ConfigError{Field: "accept-timeout", Value: c.AcceptTimeout, Message: "must not be negative", Hint: "use 0 to wait forever"}
	}
	if c.IdleTimeout < 0 {
		return &gwerr.ConfigError{Field: "idle-timeout", Value: c.IdleTimeout, Message: "must not be negative", Hint: "use 0 to disable"}
	}
	if c.CallbackRetries < 1 {
		return &gwerr.ConfigError{Field: "callback-retries", Value: c.CallbackRetries, Message: "must be at least 1"}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &gwerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	if !c.TunnelEnabled && (c.SSHKeyPath != "" || c.UseSSHAgent || c.SSHPassword) {
		return &gwerr.ConfigError{
			Field:   "tunnel",
			Message: "ssh options given without a tunnel",
			Hint:    "add --tunnel user@host to route callbacks through ssh",
		}
	}
	return nil
}
