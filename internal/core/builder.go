package core

import (
	"gobridge/callback"
	"gobridge/config"
	"gobridge/gateway"
	gwerr "gobridge/internal/errors"
	"gobridge/internal/metrics"
	"gobridge/internal/retry"
	"gobridge/internal/transport"
	"gobridge/tunnel"
	"gobridge/util"
)

// Build turns a daemon configuration into a gateway Server and the
// callback client it owns.  The configuration is validated first; no
// socket is opened and no tunnel is dialled.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (*gateway.Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = util.EnsureLogger(logger)

	return gateway.New(gateway.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		CallbackClient: buildCallback(cfg, logger, m),
		AcceptTimeout:  cfg.AcceptTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		Logger:         logger,
		Metrics:        m,
	})
}

// ── shared helpers ───────────────────────────────────────────────────

// buildCallback creates the reverse-channel client.
func buildCallback(cfg *config.Config, logger *util.Logger, m *metrics.Collector) *callback.Client {
	backoff := retry.DefaultBackoff()
	backoff.MaxAttempts = cfg.CallbackRetries
	backoff.Retryable = gwerr.IsRetryable

	opts := []callback.Option{
		callback.WithDialer(buildDialer(cfg, logger)),
		callback.WithLogger(logger),
		callback.WithMetrics(m),
		callback.WithBackoff(backoff),
	}
	if cfg.CallbackAddress != "" {
		opts = append(opts, callback.WithAddress(cfg.CallbackAddress))
	}
	return callback.NewClient(cfg.CallbackPort, opts...)
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnTimeout,
		}, cfg.TunnelKeepAlive, logger)
	}

	return &transport.TCPDialer{
		Timeout: cfg.ConnTimeout,
	}
}
