package config

// loader.go - configuration loading from files and the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (GOBRIDGE_*)
//   3. Config file  (yaml, toml or json)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the optional config file at path, overlays GOBRIDGE_*
// environment variables and returns the result on top of Default().
// An empty path skips the file.  The tunnel spec is resolved but the
// result is not validated, since CLI flags may still change it.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.ResolveTunnel(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance with every key defaulted, so that
// AutomaticEnv can see keys absent from the config file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("accept_timeout", d.AcceptTimeout)
	v.SetDefault("idle_timeout", d.IdleTimeout)
	v.SetDefault("callback_address", d.CallbackAddress)
	v.SetDefault("callback_port", d.CallbackPort)
	v.SetDefault("callback_retries", d.CallbackRetries)
	v.SetDefault("tunnel", d.TunnelSpec)
	v.SetDefault("ssh_key", d.SSHKeyPath)
	v.SetDefault("ssh_password", d.SSHPassword)
	v.SetDefault("ssh_agent", d.UseSSHAgent)
	v.SetDefault("strict_hostkey", d.StrictHostKey)
	v.SetDefault("known_hosts", d.KnownHostsPath)
	v.SetDefault("tunnel_keepalive", d.TunnelKeepAlive)
	v.SetDefault("conn_timeout", d.ConnTimeout)
	v.SetDefault("metrics_address", d.MetricsAddress)
	v.SetDefault("verbose", d.Verbose)
	return v
}
