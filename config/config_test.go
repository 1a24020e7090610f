package config

import (
	"strings"
	"testing"
	"time"

	gwerr "gobridge/internal/errors"
)

// ── ParseTunnelSpec ──────────────────────────────────────────────────

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "admin@bastion.example.com:2222", "admin", "bastion.example.com", 2222, false},
		{"no port", "root@gateway", "root", "gateway", 22, false},
		{"no user", "jump-host:2200", "", "jump-host", 2200, false},
		{"host only", "gateway.local", "", "gateway.local", 22, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
		{"double at", "a@b@c", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

// ── ResolveTunnel ────────────────────────────────────────────────────

func TestResolveTunnel(t *testing.T) {
	t.Setenv("USER", "operator")

	cfg := Default()
	cfg.TunnelSpec = "bastion:2022"
	if err := cfg.ResolveTunnel(); err != nil {
		t.Fatal(err)
	}
	if !cfg.TunnelEnabled || cfg.TunnelUser != "operator" || cfg.TunnelHost != "bastion" || cfg.TunnelPort != 2022 {
		t.Errorf("resolved %+v", cfg)
	}

	cfg.TunnelSpec = ""
	if err := cfg.ResolveTunnel(); err != nil || cfg.TunnelEnabled {
		t.Errorf("empty spec: enabled=%v err=%v", cfg.TunnelEnabled, err)
	}

	cfg.TunnelSpec = "::"
	err := cfg.ResolveTunnel()
	var ce *gwerr.ConfigError
	if !gwerr.As(err, &ce) || ce.Field != "tunnel" {
		t.Errorf("err = %v, want tunnel ConfigError", err)
	}
}

// ── Validate ─────────────────────────────────────────────────────────

func TestValidate_Defaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
		wantHint  bool
	}{
		{"port too large", func(c *Config) { c.Port = 70000 }, "port", true},
		{"negative port", func(c *Config) { c.Port = -1 }, "port", true},
		{"callback port zero", func(c *Config) { c.CallbackPort = 0 }, "callback-port", true},
		{"negative accept timeout", func(c *Config) { c.AcceptTimeout = -time.Second }, "accept-timeout", true},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -time.Second }, "idle-timeout", true},
		{"no retries", func(c *Config) { c.CallbackRetries = 0 }, "callback-retries", false},
		{"tunnel without host", func(c *Config) { c.TunnelEnabled = true }, "tunnel", false},
		{"ssh key without tunnel", func(c *Config) { c.SSHKeyPath = "/k" }, "tunnel", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var ce *gwerr.ConfigError
			if !gwerr.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ce.Field, tt.wantField)
			}
			if got := strings.Contains(err.Error(), "hint:"); got != tt.wantHint {
				t.Errorf("hint present = %v, want %v (%q)", got, tt.wantHint, err.Error())
			}
		})
	}
}

func TestValidate_EphemeralPortAllowed(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("port 0 should be valid: %v", err)
	}
}
