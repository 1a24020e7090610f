package core

import (
	"testing"
	"time"

	"gobridge/callback"
	"gobridge/config"
	gwerr "gobridge/internal/errors"
	"gobridge/internal/metrics"
	"gobridge/internal/transport"
	"gobridge/util"
)

// TestBuild_Defaults verifies that Build carries the daemon settings
// into the server and its callback client.
func TestBuild_Defaults(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 0
	cfg.CallbackPort = 26000
	cfg.CallbackAddress = "10.0.0.5"
	cfg.AcceptTimeout = 3 * time.Second
	cfg.IdleTimeout = time.Minute

	srv, err := Build(cfg, util.NopLogger(), metrics.New())
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Shutdown()

	if srv.Host() != config.DefaultHost {
		t.Errorf("Host() = %q, want %q", srv.Host(), config.DefaultHost)
	}
	if srv.Port() != 0 {
		t.Errorf("Port() = %d, want 0", srv.Port())
	}
	if srv.CallbackPort() != 26000 {
		t.Errorf("CallbackPort() = %d, want 26000", srv.CallbackPort())
	}
	if srv.AcceptTimeout() != 3*time.Second || srv.IdleTimeout() != time.Minute {
		t.Errorf("timeouts = %v/%v", srv.AcceptTimeout(), srv.IdleTimeout())
	}

	cb, ok := srv.CallbackClient().(*callback.Client)
	if !ok {
		t.Fatalf("CallbackClient() is %T, want *callback.Client", srv.CallbackClient())
	}
	if got, want := cb.Address(), "10.0.0.5:26000"; got != want {
		t.Errorf("callback address = %q, want %q", got, want)
	}
}

// TestBuild_InvalidConfig verifies that validation runs before anything
// is built.
func TestBuild_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CallbackPort = 0

	_, err := Build(cfg, nil, nil)
	var ce *gwerr.ConfigError
	if !gwerr.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if ce.Field != "callback-port" {
		t.Errorf("Field = %q, want callback-port", ce.Field)
	}
}

func TestBuildDialer(t *testing.T) {
	t.Run("tcp", func(t *testing.T) {
		cfg := config.Default()
		cfg.ConnTimeout = 2 * time.Second

		d, ok := buildDialer(cfg, nil).(*transport.TCPDialer)
		if !ok {
			t.Fatal("expected *transport.TCPDialer")
		}
		if d.Timeout != 2*time.Second {
			t.Errorf("Timeout = %v, want 2s", d.Timeout)
		}
	})

	t.Run("ssh tunnel", func(t *testing.T) {
		cfg := config.Default()
		cfg.TunnelSpec = "admin@bastion.invalid:2222"
		if err := cfg.ResolveTunnel(); err != nil {
			t.Fatal(err)
		}

		d, ok := buildDialer(cfg, util.NopLogger()).(*transport.SSHDialer)
		if !ok {
			t.Fatal("expected *transport.SSHDialer")
		}
		// The tunnel is connected lazily, so closing an unused dialer
		// must not touch the network.
		if err := d.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}
