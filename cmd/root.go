// Package cmd wires up the CLI flags and runs the gateway daemon.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"gobridge/callback"
	"gobridge/config"
	"gobridge/internal/core"
	"gobridge/internal/metrics"
	"gobridge/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X gobridge/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --version, --help and --dry-run output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the gateway until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	fl := config.Default()
	fs := flag.NewFlagSet("gobridge", flag.ContinueOnError)

	// ── gateway ──────────────────────────────────────────────────
	fs.StringVar(&fl.Host, "host", fl.Host, "Address to bind the gateway on")
	fs.IntVarP(&fl.Port, "port", "p", fl.Port, "Gateway port (0 = ephemeral)")
	fs.DurationVar(&fl.AcceptTimeout, "accept-timeout", 0, "Give up waiting for a connection after this long (0 = never)")
	fs.DurationVar(&fl.IdleTimeout, "idle-timeout", 0, "Close sessions idle for this long (0 = never)")

	// ── callback channel ─────────────────────────────────────────
	fs.IntVar(&fl.CallbackPort, "callback-port", fl.CallbackPort, "Port of the remote callback server")
	fs.StringVar(&fl.CallbackAddress, "callback-address", "", "Host of the remote callback server")
	fs.IntVar(&fl.CallbackRetries, "callback-retries", fl.CallbackRetries, "Dial attempts per callback")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&fl.TunnelSpec, "tunnel", "T", "", "Send callbacks through an SSH tunnel via [user@]host[:port]")
	fs.StringVar(&fl.SSHKeyPath, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&fl.SSHPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&fl.UseSSHAgent, "ssh-agent", false, "Use SSH agent")
	fs.BoolVar(&fl.StrictHostKey, "strict-hostkey", false, "Verify SSH host keys")
	fs.StringVar(&fl.KnownHostsPath, "known-hosts", "", "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.StringVar(&fl.MetricsAddress, "metrics-address", "", "Serve prometheus metrics on this address")
	fs.CountVarP(&fl.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var configPath string
	var dryRun, showVersion, showHelp bool
	fs.StringVar(&configPath, "config", "", "Config file (yaml, toml or json)")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "gobridge %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── load, then let flags win ─────────────────────────────────
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(fs, cfg, fl)
	if err := cfg.ResolveTunnel(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	m := metrics.New()

	srv, err := core.Build(cfg, logger, m)
	if err != nil {
		return err
	}

	if dryRun {
		srv.Shutdown()
		printPlan(cfg)
		return nil
	}

	// ── run ──────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return core.NewGatewayMode(srv, logger).Run(runCtx)
	})
	if cfg.MetricsAddress != "" {
		g.Go(func() error {
			return serveMetrics(runCtx, cfg.MetricsAddress, m, logger)
		})
	}
	err = g.Wait()
	logger.Verbose("final stats: %s", m.JSON())
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

// applyFlags copies every flag the user set from fl onto cfg, so flags
// override the config file and the environment.
func applyFlags(fs *flag.FlagSet, cfg, fl *config.Config) {
	set := map[string]func(){
		"host":             func() { cfg.Host = fl.Host },
		"port":             func() { cfg.Port = fl.Port },
		"accept-timeout":   func() { cfg.AcceptTimeout = fl.AcceptTimeout },
		"idle-timeout":     func() { cfg.IdleTimeout = fl.IdleTimeout },
		"callback-port":    func() { cfg.CallbackPort = fl.CallbackPort },
		"callback-address": func() { cfg.CallbackAddress = fl.CallbackAddress },
		"callback-retries": func() { cfg.CallbackRetries = fl.CallbackRetries },
		"tunnel":           func() { cfg.TunnelSpec = fl.TunnelSpec },
		"ssh-key":          func() { cfg.SSHKeyPath = fl.SSHKeyPath },
		"ssh-password":     func() { cfg.SSHPassword = fl.SSHPassword },
		"ssh-agent":        func() { cfg.UseSSHAgent = fl.UseSSHAgent },
		"strict-hostkey":   func() { cfg.StrictHostKey = fl.StrictHostKey },
		"known-hosts":      func() { cfg.KnownHostsPath = fl.KnownHostsPath },
		"metrics-address":  func() { cfg.MetricsAddress = fl.MetricsAddress },
		"verbose":          func() { cfg.Verbose = fl.Verbose },
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
}

func printPlan(cfg *config.Config) {
	fmt.Fprintf(stdout, "gateway   %s\n", util.FormatAddr(cfg.Host, cfg.Port))
	callbackHost := cfg.CallbackAddress
	if callbackHost == "" {
		callbackHost = callback.DefaultAddress
	}
	fmt.Fprintf(stdout, "callback  %s (%d attempts)\n", util.FormatAddr(callbackHost, cfg.CallbackPort), cfg.CallbackRetries)
	if cfg.TunnelEnabled {
		fmt.Fprintf(stdout, "tunnel    %s@%s\n", cfg.TunnelUser, util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort))
	}
	if cfg.AcceptTimeout > 0 || cfg.IdleTimeout > 0 {
		fmt.Fprintf(stdout, "timeouts  accept=%v idle=%v\n", orNever(cfg.AcceptTimeout), orNever(cfg.IdleTimeout))
	}
	if cfg.MetricsAddress != "" {
		fmt.Fprintf(stdout, "metrics   http://%s/metrics\n", cfg.MetricsAddress)
	}
}

func orNever(d time.Duration) string {
	if d == 0 {
		return "never"
	}
	return d.String()
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `gobridge – RPC gateway daemon v%s

Accepts connections from a remote runtime on the gateway port and calls
back into it on the callback port, optionally through an SSH tunnel.

Usage:
  gobridge [options]

Options:
`, version)
	fs.SetOutput(stdout)
	fs.PrintDefaults()
	fmt.Fprintf(stdout, `
Examples:
  gobridge                                    Listen on 127.0.0.1:25333
  gobridge -p 0 -v                            Ephemeral port, verbose
  gobridge --idle-timeout 5m                  Drop idle sessions
  gobridge -T admin@bastion --callback-address 10.0.0.7
                                              Callbacks through SSH
  gobridge --config gobridge.yaml --dry-run   Check a config file

Environment:
  Every option can be set as %s_<OPTION>, e.g. %s_CALLBACK_PORT=25334.
`, config.EnvPrefix, config.EnvPrefix)
}
