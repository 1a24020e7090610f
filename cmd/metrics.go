package cmd

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gwerr "gobridge/internal/errors"
	"gobridge/internal/metrics"
	"gobridge/util"
)

const metricsNamespace = "gobridge"

// metricsHandler exposes m at /metrics in the prometheus text format
// and at /stats as JSON.
func metricsHandler(m *metrics.Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewPrometheusCollector(m, metricsNamespace))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, m.JSON()) //nolint:errcheck
	})
	return mux
}

// serveMetrics runs the metrics endpoint on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, m *metrics.Collector, logger *util.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return gwerr.Wrap("listen", addr, err)
	}
	return serveMetricsOn(ctx, ln, m, logger)
}

func serveMetricsOn(ctx context.Context, ln net.Listener, m *metrics.Collector, logger *util.Logger) error {
	srv := &http.Server{
		Handler:           metricsHandler(m),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Verbose("metrics on http://%s/metrics", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
