package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promCollector exposes a Collector through the prometheus registry.
// Values are read from a fresh Snapshot on every scrape.
type promCollector struct {
	src   *Collector
	descs []promDesc
}

type promDesc struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(Snapshot) float64
}

// NewPrometheusCollector returns a prometheus.Collector reporting c
// under the given namespace.
func NewPrometheusCollector(c *Collector, namespace string) prometheus.Collector {
	counter := func(name, help string, fn func(Snapshot) float64) promDesc {
		return promDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			kind:  prometheus.CounterValue,
			value: fn,
		}
	}
	gauge := func(name, help string, fn func(Snapshot) float64) promDesc {
		d := counter(name, help, fn)
		d.kind = prometheus.GaugeValue
		return d
	}

	return &promCollector{
		src: c,
		descs: []promDesc{
			counter("connections_accepted_total", "Connections accepted by the gateway.",
				func(s Snapshot) float64 { return float64(s.ConnectionsAccepted) }),
			gauge("sessions_active", "Sessions currently running.",
				func(s Snapshot) float64 { return float64(s.SessionsActive) }),
			counter("connection_errors_total", "Per-connection failures.",
				func(s Snapshot) float64 { return float64(s.ConnectionErrors) }),
			counter("server_errors_total", "Accept loop failures.",
				func(s Snapshot) float64 { return float64(s.ServerErrors) }),
			counter("listener_panics_total", "Lifecycle listeners that panicked.",
				func(s Snapshot) float64 { return float64(s.ListenerPanics) }),
			counter("commands_handled_total", "Protocol commands dispatched.",
				func(s Snapshot) float64 { return float64(s.CommandsHandled) }),
			counter("callbacks_sent_total", "Callbacks delivered to the remote side.",
				func(s Snapshot) float64 { return float64(s.CallbacksSent) }),
			counter("callbacks_failed_total", "Callbacks that failed.",
				func(s Snapshot) float64 { return float64(s.CallbacksFailed) }),
			counter("callback_dials_total", "Outbound callback connections dialled.",
				func(s Snapshot) float64 { return float64(s.CallbackDials) }),
		},
	}
}

func (p *promCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range p.descs {
		ch <- d.desc
	}
}

func (p *promCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.src.Snapshot()
	for _, d := range p.descs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.value(snap))
	}
}
