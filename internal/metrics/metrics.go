// Package metrics implements the optional Prometheus exporter from
// SPEC_FULL.md section 3.6: a read-only telemetry surface gated by
// --metrics-addr, grounded in runZeroInc-sockstats/conniver's pkg/exporter
// use of github.com/prometheus/client_golang and aistore's direct
// dependency on the same library.
package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter owns a private registry (rather than the global default one) so
// running multiple pv instances in the same process, as tests do, never
// collides on metric registration.
type Exporter struct {
	registry *prometheus.Registry

	bytesTotal   prometheus.Counter
	instantRate  prometheus.Gauge
	bufferFill   prometheus.Gauge
	lastTotal    float64

	server *http.Server
}

func New() *Exporter {
	reg := prometheus.NewRegistry()
	e := &Exporter{
		registry: reg,
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pv_bytes_transferred_total",
			Help: "Total bytes moved through the transfer engine.",
		}),
		instantRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pv_instantaneous_rate_bytes_per_second",
			Help: "Most recently observed transfer rate in bytes per second.",
		}),
		bufferFill: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pv_buffer_fill_ratio",
			Help: "Fraction of the transfer buffer currently occupied, 0 to 1.",
		}),
	}
	reg.MustRegister(e.bytesTotal, e.instantRate, e.bufferFill)
	return e
}

// Observe updates the gauges/counter from one tick's values. totalBytes is
// cumulative; the counter is advanced by the delta against its own prior
// total, which Observe tracks internally.
func (e *Exporter) Observe(totalBytes int64, instantRate float64, bufferFillPercent int) {
	e.bytesTotal.Add(float64(totalBytes) - e.lastTotal)
	e.lastTotal = float64(totalBytes)
	e.instantRate.Set(instantRate)
	e.bufferFill.Set(float64(bufferFillPercent) / 100)
}

// Serve starts the HTTP server on addr in the background. It returns
// immediately; call Shutdown to stop it.
func (e *Exporter) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go e.server.Serve(ln)
	return nil
}

func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
