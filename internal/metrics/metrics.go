package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netmonitor/internal/logger"
)

const namespace = "netmonitor"

// Collector groups the sampler's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	Cycles              prometheus.Counter
	CycleDuration       prometheus.Histogram
	ConnectionsSampled  prometheus.Counter
	SourceErrors        prometheus.Counter
	Attributed          prometheus.Counter
	AttributionFailures *prometheus.CounterVec
	UnnamedAdded        prometheus.Counter
	UnrecognizedAdded   prometheus.Counter
	ReportWrites        prometheus.Counter
	ReportWriteErrors   prometheus.Counter
	TrackedProcesses    prometheus.Gauge
	RuleMatches         *prometheus.CounterVec
}

// New creates a Collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Sampling cycles completed.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Time spent sampling, attributing and reporting per cycle.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		ConnectionsSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_sampled_total",
			Help: "Connections read from the connection source.",
		}),
		SourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "source_errors_total",
			Help: "Failed attempts to list connections.",
		}),
		Attributed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_attributed_total",
			Help: "Connections attributed to a process.",
		}),
		AttributionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "attribution_failures_total",
			Help: "Connections that could not be attributed, by reason.",
		}, []string{"reason"}),
		UnnamedAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "unnamed_addresses_added_total",
			Help: "New unnamed address pairs recorded.",
		}),
		UnrecognizedAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "unrecognized_connections_added_total",
			Help: "New unrecognized connections recorded.",
		}),
		ReportWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "report_writes_total",
			Help: "Reports written after a change.",
		}),
		ReportWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "report_write_errors_total",
			Help: "Report writes that failed.",
		}),
		TrackedProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tracked_processes",
			Help: "Distinct process names tracked so far.",
		}),
		RuleMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rule_matches_total",
			Help: "Watch-rule matches on new flows, by rule.",
		}, []string{"rule", "severity"}),
	}

	c.registry.MustRegister(
		c.Cycles,
		c.CycleDuration,
		c.ConnectionsSampled,
		c.SourceErrors,
		c.Attributed,
		c.AttributionFailures,
		c.UnnamedAdded,
		c.UnrecognizedAdded,
		c.ReportWrites,
		c.ReportWriteErrors,
		c.TrackedProcesses,
		c.RuleMatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler returns an HTTP handler serving the metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Metrics listener started on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
