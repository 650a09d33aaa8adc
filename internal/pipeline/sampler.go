package pipeline

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"netmonitor/internal/attribution"
	"netmonitor/internal/logger"
	"netmonitor/internal/metrics"
	"netmonitor/internal/rules"
	"netmonitor/internal/tracker"
	"netmonitor/pkg/models"
)

// SamplerConfig wires a Sampler.
type SamplerConfig struct {
	Source     ConnectionSource
	Attributor *attribution.Attributor
	Model      *tracker.Model
	Reporter   *Reporter
	// Engine and AlertWriter are optional.
	Engine      rules.Engine
	AlertWriter AlertWriter
	Metrics     *metrics.Collector
	// Interval is the pause between cycles; zero runs them back to back.
	Interval time.Duration
}

// Sampler drives the snapshot, attribute, report, sleep cycle.
type Sampler struct {
	source      ConnectionSource
	attributor  *attribution.Attributor
	model       *tracker.Model
	reporter    *Reporter
	engine      rules.Engine
	alertWriter AlertWriter
	metrics     *metrics.Collector
	interval    time.Duration
	hostname    string
}

// NewSampler creates a Sampler.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if cfg.Engine == nil {
		cfg.Engine = &rules.NoopEngine{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	hostname, _ := os.Hostname()
	return &Sampler{
		source:      cfg.Source,
		attributor:  cfg.Attributor,
		model:       cfg.Model,
		reporter:    cfg.Reporter,
		engine:      cfg.Engine,
		alertWriter: cfg.AlertWriter,
		metrics:     cfg.Metrics,
		interval:    cfg.Interval,
		hostname:    hostname,
	}
}

// Run executes cycles until ctx is cancelled or a report cannot be
// written. Cancellation returns ctx.Err().
func (s *Sampler) Run(ctx context.Context) error {
	logger.Infof("Sampler started (interval %s)", s.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.RunCycle(ctx); err != nil {
			return err
		}
		timer.Reset(s.interval)
	}
}

// RunCycle samples once and writes the report if the model changed.
func (s *Sampler) RunCycle(ctx context.Context) error {
	start := time.Now()
	prev := s.model.Revision()

	conns, err := s.source.Connections(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.metrics.SourceErrors.Inc()
		logger.Warnf("Failed to list connections: %v", err)
		conns = nil
	}

	res, err := s.attributor.Attribute(ctx, conns, s.model)
	if err != nil {
		return err
	}
	s.observe(res)

	if len(res.Flows) > 0 {
		s.evaluate(res.Flows)
	}

	written, err := s.reporter.Flush(prev, s.model)
	if err != nil {
		return err
	}
	if written {
		logger.Debugf("Report updated: tracked=%d unnamed=%d", len(s.model.TrackedNames()), len(s.model.Unnamed()))
	}

	s.metrics.Cycles.Inc()
	s.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Close releases the report and alert sinks.
func (s *Sampler) Close() error {
	if s.alertWriter != nil {
		if err := s.alertWriter.Close(); err != nil {
			logger.Errorf("Failed to close rule match writer: %v", err)
		}
	}
	if s.reporter != nil {
		return s.reporter.Close()
	}
	return nil
}

func (s *Sampler) observe(res attribution.Result) {
	s.metrics.ConnectionsSampled.Add(float64(res.Sampled))
	s.metrics.Attributed.Add(float64(res.Attributed))
	for reason, n := range res.Failures {
		s.metrics.AttributionFailures.WithLabelValues(string(reason)).Add(float64(n))
	}
	s.metrics.UnnamedAdded.Add(float64(res.UnnamedAdded))
	s.metrics.UnrecognizedAdded.Add(float64(res.UnrecognizedAdded))
	s.metrics.TrackedProcesses.Set(float64(len(s.model.TrackedNames())))
}

func (s *Sampler) evaluate(flows []*models.Flow) {
	var alerts []*models.Alert
	for _, flow := range flows {
		tags := s.engine.Apply(flow)
		if len(tags) == 0 {
			continue
		}
		for _, tag := range tags {
			s.metrics.RuleMatches.WithLabelValues(tag.ID, tag.Severity).Inc()
			logger.Warnf("Rule %q matched: %s (pid %d) %s -> %s:%d",
				tag.Name, flow.Process, flow.PID, flow.Source, flow.Destination, flow.DestinationPort)
		}
		alerts = append(alerts, &models.Alert{
			AlertID:   alertID(flow),
			Timestamp: flow.ObservedAt,
			Hostname:  s.hostname,
			Flow:      flow,
			Tags:      tags,
		})
	}

	if len(alerts) == 0 || s.alertWriter == nil {
		return
	}
	if err := s.alertWriter.WriteAlerts(alerts); err != nil {
		logger.Errorf("Failed to write rule matches: %v", err)
	}
}

func alertID(flow *models.Flow) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%s|%d", flow.Process, flow.Source, flow.Destination, flow.ObservedAt.UnixNano())))
	return hex.EncodeToString(sum[:8])
}
