package pipeline

import (
	"fmt"
	"time"

	"netmonitor/internal/metrics"
	"netmonitor/internal/tracker"
)

// Reporter writes the model's report view whenever the model changed.
type Reporter struct {
	writer  ReportWriter
	metrics *metrics.Collector
	now     func() time.Time
}

// NewReporter creates a Reporter writing through writer.
func NewReporter(writer ReportWriter, m *metrics.Collector) *Reporter {
	if m == nil {
		m = metrics.New()
	}
	return &Reporter{writer: writer, metrics: m, now: time.Now}
}

// Flush compares the model against the revision captured before the cycle
// mutated it. When nothing changed no I/O happens. Otherwise the
// last-updated time is refreshed and the report, without excluded
// processes, is handed to the writer. It reports whether a write happened.
func (r *Reporter) Flush(prevRevision uint64, model *tracker.Model) (bool, error) {
	if model.Revision() == prevRevision {
		return false, nil
	}

	model.Touch(r.now())
	if err := r.writer.WriteReport(model.Report()); err != nil {
		r.metrics.ReportWriteErrors.Inc()
		return false, fmt.Errorf("write report: %w", err)
	}
	r.metrics.ReportWrites.Inc()
	return true, nil
}

// Close closes the underlying writer.
func (r *Reporter) Close() error {
	return r.writer.Close()
}
