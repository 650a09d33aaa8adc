package pipeline

import (
	"errors"

	"netmonitor/pkg/models"
)

// ReportWriter persists the report view.
type ReportWriter interface {
	WriteReport(report *models.Report) error
	Close() error
}

// MultiReportWriter fans a report out to several sinks in order. The first
// failing sink stops the write.
type MultiReportWriter []ReportWriter

// WriteReport writes report to every sink.
func (m MultiReportWriter) WriteReport(report *models.Report) error {
	for _, w := range m {
		if err := w.WriteReport(report); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiReportWriter) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
