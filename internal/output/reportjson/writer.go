package reportjson

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"netmonitor/internal/logger"
	"netmonitor/pkg/models"
)

const (
	singleFileName   = "apps_report.json"
	perRunFileLayout = "apps_report_2006_01_02-15_04_05.json"
)

// ReportPath picks the report file inside dir: a single file rewritten by
// every run when oneFile is set, otherwise one file per run named after
// the start time.
func ReportPath(dir string, oneFile bool, startedAt time.Time) string {
	if oneFile {
		return filepath.Join(dir, singleFileName)
	}
	return filepath.Join(dir, startedAt.Format(perRunFileLayout))
}

// Writer replaces a JSON report file on every write.
type Writer struct {
	path string
}

// NewWriter creates a report writer for path, creating its directory.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	logger.Infof("Report JSON writer initialized: %s", path)
	return &Writer{path: path}, nil
}

// Path returns the report file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteReport writes the report to a temporary file in the same
// directory and renames it over the report path, so readers never see a
// partially written document.
func (w *Writer) WriteReport(report *models.Report) error {
	data, err := report.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".apps_report-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary report: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set report permissions: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace report %s: %w", w.path, err)
	}
	return nil
}

// Close is a no-op; the file is not held open between writes.
func (w *Writer) Close() error {
	return nil
}

// ReadReport loads a report written by Writer.
func ReadReport(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var report models.Report
	if err := report.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &report, nil
}
