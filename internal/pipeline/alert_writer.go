package pipeline

import "netmonitor/pkg/models"

// AlertWriter writes watch-rule matches.
type AlertWriter interface {
	WriteAlerts(alerts []*models.Alert) error
	Close() error
}
