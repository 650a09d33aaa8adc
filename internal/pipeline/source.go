package pipeline

import (
	"context"

	"netmonitor/pkg/models"
)

// ConnectionSource lists the connections currently open on the host.
type ConnectionSource interface {
	Connections(ctx context.Context) ([]models.Connection, error)
}
