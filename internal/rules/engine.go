package rules

import "netmonitor/pkg/models"

// Engine evaluates watch rules against newly observed flows.
type Engine interface {
	Apply(flow *models.Flow) []models.RuleTag
}

// NoopEngine matches nothing.
type NoopEngine struct{}

// Apply returns no tags.
func (n *NoopEngine) Apply(flow *models.Flow) []models.RuleTag {
	return nil
}
