package models

import "time"

// Alert records a watch-rule match on a newly observed flow.
type Alert struct {
	AlertID   string    `json:"alert_id"`
	Timestamp time.Time `json:"ts"`
	Hostname  string    `json:"host,omitempty"`
	Flow      *Flow     `json:"flow"`
	Tags      []RuleTag `json:"rule_tags"`
}
