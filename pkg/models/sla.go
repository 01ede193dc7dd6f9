package models

import "time"

// BreachSeverity classifies how far past its thresholds a run landed.
type BreachSeverity string

const (
	BreachSeverityWarning  BreachSeverity = "warning"
	BreachSeverityCritical BreachSeverity = "critical"
)

// WorkflowSLA binds duration targets and a rolling service-level objective to
// one workflow. Counters are read-modify-write per completed run and must be
// updated serially per SLA row.
type WorkflowSLA struct {
	ID                       string    `json:"id"`
	WorkflowID               string    `json:"workflow_id" validate:"required"`
	Name                     string    `json:"name"`
	TargetDurationSeconds    float64   `json:"target_duration_seconds"    validate:"gt=0"`
	WarningThresholdSeconds  float64   `json:"warning_threshold_seconds"  validate:"gt=0"`
	CriticalThresholdSeconds float64   `json:"critical_threshold_seconds" validate:"gt=0"`
	SLAWindowHours           int       `json:"sla_window_hours"`
	SLOTargetPercentage      float64   `json:"slo_target_percentage"`
	TotalExecutions          int64     `json:"total_executions"`
	BreachedExecutions       int64     `json:"breached_executions"`
	CurrentSLOPercentage     float64   `json:"current_slo_percentage"`
	IsActive                 bool      `json:"is_active"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// RecomputeSLO refreshes CurrentSLOPercentage from the rolling counters.
// An SLA with no recorded executions reports 100.
func (s *WorkflowSLA) RecomputeSLO() {
	if s.TotalExecutions == 0 {
		s.CurrentSLOPercentage = 100
		return
	}

	s.CurrentSLOPercentage = float64(s.TotalExecutions-s.BreachedExecutions) / float64(s.TotalExecutions) * 100
}

// SLABreach records one breaching run against one SLA.
type SLABreach struct {
	ID                    string         `json:"id"`
	SLAID                 string         `json:"sla_id"`
	RunID                 string         `json:"run_id"`
	WorkflowID            string         `json:"workflow_id"`
	Severity              BreachSeverity `json:"severity"`
	ActualDurationSeconds float64        `json:"actual_duration_seconds"`
	TargetDurationSeconds float64        `json:"target_duration_seconds"`
	BreachMarginSeconds   float64        `json:"breach_margin_seconds"`
	AlertSent             bool           `json:"alert_sent"`
	AlertSentAt           *time.Time     `json:"alert_sent_at,omitempty"`
	Acknowledged          bool           `json:"acknowledged"`
	AcknowledgedBy        string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt        *time.Time     `json:"acknowledged_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}
