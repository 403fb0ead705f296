package models

import "time"

// AlertKind classifies an operational alert
type AlertKind string

const (
	AlertProviderIDMissing    AlertKind = "PROVIDER_ID_MISSING"
	AlertMappingDrift         AlertKind = "MAPPING_DRIFT"
	AlertCloseSnapshotMissing AlertKind = "CLOSE_SNAPSHOT_MISSING"
	AlertIntegrityViolation   AlertKind = "INTEGRITY_VIOLATION"
	AlertWriterUnauthorized   AlertKind = "WRITER_UNAUTHORIZED"
	AlertSentinelBreach       AlertKind = "SENTINEL_BREACH"
	AlertSimTimeout           AlertKind = "SIM_TIMEOUT"
)

// AlertSeverity grades an alert
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// ReconciliationStatus tracks operator follow-up on an alert
type ReconciliationStatus string

const (
	ReconciliationOpen     ReconciliationStatus = "open"
	ReconciliationResolved ReconciliationStatus = "resolved"
)

// OpsAlert is an operational alert row
type OpsAlert struct {
	AlertID        string               `json:"alert_id"`
	Kind           AlertKind            `json:"kind"`
	Severity       AlertSeverity        `json:"severity"`
	EventID        string               `json:"event_id,omitempty"`
	Details        map[string]string    `json:"details"`
	Reconciliation ReconciliationStatus `json:"reconciliation_status"`
	CreatedAt      time.Time            `json:"created_at"`
}
