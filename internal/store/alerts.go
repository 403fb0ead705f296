package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// AlertStore persists ops alerts in holocron
type AlertStore struct {
	db    *sql.DB
	guard *Guard
}

// Emit appends one ops alert and returns its id
func (s *AlertStore) Emit(ctx context.Context, caller Caller, alert *models.OpsAlert) (string, error) {
	if err := s.guard.Authorize(ctx, caller, ColOpsAlerts); err != nil {
		return "", err
	}

	if alert.AlertID == "" {
		alert.AlertID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.Reconciliation == "" {
		alert.Reconciliation = models.ReconciliationOpen
	}

	details, err := json.Marshal(alert.Details)
	if err != nil {
		return "", fmt.Errorf("marshal alert details: %w", err)
	}

	query := `
		INSERT INTO ops_alerts (alert_id, kind, severity, event_id, details, reconciliation_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		alert.AlertID, alert.Kind, alert.Severity, alert.EventID,
		details, alert.Reconciliation, alert.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert ops alert: %w", err)
	}

	return alert.AlertID, nil
}

// EmitGuardAlert records a refused write. Implements the guard's AlertSink;
// the sentinel is the attributed writer because the guard is its
// enforcement arm.
func (s *AlertStore) EmitGuardAlert(ctx context.Context, caller Caller, collection Collection) {
	_, err := s.Emit(ctx, CallerSentinel, &models.OpsAlert{
		Kind:     models.AlertWriterUnauthorized,
		Severity: models.SeverityCritical,
		Details: map[string]string{
			"caller":     string(caller),
			"collection": string(collection),
		},
	})
	if err != nil {
		log.Printf("[WriterMatrix] failed to record unauthorized write (%s -> %s): %v", caller, collection, err)
	}
}

// OpenByKind returns unresolved alerts of a kind for an event
func (s *AlertStore) OpenByKind(ctx context.Context, eventID string, kind models.AlertKind) ([]models.OpsAlert, error) {
	query := `
		SELECT alert_id, kind, severity, event_id, details, reconciliation_status, created_at
		FROM ops_alerts
		WHERE event_id = $1 AND kind = $2 AND reconciliation_status = 'open'
	`

	rows, err := s.db.QueryContext(ctx, query, eventID, kind)
	if err != nil {
		return nil, fmt.Errorf("query ops alerts: %w", err)
	}
	defer rows.Close()

	var out []models.OpsAlert
	for rows.Next() {
		var a models.OpsAlert
		var details []byte
		if err := rows.Scan(&a.AlertID, &a.Kind, &a.Severity, &a.EventID, &details, &a.Reconciliation, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ops alert: %w", err)
		}
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return nil, fmt.Errorf("unmarshal alert details: %w", err)
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

// Resolve marks an alert reconciled
func (s *AlertStore) Resolve(ctx context.Context, caller Caller, alertID string) error {
	if err := s.guard.Authorize(ctx, caller, ColOpsAlerts); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE ops_alerts SET reconciliation_status = 'resolved' WHERE alert_id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("resolve ops alert: %w", err)
	}
	return nil
}
