package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// GradingStore persists grading records in holocron, unique on
// idempotency key. Only the settlement engine is listed for this
// collection.
type GradingStore struct {
	db    *sql.DB
	guard *Guard
}

// Upsert writes a grading record. A record with the same idempotency key
// already present makes this a successful no-op and returns the stored
// record, so duplicate grade calls collapse to one row.
func (s *GradingStore) Upsert(ctx context.Context, caller Caller, rec *models.GradingRecord) (*models.GradingRecord, error) {
	if err := s.guard.Authorize(ctx, caller, ColGrading); err != nil {
		return nil, err
	}

	scoreRef, err := json.Marshal(rec.ScoreRef)
	if err != nil {
		return nil, fmt.Errorf("marshal score ref: %w", err)
	}
	alerts, err := json.Marshal(rec.OpsAlerts)
	if err != nil {
		return nil, fmt.Errorf("marshal ops alerts: %w", err)
	}

	var override sql.NullString
	if rec.AdminOverride != nil {
		override = sql.NullString{String: string(*rec.AdminOverride), Valid: true}
	}
	var clv sql.NullFloat64
	if rec.CLV != nil {
		clv = sql.NullFloat64{Float64: *rec.CLV, Valid: true}
	}

	query := `
		INSERT INTO grading (
			pick_id, event_id, provider_event_id, idempotency_key,
			settlement, clv, score_payload_ref, ops_alerts,
			admin_override, admin_note, rules_version, clv_rules_version, graded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.PickID, rec.EventID, rec.ProviderEventID, rec.IdempotencyKey,
		rec.Settlement, clv, scoreRef, alerts,
		override, rec.AdminNote, rec.RulesVersion, rec.CLVRulesVersion, rec.GradedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert grading record: %w", err)
	}

	return s.ByIdempotencyKey(ctx, rec.IdempotencyKey)
}

// ByIdempotencyKey loads the record stored under a key
func (s *GradingStore) ByIdempotencyKey(ctx context.Context, key string) (*models.GradingRecord, error) {
	query := `
		SELECT pick_id, event_id, provider_event_id, idempotency_key,
		       settlement, clv, score_payload_ref, ops_alerts,
		       admin_override, admin_note, rules_version, clv_rules_version, graded_at
		FROM grading
		WHERE idempotency_key = $1
	`
	return s.scanRecord(s.db.QueryRowContext(ctx, query, key))
}

// ByPickID loads the latest record for a pick
func (s *GradingStore) ByPickID(ctx context.Context, pickID string) (*models.GradingRecord, error) {
	query := `
		SELECT pick_id, event_id, provider_event_id, idempotency_key,
		       settlement, clv, score_payload_ref, ops_alerts,
		       admin_override, admin_note, rules_version, clv_rules_version, graded_at
		FROM grading
		WHERE pick_id = $1
		ORDER BY graded_at DESC
		LIMIT 1
	`
	return s.scanRecord(s.db.QueryRowContext(ctx, query, pickID))
}

func (s *GradingStore) scanRecord(row *sql.Row) (*models.GradingRecord, error) {
	var rec models.GradingRecord
	var clv sql.NullFloat64
	var override sql.NullString
	var scoreRef, alerts []byte

	err := row.Scan(
		&rec.PickID, &rec.EventID, &rec.ProviderEventID, &rec.IdempotencyKey,
		&rec.Settlement, &clv, &scoreRef, &alerts,
		&override, &rec.AdminNote, &rec.RulesVersion, &rec.CLVRulesVersion, &rec.GradedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan grading record: %w", err)
	}

	if clv.Valid {
		rec.CLV = &clv.Float64
	}
	if override.Valid {
		settlement := models.Settlement(override.String)
		rec.AdminOverride = &settlement
	}
	if err := json.Unmarshal(scoreRef, &rec.ScoreRef); err != nil {
		return nil, fmt.Errorf("unmarshal score ref: %w", err)
	}
	if err := json.Unmarshal(alerts, &rec.OpsAlerts); err != nil {
		return nil, fmt.Errorf("unmarshal ops alerts: %w", err)
	}

	return &rec, nil
}

// GradedSince returns records graded after a cutoff (calibration feed)
func (s *GradingStore) GradedSince(ctx context.Context, since time.Time) ([]models.GradingRecord, error) {
	query := `
		SELECT pick_id, event_id, provider_event_id, idempotency_key,
		       settlement, clv, score_payload_ref, ops_alerts,
		       admin_override, admin_note, rules_version, clv_rules_version, graded_at
		FROM grading
		WHERE graded_at >= $1
		ORDER BY graded_at
	`

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query graded since: %w", err)
	}
	defer rows.Close()

	var out []models.GradingRecord
	for rows.Next() {
		var rec models.GradingRecord
		var clv sql.NullFloat64
		var override sql.NullString
		var scoreRef, alerts []byte
		err := rows.Scan(
			&rec.PickID, &rec.EventID, &rec.ProviderEventID, &rec.IdempotencyKey,
			&rec.Settlement, &clv, &scoreRef, &alerts,
			&override, &rec.AdminNote, &rec.RulesVersion, &rec.CLVRulesVersion, &rec.GradedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan grading record: %w", err)
		}
		if clv.Valid {
			rec.CLV = &clv.Float64
		}
		if override.Valid {
			settlement := models.Settlement(override.String)
			rec.AdminOverride = &settlement
		}
		if err := json.Unmarshal(scoreRef, &rec.ScoreRef); err != nil {
			return nil, fmt.Errorf("unmarshal score ref: %w", err)
		}
		if err := json.Unmarshal(alerts, &rec.OpsAlerts); err != nil {
			return nil, fmt.Errorf("unmarshal ops alerts: %w", err)
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}
