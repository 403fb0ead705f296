package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// ParlayStore is the append-only parlay attempt log in holocron
type ParlayStore struct {
	db    *sql.DB
	guard *Guard
}

// AppendAttempt records one construction attempt, success or failure
func (s *ParlayStore) AppendAttempt(ctx context.Context, caller Caller, req *models.ParlayRequest, result *models.ParlayResult) error {
	if err := s.guard.Authorize(ctx, caller, ColParlayAttempt); err != nil {
		return err
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal parlay request: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal parlay result: %w", err)
	}

	query := `
		INSERT INTO parlay_attempts (attempt_id, status, reason_code, request, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.db.ExecContext(ctx, query,
		result.AttemptID, result.Status, string(result.ReasonCode),
		reqJSON, resultJSON, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("append parlay attempt: %w", err)
	}

	return nil
}

// ParlayStats aggregates attempt outcomes over a trailing window
type ParlayStats struct {
	Days         int            `json:"days"`
	Successes    int            `json:"successes"`
	Failures     int            `json:"failures"`
	FailReasons  map[string]int `json:"fail_reasons"`
}

// Stats returns success/fail counters and the fail-reason histogram
func (s *ParlayStore) Stats(ctx context.Context, days int) (*ParlayStats, error) {
	query := `
		SELECT status, reason_code, COUNT(*)
		FROM parlay_attempts
		WHERE created_at >= $1
		GROUP BY status, reason_code
	`

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query parlay stats: %w", err)
	}
	defer rows.Close()

	stats := &ParlayStats{Days: days, FailReasons: make(map[string]int)}
	for rows.Next() {
		var status, reason string
		var count int
		if err := rows.Scan(&status, &reason, &count); err != nil {
			return nil, fmt.Errorf("scan parlay stats: %w", err)
		}
		if status == "PARLAY" {
			stats.Successes += count
		} else {
			stats.Failures += count
			if reason != "" {
				stats.FailReasons[reason] += count
			}
		}
	}

	return stats, rows.Err()
}
