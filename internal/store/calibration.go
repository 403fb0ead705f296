package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CalibrationStore holds nightly calibration snapshots in holocron
type CalibrationStore struct {
	db    *sql.DB
	guard *Guard
}

// CalibrationSnapshot aggregates graded picks into per-bucket accuracy
type CalibrationSnapshot struct {
	SnapshotDate time.Time          `json:"snapshot_date"`
	League       string             `json:"league"`
	Graded       int                `json:"graded"`
	Wins         int                `json:"wins"`
	Losses       int                `json:"losses"`
	Pushes       int                `json:"pushes"`
	Voids        int                `json:"voids"`
	MeanCLV      *float64           `json:"mean_clv"`
	EdgeBuckets  map[string]float64 `json:"edge_buckets"` // bucket -> win rate
}

// Append writes one snapshot row
func (s *CalibrationStore) Append(ctx context.Context, caller Caller, snap *CalibrationSnapshot) error {
	if err := s.guard.Authorize(ctx, caller, ColCalibration); err != nil {
		return err
	}

	buckets, err := json.Marshal(snap.EdgeBuckets)
	if err != nil {
		return fmt.Errorf("marshal edge buckets: %w", err)
	}

	var meanCLV sql.NullFloat64
	if snap.MeanCLV != nil {
		meanCLV = sql.NullFloat64{Float64: *snap.MeanCLV, Valid: true}
	}

	query := `
		INSERT INTO calibration_snapshots (
			snapshot_date, league, graded, wins, losses, pushes, voids, mean_clv, edge_buckets
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (snapshot_date, league) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		snap.SnapshotDate, snap.League, snap.Graded,
		snap.Wins, snap.Losses, snap.Pushes, snap.Voids, meanCLV, buckets)
	if err != nil {
		return fmt.Errorf("append calibration snapshot: %w", err)
	}

	return nil
}
