package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// SimRunStore persists immutable simulation runs in alexandria
type SimRunStore struct {
	db    *sql.DB
	guard *Guard
}

// Insert appends one run. Runs are content-addressed by sim_run_id; a
// duplicate insert of the same run is a no-op.
func (s *SimRunStore) Insert(ctx context.Context, caller Caller, run *models.SimulationRun) error {
	if err := s.guard.Authorize(ctx, caller, ColSimRuns); err != nil {
		return err
	}

	marginHist, err := json.Marshal(run.MarginHist)
	if err != nil {
		return fmt.Errorf("marshal margin hist: %w", err)
	}
	totalHist, err := json.Marshal(run.TotalHist)
	if err != nil {
		return fmt.Errorf("marshal total hist: %w", err)
	}
	configRef, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config ref: %w", err)
	}

	query := `
		INSERT INTO sim_runs (
			sim_run_id, event_id, league, wave, iterations, seed, config,
			home_win_prob, mean_margin, margin_variance, mean_total, total_variance,
			margin_hist, total_hist, converged, timed_out, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (sim_run_id) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		run.SimRunID, run.EventID, run.League, run.Wave, run.Iterations,
		int64(run.Seed), configRef,
		run.HomeWinProb, run.MeanMargin, run.MarginVariance, run.MeanTotal, run.TotalVariance,
		marginHist, totalHist, run.Converged, run.TimedOut, run.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sim run: %w", err)
	}

	return nil
}

// Get loads one run by id
func (s *SimRunStore) Get(ctx context.Context, simRunID string) (*models.SimulationRun, error) {
	query := `
		SELECT sim_run_id, event_id, league, wave, iterations, seed, config,
		       home_win_prob, mean_margin, margin_variance, mean_total, total_variance,
		       margin_hist, total_hist, converged, timed_out, computed_at
		FROM sim_runs
		WHERE sim_run_id = $1
	`

	var run models.SimulationRun
	var seed int64
	var configRef, marginHist, totalHist []byte
	err := s.db.QueryRowContext(ctx, query, simRunID).Scan(
		&run.SimRunID, &run.EventID, &run.League, &run.Wave, &run.Iterations,
		&seed, &configRef,
		&run.HomeWinProb, &run.MeanMargin, &run.MarginVariance, &run.MeanTotal, &run.TotalVariance,
		&marginHist, &totalHist, &run.Converged, &run.TimedOut, &run.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query sim run: %w", err)
	}

	run.Seed = uint64(seed)
	if err := json.Unmarshal(configRef, &run.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config ref: %w", err)
	}
	if err := json.Unmarshal(marginHist, &run.MarginHist); err != nil {
		return nil, fmt.Errorf("unmarshal margin hist: %w", err)
	}
	if err := json.Unmarshal(totalHist, &run.TotalHist); err != nil {
		return nil, fmt.Errorf("unmarshal total hist: %w", err)
	}

	return &run, nil
}
