package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// SnapshotStore is the append-only market snapshot history.
// Snapshots are identified by (event_id, observed_at) and never overwritten.
type SnapshotStore struct {
	db    *sql.DB
	guard *Guard
}

const snapshotColumns = `
	event_id, wave, observed_at, book_id,
	spread_home, spread_away, spread_home_price, spread_away_price,
	total, over_price, under_price, ml_home, ml_away
`

// Record appends one snapshot. A duplicate (event_id, observed_at) is a
// no-op: history is immutable.
func (s *SnapshotStore) Record(ctx context.Context, caller Caller, snap *models.MarketSnapshot) error {
	if err := s.guard.Authorize(ctx, caller, ColSnapshots); err != nil {
		return err
	}

	query := `
		INSERT INTO market_snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id, observed_at) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		snap.EventID, snap.Wave, snap.ObservedAt, snap.BookID,
		snap.SpreadHome, snap.SpreadAway, snap.SpreadHomePrice, snap.SpreadAwayPrice,
		snap.Total, snap.OverPrice, snap.UnderPrice, snap.MLHome, snap.MLAway,
	)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}

	return nil
}

func (s *SnapshotStore) scanOne(row *sql.Row) (*models.MarketSnapshot, error) {
	var snap models.MarketSnapshot
	err := row.Scan(
		&snap.EventID, &snap.Wave, &snap.ObservedAt, &snap.BookID,
		&snap.SpreadHome, &snap.SpreadAway, &snap.SpreadHomePrice, &snap.SpreadAwayPrice,
		&snap.Total, &snap.OverPrice, &snap.UnderPrice, &snap.MLHome, &snap.MLAway,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return &snap, nil
}

// Latest returns the most recent snapshot for an event
func (s *SnapshotStore) Latest(ctx context.Context, eventID string) (*models.MarketSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM market_snapshots
		WHERE event_id = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, eventID))
}

// AtWave returns the most recent snapshot recorded at a given wave
func (s *SnapshotStore) AtWave(ctx context.Context, eventID string, wave models.Wave) (*models.MarketSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM market_snapshots
		WHERE event_id = $1 AND wave = $2
		ORDER BY observed_at DESC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, eventID, wave))
}

// Closing returns the last snapshot observed before the event start time.
// Its absence is a non-fatal condition the caller surfaces as an ops alert.
func (s *SnapshotStore) Closing(ctx context.Context, eventID string, startTime time.Time) (*models.MarketSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM market_snapshots
		WHERE event_id = $1 AND observed_at < $2
		ORDER BY observed_at DESC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, eventID, startTime))
}

// Opening returns the earliest snapshot for an event (CLV baseline support)
func (s *SnapshotStore) Opening(ctx context.Context, eventID string) (*models.MarketSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM market_snapshots
		WHERE event_id = $1
		ORDER BY observed_at ASC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, eventID))
}
