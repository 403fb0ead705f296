package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// SignalStore persists signals in holocron. Status transitions use
// compare-and-set on the previous status so a signal never moves backward.
type SignalStore struct {
	db    *sql.DB
	guard *Guard
}

// ErrStatusConflict is returned when a CAS status transition loses
var ErrStatusConflict = errors.New("signal status conflict")

// Create inserts a new signal
func (s *SignalStore) Create(ctx context.Context, caller Caller, sig *models.Signal) error {
	if err := s.guard.Authorize(ctx, caller, ColSignals); err != nil {
		return err
	}

	waves, err := json.Marshal(sig.Waves)
	if err != nil {
		return fmt.Errorf("marshal waves: %w", err)
	}

	query := `
		INSERT INTO signals (
			signal_id, event_id, sport, team_a, team_b, start_time,
			intent, market_type, status, waves, entry, pick_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, '', NOW(), NOW())
	`

	_, err = s.db.ExecContext(ctx, query,
		sig.SignalID, sig.EventID, sig.Sport, sig.TeamA, sig.TeamB, sig.StartTime,
		sig.Intent, sig.Market, sig.Status, waves,
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}

	return nil
}

// Get loads one signal
func (s *SignalStore) Get(ctx context.Context, signalID string) (*models.Signal, error) {
	query := `
		SELECT signal_id, event_id, sport, team_a, team_b, start_time,
		       intent, market_type, status, waves, entry, pick_id,
		       created_at, updated_at
		FROM signals
		WHERE signal_id = $1
	`
	return s.scanSignal(s.db.QueryRowContext(ctx, query, signalID))
}

// ByPickID loads the signal published under a pick id
func (s *SignalStore) ByPickID(ctx context.Context, pickID string) (*models.Signal, error) {
	query := `
		SELECT signal_id, event_id, sport, team_a, team_b, start_time,
		       intent, market_type, status, waves, entry, pick_id,
		       created_at, updated_at
		FROM signals
		WHERE pick_id = $1
	`
	return s.scanSignal(s.db.QueryRowContext(ctx, query, pickID))
}

// ByEventMarket loads the signal tracking one (event, market)
func (s *SignalStore) ByEventMarket(ctx context.Context, eventID string, market models.MarketType) (*models.Signal, error) {
	query := `
		SELECT signal_id, event_id, sport, team_a, team_b, start_time,
		       intent, market_type, status, waves, entry, pick_id,
		       created_at, updated_at
		FROM signals
		WHERE event_id = $1 AND market_type = $2
	`
	return s.scanSignal(s.db.QueryRowContext(ctx, query, eventID, market))
}

func (s *SignalStore) scanSignal(row *sql.Row) (*models.Signal, error) {
	var sig models.Signal
	var waves []byte
	var entry sql.NullString
	err := row.Scan(
		&sig.SignalID, &sig.EventID, &sig.Sport, &sig.TeamA, &sig.TeamB, &sig.StartTime,
		&sig.Intent, &sig.Market, &sig.Status, &waves, &entry, &sig.PickID,
		&sig.CreatedAt, &sig.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan signal: %w", err)
	}

	if err := json.Unmarshal(waves, &sig.Waves); err != nil {
		return nil, fmt.Errorf("unmarshal waves: %w", err)
	}
	if entry.Valid {
		var e models.Entry
		if err := json.Unmarshal([]byte(entry.String), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		sig.Entry = &e
	}

	return &sig, nil
}

// Transition moves a signal from one status to another, persisting the wave
// history and (at publish) the frozen entry. The update is compare-and-set
// on the previous status; a lost race returns ErrStatusConflict. Published
// and later signals never transition backward.
func (s *SignalStore) Transition(ctx context.Context, caller Caller, sig *models.Signal, from models.SignalStatus) error {
	if err := s.guard.Authorize(ctx, caller, ColSignals); err != nil {
		return err
	}

	waves, err := json.Marshal(sig.Waves)
	if err != nil {
		return fmt.Errorf("marshal waves: %w", err)
	}

	var entry interface{}
	if sig.Entry != nil {
		data, err := json.Marshal(sig.Entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		entry = string(data)
	}

	query := `
		UPDATE signals SET
			status = $3, waves = $4, entry = COALESCE($5, entry),
			pick_id = $6, updated_at = NOW()
		WHERE signal_id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query,
		sig.SignalID, from, sig.Status, waves, entry, sig.PickID)
	if err != nil {
		return fmt.Errorf("transition signal: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrStatusConflict
	}

	return nil
}

// DueForWave returns signals in the given statuses whose start time is at or
// before `before` (callers pass now+lead), i.e. signals whose wave boundary
// has arrived. There is no lower bound on the start time.
func (s *SignalStore) DueForWave(ctx context.Context, statuses []models.SignalStatus, before time.Time) ([]models.Signal, error) {
	query := `
		SELECT signal_id, event_id, sport, team_a, team_b, start_time,
		       intent, market_type, status, waves, entry, pick_id,
		       created_at, updated_at
		FROM signals
		WHERE status = ANY($1) AND start_time <= $2
		ORDER BY start_time
	`

	statusStrs := make([]string, len(statuses))
	for i, st := range statuses {
		statusStrs[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, query, pq.Array(statusStrs), before)
	if err != nil {
		return nil, fmt.Errorf("query due signals: %w", err)
	}
	defer rows.Close()

	return s.scanSignals(rows)
}

// PublishedBefore returns published signals whose event has started
// (candidates for the locked transition)
func (s *SignalStore) PublishedBefore(ctx context.Context, now time.Time) ([]models.Signal, error) {
	query := `
		SELECT signal_id, event_id, sport, team_a, team_b, start_time,
		       intent, market_type, status, waves, entry, pick_id,
		       created_at, updated_at
		FROM signals
		WHERE status = 'published' AND start_time <= $1
	`

	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("query published signals: %w", err)
	}
	defer rows.Close()

	return s.scanSignals(rows)
}

// LockedPicks returns locked signals awaiting settlement
func (s *SignalStore) LockedPicks(ctx context.Context) ([]models.Signal, error) {
	query := `
		SELECT signal_id, event_id, sport, team_a, team_b, start_time,
		       intent, market_type, status, waves, entry, pick_id,
		       created_at, updated_at
		FROM signals
		WHERE status = 'locked'
		ORDER BY start_time
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query locked signals: %w", err)
	}
	defer rows.Close()

	return s.scanSignals(rows)
}

func (s *SignalStore) scanSignals(rows *sql.Rows) ([]models.Signal, error) {
	var out []models.Signal
	for rows.Next() {
		var sig models.Signal
		var waves []byte
		var entry sql.NullString
		err := rows.Scan(
			&sig.SignalID, &sig.EventID, &sig.Sport, &sig.TeamA, &sig.TeamB, &sig.StartTime,
			&sig.Intent, &sig.Market, &sig.Status, &waves, &entry, &sig.PickID,
			&sig.CreatedAt, &sig.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if err := json.Unmarshal(waves, &sig.Waves); err != nil {
			return nil, fmt.Errorf("unmarshal waves: %w", err)
		}
		if entry.Valid {
			var e models.Entry
			if err := json.Unmarshal([]byte(entry.String), &e); err != nil {
				return nil, fmt.Errorf("unmarshal entry: %w", err)
			}
			sig.Entry = &e
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
