package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// EventStore persists events in alexandria
type EventStore struct {
	db    *sql.DB
	guard *Guard
}

// Upsert creates an event on first sight or refreshes mutable metadata.
// Canonical names and start time never change after the event is frozen.
func (s *EventStore) Upsert(ctx context.Context, caller Caller, e *models.Event) error {
	if err := s.guard.Authorize(ctx, caller, ColEvents); err != nil {
		return err
	}

	query := `
		INSERT INTO events (
			event_id, league, home_team_id, away_team_id,
			home_team_name, away_team_name, start_time,
			provider_oddsapi_event_id, completed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, NOW())
		ON CONFLICT (event_id) DO UPDATE SET
			provider_oddsapi_event_id = EXCLUDED.provider_oddsapi_event_id
	`

	var providerID sql.NullString
	if e.ProviderMap.OddsAPIEventID != "" {
		providerID = sql.NullString{String: e.ProviderMap.OddsAPIEventID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		e.EventID, e.League, e.HomeTeamID, e.AwayTeamID,
		e.HomeTeamName, e.AwayTeamName, e.StartTime, providerID,
	)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}

	return nil
}

// Get loads one event by internal id
func (s *EventStore) Get(ctx context.Context, eventID string) (*models.Event, error) {
	query := `
		SELECT event_id, league, home_team_id, away_team_id,
		       home_team_name, away_team_name, start_time,
		       provider_oddsapi_event_id, completed, created_at
		FROM events
		WHERE event_id = $1
	`

	var e models.Event
	var providerID sql.NullString
	err := s.db.QueryRowContext(ctx, query, eventID).Scan(
		&e.EventID, &e.League, &e.HomeTeamID, &e.AwayTeamID,
		&e.HomeTeamName, &e.AwayTeamName, &e.StartTime,
		&providerID, &e.Completed, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query event: %w", err)
	}

	e.ProviderMap.OddsAPIEventID = providerID.String
	return &e, nil
}

// MarkCompleted flips the completion flag once a score snapshot arrives
func (s *EventStore) MarkCompleted(ctx context.Context, caller Caller, eventID string) error {
	if err := s.guard.Authorize(ctx, caller, ColEvents); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE events SET completed = true WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCanonicalNames updates the canonical team names after operator
// reconciliation (backfill tooling). Authorization is the events allowlist,
// which also admits the orchestrator and the settlement engine.
func (s *EventStore) SetCanonicalNames(ctx context.Context, caller Caller, eventID, home, away string) error {
	if err := s.guard.Authorize(ctx, caller, ColEvents); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET home_team_name = $2, away_team_name = $3 WHERE event_id = $1`,
		eventID, home, away)
	if err != nil {
		return fmt.Errorf("set canonical names: %w", err)
	}
	return nil
}

// SetProviderID records the provider's event id for exact-match grading
func (s *EventStore) SetProviderID(ctx context.Context, caller Caller, eventID, providerEventID string) error {
	if err := s.guard.Authorize(ctx, caller, ColEvents); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET provider_oddsapi_event_id = $2 WHERE event_id = $1`,
		eventID, providerEventID)
	if err != nil {
		return fmt.Errorf("set provider id: %w", err)
	}
	return nil
}

// Upcoming returns events starting inside [from, to), ordered by start time
func (s *EventStore) Upcoming(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	query := `
		SELECT event_id, league, home_team_id, away_team_id,
		       home_team_name, away_team_name, start_time,
		       provider_oddsapi_event_id, completed, created_at
		FROM events
		WHERE start_time >= $1 AND start_time < $2 AND completed = false
		ORDER BY start_time
	`

	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query upcoming events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var providerID sql.NullString
		err := rows.Scan(
			&e.EventID, &e.League, &e.HomeTeamID, &e.AwayTeamID,
			&e.HomeTeamName, &e.AwayTeamName, &e.StartTime,
			&providerID, &e.Completed, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.ProviderMap.OddsAPIEventID = providerID.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// StartedUncompleted returns events past their start time that have not been
// marked completed (the settlement sweep's work list)
func (s *EventStore) StartedUncompleted(ctx context.Context, now time.Time) ([]models.Event, error) {
	return s.Upcoming(ctx, time.Unix(0, 0), now)
}
