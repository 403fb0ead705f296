package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Feature flag names
const (
	FlagPublisherAutopublish = "publisher_autopublish"
	FlagLLMCopyAgent         = "llm_copy_agent"
	FlagIntegritySentinel    = "integrity_sentinel"
	FlagAutorollback         = "autorollback_on_integrity"
	FlagParlayEnabled        = "parlay_enabled"
)

// FlagStore persists database-backed feature flags in holocron
type FlagStore struct {
	db    *sql.DB
	guard *Guard
}

// Get reads one flag. Unknown flags default to off.
func (s *FlagStore) Get(ctx context.Context, name string) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM feature_flags WHERE name = $1`, name).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query feature flag: %w", err)
	}
	return enabled, nil
}

// SeedDefault inserts a flag only if it does not exist yet, so restarts
// never undo an operator or sentinel change
func (s *FlagStore) SeedDefault(ctx context.Context, caller Caller, name string, enabled bool) error {
	if err := s.guard.Authorize(ctx, caller, ColFeatureFlags); err != nil {
		return err
	}

	query := `
		INSERT INTO feature_flags (name, enabled, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, name, enabled)
	if err != nil {
		return fmt.Errorf("seed feature flag: %w", err)
	}
	return nil
}

// Set upserts one flag
func (s *FlagStore) Set(ctx context.Context, caller Caller, name string, enabled bool) error {
	if err := s.guard.Authorize(ctx, caller, ColFeatureFlags); err != nil {
		return err
	}

	query := `
		INSERT INTO feature_flags (name, enabled, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query, name, enabled)
	if err != nil {
		return fmt.Errorf("set feature flag: %w", err)
	}
	return nil
}
