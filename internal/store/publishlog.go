package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PublishLogStore is the append-only outbound publishing record in holocron
type PublishLogStore struct {
	db    *sql.DB
	guard *Guard
}

// PublishAttempt is one rendering/post attempt
type PublishAttempt struct {
	SignalID          string    `json:"signal_id"`
	TemplateID        string    `json:"template_id"`
	RenderedHash      string    `json:"rendered_hash"`
	RenderedText      string    `json:"rendered_text"`
	Posted            bool      `json:"posted"`
	TelegramMessageID string    `json:"telegram_message_id,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Append records one attempt. The dedupe key (signal_id, template_id,
// rendered_hash) is unique: re-sending the same rendering is refused at the
// store level, which keeps outbound posting at-most-once.
func (s *PublishLogStore) Append(ctx context.Context, caller Caller, att *PublishAttempt) error {
	if err := s.guard.Authorize(ctx, caller, ColPublishLog); err != nil {
		return err
	}

	query := `
		INSERT INTO publish_log (
			signal_id, template_id, rendered_hash, rendered_text,
			posted, telegram_message_id, failure_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signal_id, template_id, rendered_hash) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		att.SignalID, att.TemplateID, att.RenderedHash, att.RenderedText,
		att.Posted, att.TelegramMessageID, att.FailureReason, att.CreatedAt)
	if err != nil {
		return fmt.Errorf("append publish attempt: %w", err)
	}

	return nil
}

// AlreadyPosted reports whether this exact rendering was already recorded
func (s *PublishLogStore) AlreadyPosted(ctx context.Context, signalID, templateID, renderedHash string) (bool, error) {
	var posted bool
	err := s.db.QueryRowContext(ctx,
		`SELECT posted FROM publish_log WHERE signal_id = $1 AND template_id = $2 AND rendered_hash = $3`,
		signalID, templateID, renderedHash).Scan(&posted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query publish log: %w", err)
	}
	return posted, nil
}

// PostedWithin reports whether any post for (event, market) landed inside
// the window (one post per market per window)
func (s *PublishLogStore) PostedWithin(ctx context.Context, eventID string, marketType string, window time.Duration) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM publish_log p
		JOIN signals sg ON sg.signal_id = p.signal_id
		WHERE sg.event_id = $1 AND sg.market_type = $2
		  AND p.posted = true AND p.created_at >= $3
	`

	var count int
	cutoff := time.Now().UTC().Add(-window)
	err := s.db.QueryRowContext(ctx, query, eventID, marketType, cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query posted within window: %w", err)
	}
	return count > 0, nil
}
