package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditStore is the append-only audit log in holocron. Only the audit
// service writes here.
type AuditStore struct {
	db    *sql.DB
	guard *Guard
}

// AuditEntry is one append-only audit row
type AuditEntry struct {
	EntryID   string          `json:"entry_id"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	EventID   string          `json:"event_id,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Append writes one audit entry
func (s *AuditStore) Append(ctx context.Context, caller Caller, entry *AuditEntry) error {
	if err := s.guard.Authorize(ctx, caller, ColAuditLog); err != nil {
		return err
	}

	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_log (entry_id, action, actor, event_id, subject, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.EntryID, entry.Action, entry.Actor, entry.EventID,
		entry.Subject, []byte(entry.Payload), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	return nil
}
