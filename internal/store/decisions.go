package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// DecisionStore keeps the latest decision per (event, market). The three
// markets of one compute pass share an inputs hash and a decision version;
// they are written in one transaction so a reader never observes a partial
// refresh.
type DecisionStore struct {
	db    *sql.DB
	guard *Guard
}

// ErrStaleDecision is returned when a compare-and-set write loses to a
// newer decision version
var ErrStaleDecision = errors.New("stale decision version")

// NextVersion allocates the next monotonic decision version for an event
func (s *DecisionStore) NextVersion(ctx context.Context, eventID string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(decision_version), 0) + 1 FROM decisions WHERE event_id = $1`,
		eventID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("next decision version: %w", err)
	}
	return version, nil
}

// SaveGameDecisions upserts the full triple atomically. The write is
// compare-and-set on decision_version: a concurrent newer write wins and
// this one returns ErrStaleDecision.
func (s *DecisionStore) SaveGameDecisions(ctx context.Context, caller Caller, gd *models.GameDecisions) error {
	if err := s.guard.Authorize(ctx, caller, ColDecisions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decisions tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO decisions (event_id, market_type, decision_version, inputs_hash, payload, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, market_type) DO UPDATE SET
			decision_version = EXCLUDED.decision_version,
			inputs_hash = EXCLUDED.inputs_hash,
			payload = EXCLUDED.payload,
			computed_at = EXCLUDED.computed_at
		WHERE decisions.decision_version < EXCLUDED.decision_version
	`

	for _, d := range gd.Children() {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal decision: %w", err)
		}

		result, err := tx.ExecContext(ctx, query,
			d.EventID, d.MarketType, d.Debug.DecisionVersion,
			d.Debug.InputsHash, payload, d.Debug.ComputedAt)
		if err != nil {
			return fmt.Errorf("upsert decision: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrStaleDecision
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decisions: %w", err)
	}

	return nil
}

// GetGameDecisions loads the latest triple for an event
func (s *DecisionStore) GetGameDecisions(ctx context.Context, eventID string) (*models.GameDecisions, error) {
	query := `
		SELECT market_type, payload
		FROM decisions
		WHERE event_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	gd := &models.GameDecisions{}
	found := false

	for rows.Next() {
		var marketType models.MarketType
		var payload []byte
		if err := rows.Scan(&marketType, &payload); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}

		var d models.MarketDecision
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}

		found = true
		switch marketType {
		case models.MarketSpread:
			gd.Spread = &d
		case models.MarketMoneyline:
			gd.Moneyline = &d
		case models.MarketTotal:
			gd.Total = &d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	// Meta comes from any child; the save path guarantees all three agree
	for _, d := range gd.Children() {
		gd.Meta = models.GameDecisionsMeta{
			InputsHash:      d.Debug.InputsHash,
			DecisionVersion: d.Debug.DecisionVersion,
			ComputedAt:      d.Debug.ComputedAt,
			League:          d.League,
			EventID:         d.EventID,
		}
		break
	}

	return gd, nil
}

// GetDecision loads the latest decision for one market
func (s *DecisionStore) GetDecision(ctx context.Context, eventID string, market models.MarketType) (*models.MarketDecision, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM decisions WHERE event_id = $1 AND market_type = $2`,
		eventID, market).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query decision: %w", err)
	}

	var d models.MarketDecision
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}
	return &d, nil
}

// BySelectionID finds the latest decision carrying a selection id
// (parlay pool loading)
func (s *DecisionStore) BySelectionID(ctx context.Context, selectionID string) (*models.MarketDecision, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM decisions WHERE payload->>'selection_id' = $1`,
		selectionID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query decision by selection: %w", err)
	}

	var d models.MarketDecision
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}
	return &d, nil
}

// LatestEligible returns the current decisions of upcoming, not-completed
// events in the given leagues (all leagues when the list is empty). It does
// not filter on classification or release status; the parlay constructor
// does that.
func (s *DecisionStore) LatestEligible(ctx context.Context, leagues []models.League) ([]models.MarketDecision, error) {
	query := `
		SELECT d.payload
		FROM decisions d
		JOIN events e ON e.event_id = d.event_id
		WHERE e.completed = false AND e.start_time > NOW()
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query eligible decisions: %w", err)
	}
	defer rows.Close()

	leagueSet := make(map[models.League]bool)
	for _, l := range leagues {
		leagueSet[l] = true
	}

	var out []models.MarketDecision
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan eligible decision: %w", err)
		}
		var d models.MarketDecision
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("unmarshal eligible decision: %w", err)
		}
		if len(leagueSet) > 0 && !leagueSet[d.League] {
			continue
		}
		out = append(out, d)
	}

	return out, rows.Err()
}
