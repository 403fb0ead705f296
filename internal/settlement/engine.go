// Package settlement grades published picks by exact provider event id.
// Grading is idempotent: duplicate calls collapse to one record.
package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/XavierBriggs/pythia/internal/audit"
	"github.com/XavierBriggs/pythia/internal/metrics"
	"github.com/XavierBriggs/pythia/internal/providers/oddsapi"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
	"github.com/XavierBriggs/pythia/pkg/oddsmath"
)

// ErrMissingProviderID means the event has no provider event id; the pick
// cannot be graded until the offline backfill supplies one
type ErrMissingProviderID struct {
	PickID  string
	EventID string
}

func (e *ErrMissingProviderID) Error() string {
	return fmt.Sprintf("pick %s: event %s has no provider event id", e.PickID, e.EventID)
}

// ErrGameNotCompleted is retryable: the sweep re-attempts on the next tick
type ErrGameNotCompleted struct {
	EventID string
}

func (e *ErrGameNotCompleted) Error() string {
	return fmt.Sprintf("event %s not completed", e.EventID)
}

// ErrProviderMappingDrift freezes grading for an event until an operator
// reconciles the canonical team names
type ErrProviderMappingDrift struct {
	EventID       string
	CanonicalHome string
	CanonicalAway string
	ProviderHome  string
	ProviderAway  string
}

func (e *ErrProviderMappingDrift) Error() string {
	return fmt.Sprintf("provider mapping drift for event %s: canonical %s/%s vs provider %s/%s",
		e.EventID, e.CanonicalHome, e.CanonicalAway, e.ProviderHome, e.ProviderAway)
}

// GradeOptions carries the optional admin override
type GradeOptions struct {
	AdminOverride *models.Settlement
	AdminNote     string
}

// Engine is the settlement engine: the only grading writer
type Engine struct {
	stores   *store.Stores
	provider *oddsapi.Client
	auditor  *audit.Service
	metrics  *metrics.Registry
}

// NewEngine creates the settlement engine
func NewEngine(stores *store.Stores, provider *oddsapi.Client, auditor *audit.Service, reg *metrics.Registry) *Engine {
	return &Engine{stores: stores, provider: provider, auditor: auditor, metrics: reg}
}

// Grade settles one pick. The pipeline: load pick and event, require an
// exact provider id, fetch and validate the score, apply versioned rules,
// compute CLV when a closing snapshot exists, and upsert the idempotent
// grading record.
func (e *Engine) Grade(ctx context.Context, pickID string, opts GradeOptions) (*models.GradingRecord, error) {
	if opts.AdminOverride != nil && opts.AdminNote == "" {
		return nil, fmt.Errorf("admin override requires a non-empty admin note")
	}

	sig, err := e.stores.Signals.ByPickID(ctx, pickID)
	if err != nil {
		return nil, fmt.Errorf("load pick %s: %w", pickID, err)
	}
	if sig.Entry == nil {
		return nil, fmt.Errorf("pick %s has no frozen entry", pickID)
	}

	event, err := e.stores.Events.Get(ctx, sig.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", sig.EventID, err)
	}

	// Drift freeze: an open MAPPING_DRIFT alert blocks grading for this
	// event until operator reconciliation
	if open, err := e.stores.Alerts.OpenByKind(ctx, event.EventID, models.AlertMappingDrift); err == nil && len(open) > 0 {
		return nil, &ErrProviderMappingDrift{EventID: event.EventID}
	}

	providerID := event.ProviderMap.OddsAPIEventID
	if providerID == "" {
		e.emitAlert(ctx, event.EventID, models.AlertProviderIDMissing, models.SeverityCritical, map[string]string{
			"pick_id": pickID,
		})
		e.countFailure()
		return nil, &ErrMissingProviderID{PickID: pickID, EventID: event.EventID}
	}

	score, raw, err := e.provider.FetchScore(ctx, event.League, providerID)
	if err != nil {
		e.countFailure()
		return nil, fmt.Errorf("fetch score for %s: %w", providerID, err)
	}
	if score == nil || !score.Completed {
		return nil, &ErrGameNotCompleted{EventID: event.EventID}
	}

	// Mapping validation: the provider's team names must match the event's
	// canonical names exactly. Drift freezes grading.
	if score.HomeTeam != event.HomeTeamName || score.AwayTeam != event.AwayTeamName {
		drift := &ErrProviderMappingDrift{
			EventID:       event.EventID,
			CanonicalHome: event.HomeTeamName,
			CanonicalAway: event.AwayTeamName,
			ProviderHome:  score.HomeTeam,
			ProviderAway:  score.AwayTeam,
		}
		e.emitAlert(ctx, event.EventID, models.AlertMappingDrift, models.SeverityCritical, map[string]string{
			"canonical_home": drift.CanonicalHome,
			"canonical_away": drift.CanonicalAway,
			"provider_home":  drift.ProviderHome,
			"provider_away":  drift.ProviderAway,
		})
		e.countFailure()
		return nil, drift
	}

	homeScore, awayScore, err := extractScores(score)
	if err != nil {
		e.countFailure()
		return nil, fmt.Errorf("extract scores for %s: %w", providerID, err)
	}

	publishWave := sig.WaveResult(models.WavePublish)
	if publishWave == nil {
		return nil, fmt.Errorf("pick %s has no publish wave record", pickID)
	}

	settlement := e.settle(sig, publishWave.Side, homeScore, awayScore)

	var alertIDs []string
	clv := e.computeCLV(ctx, sig, event, &alertIDs)

	record := &models.GradingRecord{
		PickID:          pickID,
		EventID:         event.EventID,
		ProviderEventID: providerID,
		IdempotencyKey:  models.GradingIdempotencyKey(pickID, GradeSource, RulesVersion, CLVRulesVersion),
		Settlement:      settlement,
		CLV:             clv,
		ScoreRef: models.ScorePayloadRef{
			ProviderEventID: providerID,
			PayloadHash:     payloadHash(raw),
			Snapshot:        raw,
		},
		OpsAlerts:       alertIDs,
		RulesVersion:    RulesVersion,
		CLVRulesVersion: CLVRulesVersion,
		GradedAt:        time.Now().UTC(),
	}

	if opts.AdminOverride != nil {
		record.AdminOverride = opts.AdminOverride
		record.AdminNote = opts.AdminNote
		record.Settlement = *opts.AdminOverride
	}

	stored, err := e.stores.Grading.Upsert(ctx, store.CallerSettlementEngine, record)
	if err != nil {
		e.countFailure()
		return nil, fmt.Errorf("write grading record: %w", err)
	}

	// Housekeeping after the record exists: completion flag, signal
	// transition, audit trail. Failures here never undo the grade.
	if err := e.stores.Events.MarkCompleted(ctx, store.CallerSettlementEngine, event.EventID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[Settlement] mark completed %s: %v", event.EventID, err)
	}

	if sig.Status == models.SignalLocked {
		sig.Status = models.SignalSettled
		if err := e.stores.Signals.Transition(ctx, store.CallerSettlementEngine, sig, models.SignalLocked); err != nil {
			if !errors.Is(err, store.ErrStatusConflict) {
				log.Printf("[Settlement] settle transition %s: %v", sig.SignalID, err)
			}
		}
	}

	if e.auditor != nil {
		e.auditor.RecordGrading(ctx, stored)
	}
	if e.metrics != nil {
		e.metrics.GradingCompleted.Inc()
	}

	return stored, nil
}

// settle applies the versioned rules for the pick's market
func (e *Engine) settle(sig *models.Signal, side models.Side, homeScore, awayScore int) models.Settlement {
	entry := sig.Entry
	switch entry.MarketType {
	case models.MarketSpread:
		return SettleSpread(side, entry.EntryLine, homeScore, awayScore)
	case models.MarketTotal:
		return SettleTotal(side, entry.EntryLine, homeScore, awayScore)
	case models.MarketMoneyline:
		return SettleMoneyline(sig.Sport, side, homeScore, awayScore)
	default:
		return models.SettlementVoid
	}
}

// computeCLV derives closing line value from the closing snapshot. A
// missing closing snapshot yields a nil CLV and a WARNING alert; grading
// never fails because CLV cannot be computed.
func (e *Engine) computeCLV(ctx context.Context, sig *models.Signal, event *models.Event, alertIDs *[]string) *float64 {
	closing, err := e.stores.Snapshots.Closing(ctx, event.EventID, event.StartTime)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[Settlement] closing snapshot %s: %v", event.EventID, err)
		}
		id := e.emitAlert(ctx, event.EventID, models.AlertCloseSnapshotMissing, models.SeverityWarning, map[string]string{
			"pick_id": sig.PickID,
		})
		if id != "" {
			*alertIDs = append(*alertIDs, id)
		}
		return nil
	}

	publishWave := sig.WaveResult(models.WavePublish)
	if publishWave == nil {
		return nil
	}

	closingOdds, ok := closingOddsFor(closing, sig.Entry.MarketType, publishWave.Side)
	if !ok {
		return nil
	}

	clv, err := oddsmath.CLVCents(sig.Entry.EntryOdds, closingOdds)
	if err != nil {
		log.Printf("[Settlement] clv for %s: %v", sig.PickID, err)
		return nil
	}
	return &clv
}

// closingOddsFor picks the closing price matching the entry's market side
func closingOddsFor(snap *models.MarketSnapshot, market models.MarketType, side models.Side) (int, bool) {
	switch market {
	case models.MarketSpread:
		if side == models.SideHome {
			return snap.SpreadHomePrice, true
		}
		return snap.SpreadAwayPrice, true
	case models.MarketMoneyline:
		if side == models.SideHome {
			return snap.MLHome, true
		}
		return snap.MLAway, true
	case models.MarketTotal:
		if side == models.SideOver {
			return snap.OverPrice, true
		}
		return snap.UnderPrice, true
	}
	return 0, false
}

func (e *Engine) emitAlert(ctx context.Context, eventID string, kind models.AlertKind, severity models.AlertSeverity, details map[string]string) string {
	id, err := e.stores.Alerts.Emit(ctx, store.CallerSettlementEngine, &models.OpsAlert{
		Kind:     kind,
		Severity: severity,
		EventID:  eventID,
		Details:  details,
	})
	if err != nil {
		log.Printf("[Settlement] emit %s alert: %v", kind, err)
		return ""
	}
	return id
}

func (e *Engine) countFailure() {
	if e.metrics != nil {
		e.metrics.GradingFailed.Inc()
	}
}

func extractScores(score *oddsapi.EventScore) (home, away int, err error) {
	var foundHome, foundAway bool
	for _, ts := range score.Scores {
		switch ts.Name {
		case score.HomeTeam:
			home, err = strconv.Atoi(ts.Score)
			if err != nil {
				return 0, 0, fmt.Errorf("parse home score %q: %w", ts.Score, err)
			}
			foundHome = true
		case score.AwayTeam:
			away, err = strconv.Atoi(ts.Score)
			if err != nil {
				return 0, 0, fmt.Errorf("parse away score %q: %w", ts.Score, err)
			}
			foundAway = true
		}
	}
	if !foundHome || !foundAway {
		return 0, 0, fmt.Errorf("score payload missing a team entry")
	}
	return home, away, nil
}

func payloadHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
