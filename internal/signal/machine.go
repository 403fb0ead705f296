// Package signal drives per-(event, market) picks through the three-wave
// discovery / validation / publish pipeline. Wave evaluations are strictly
// serialized per signal and idempotent; a published signal is immutable.
package signal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/XavierBriggs/pythia/internal/audit"
	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/decision"
	"github.com/XavierBriggs/pythia/internal/integrity"
	"github.com/XavierBriggs/pythia/internal/sim"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
	"github.com/XavierBriggs/pythia/pkg/oddsmath"
)

// Wave lead times before the scheduled start
var waveLeads = map[models.Wave]time.Duration{
	models.WaveDiscovery:  6 * time.Hour,
	models.WaveValidation: 120 * time.Minute,
	models.WavePublish:    60 * time.Minute,
}

// WaveLead returns how long before start a wave fires
func WaveLead(wave models.Wave) time.Duration {
	return waveLeads[wave]
}

// Iteration tiers per wave: later waves buy more precision
var waveIterations = map[models.Wave]int{
	models.WaveDiscovery:  25000,
	models.WaveValidation: 50000,
	models.WavePublish:    100000,
}

// Enqueuer hands a published signal to the outbound pipeline
type Enqueuer interface {
	EnqueueLocked(ctx context.Context, sig *models.Signal) error
}

// Machine advances signals through their waves
type Machine struct {
	stores    *store.Stores
	engine    *sim.Engine
	computer  *decision.Computer
	validator *integrity.Validator
	auditor   *audit.Service
	leagues   *config.Leagues
	enqueuer  Enqueuer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMachine creates the state machine
func NewMachine(stores *store.Stores, engine *sim.Engine, computer *decision.Computer, validator *integrity.Validator, auditor *audit.Service, leagues *config.Leagues, enqueuer Enqueuer) *Machine {
	return &Machine{
		stores:    stores,
		engine:    engine,
		computer:  computer,
		validator: validator,
		auditor:   auditor,
		leagues:   leagues,
		enqueuer:  enqueuer,
		locks:     make(map[string]*sync.Mutex),
	}
}

// signalLock returns the per-signal mutex; advancement is serialized per
// signal id
func (m *Machine) signalLock(signalID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[signalID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[signalID] = lock
	}
	return lock
}

// SignalID derives the deterministic id for an (event, market) signal
func SignalID(eventID string, market models.MarketType) string {
	sum := sha256.Sum256([]byte(eventID + "|" + string(market)))
	return "sig_" + hex.EncodeToString(sum[:10])
}

// EnsureSignals creates the three market signals for an upcoming event if
// they do not exist yet
func (m *Machine) EnsureSignals(ctx context.Context, event *models.Event) error {
	for _, market := range models.AllMarkets {
		_, err := m.stores.Signals.ByEventMarket(ctx, event.EventID, market)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("lookup signal: %w", err)
		}

		sig := &models.Signal{
			SignalID:  SignalID(event.EventID, market),
			EventID:   event.EventID,
			Sport:     event.League,
			TeamA:     event.AwayTeamName,
			TeamB:     event.HomeTeamName,
			StartTime: event.StartTime,
			Intent:    models.IntentTruthMode,
			Market:    market,
			Status:    models.SignalNew,
		}
		if err := m.stores.Signals.Create(ctx, store.CallerSignalMachine, sig); err != nil {
			return fmt.Errorf("create signal: %w", err)
		}
	}
	return nil
}

// RunWave evaluates one wave for one signal. Re-invoking a completed wave
// returns the stored result without recomputation. Late waves against a
// published or terminal signal are rejected.
func (m *Machine) RunWave(ctx context.Context, signalID string, wave models.Wave) (*models.WaveRecord, error) {
	lock := m.signalLock(signalID)
	lock.Lock()
	defer lock.Unlock()

	sig, err := m.stores.Signals.Get(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("load signal %s: %w", signalID, err)
	}

	if rec := sig.WaveResult(wave); rec != nil {
		return rec, nil
	}

	if sig.Status == models.SignalPublished || sig.Status == models.SignalLocked || sig.Status.Terminal() {
		return nil, fmt.Errorf("signal %s is %s; wave %s rejected", signalID, sig.Status, wave)
	}

	event, err := m.stores.Events.Get(ctx, sig.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", sig.EventID, err)
	}

	snap, err := m.stores.Snapshots.Latest(ctx, sig.EventID)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for %s: %w", sig.EventID, err)
	}

	// Stamp the wave observation into history
	waveSnap := *snap
	waveSnap.Wave = wave
	waveSnap.ObservedAt = time.Now().UTC()
	if err := m.stores.Snapshots.Record(ctx, store.CallerSignalMachine, &waveSnap); err != nil {
		return nil, fmt.Errorf("record wave snapshot: %w", err)
	}

	run, err := m.engine.Run(ctx, event, &waveSnap, wave, waveIterations[wave])
	if err != nil {
		var timeout *sim.ErrSimTimeout
		if !errors.As(err, &timeout) {
			return nil, fmt.Errorf("simulate %s wave %s: %w", sig.EventID, wave, err)
		}
		// Timed-out runs are recorded and force MARKET_ALIGNED downstream
		log.Printf("[SignalMachine] %v", err)
	}
	if err := m.stores.SimRuns.Insert(ctx, store.CallerSimEngine, run); err != nil {
		return nil, fmt.Errorf("store sim run: %w", err)
	}

	version, err := m.stores.Decisions.NextVersion(ctx, sig.EventID)
	if err != nil {
		return nil, err
	}

	gd, err := m.computer.ComputeGame(event, &waveSnap, run, version, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("compute decisions: %w", err)
	}

	m.validator.ValidateGame(ctx, event, gd, run.Converged)

	if err := m.stores.Decisions.SaveGameDecisions(ctx, store.CallerDecisionComputer, gd); err != nil {
		if errors.Is(err, store.ErrStaleDecision) {
			return nil, err
		}
		return nil, fmt.Errorf("save decisions: %w", err)
	}

	var d *models.MarketDecision
	switch sig.Market {
	case models.MarketSpread:
		d = gd.Spread
	case models.MarketMoneyline:
		d = gd.Moneyline
	case models.MarketTotal:
		d = gd.Total
	}

	record := waveRecord(wave, &waveSnap, run, d)
	sig.Waves = append(sig.Waves, record)

	from := sig.Status
	sig.Status = m.nextStatus(sig, wave, d, record)

	if sig.Status == models.SignalPublished {
		m.freezeEntry(sig, d)
	}

	if err := m.stores.Signals.Transition(ctx, store.CallerSignalMachine, sig, from); err != nil {
		return nil, fmt.Errorf("persist wave transition: %w", err)
	}

	if m.auditor != nil && sig.Status != from {
		m.auditor.RecordSignalTransition(ctx, sig, from)
	}

	if sig.Status == models.SignalPublished && m.enqueuer != nil {
		if err := m.enqueuer.EnqueueLocked(ctx, sig); err != nil {
			log.Printf("[SignalMachine] enqueue %s: %v", sig.SignalID, err)
		}
	}

	return &record, nil
}

// nextStatus applies the transition table for one wave result
func (m *Machine) nextStatus(sig *models.Signal, wave models.Wave, d *models.MarketDecision, rec models.WaveRecord) models.SignalStatus {
	// Integrity veto voids the signal at any wave
	if d.ReleaseStatus == models.ReleaseBlockedByIntegrity {
		return models.SignalVoided
	}

	cfg, err := m.leagues.Get(sig.Sport)
	if err != nil {
		return models.SignalVoided
	}

	switch wave {
	case models.WaveDiscovery:
		if sig.Status == models.SignalNew &&
			(rec.Classification == models.ClassEdge || rec.Classification == models.ClassLean) {
			return models.SignalDiscovered
		}
		return sig.Status

	case models.WaveValidation:
		if sig.Status != models.SignalDiscovered {
			return sig.Status
		}
		prev := sig.WaveResult(models.WaveDiscovery)
		if prev == nil {
			return models.SignalUnstable
		}
		if prev.Side != rec.Side {
			return models.SignalUnstable
		}
		if !withinStability(prev, &rec, cfg) {
			return models.SignalUnstable
		}
		return models.SignalValidated

	case models.WavePublish:
		if sig.Status != models.SignalValidated {
			return sig.Status
		}
		prev := sig.WaveResult(models.WaveValidation)
		if prev == nil || prev.Side != rec.Side {
			return models.SignalUnstable
		}
		if rec.Classification != models.ClassEdge {
			return models.SignalUnstable
		}
		return models.SignalPublished
	}

	return sig.Status
}

// withinStability compares wave-to-wave edge drift against the sport's
// tolerance, in the market's native unit
func withinStability(prev, cur *models.WaveRecord, cfg config.LeagueConfig) bool {
	if prev.EdgePoints != nil && cur.EdgePoints != nil {
		return math.Abs(*cur.EdgePoints-*prev.EdgePoints) <= cfg.StabilityTolerancePoints
	}
	if prev.EdgeEV != nil && cur.EdgeEV != nil {
		return math.Abs(*cur.EdgeEV-*prev.EdgeEV) <= cfg.StabilityToleranceEV
	}
	return false
}

// freezeEntry captures the immutable bet terms at publish time
func (m *Machine) freezeEntry(sig *models.Signal, d *models.MarketDecision) {
	cfg, _ := m.leagues.Get(sig.Sport)
	sig.Entry = &models.Entry{
		SelectionID:         d.SelectionID,
		MarketType:          d.MarketType,
		EntryLine:           d.Line,
		EntryOdds:           d.AmericanOdds,
		WorstAcceptableOdds: oddsmath.ShiftAmerican(d.AmericanOdds, cfg.OddsToleranceCents),
		LockedAt:            time.Now().UTC(),
	}
	sig.PickID = "pick_" + uuid.NewString()
}

// LockStarted moves published signals whose event has started to locked
func (m *Machine) LockStarted(ctx context.Context, now time.Time) error {
	sigs, err := m.stores.Signals.PublishedBefore(ctx, now)
	if err != nil {
		return err
	}

	for i := range sigs {
		sig := &sigs[i]
		lock := m.signalLock(sig.SignalID)
		lock.Lock()

		sig.Status = models.SignalLocked
		if err := m.stores.Signals.Transition(ctx, store.CallerSignalMachine, sig, models.SignalPublished); err != nil {
			if !errors.Is(err, store.ErrStatusConflict) {
				log.Printf("[SignalMachine] lock %s: %v", sig.SignalID, err)
			}
		} else if m.auditor != nil {
			m.auditor.RecordSignalTransition(ctx, sig, models.SignalPublished)
		}

		lock.Unlock()
	}
	return nil
}

func waveRecord(wave models.Wave, snap *models.MarketSnapshot, run *models.SimulationRun, d *models.MarketDecision) models.WaveRecord {
	rec := models.WaveRecord{
		Wave:            wave,
		ObservedAt:      snap.ObservedAt,
		SimRunID:        run.SimRunID,
		SelectionID:     d.SelectionID,
		Classification:  d.Classification,
		DecisionVersion: d.Debug.DecisionVersion,
	}
	if d.Pick != nil {
		rec.Side = d.Pick.Side
	}
	if d.Edge != nil {
		rec.EdgePoints = d.Edge.Points
		rec.EdgeEV = d.Edge.EV
	}
	return rec
}
