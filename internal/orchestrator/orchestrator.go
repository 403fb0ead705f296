// Package orchestrator runs the periodic loops: odds polling per league,
// wave timers per signal, the settlement sweep, and the nightly calibration
// snapshot. It drives the components and never bypasses them.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/XavierBriggs/pythia/internal/providers/oddsapi"
	"github.com/XavierBriggs/pythia/internal/settlement"
	"github.com/XavierBriggs/pythia/internal/signal"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/internal/ws"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// Config tunes the orchestrator loops
type Config struct {
	OddsPollInterval        time.Duration
	SettlementSweepInterval time.Duration
	CalibrationSchedule     string
}

// Orchestrator owns the worker loops
type Orchestrator struct {
	cfg        Config
	stores     *store.Stores
	provider   *oddsapi.Client
	machine    *signal.Machine
	settler    *settlement.Engine
	hub        *ws.Hub
	cronRunner *cron.Cron
}

// New creates the orchestrator
func New(cfg Config, stores *store.Stores, provider *oddsapi.Client, machine *signal.Machine, settler *settlement.Engine, hub *ws.Hub) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		stores:   stores,
		provider: provider,
		machine:  machine,
		settler:  settler,
		hub:      hub,
	}
}

// Start launches every loop and blocks until the context ends
func (o *Orchestrator) Start(ctx context.Context) {
	var wg sync.WaitGroup

	for _, league := range models.AllLeagues {
		poller := &leaguePoller{
			league:   league,
			provider: o.provider,
			stores:   o.stores,
			interval: o.cfg.OddsPollInterval,
			onEvent:  o.ensureSignals,
		}
		wg.Add(1)
		go func(p *leaguePoller) {
			defer wg.Done()
			p.Run(ctx)
		}(poller)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.waveLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.settlementLoop(ctx)
	}()

	o.cronRunner = cron.New(cron.WithLocation(time.UTC))
	if _, err := o.cronRunner.AddFunc(o.cfg.CalibrationSchedule, func() {
		if err := o.calibrationSnapshot(context.Background()); err != nil {
			log.Printf("[Orchestrator] calibration snapshot: %v", err)
		}
	}); err != nil {
		log.Printf("[Orchestrator] calibration schedule invalid: %v", err)
	} else {
		o.cronRunner.Start()
	}

	log.Printf("[Orchestrator] started: %d league pollers, wave loop, settlement sweep", len(models.AllLeagues))

	<-ctx.Done()
	if o.cronRunner != nil {
		o.cronRunner.Stop()
	}
	wg.Wait()
	log.Println("[Orchestrator] all loops stopped")
}

// ensureSignals creates wave signals for events entering the discovery
// horizon
func (o *Orchestrator) ensureSignals(ctx context.Context, event *models.Event) {
	lead := signal.WaveLead(models.WaveDiscovery)
	if time.Until(event.StartTime) > lead+time.Hour {
		return
	}
	if err := o.machine.EnsureSignals(ctx, event); err != nil {
		log.Printf("[Orchestrator] ensure signals %s: %v", event.EventID, err)
	}
}

// waveLoop fires due waves once a minute. Waves are idempotent, so firing
// is safe to repeat.
func (o *Orchestrator) waveLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			o.fireWave(ctx, models.WaveDiscovery, models.SignalNew, now)
			o.fireWave(ctx, models.WaveValidation, models.SignalDiscovered, now)
			o.fireWave(ctx, models.WavePublish, models.SignalValidated, now)

			if err := o.machine.LockStarted(ctx, now); err != nil {
				log.Printf("[Orchestrator] lock sweep: %v", err)
			}
		}
	}
}

// fireWave advances all signals whose wave boundary has passed
func (o *Orchestrator) fireWave(ctx context.Context, wave models.Wave, status models.SignalStatus, now time.Time) {
	due, err := o.stores.Signals.DueForWave(ctx, []models.SignalStatus{status}, now.Add(signal.WaveLead(wave)))
	if err != nil {
		log.Printf("[Orchestrator] due signals for %s: %v", wave, err)
		return
	}

	for i := range due {
		sig := &due[i]
		if sig.WaveResult(wave) != nil {
			continue
		}
		if _, err := o.machine.RunWave(ctx, sig.SignalID, wave); err != nil {
			log.Printf("[Orchestrator] wave %s for %s: %v", wave, sig.SignalID, err)
			continue
		}
		o.broadcast(ctx, sig.EventID)
	}
}

// broadcast pushes the refreshed triple to websocket subscribers
func (o *Orchestrator) broadcast(ctx context.Context, eventID string) {
	if o.hub == nil {
		return
	}
	gd, err := o.stores.Decisions.GetGameDecisions(ctx, eventID)
	if err != nil {
		return
	}
	o.hub.BroadcastDecisions(gd)
}

// settlementLoop grades locked picks whose games have finished. A
// game-not-completed result retries on the next sweep indefinitely.
func (o *Orchestrator) settlementLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SettlementSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepOnce(ctx)
		}
	}
}

func (o *Orchestrator) sweepOnce(ctx context.Context) {
	locked, err := o.stores.Signals.LockedPicks(ctx)
	if err != nil {
		log.Printf("[Settlement] list locked picks: %v", err)
		return
	}
	if len(locked) == 0 {
		return
	}

	log.Printf("[Settlement] sweeping %d locked picks", len(locked))
	for i := range locked {
		sig := &locked[i]
		_, err := o.settler.Grade(ctx, sig.PickID, settlement.GradeOptions{})
		if err != nil {
			var notDone *settlement.ErrGameNotCompleted
			if errors.As(err, &notDone) {
				continue // retry next sweep
			}
			log.Printf("[Settlement] grade %s: %v", sig.PickID, err)
		}
	}
}

// calibrationSnapshot aggregates the last day of grading into per-league
// calibration rows
func (o *Orchestrator) calibrationSnapshot(ctx context.Context) error {
	since := time.Now().UTC().Add(-24 * time.Hour)
	records, err := o.stores.Grading.GradedSince(ctx, since)
	if err != nil {
		return err
	}

	type agg struct {
		snap   store.CalibrationSnapshot
		clvSum float64
		clvN   int
	}
	byLeague := make(map[models.League]*agg)

	for i := range records {
		rec := &records[i]
		sig, err := o.stores.Signals.ByPickID(ctx, rec.PickID)
		if err != nil {
			continue
		}

		a, ok := byLeague[sig.Sport]
		if !ok {
			a = &agg{snap: store.CalibrationSnapshot{
				SnapshotDate: time.Now().UTC().Truncate(24 * time.Hour),
				League:       string(sig.Sport),
				EdgeBuckets:  make(map[string]float64),
			}}
			byLeague[sig.Sport] = a
		}

		a.snap.Graded++
		switch rec.Settlement {
		case models.SettlementWin:
			a.snap.Wins++
		case models.SettlementLoss:
			a.snap.Losses++
		case models.SettlementPush:
			a.snap.Pushes++
		case models.SettlementVoid:
			a.snap.Voids++
		}
		if rec.CLV != nil {
			a.clvSum += *rec.CLV
			a.clvN++
		}
	}

	for _, a := range byLeague {
		if a.clvN > 0 {
			mean := a.clvSum / float64(a.clvN)
			a.snap.MeanCLV = &mean
		}
		if decided := a.snap.Wins + a.snap.Losses; decided > 0 {
			a.snap.EdgeBuckets["all"] = float64(a.snap.Wins) / float64(decided)
		}
		if err := o.stores.Calibration.Append(ctx, store.CallerOrchestrator, &a.snap); err != nil {
			log.Printf("[Orchestrator] write calibration for %s: %v", a.snap.League, err)
		}
	}

	log.Printf("[Orchestrator] calibration snapshot written for %d leagues", len(byLeague))
	return nil
}
