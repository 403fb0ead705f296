// Package sim implements the Monte Carlo game simulator. Each league maps
// to a generator strategy: per-drive discrete outcomes for football,
// Gaussian team scoring for basketball, and per-segment Poisson scoring for
// baseball and hockey. Runs are deterministic in (event, wave, snapshot,
// config, seed).
package sim

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/exp/rand"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/metrics"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// ModelVersion identifies the simulation model; it participates in seeding
// and in the decision inputs hash
const ModelVersion = "mc-v2"

// ErrSimTimeout is returned when a run hits the wall-clock ceiling.
// The run is still recorded, marked non-converged, and forces
// MARKET_ALIGNED downstream.
type ErrSimTimeout struct {
	EventID string
	Elapsed time.Duration
}

func (e *ErrSimTimeout) Error() string {
	return fmt.Sprintf("simulation timeout for event %s after %v", e.EventID, e.Elapsed)
}

// generator produces one simulated game: final home and away scores
type generator interface {
	SimulateGame(rng *rand.Rand) (home, away float64)
	Adjustments() []string
}

// Engine runs Monte Carlo simulations. CPU-bound; a semaphore keeps one
// in-flight run per core.
type Engine struct {
	leagues   *config.Leagues
	metrics   *metrics.Registry
	wallClock time.Duration
	sem       chan struct{}
}

// NewEngine creates the engine
func NewEngine(leagues *config.Leagues, reg *metrics.Registry, wallClock time.Duration) *Engine {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		leagues:   leagues,
		metrics:   reg,
		wallClock: wallClock,
		sem:       make(chan struct{}, workers),
	}
}

// Seed derives the deterministic run seed from the identifying inputs
func Seed(eventID string, wave models.Wave, observedAt time.Time, modelVersion string) uint64 {
	payload := eventID + "|" + string(wave) + "|" + observedAt.UTC().Format(time.RFC3339Nano) + "|" + modelVersion
	sum := sha256.Sum256([]byte(payload))
	return binary.BigEndian.Uint64(sum[:8])
}

// runID content-addresses a run by its identifying inputs
func runID(eventID string, wave models.Wave, seed uint64, iterations int) string {
	payload := fmt.Sprintf("%s|%s|%d|%d|%s", eventID, wave, seed, iterations, ModelVersion)
	sum := sha256.Sum256([]byte(payload))
	return "sim_" + hex.EncodeToString(sum[:12])
}

// Run executes one simulation for an event at a wave. Iterations must be a
// supported tier. The same inputs always produce the same statistics.
func (e *Engine) Run(ctx context.Context, event *models.Event, snap *models.MarketSnapshot, wave models.Wave, iterations int) (*models.SimulationRun, error) {
	if !config.ValidIterationTier(iterations) {
		return nil, fmt.Errorf("unsupported iteration tier: %d", iterations)
	}

	leagueCfg, err := e.leagues.Get(event.League)
	if err != nil {
		return nil, err
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	seed := Seed(event.EventID, wave, snap.ObservedAt, ModelVersion)
	rng := rand.New(rand.NewSource(seed))

	gen, err := newGenerator(leagueCfg, event, snap)
	if err != nil {
		return nil, fmt.Errorf("build generator for %s: %w", event.League, err)
	}

	run := &models.SimulationRun{
		SimRunID:   runID(event.EventID, wave, seed, iterations),
		EventID:    event.EventID,
		League:     event.League,
		Wave:       wave,
		Iterations: iterations,
		Seed:       seed,
		Config: models.SimConfigRef{
			ModelVersion:      ModelVersion,
			ConfigVersion:     e.leagues.Version,
			CompressionFactor: 1.0,
			RegimeAdjustments: gen.Adjustments(),
		},
	}

	agg := newAggregator(event.League, iterations)
	started := time.Now()
	checkpoint := iterations / 20 // every 5%
	if checkpoint < 1 {
		checkpoint = 1
	}

	conv := newConvergenceTracker()
	completed := 0
	timedOut := false

	for i := 0; i < iterations; i++ {
		home, away := gen.SimulateGame(rng)
		agg.add(home, away)
		completed++

		if completed%checkpoint == 0 {
			conv.observe(agg.meanTotal(), agg.meanMargin())
			if conv.converged() {
				break
			}
			if time.Since(started) > e.wallClock {
				timedOut = true
				break
			}
		}
	}

	run.Iterations = completed
	run.TimedOut = timedOut
	run.Converged = !timedOut && (conv.converged() || completed == iterations)
	run.ComputedAt = time.Now().UTC()

	agg.finish(run, leagueCfg)

	if e.metrics != nil {
		e.metrics.SimRuns.Inc()
		if timedOut {
			e.metrics.SimTimeouts.Inc()
		}
	}
	if timedOut {
		return run, &ErrSimTimeout{EventID: event.EventID, Elapsed: time.Since(started)}
	}

	return run, nil
}

// newGenerator builds the league strategy for one game
func newGenerator(cfg config.LeagueConfig, event *models.Event, snap *models.MarketSnapshot) (generator, error) {
	switch cfg.Sim.Style {
	case config.SimStyleDrive:
		return newDriveGenerator(cfg, event, snap), nil
	case config.SimStyleGaussian:
		return newGaussianGenerator(cfg, event, snap), nil
	case config.SimStylePoisson:
		return newPoissonGenerator(cfg, event, snap), nil
	default:
		return nil, fmt.Errorf("unknown sim style: %s", cfg.Sim.Style)
	}
}

// marketImpliedScores backs out expected team scores from the posted spread
// and total. SpreadHome is bookmaker-signed, so the expected home margin is
// its negation.
func marketImpliedScores(snap *models.MarketSnapshot) (home, away float64) {
	margin := -snap.SpreadHome
	home = (snap.Total + margin) / 2.0
	away = (snap.Total - margin) / 2.0
	return home, away
}

// convergenceTracker declares convergence when both running means move less
// than 0.5% across two consecutive checkpoints
type convergenceTracker struct {
	prevTotal, prevMargin float64
	stableChecks          int
	observations          int
}

func newConvergenceTracker() *convergenceTracker {
	return &convergenceTracker{}
}

func (c *convergenceTracker) observe(meanTotal, meanMargin float64) {
	if c.observations > 0 {
		totalDelta := relativeChange(c.prevTotal, meanTotal)
		marginDelta := relativeChange(c.prevMargin, meanMargin)
		if totalDelta < 0.005 && marginDelta < 0.005 {
			c.stableChecks++
		} else {
			c.stableChecks = 0
		}
	}
	c.prevTotal = meanTotal
	c.prevMargin = meanMargin
	c.observations++
}

func (c *convergenceTracker) converged() bool {
	return c.stableChecks >= 2
}

// relativeChange guards against a near-zero denominator: margins hover
// around zero for coin-flip games
func relativeChange(prev, cur float64) float64 {
	denom := math.Max(math.Abs(prev), 1.0)
	return math.Abs(cur-prev) / denom
}
