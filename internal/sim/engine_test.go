package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

func testEvent(league models.League) *models.Event {
	return &models.Event{
		EventID:      "evt_test",
		League:       league,
		HomeTeamID:   "team_home",
		AwayTeamID:   "team_away",
		HomeTeamName: "Home Club",
		AwayTeamName: "Away Club",
		StartTime:    time.Date(2025, 11, 1, 23, 0, 0, 0, time.UTC),
	}
}

func testSnapshot(league models.League) *models.MarketSnapshot {
	snap := &models.MarketSnapshot{
		EventID:         "evt_test",
		Wave:            models.WaveDiscovery,
		ObservedAt:      time.Date(2025, 11, 1, 17, 0, 0, 0, time.UTC),
		BookID:          "pinnacle",
		SpreadHomePrice: -110,
		SpreadAwayPrice: -110,
		OverPrice:       -110,
		UnderPrice:      -110,
		MLHome:          -180,
		MLAway:          155,
	}
	switch league {
	case models.LeagueNBA, models.LeagueNCAAB:
		snap.SpreadHome, snap.SpreadAway, snap.Total = -5.5, 5.5, 224.5
	case models.LeagueNFL, models.LeagueNCAAF:
		snap.SpreadHome, snap.SpreadAway, snap.Total = -3.5, 3.5, 44.5
	case models.LeagueMLB:
		snap.SpreadHome, snap.SpreadAway, snap.Total = -1.5, 1.5, 8.5
	case models.LeagueNHL:
		snap.SpreadHome, snap.SpreadAway, snap.Total = -1.5, 1.5, 6.5
	}
	return snap
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(config.DefaultLeagues(), nil, 30*time.Second)
}

func TestRunDeterminism(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	for _, league := range []models.League{models.LeagueNBA, models.LeagueNFL, models.LeagueMLB, models.LeagueNHL} {
		t.Run(string(league), func(t *testing.T) {
			event := testEvent(league)
			snap := testSnapshot(league)

			run1, err := engine.Run(ctx, event, snap, models.WaveDiscovery, 10000)
			if err != nil {
				t.Fatalf("first run: %v", err)
			}
			run2, err := engine.Run(ctx, event, snap, models.WaveDiscovery, 10000)
			if err != nil {
				t.Fatalf("second run: %v", err)
			}

			if run1.SimRunID != run2.SimRunID {
				t.Errorf("run ids differ: %s vs %s", run1.SimRunID, run2.SimRunID)
			}
			if run1.Seed != run2.Seed {
				t.Errorf("seeds differ: %d vs %d", run1.Seed, run2.Seed)
			}
			if run1.MeanMargin != run2.MeanMargin || run1.MeanTotal != run2.MeanTotal {
				t.Errorf("statistics differ: margin %f/%f total %f/%f",
					run1.MeanMargin, run2.MeanMargin, run1.MeanTotal, run2.MeanTotal)
			}
			if run1.HomeWinProb != run2.HomeWinProb {
				t.Errorf("win probabilities differ: %f vs %f", run1.HomeWinProb, run2.HomeWinProb)
			}
		})
	}
}

func TestSeedVariesByWave(t *testing.T) {
	observedAt := time.Date(2025, 11, 1, 17, 0, 0, 0, time.UTC)
	s1 := Seed("evt_test", models.WaveDiscovery, observedAt, ModelVersion)
	s2 := Seed("evt_test", models.WaveValidation, observedAt, ModelVersion)
	if s1 == s2 {
		t.Error("different waves must produce different seeds")
	}
}

func TestRunTracksMarket(t *testing.T) {
	engine := newTestEngine(t)
	event := testEvent(models.LeagueNBA)
	snap := testSnapshot(models.LeagueNBA)

	run, err := engine.Run(context.Background(), event, snap, models.WaveDiscovery, 25000)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// The market prior anchors means near the implied scores: home favored
	// by 5.5 on a 224.5 total
	if run.HomeWinProb < 0.55 || run.HomeWinProb > 0.90 {
		t.Errorf("home win prob %f implausible for a 5.5-point favorite", run.HomeWinProb)
	}
	if math.Abs(run.MeanTotal-224.5) > 15 {
		t.Errorf("mean total %f too far from market 224.5", run.MeanTotal)
	}
	if run.MeanMargin < 1.0 || run.MeanMargin > 10.0 {
		t.Errorf("mean margin %f implausible", run.MeanMargin)
	}
	if run.MarginHist == nil || run.TotalHist == nil {
		t.Fatal("histograms missing")
	}
	if run.MarginHist.Total == 0 {
		t.Error("margin histogram empty")
	}
}

func TestWeatherReducesScoring(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	clear := testEvent(models.LeagueNFL)
	storm := testEvent(models.LeagueNFL)
	storm.Weather = &models.WeatherContext{
		WindMPH:      28,
		PrecipChance: 80,
		TemperatureF: 18,
	}
	snap := testSnapshot(models.LeagueNFL)

	clearRun, err := engine.Run(ctx, clear, snap, models.WaveDiscovery, 25000)
	if err != nil {
		t.Fatalf("clear run: %v", err)
	}
	stormRun, err := engine.Run(ctx, storm, snap, models.WaveDiscovery, 25000)
	if err != nil {
		t.Fatalf("storm run: %v", err)
	}

	if stormRun.MeanTotal >= clearRun.MeanTotal {
		t.Errorf("storm total %f should be below clear total %f", stormRun.MeanTotal, clearRun.MeanTotal)
	}
}

func TestWeatherMultiplierCap(t *testing.T) {
	w := &models.WeatherContext{WindMPH: 30, PrecipChance: 90, TemperatureF: 10}
	// 10+10+8+5+7 = 40% stacks, capped at 30%
	if got := weatherMultiplier(w); math.Abs(got-0.70) > 1e-9 {
		t.Errorf("weatherMultiplier = %f, want 0.70", got)
	}

	mild := &models.WeatherContext{WindMPH: 5, PrecipChance: 10, TemperatureF: 60}
	if got := weatherMultiplier(mild); got != 1.0 {
		t.Errorf("mild weather multiplier = %f, want 1.0", got)
	}
}

func TestDriveOutcomesMostlyScoreless(t *testing.T) {
	engine := newTestEngine(t)
	event := testEvent(models.LeagueNFL)
	snap := testSnapshot(models.LeagueNFL)

	run, err := engine.Run(context.Background(), event, snap, models.WaveDiscovery, 25000)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// 11 drives/team at <= ~40% scoring caps expected totals well under
	// 2.05 * 22 points even before weather
	if run.MeanTotal > 55 {
		t.Errorf("football mean total %f implies too many scoring drives", run.MeanTotal)
	}
}

func TestInvalidIterationTier(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.Run(context.Background(), testEvent(models.LeagueNBA), testSnapshot(models.LeagueNBA), models.WaveDiscovery, 12345)
	if err == nil {
		t.Error("unsupported iteration tier should error")
	}
}

func TestConvergenceTracker(t *testing.T) {
	c := newConvergenceTracker()
	c.observe(200.0, 5.0)
	if c.converged() {
		t.Error("one observation cannot converge")
	}
	c.observe(200.1, 5.01)
	c.observe(200.15, 5.015)
	if !c.converged() {
		t.Error("two consecutive stable checks should converge")
	}

	c2 := newConvergenceTracker()
	c2.observe(200.0, 5.0)
	c2.observe(260.0, 5.0)
	c2.observe(261.0, 5.0)
	if c2.converged() {
		t.Error("a large jump must reset stability")
	}
}
