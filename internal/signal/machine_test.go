package signal

import (
	"testing"
	"time"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

func floatPtr(v float64) *float64 { return &v }

func testMachine() *Machine {
	return &Machine{leagues: config.DefaultLeagues()}
}

func testSignal(status models.SignalStatus, waves ...models.WaveRecord) *models.Signal {
	return &models.Signal{
		SignalID:  "sig_test",
		EventID:   "evt_test",
		Sport:     models.LeagueNBA,
		TeamA:     "Away Club",
		TeamB:     "Home Club",
		StartTime: time.Now().Add(3 * time.Hour),
		Intent:    models.IntentTruthMode,
		Market:    models.MarketSpread,
		Status:    status,
		Waves:     waves,
	}
}

func waveRec(wave models.Wave, side models.Side, class models.Classification, edgePoints float64) models.WaveRecord {
	return models.WaveRecord{
		Wave:           wave,
		ObservedAt:     time.Now().UTC(),
		SimRunID:       "sim_" + string(wave),
		SelectionID:    "sel_" + string(side),
		Side:           side,
		Classification: class,
		EdgePoints:     floatPtr(edgePoints),
	}
}

func edgeDecision(side models.Side, class models.Classification) *models.MarketDecision {
	return &models.MarketDecision{
		League:         models.LeagueNBA,
		EventID:        "evt_test",
		MarketType:     models.MarketSpread,
		SelectionID:    "sel_" + string(side),
		Pick:           &models.Pick{TeamID: "team_x", Side: side},
		Classification: class,
		ReleaseStatus:  models.ReleaseOfficial,
	}
}

func TestDiscoveryTransition(t *testing.T) {
	m := testMachine()

	sig := testSignal(models.SignalNew)
	rec := waveRec(models.WaveDiscovery, models.SideHome, models.ClassEdge, 3.0)
	got := m.nextStatus(sig, models.WaveDiscovery, edgeDecision(models.SideHome, models.ClassEdge), rec)
	if got != models.SignalDiscovered {
		t.Errorf("EDGE at discovery = %s, want discovered", got)
	}

	rec = waveRec(models.WaveDiscovery, models.SideHome, models.ClassMarketAligned, 0.2)
	got = m.nextStatus(sig, models.WaveDiscovery, edgeDecision(models.SideHome, models.ClassMarketAligned), rec)
	if got != models.SignalNew {
		t.Errorf("aligned at discovery = %s, want new (no discovery)", got)
	}
}

func TestValidationStability(t *testing.T) {
	m := testMachine()

	// Same side, drift within tolerance (NBA: 1.0 point)
	sig := testSignal(models.SignalDiscovered, waveRec(models.WaveDiscovery, models.SideHome, models.ClassEdge, 3.0))
	rec := waveRec(models.WaveValidation, models.SideHome, models.ClassEdge, 3.6)
	if got := m.nextStatus(sig, models.WaveValidation, edgeDecision(models.SideHome, models.ClassEdge), rec); got != models.SignalValidated {
		t.Errorf("stable validation = %s, want validated", got)
	}

	// Side flip is terminal
	rec = waveRec(models.WaveValidation, models.SideAway, models.ClassEdge, -3.0)
	if got := m.nextStatus(sig, models.WaveValidation, edgeDecision(models.SideAway, models.ClassEdge), rec); got != models.SignalUnstable {
		t.Errorf("side flip = %s, want unstable", got)
	}

	// Edge drift beyond tolerance is terminal
	rec = waveRec(models.WaveValidation, models.SideHome, models.ClassEdge, 5.2)
	if got := m.nextStatus(sig, models.WaveValidation, edgeDecision(models.SideHome, models.ClassEdge), rec); got != models.SignalUnstable {
		t.Errorf("edge drift = %s, want unstable", got)
	}
}

func TestPublishRequiresEdge(t *testing.T) {
	m := testMachine()

	sig := testSignal(models.SignalValidated,
		waveRec(models.WaveDiscovery, models.SideHome, models.ClassEdge, 3.0),
		waveRec(models.WaveValidation, models.SideHome, models.ClassEdge, 3.2),
	)

	rec := waveRec(models.WavePublish, models.SideHome, models.ClassEdge, 3.1)
	if got := m.nextStatus(sig, models.WavePublish, edgeDecision(models.SideHome, models.ClassEdge), rec); got != models.SignalPublished {
		t.Errorf("stable EDGE at publish = %s, want published", got)
	}

	// A decayed edge does not publish
	rec = waveRec(models.WavePublish, models.SideHome, models.ClassLean, 1.2)
	if got := m.nextStatus(sig, models.WavePublish, edgeDecision(models.SideHome, models.ClassLean), rec); got != models.SignalUnstable {
		t.Errorf("LEAN at publish = %s, want unstable", got)
	}
}

func TestIntegrityVetoVoids(t *testing.T) {
	m := testMachine()

	sig := testSignal(models.SignalDiscovered, waveRec(models.WaveDiscovery, models.SideHome, models.ClassEdge, 3.0))
	d := edgeDecision(models.SideHome, models.ClassEdge)
	d.ReleaseStatus = models.ReleaseBlockedByIntegrity
	d.Pick = nil

	rec := waveRec(models.WaveValidation, models.SideHome, models.ClassEdge, 3.0)
	if got := m.nextStatus(sig, models.WaveValidation, d, rec); got != models.SignalVoided {
		t.Errorf("integrity veto = %s, want voided", got)
	}
}

func TestWithinStabilityUnits(t *testing.T) {
	cfg, err := config.DefaultLeagues().Get(models.LeagueNBA)
	if err != nil {
		t.Fatal(err)
	}

	prev := waveRec(models.WaveDiscovery, models.SideHome, models.ClassEdge, 3.0)
	cur := waveRec(models.WaveValidation, models.SideHome, models.ClassEdge, 3.9)
	if !withinStability(&prev, &cur, cfg) {
		t.Error("0.9-point drift should be within the 1.0 tolerance")
	}

	// Moneyline drift measured in EV units
	prevML := models.WaveRecord{EdgeEV: floatPtr(0.05)}
	curML := models.WaveRecord{EdgeEV: floatPtr(0.09)}
	if withinStability(&prevML, &curML, cfg) {
		t.Error("4% EV drift should exceed the 2.5% tolerance")
	}

	// Mixed units never compare
	if withinStability(&prev, &curML, cfg) {
		t.Error("points cannot be compared against EV")
	}
}

func TestSignalIDDeterministic(t *testing.T) {
	a := SignalID("evt_1", models.MarketSpread)
	b := SignalID("evt_1", models.MarketSpread)
	if a != b {
		t.Error("signal ids must be deterministic")
	}
	if SignalID("evt_1", models.MarketTotal) == a {
		t.Error("markets must get distinct signal ids")
	}
}
