package decision

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

func testEvent() *models.Event {
	return &models.Event{
		EventID:      "evt_test",
		League:       models.LeagueNBA,
		HomeTeamID:   "team_home",
		AwayTeamID:   "team_away",
		HomeTeamName: "Home Club",
		AwayTeamName: "Away Club",
		StartTime:    time.Date(2025, 11, 1, 23, 0, 0, 0, time.UTC),
	}
}

func testSnapshot() *models.MarketSnapshot {
	return &models.MarketSnapshot{
		EventID:         "evt_test",
		Wave:            models.WaveDiscovery,
		ObservedAt:      time.Date(2025, 11, 1, 17, 0, 0, 0, time.UTC),
		BookID:          "pinnacle",
		SpreadHome:      -5.5,
		SpreadAway:      5.5,
		SpreadHomePrice: -110,
		SpreadAwayPrice: -110,
		Total:           224.5,
		OverPrice:       -110,
		UnderPrice:      -110,
		MLHome:          -220,
		MLAway:          185,
	}
}

// testRun builds a converged run with a chosen mean margin and total.
// Histograms are normal-ish around the means.
func testRun(meanMargin, meanTotal float64) *models.SimulationRun {
	marginHist := models.NewHistogram(-60, 0.5, 240)
	totalHist := models.NewHistogram(120, 0.5, 400)

	// Triangular fill around the means is enough shape for cover pricing
	for offset := -30.0; offset <= 30.0; offset += 0.5 {
		weight := int64(1 + (30-math.Abs(offset))*4)
		for w := int64(0); w < weight; w++ {
			marginHist.Add(meanMargin + offset)
			totalHist.Add(meanTotal + offset)
		}
	}

	homeWins := marginHist.ProbAbove(0)

	return &models.SimulationRun{
		SimRunID:       "sim_test",
		EventID:        "evt_test",
		League:         models.LeagueNBA,
		Wave:           models.WaveDiscovery,
		Iterations:     25000,
		Seed:           42,
		Config:         models.SimConfigRef{ModelVersion: "mc-v2", ConfigVersion: "leagues-v3"},
		HomeWinProb:    homeWins,
		MeanMargin:     meanMargin,
		MeanTotal:      meanTotal,
		MarginVariance: 150,
		TotalVariance:  300,
		MarginHist:     marginHist,
		TotalHist:      totalHist,
		Converged:      true,
		ComputedAt:     time.Now().UTC(),
	}
}

func newComputer() *Computer {
	return NewComputer(config.DefaultLeagues(), nil)
}

func TestEdgeSpreadScenario(t *testing.T) {
	// Market -5.5 on home, model says home by 8.8: a 3.3-point misprice
	computer := newComputer()
	gd, err := computer.ComputeGame(testEvent(), testSnapshot(), testRun(8.8, 224.5), 1, "trace_1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	d := gd.Spread
	if d.Classification != models.ClassEdge {
		t.Errorf("classification = %s, want EDGE", d.Classification)
	}
	if d.ReleaseStatus != models.ReleaseOfficial {
		t.Errorf("release = %s, want OFFICIAL", d.ReleaseStatus)
	}
	if d.Pick == nil || d.Pick.Side != models.SideHome || d.Pick.TeamID != "team_home" {
		t.Fatalf("pick = %+v, want home team", d.Pick)
	}
	if d.Edge == nil || d.Edge.Points == nil {
		t.Fatal("edge points missing")
	}
	if math.Abs(*d.Edge.Points-3.3) > 0.05 {
		t.Errorf("edge points = %f, want ~3.3", *d.Edge.Points)
	}
	if !containsSubstring(d.Reasons, "misprice") {
		t.Errorf("EDGE reasons should note the misprice: %v", d.Reasons)
	}
	if d.ModelProb <= 0.5 {
		t.Errorf("home cover probability %f should exceed 0.5", d.ModelProb)
	}
}

func TestMarketAlignedSpreadScenario(t *testing.T) {
	// Market -5.5, model -5.7: inside the aligned band
	computer := newComputer()
	gd, err := computer.ComputeGame(testEvent(), testSnapshot(), testRun(5.7, 224.5), 1, "trace_2")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	d := gd.Spread
	if d.Classification != models.ClassMarketAligned {
		t.Errorf("classification = %s, want MARKET_ALIGNED", d.Classification)
	}
	if d.ReleaseStatus != models.ReleaseInfoOnly {
		t.Errorf("release = %s, want INFO_ONLY", d.ReleaseStatus)
	}
	if d.Pick == nil || d.Pick.TeamID == "" {
		t.Error("aligned decisions still carry a pick")
	}
	if containsSubstring(d.Reasons, "misprice") {
		t.Errorf("aligned reasons must not mention misprice: %v", d.Reasons)
	}
}

func TestInputsHashSharedAcrossTriple(t *testing.T) {
	computer := newComputer()
	gd, err := computer.ComputeGame(testEvent(), testSnapshot(), testRun(8.8, 230.0), 3, "trace_3")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	for _, d := range gd.Children() {
		if d.Debug.InputsHash != gd.Meta.InputsHash {
			t.Errorf("%s inputs hash %s != meta %s", d.MarketType, d.Debug.InputsHash, gd.Meta.InputsHash)
		}
		if d.Debug.DecisionVersion != 3 {
			t.Errorf("%s decision version %d != 3", d.MarketType, d.Debug.DecisionVersion)
		}
	}
}

func TestInputsHashStable(t *testing.T) {
	computer := newComputer()
	gd1, err := computer.ComputeGame(testEvent(), testSnapshot(), testRun(8.8, 224.5), 1, "trace_a")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	gd2, err := computer.ComputeGame(testEvent(), testSnapshot(), testRun(8.8, 224.5), 1, "trace_b")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if gd1.Meta.InputsHash != gd2.Meta.InputsHash {
		t.Error("identical inputs must hash identically")
	}

	gd3, err := computer.ComputeGame(testEvent(), testSnapshot(), testRun(8.8, 224.5), 2, "trace_c")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if gd1.Meta.InputsHash == gd3.Meta.InputsHash {
		t.Error("a version bump must change the hash")
	}
}

func TestTotalSideSelection(t *testing.T) {
	computer := newComputer()

	// Model total well over the market: over has the value
	gd, err := computer.ComputeGame(testEvent(), testSnapshot(), testRun(5.5, 231.0), 1, "trace_over")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if gd.Total.Pick.Side != models.SideOver {
		t.Errorf("side = %s, want over", gd.Total.Pick.Side)
	}

	// Model total under the market
	gd, err = computer.ComputeGame(testEvent(), testSnapshot(), testRun(5.5, 217.0), 1, "trace_under")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if gd.Total.Pick.Side != models.SideUnder {
		t.Errorf("side = %s, want under", gd.Total.Pick.Side)
	}
}

func TestProbabilitiesNormalized(t *testing.T) {
	computer := newComputer()
	gd, err := computer.ComputeGame(testEvent(), testSnapshot(), testRun(8.8, 224.5), 1, "trace_norm")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	for _, d := range gd.Children() {
		if sum := d.ModelProb + d.ModelProbOpposite; math.Abs(sum-1.0) > 1e-6 {
			t.Errorf("%s model probabilities sum to %f", d.MarketType, sum)
		}
	}
}

func TestNonConvergedForcesAligned(t *testing.T) {
	computer := newComputer()
	run := testRun(12.0, 240.0)
	run.Converged = false

	gd, err := computer.ComputeGame(testEvent(), testSnapshot(), run, 1, "trace_nc")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	for _, d := range gd.Children() {
		if d.Classification != models.ClassMarketAligned {
			t.Errorf("%s classification = %s, want MARKET_ALIGNED on non-convergence", d.MarketType, d.Classification)
		}
	}
}

func TestOppositeInvolution(t *testing.T) {
	computer := newComputer()
	gd, err := computer.ComputeGame(testEvent(), testSnapshot(), testRun(8.8, 224.5), 1, "trace_opp")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	for _, d := range gd.Children() {
		opp, err := Opposite(d, d.SelectionID)
		if err != nil {
			t.Fatalf("%s opposite: %v", d.MarketType, err)
		}
		back, err := Opposite(d, opp)
		if err != nil {
			t.Fatalf("%s opposite back: %v", d.MarketType, err)
		}
		if back != d.SelectionID {
			t.Errorf("%s opposite(opposite(x)) = %s, want %s", d.MarketType, back, d.SelectionID)
		}
	}

	if _, err := Opposite(gd.Spread, "sel_bogus"); err == nil {
		t.Error("unknown selection id should error")
	}
}

func TestSelectionIDStability(t *testing.T) {
	id1 := SelectionID("evt_test", models.MarketSpread, models.SideHome, -5.5, "pinnacle")
	id2 := SelectionID("evt_test", models.MarketSpread, models.SideHome, -5.5, "pinnacle")
	if id1 != id2 {
		t.Error("selection ids must be stable")
	}

	if SelectionID("evt_test", models.MarketSpread, models.SideHome, -6.5, "pinnacle") == id1 {
		t.Error("a line change must change the selection id")
	}
	if SelectionID("evt_test", models.MarketSpread, models.SideHome, -5.5, "draftkings") == id1 {
		t.Error("a book change must change the selection id")
	}
}

func containsSubstring(reasons []string, substr string) bool {
	for _, reason := range reasons {
		if strings.Contains(reason, substr) {
			return true
		}
	}
	return false
}
