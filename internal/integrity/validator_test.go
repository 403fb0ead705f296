package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/decision"
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
		StartTime:    time.Now().Add(4 * time.Hour),
	}
}

func floatPtr(v float64) *float64 { return &v }

// validTriple fabricates a coherent decision triple the way the computer
// would emit it
func validTriple(event *models.Event) *models.GameDecisions {
	const bookID = "pinnacle"
	debug := models.Debug{
		InputsHash:      "hash_abc",
		DecisionVersion: 7,
		TraceID:         "trace_abc",
		ComputedAt:      time.Now().UTC(),
		OddsTimestamp:   time.Now().UTC(),
		SimRunID:        "sim_abc",
	}

	spread := &models.MarketDecision{
		League:              event.League,
		EventID:             event.EventID,
		MarketType:          models.MarketSpread,
		BookID:              bookID,
		SelectionID:         decision.SelectionID(event.EventID, models.MarketSpread, models.SideHome, -5.5, bookID),
		OppositeSelectionID: decision.SelectionID(event.EventID, models.MarketSpread, models.SideAway, 5.5, bookID),
		Pick:                &models.Pick{TeamID: event.HomeTeamID, TeamName: event.HomeTeamName, Side: models.SideHome, Line: -5.5},
		Line:                -5.5,
		AmericanOdds:        -110,
		FairLine:            -8.8,
		ModelProb:           0.84,
		ModelProbOpposite:   0.16,
		MarketImpliedProb:   0.5,
		Edge:                &models.Edge{Points: floatPtr(3.3), Grade: "B"},
		Classification:      models.ClassEdge,
		ReleaseStatus:       models.ReleaseOfficial,
		Reasons:             []string{"model fair line -8.8 vs market -5.5: 3.3-point misprice toward Home Club"},
		Debug:               debug,
	}

	moneyline := &models.MarketDecision{
		League:              event.League,
		EventID:             event.EventID,
		MarketType:          models.MarketMoneyline,
		BookID:              bookID,
		SelectionID:         decision.SelectionID(event.EventID, models.MarketMoneyline, models.SideHome, 0, bookID),
		OppositeSelectionID: decision.SelectionID(event.EventID, models.MarketMoneyline, models.SideAway, 0, bookID),
		Pick:                &models.Pick{TeamID: event.HomeTeamID, TeamName: event.HomeTeamName, Side: models.SideHome},
		AmericanOdds:        -220,
		ModelProb:           0.78,
		ModelProbOpposite:   0.22,
		MarketImpliedProb:   0.67,
		Edge:                &models.Edge{EV: floatPtr(0.05), Grade: "B"},
		Classification:      models.ClassEdge,
		ReleaseStatus:       models.ReleaseOfficial,
		Reasons:             []string{"model win probability 78.0% vs implied 67.0%: 5.0% EV misprice"},
		Debug:               debug,
	}

	total := &models.MarketDecision{
		League:              event.League,
		EventID:             event.EventID,
		MarketType:          models.MarketTotal,
		BookID:              bookID,
		SelectionID:         decision.SelectionID(event.EventID, models.MarketTotal, models.SideOver, 224.5, bookID),
		OppositeSelectionID: decision.SelectionID(event.EventID, models.MarketTotal, models.SideUnder, 224.5, bookID),
		Pick:                &models.Pick{Side: models.SideOver, Line: 224.5},
		Line:                224.5,
		AmericanOdds:        -110,
		FairLine:            224.7,
		ModelProb:           0.505,
		ModelProbOpposite:   0.495,
		MarketImpliedProb:   0.5,
		Edge:                &models.Edge{Points: floatPtr(0.2), Grade: ""},
		Classification:      models.ClassMarketAligned,
		ReleaseStatus:       models.ReleaseInfoOnly,
		Reasons:             []string{"model total 224.7 is within the aligned band of the market"},
		Debug:               debug,
	}

	return &models.GameDecisions{
		Spread:    spread,
		Moneyline: moneyline,
		Total:     total,
		Meta: models.GameDecisionsMeta{
			InputsHash:      debug.InputsHash,
			DecisionVersion: debug.DecisionVersion,
			ComputedAt:      debug.ComputedAt,
			League:          event.League,
			EventID:         event.EventID,
		},
	}
}

func newValidator() *Validator {
	return NewValidator(config.DefaultLeagues(), nil, nil)
}

func TestValidTriplePasses(t *testing.T) {
	event := testEvent()
	gd := validTriple(event)

	newValidator().ValidateGame(context.Background(), event, gd, true)

	for _, d := range gd.Children() {
		if d.ReleaseStatus.Blocked() {
			t.Errorf("%s blocked unexpectedly: %v", d.MarketType, d.ValidatorFailures)
		}
	}
}

func TestMissingSelectionIDBlocks(t *testing.T) {
	event := testEvent()
	gd := validTriple(event)
	gd.Spread.SelectionID = ""

	newValidator().ValidateGame(context.Background(), event, gd, true)

	d := gd.Spread
	if d.ReleaseStatus != models.ReleaseBlockedByIntegrity {
		t.Fatalf("release = %s, want BLOCKED_BY_INTEGRITY", d.ReleaseStatus)
	}
	if len(d.ValidatorFailures) != 1 || d.ValidatorFailures[0] != FailMissingSelectionID {
		t.Errorf("failures = %v, want [%s]", d.ValidatorFailures, FailMissingSelectionID)
	}
	if d.Pick != nil || d.Edge != nil {
		t.Error("blocked decision must null its pick and edge")
	}

	// The other markets of the triple are untouched
	if gd.Moneyline.ReleaseStatus.Blocked() {
		t.Error("moneyline should not be blocked")
	}
}

func TestHashMismatchBlocksAll(t *testing.T) {
	event := testEvent()
	gd := validTriple(event)
	gd.Total.Debug.InputsHash = "hash_other"

	newValidator().ValidateGame(context.Background(), event, gd, true)

	blocked := 0
	for _, d := range gd.Children() {
		if d.ReleaseStatus == models.ReleaseBlockedByIntegrity {
			blocked++
			if !contains(d.ValidatorFailures, FailHashMismatch) {
				t.Errorf("%s missing hash mismatch code: %v", d.MarketType, d.ValidatorFailures)
			}
		}
	}
	if blocked != 3 {
		t.Errorf("blocked %d of 3; a split hash invalidates the whole triple", blocked)
	}
}

func TestPickTeamDriftBlocks(t *testing.T) {
	event := testEvent()
	gd := validTriple(event)
	gd.Spread.Pick.TeamID = event.AwayTeamID

	newValidator().ValidateGame(context.Background(), event, gd, true)

	if gd.Spread.ReleaseStatus != models.ReleaseBlockedByIntegrity {
		t.Fatal("pick drift must block")
	}
	if !contains(gd.Spread.ValidatorFailures, FailPickSelectionDrift) {
		t.Errorf("failures = %v, want %s", gd.Spread.ValidatorFailures, FailPickSelectionDrift)
	}
}

func TestUnnormalizedProbabilitiesBlock(t *testing.T) {
	event := testEvent()
	gd := validTriple(event)
	gd.Moneyline.ModelProbOpposite = 0.30

	newValidator().ValidateGame(context.Background(), event, gd, true)

	if !contains(gd.Moneyline.ValidatorFailures, FailProbNotNormalized) {
		t.Errorf("failures = %v, want %s", gd.Moneyline.ValidatorFailures, FailProbNotNormalized)
	}
}

func TestAlignedWithMispriceReasonBlocks(t *testing.T) {
	event := testEvent()
	gd := validTriple(event)
	gd.Total.Reasons = []string{"the total is a clear misprice"}

	newValidator().ValidateGame(context.Background(), event, gd, true)

	if gd.Total.ReleaseStatus != models.ReleaseBlockedByIntegrity {
		t.Fatal("aligned decision with misprice language must block")
	}
}

func TestClassificationIncoherenceBlocks(t *testing.T) {
	event := testEvent()
	gd := validTriple(event)
	// EDGE claimed with a sub-threshold edge
	gd.Spread.Edge.Points = floatPtr(0.3)

	newValidator().ValidateGame(context.Background(), event, gd, true)

	if !contains(gd.Spread.ValidatorFailures, FailClassIncoherent) {
		t.Errorf("failures = %v, want %s", gd.Spread.ValidatorFailures, FailClassIncoherent)
	}
}

func TestNonConvergenceDowngrades(t *testing.T) {
	event := testEvent()
	gd := validTriple(event)

	newValidator().ValidateGame(context.Background(), event, gd, false)

	d := gd.Spread
	if d.ReleaseStatus.Blocked() {
		t.Fatal("non-convergence downgrades, never blocks")
	}
	if d.Classification != models.ClassMarketAligned {
		t.Errorf("classification = %s, want MARKET_ALIGNED", d.Classification)
	}
	if d.ReleaseStatus != models.ReleaseInfoOnly {
		t.Errorf("release = %s, want INFO_ONLY", d.ReleaseStatus)
	}
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
