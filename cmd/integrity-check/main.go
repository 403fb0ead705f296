// integrity-check exercises the integrity validator against known-good and
// known-bad decision fixtures without touching any store.
// Exit codes: 0 all checks pass, 2 usage, 3 integrity-test failure.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/decision"
	"github.com/XavierBriggs/pythia/internal/integrity"
	"github.com/XavierBriggs/pythia/pkg/models"
)

func main() {
	if len(os.Args) > 1 {
		fmt.Println("usage: integrity-check")
		os.Exit(2)
	}

	fmt.Println("=== Integrity Validator Self-Test ===")

	leagues := config.DefaultLeagues()
	validator := integrity.NewValidator(leagues, nil, nil)
	ctx := context.Background()

	failures := 0
	check := func(name string, ok bool) {
		if ok {
			fmt.Printf("✓ %s\n", name)
		} else {
			fmt.Printf("❌ %s\n", name)
			failures++
		}
	}

	event := fixtureEvent()

	// A coherent EDGE decision must pass untouched
	gd := fixtureTriple(event)
	validator.ValidateGame(ctx, event, gd, true)
	check("valid EDGE decision passes", gd.Spread.ReleaseStatus == models.ReleaseOfficial && len(gd.Spread.ValidatorFailures) == 0)

	// A missing selection id must block with exactly that code
	gd = fixtureTriple(event)
	gd.Spread.SelectionID = ""
	validator.ValidateGame(ctx, event, gd, true)
	check("missing selection id blocks",
		gd.Spread.ReleaseStatus == models.ReleaseBlockedByIntegrity &&
			len(gd.Spread.ValidatorFailures) == 1 &&
			gd.Spread.ValidatorFailures[0] == integrity.FailMissingSelectionID &&
			gd.Spread.Pick == nil && gd.Spread.Edge == nil)

	// Pick team drift must block
	gd = fixtureTriple(event)
	gd.Spread.Pick.TeamID = event.AwayTeamID
	validator.ValidateGame(ctx, event, gd, true)
	check("pick selection drift blocks", gd.Spread.ReleaseStatus == models.ReleaseBlockedByIntegrity)

	// Opposite resolution must be an involution
	gd = fixtureTriple(event)
	opp, err := decision.Opposite(gd.Spread, gd.Spread.SelectionID)
	back := ""
	if err == nil {
		back, err = decision.Opposite(gd.Spread, opp)
	}
	check("opposite(opposite(x)) == x", err == nil && back == gd.Spread.SelectionID)

	// Non-converged runs must downgrade, not block
	gd = fixtureTriple(event)
	validator.ValidateGame(ctx, event, gd, false)
	check("non-convergence downgrades to market aligned",
		gd.Spread.Classification == models.ClassMarketAligned &&
			gd.Spread.ReleaseStatus == models.ReleaseInfoOnly)

	if failures > 0 {
		fmt.Printf("❌ %d integrity checks failed\n", failures)
		os.Exit(3)
	}
	fmt.Println("✓ All integrity checks passed")
}

func fixtureEvent() *models.Event {
	return &models.Event{
		EventID:      "evt_fixture",
		League:       models.LeagueNBA,
		HomeTeamID:   "team_home",
		AwayTeamID:   "team_away",
		HomeTeamName: "Home Club",
		AwayTeamName: "Away Club",
		StartTime:    time.Now().Add(2 * time.Hour),
	}
}

// fixtureTriple builds a coherent EDGE spread triple by hand
func fixtureTriple(event *models.Event) *models.GameDecisions {
	const (
		bookID     = "pinnacle"
		spreadLine = -5.5
		totalLine  = 224.5
	)

	debug := models.Debug{
		InputsHash:      "hash_fixture",
		DecisionVersion: 1,
		TraceID:         "trace_fixture",
		ComputedAt:      time.Now().UTC(),
		OddsTimestamp:   time.Now().UTC(),
		SimRunID:        "sim_fixture",
	}

	edgePts := 3.3
	spread := &models.MarketDecision{
		League:              event.League,
		EventID:             event.EventID,
		MarketType:          models.MarketSpread,
		BookID:              bookID,
		SelectionID:         decision.SelectionID(event.EventID, models.MarketSpread, models.SideHome, spreadLine, bookID),
		OppositeSelectionID: decision.SelectionID(event.EventID, models.MarketSpread, models.SideAway, -spreadLine, bookID),
		Pick:                &models.Pick{TeamID: event.HomeTeamID, TeamName: event.HomeTeamName, Side: models.SideHome, Line: spreadLine},
		Line:                spreadLine,
		AmericanOdds:        -110,
		FairLine:            -8.8,
		ModelProb:           0.84,
		ModelProbOpposite:   0.16,
		MarketImpliedProb:   0.5,
		Edge:                &models.Edge{Points: &edgePts, Grade: "B"},
		Classification:      models.ClassEdge,
		ReleaseStatus:       models.ReleaseOfficial,
		Reasons:             []string{"model fair line -8.8 vs market -5.5: 3.3-point misprice toward Home Club"},
		Debug:               debug,
	}

	evEdge := 0.05
	moneyline := &models.MarketDecision{
		League:              event.League,
		EventID:             event.EventID,
		MarketType:          models.MarketMoneyline,
		BookID:              bookID,
		SelectionID:         decision.SelectionID(event.EventID, models.MarketMoneyline, models.SideHome, 0, bookID),
		OppositeSelectionID: decision.SelectionID(event.EventID, models.MarketMoneyline, models.SideAway, 0, bookID),
		Pick:                &models.Pick{TeamID: event.HomeTeamID, TeamName: event.HomeTeamName, Side: models.SideHome},
		AmericanOdds:        -220,
		FairLine:            -350,
		ModelProb:           0.78,
		ModelProbOpposite:   0.22,
		MarketImpliedProb:   0.67,
		Edge:                &models.Edge{EV: &evEdge, Grade: "B"},
		Classification:      models.ClassEdge,
		ReleaseStatus:       models.ReleaseOfficial,
		Reasons:             []string{"model win probability 78.0% vs implied 67.0%: 5.0% EV misprice"},
		Debug:               debug,
	}

	totalPts := 0.2
	total := &models.MarketDecision{
		League:              event.League,
		EventID:             event.EventID,
		MarketType:          models.MarketTotal,
		BookID:              bookID,
		SelectionID:         decision.SelectionID(event.EventID, models.MarketTotal, models.SideOver, totalLine, bookID),
		OppositeSelectionID: decision.SelectionID(event.EventID, models.MarketTotal, models.SideUnder, totalLine, bookID),
		Pick:                &models.Pick{Side: models.SideOver, Line: totalLine},
		Line:                totalLine,
		AmericanOdds:        -110,
		FairLine:            224.7,
		ModelProb:           0.505,
		ModelProbOpposite:   0.495,
		MarketImpliedProb:   0.5,
		Edge:                &models.Edge{Points: &totalPts, Grade: ""},
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
			DecisionVersion: 1,
			ComputedAt:      debug.ComputedAt,
			League:          event.League,
			EventID:         event.EventID,
		},
	}
}
