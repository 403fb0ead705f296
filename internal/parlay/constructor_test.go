package parlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

func floatPtr(v float64) *float64 { return &v }

// poolDecision fabricates one eligible pool entry
func poolDecision(eventID, teamID string, league models.League, market models.MarketType, class models.Classification, edgePoints float64) models.MarketDecision {
	d := models.MarketDecision{
		League:            league,
		EventID:           eventID,
		MarketType:        market,
		SelectionID:       "sel_" + eventID + "_" + string(market),
		BookID:            "pinnacle",
		Pick:              &models.Pick{TeamID: teamID, TeamName: teamID, Side: models.SideHome, Line: -3.5},
		Line:              -3.5,
		AmericanOdds:      -110,
		ModelProb:         0.6,
		ModelProbOpposite: 0.4,
		MarketImpliedProb: 0.5,
		Edge:              &models.Edge{Points: floatPtr(edgePoints)},
		Classification:    class,
		ReleaseStatus:     models.ReleaseOfficial,
	}
	if teamID != "" {
		d.TeamKey = string(league) + ":" + teamID
	}
	if class != models.ClassEdge {
		d.ReleaseStatus = models.ReleaseInfoOnly
	}
	return d
}

func newTestConstructor() *Constructor {
	return &Constructor{
		leagues:  config.DefaultLeagues(),
		profiles: DefaultProfiles(),
	}
}

func TestInsufficientPool(t *testing.T) {
	c := newTestConstructor()

	pool := []models.MarketDecision{
		poolDecision("evt_1", "team_a", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
		poolDecision("evt_2", "team_b", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 2.5),
	}

	result := c.evaluate(pool, &models.ParlayRequest{
		Profile: models.ProfileBalanced,
		Legs:    4,
	})

	require.Equal(t, "FAIL", result.Status)
	assert.Equal(t, models.FailInsufficientPool, result.ReasonCode)
	assert.Equal(t, 2, result.ReasonDetail["eligible_pool_size"])
	assert.Equal(t, 4, result.ReasonDetail["legs_requested"])
	assert.NotEmpty(t, result.AttemptID)
}

func TestSuccessfulParlay(t *testing.T) {
	c := newTestConstructor()

	pool := []models.MarketDecision{
		poolDecision("evt_1", "team_a", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
		poolDecision("evt_2", "team_b", models.LeagueNFL, models.MarketSpread, models.ClassEdge, 2.5),
		poolDecision("evt_3", "team_c", models.LeagueNHL, models.MarketMoneyline, models.ClassEdge, 0.06),
	}
	pool[2].Edge = &models.Edge{EV: floatPtr(0.06)}

	result := c.evaluate(pool, &models.ParlayRequest{
		Profile: models.ProfileBalanced,
		Legs:    3,
		Seed:    7,
	})

	require.Equal(t, "PARLAY", result.Status)
	require.Len(t, result.Legs, 3)
	assert.Greater(t, result.TotalWeight, 0.0)

	seen := make(map[string]bool)
	for _, leg := range result.Legs {
		assert.False(t, seen[leg.SelectionID], "duplicate leg %s", leg.SelectionID)
		seen[leg.SelectionID] = true
	}
}

func TestBlockedDecisionsExcluded(t *testing.T) {
	c := newTestConstructor()

	blocked := poolDecision("evt_1", "team_a", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0)
	blocked.ReleaseStatus = models.ReleaseBlockedByIntegrity
	blocked.Pick = nil

	pool := []models.MarketDecision{
		blocked,
		poolDecision("evt_2", "team_b", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
		poolDecision("evt_3", "team_c", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
	}

	result := c.evaluate(pool, &models.ParlayRequest{
		Profile: models.ProfileBalanced,
		Legs:    2,
	})

	require.Equal(t, "PARLAY", result.Status)
	assert.Equal(t, 1, result.Audit.BlockedCounts["integrity"])
	for _, leg := range result.Legs {
		assert.NotEqual(t, blocked.SelectionID, leg.SelectionID, "blocked decision leaked into parlay")
	}
}

func TestSameTeamConstraint(t *testing.T) {
	c := newTestConstructor()

	// Spread and moneyline on the same team
	spread := poolDecision("evt_1", "team_a", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0)
	ml := poolDecision("evt_9", "team_a", models.LeagueNBA, models.MarketMoneyline, models.ClassEdge, 0.06)
	ml.Edge = &models.Edge{EV: floatPtr(0.06)}
	other := poolDecision("evt_2", "team_b", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0)

	result := c.evaluate([]models.MarketDecision{spread, ml, other}, &models.ParlayRequest{
		Profile:       models.ProfileBalanced,
		Legs:          2,
		AllowSameTeam: false,
	})

	require.Equal(t, "PARLAY", result.Status)
	keys := make(map[string]int)
	for _, leg := range result.Legs {
		if leg.TeamKey != "" {
			keys[leg.TeamKey]++
			assert.LessOrEqual(t, keys[leg.TeamKey], 1, "team key %s repeated", leg.TeamKey)
		}
	}
}

func TestPremiumRejectsLeans(t *testing.T) {
	c := newTestConstructor()

	pool := []models.MarketDecision{
		poolDecision("evt_1", "team_a", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
		poolDecision("evt_2", "team_b", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
		poolDecision("evt_3", "team_c", models.LeagueNBA, models.MarketSpread, models.ClassLean, 0.7),
	}

	result := c.evaluate(pool, &models.ParlayRequest{
		Profile: models.ProfilePremium,
		Legs:    3,
	})

	// Two edges plus one lean: the lean gate starves a 3-leg premium request
	require.Equal(t, "FAIL", result.Status)
	assert.Equal(t, models.FailLeanNotAllowed, result.ReasonCode)
}

func TestInvalidProfile(t *testing.T) {
	c := newTestConstructor()

	result := c.evaluate(nil, &models.ParlayRequest{
		Profile: models.ParlayProfile("degenerate"),
		Legs:    3,
	})

	require.Equal(t, "FAIL", result.Status)
	assert.Equal(t, models.FailInvalidProfile, result.ReasonCode)
}

func TestDeterministicWithSeed(t *testing.T) {
	c := newTestConstructor()

	pool := []models.MarketDecision{
		poolDecision("evt_1", "team_a", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
		poolDecision("evt_2", "team_b", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
		poolDecision("evt_3", "team_c", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
		poolDecision("evt_4", "team_d", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0),
	}

	req := &models.ParlayRequest{Profile: models.ProfileBalanced, Legs: 2, Seed: 99}
	r1 := c.evaluate(pool, req)
	r2 := c.evaluate(pool, req)

	require.Equal(t, "PARLAY", r1.Status)
	require.Equal(t, r1.Status, r2.Status)
	require.Len(t, r2.Legs, len(r1.Legs))
	for i := range r1.Legs {
		assert.Equal(t, r1.Legs[i].SelectionID, r2.Legs[i].SelectionID)
	}
}

func TestTierDerivation(t *testing.T) {
	leagues := config.DefaultLeagues()
	cfg, err := leagues.Get(models.LeagueNBA)
	require.NoError(t, err)

	edge := poolDecision("evt_1", "team_a", models.LeagueNBA, models.MarketSpread, models.ClassEdge, 3.0)
	assert.Equal(t, models.TierEdge, tierFor(&edge, cfg))

	// NBA threshold 2.0: a 1.6-point lean clears 75% of it
	strong := poolDecision("evt_2", "team_b", models.LeagueNBA, models.MarketSpread, models.ClassLean, 1.6)
	assert.Equal(t, models.TierPick, tierFor(&strong, cfg))

	weak := poolDecision("evt_3", "team_c", models.LeagueNBA, models.MarketSpread, models.ClassLean, 0.7)
	assert.Equal(t, models.TierLean, tierFor(&weak, cfg))
}
