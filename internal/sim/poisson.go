package sim

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// poissonGenerator models low-scoring sports as a sum of independent
// per-segment Poisson draws: innings for baseball, periods for hockey.
// Segment samples form an i.i.d. sequence per game.
type poissonGenerator struct {
	segments    int
	homeRate    float64
	awayRate    float64
	adjustments []string
}

func newPoissonGenerator(cfg config.LeagueConfig, event *models.Event, snap *models.MarketSnapshot) *poissonGenerator {
	segments := cfg.Sim.Segments
	leagueTeamScore := float64(segments) * cfg.Sim.SegmentRate

	marketHome, marketAway := marketImpliedScores(snap)

	homeScore := leagueTeamScore + (marketHome-leagueTeamScore)*marketPriorShrink
	awayScore := leagueTeamScore + (marketAway-leagueTeamScore)*marketPriorShrink

	g := &poissonGenerator{
		segments:    segments,
		homeRate:    positiveRate(homeScore / float64(segments)),
		awayRate:    positiveRate(awayScore / float64(segments)),
		adjustments: []string{"market_prior"},
	}

	if event.Roster != nil {
		g.homeRate *= 0.9 + 0.1*event.Roster.HomeAvailability
		g.awayRate *= 0.9 + 0.1*event.Roster.AwayAvailability
		g.adjustments = append(g.adjustments, "roster")
	}

	return g
}

func positiveRate(r float64) float64 {
	if r < 0.05 {
		return 0.05
	}
	return r
}

func (g *poissonGenerator) SimulateGame(rng *rand.Rand) (home, away float64) {
	homeDist := distuv.Poisson{Lambda: g.homeRate, Src: rng}
	awayDist := distuv.Poisson{Lambda: g.awayRate, Src: rng}

	for i := 0; i < g.segments; i++ {
		home += homeDist.Rand()
		away += awayDist.Rand()
	}
	return home, away
}

func (g *poissonGenerator) Adjustments() []string {
	return g.adjustments
}
