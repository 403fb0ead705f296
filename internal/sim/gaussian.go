package sim

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// marketPriorShrink is the weight kept on the market-implied score; the
// remaining 15% pulls team means toward the league mean. At 80+
// possessions the central limit theorem makes per-team scoring Gaussian
const marketPriorShrink = 0.85

// gaussianGenerator models basketball team scoring as independent normals
// with league-tuned variance. Team means come from the market-implied
// scores shrunk toward the league mean.
type gaussianGenerator struct {
	homeMean    float64
	awayMean    float64
	sigma       float64
	adjustments []string
}

func newGaussianGenerator(cfg config.LeagueConfig, event *models.Event, snap *models.MarketSnapshot) *gaussianGenerator {
	leagueMean := cfg.Sim.MeanTeamScore
	marketHome, marketAway := marketImpliedScores(snap)

	g := &gaussianGenerator{
		homeMean:    leagueMean + (marketHome-leagueMean)*marketPriorShrink,
		awayMean:    leagueMean + (marketAway-leagueMean)*marketPriorShrink,
		sigma:       cfg.Sim.TeamScoreStdDev,
		adjustments: []string{"market_prior"},
	}

	if event.Roster != nil {
		// Thin rotations drag scoring toward replacement level
		g.homeMean -= (1.0 - event.Roster.HomeAvailability) * 0.1 * leagueMean
		g.awayMean -= (1.0 - event.Roster.AwayAvailability) * 0.1 * leagueMean
		g.adjustments = append(g.adjustments, "roster")
	}

	return g
}

func (g *gaussianGenerator) SimulateGame(rng *rand.Rand) (home, away float64) {
	homeDist := distuv.Normal{Mu: g.homeMean, Sigma: g.sigma, Src: rng}
	awayDist := distuv.Normal{Mu: g.awayMean, Sigma: g.sigma, Src: rng}

	home = homeDist.Rand()
	away = awayDist.Rand()
	if home < 0 {
		home = 0
	}
	if away < 0 {
		away = 0
	}
	return home, away
}

func (g *gaussianGenerator) Adjustments() []string {
	return g.adjustments
}
