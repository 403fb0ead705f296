package sim

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// marketAnchorWeight blends the team strength estimate toward the
// market-implied per-drive expectation before simulation begins
const marketAnchorWeight = 0.15

// driveGenerator simulates football one drive at a time. Each drive ends in
// a touchdown (7), a field goal (3), or nothing; probabilities scale with a
// clamped team strength factor and shrink under bad weather.
type driveGenerator struct {
	drives      int
	homeTDProb  float64
	homeFGProb  float64
	awayTDProb  float64
	awayFGProb  float64
	adjustments []string
}

func newDriveGenerator(cfg config.LeagueConfig, event *models.Event, snap *models.MarketSnapshot) *driveGenerator {
	drives := cfg.Sim.DrivesPerTeam
	baselineDrivePts := config.BaseDriveTDProb*7.0 + config.BaseDriveFGProb*3.0

	marketHome, marketAway := marketImpliedScores(snap)
	homeMarketFactor := (marketHome / float64(drives)) / baselineDrivePts
	awayMarketFactor := (marketAway / float64(drives)) / baselineDrivePts

	g := &driveGenerator{drives: drives}

	homeBase, awayBase := 1.0, 1.0
	if event.Roster != nil {
		homeBase *= 0.8 + 0.2*event.Roster.HomeAvailability
		awayBase *= 0.8 + 0.2*event.Roster.AwayAvailability
		g.adjustments = append(g.adjustments, "roster")
	}

	homeFactor := (1-marketAnchorWeight)*homeBase + marketAnchorWeight*homeMarketFactor
	awayFactor := (1-marketAnchorWeight)*awayBase + marketAnchorWeight*awayMarketFactor
	g.adjustments = append(g.adjustments, "market_anchor")

	g.homeTDProb = config.BaseDriveTDProb * clamp(homeFactor, 0, 1.5)
	g.homeFGProb = config.BaseDriveFGProb * clamp(homeFactor, 0, 1.3)
	g.awayTDProb = config.BaseDriveTDProb * clamp(awayFactor, 0, 1.5)
	g.awayFGProb = config.BaseDriveFGProb * clamp(awayFactor, 0, 1.3)

	if event.Weather != nil {
		mult := weatherMultiplier(event.Weather)
		if mult < 1.0 {
			g.homeTDProb *= mult
			g.homeFGProb *= mult
			g.awayTDProb *= mult
			g.awayFGProb *= mult
			g.adjustments = append(g.adjustments, "weather")
		}
	}

	return g
}

// weatherMultiplier stacks scoring reductions, capped at a 30% cut:
// wind over 15mph -10%, over 25mph a further -10%; precipitation chance
// over 50% -8%; temperature under 32F -5%, under 20F a further -7%
func weatherMultiplier(w *models.WeatherContext) float64 {
	reduction := 0.0
	if w.WindMPH > 15 {
		reduction += 0.10
	}
	if w.WindMPH > 25 {
		reduction += 0.10
	}
	if w.PrecipChance > 50 {
		reduction += 0.08
	}
	if w.TemperatureF < 32 {
		reduction += 0.05
	}
	if w.TemperatureF < 20 {
		reduction += 0.07
	}
	if reduction > 0.30 {
		reduction = 0.30
	}
	return 1.0 - reduction
}

func (g *driveGenerator) SimulateGame(rng *rand.Rand) (home, away float64) {
	for i := 0; i < g.drives; i++ {
		home += driveOutcome(rng, g.homeTDProb, g.homeFGProb)
		away += driveOutcome(rng, g.awayTDProb, g.awayFGProb)
	}
	return home, away
}

func driveOutcome(rng *rand.Rand, tdProb, fgProb float64) float64 {
	u := rng.Float64()
	switch {
	case u < tdProb:
		return 7
	case u < tdProb+fgProb:
		return 3
	default:
		return 0
	}
}

func (g *driveGenerator) Adjustments() []string {
	return g.adjustments
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
