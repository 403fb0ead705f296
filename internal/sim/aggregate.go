package sim

import (
	"math"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// histogram bounds per league family. Bins are 0.5 points wide, enough to
// price any posted half-point line.
func histogramBounds(league models.League) (marginMin, marginMax, totalMin, totalMax float64) {
	switch league {
	case models.LeagueNBA, models.LeagueNCAAB:
		return -60, 60, 120, 320
	case models.LeagueNFL, models.LeagueNCAAF:
		return -60, 60, 0, 110
	case models.LeagueMLB:
		return -15, 15, 0, 30
	case models.LeagueNHL:
		return -10, 10, 0, 20
	default:
		return -60, 60, 0, 320
	}
}

// aggregator folds per-iteration scores into the run statistics.
// Raw samples are not retained.
type aggregator struct {
	n          int
	homeWins   float64
	ties       float64
	sumHome    float64
	sumAway    float64
	sumMargin  float64
	sumMargin2 float64
	sumTotal   float64
	sumTotal2  float64
	marginHist *models.Histogram
	totalHist  *models.Histogram
}

func newAggregator(league models.League, iterations int) *aggregator {
	marginMin, marginMax, totalMin, totalMax := histogramBounds(league)
	const binWidth = 0.5
	return &aggregator{
		marginHist: models.NewHistogram(marginMin, binWidth, int((marginMax-marginMin)/binWidth)),
		totalHist:  models.NewHistogram(totalMin, binWidth, int((totalMax-totalMin)/binWidth)),
	}
}

func (a *aggregator) add(home, away float64) {
	margin := home - away
	total := home + away

	a.n++
	a.sumHome += home
	a.sumAway += away
	a.sumMargin += margin
	a.sumMargin2 += margin * margin
	a.sumTotal += total
	a.sumTotal2 += total * total

	if margin > 0 {
		a.homeWins++
	} else if margin == 0 {
		a.ties++
	}

	a.marginHist.Add(margin)
	a.totalHist.Add(total)
}

func (a *aggregator) meanMargin() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sumMargin / float64(a.n)
}

func (a *aggregator) meanTotal() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sumTotal / float64(a.n)
}

// finish writes the aggregate statistics onto the run, applying mean
// reversion to the aggregated team scores when empirical scoring drifted
// from the league mean. Reversion shifts the aggregates and histograms by a
// constant, never the per-iteration samples.
func (a *aggregator) finish(run *models.SimulationRun, cfg config.LeagueConfig) {
	n := float64(a.n)
	if a.n == 0 {
		run.MarginHist = a.marginHist
		run.TotalHist = a.totalHist
		return
	}

	meanHome := a.sumHome / n
	meanAway := a.sumAway / n

	homeShift := reversionShift(meanHome, cfg)
	awayShift := reversionShift(meanAway, cfg)

	if homeShift != 0 || awayShift != 0 {
		run.Config.RegimeAdjustments = append(run.Config.RegimeAdjustments, "mean_reversion")
	}

	marginShift := homeShift - awayShift
	totalShift := homeShift + awayShift

	run.MeanMargin = a.meanMargin() + marginShift
	run.MeanTotal = a.meanTotal() + totalShift
	run.MarginVariance = a.sumMargin2/n - a.meanMargin()*a.meanMargin()
	run.TotalVariance = a.sumTotal2/n - a.meanTotal()*a.meanTotal()

	// A constant shift relocates the histogram without resampling
	a.marginHist.Min += marginShift
	a.totalHist.Min += totalShift
	run.MarginHist = a.marginHist
	run.TotalHist = a.totalHist

	// Ties split evenly for win probability; margin histograms carry the
	// full tie mass for cover pricing
	run.HomeWinProb = (a.homeWins + a.ties/2.0) / n
}

// reversionShift pulls an aggregated team score toward the league mean with
// strength min(0.25, deviation/20)
func reversionShift(teamMean float64, cfg config.LeagueConfig) float64 {
	leagueMean := cfg.Sim.LeagueMeanScore()
	deviation := math.Abs(teamMean - leagueMean)
	if deviation <= cfg.Sim.ReversionThreshold {
		return 0
	}
	strength := math.Min(0.25, deviation/20.0)
	return (leagueMean - teamMean) * strength
}
