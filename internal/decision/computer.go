// Package decision turns one (snapshot, simulation, config) triple into the
// canonical per-market decisions. Edge computation, side selection, spread
// sign interpretation and opposite-team resolution live here and nowhere
// else; consumers render decisions verbatim.
package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/metrics"
	"github.com/XavierBriggs/pythia/pkg/models"
	"github.com/XavierBriggs/pythia/pkg/oddsmath"
)

// alignedBandPoints is the dead zone below which a spread or total decision
// is MARKET_ALIGNED regardless of league thresholds
const alignedBandPoints = 0.5

// alignedBandEV is the moneyline equivalent
const alignedBandEV = 0.01

// Computer produces MarketDecisions
type Computer struct {
	leagues *config.Leagues
	metrics *metrics.Registry
}

// NewComputer creates the decision computer
func NewComputer(leagues *config.Leagues, reg *metrics.Registry) *Computer {
	return &Computer{leagues: leagues, metrics: reg}
}

// ComputeGame produces the full decision triple for one event. All three
// decisions share one inputs hash and one decision version.
func (c *Computer) ComputeGame(event *models.Event, snap *models.MarketSnapshot, run *models.SimulationRun, decisionVersion int64, traceID string) (*models.GameDecisions, error) {
	cfg, err := c.leagues.Get(event.League)
	if err != nil {
		return nil, err
	}

	inputsHash, err := InputsHash(snap, run, cfg, c.leagues.Version, decisionVersion)
	if err != nil {
		return nil, err
	}

	computedAt := time.Now().UTC()
	debug := models.Debug{
		InputsHash:      inputsHash,
		DecisionVersion: decisionVersion,
		TraceID:         traceID,
		ComputedAt:      computedAt,
		OddsTimestamp:   snap.ObservedAt,
		SimRunID:        run.SimRunID,
	}

	spread, err := c.computeSpread(event, snap, run, cfg, debug)
	if err != nil {
		return nil, fmt.Errorf("spread: %w", err)
	}
	moneyline, err := c.computeMoneyline(event, snap, run, cfg, debug)
	if err != nil {
		return nil, fmt.Errorf("moneyline: %w", err)
	}
	total, err := c.computeTotal(event, snap, run, cfg, debug)
	if err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}

	if c.metrics != nil {
		c.metrics.DecisionsComputed.Add(3)
		for _, d := range []*models.MarketDecision{spread, moneyline, total} {
			if d.Classification == models.ClassEdge {
				c.metrics.EdgesDetected.Inc()
			}
		}
	}

	return &models.GameDecisions{
		Spread:    spread,
		Moneyline: moneyline,
		Total:     total,
		Meta: models.GameDecisionsMeta{
			InputsHash:      inputsHash,
			DecisionVersion: decisionVersion,
			ComputedAt:      computedAt,
			League:          event.League,
			EventID:         event.EventID,
		},
	}, nil
}

// computeSpread prices the spread market. Lines are bookmaker-signed from
// the home perspective; the model fair line is the negated mean margin.
// edge = market_line - fair_line: positive means the market asks less of
// the home side than the model does, so home has the value.
func (c *Computer) computeSpread(event *models.Event, snap *models.MarketSnapshot, run *models.SimulationRun, cfg config.LeagueConfig, debug models.Debug) (*models.MarketDecision, error) {
	fairLine := -run.MeanMargin
	edgePoints := snap.SpreadHome - fairLine

	homeSel := SelectionID(event.EventID, models.MarketSpread, models.SideHome, snap.SpreadHome, snap.BookID)
	awaySel := SelectionID(event.EventID, models.MarketSpread, models.SideAway, snap.SpreadAway, snap.BookID)

	// Cover probability against the posted line, normalized so the two
	// sides sum to one
	homeCoverRaw := run.MarginHist.ProbAbove(-snap.SpreadHome)
	awayCoverRaw := 1.0 - homeCoverRaw
	homeCover, awayCover, err := normalizePair(homeCoverRaw, awayCoverRaw)
	if err != nil {
		return nil, err
	}

	impliedHome, impliedAway, err := oddsmath.FairProbabilities(snap.SpreadHomePrice, snap.SpreadAwayPrice)
	if err != nil {
		return nil, fmt.Errorf("spread implied probabilities: %w", err)
	}

	d := &models.MarketDecision{
		League:          event.League,
		EventID:         event.EventID,
		ProviderEventID: event.ProviderMap.OddsAPIEventID,
		MarketType:      models.MarketSpread,
		BookID:          snap.BookID,
		FairLine:        fairLine,
		Debug:           debug,
	}

	classification := classifyPoints(edgePoints, cfg.EdgeThresholdPoints, run.Converged)

	if edgePoints >= 0 {
		d.SelectionID = homeSel
		d.OppositeSelectionID = awaySel
		d.TeamKey = TeamKey(event.League, event.HomeTeamID)
		d.Line = snap.SpreadHome
		d.AmericanOdds = snap.SpreadHomePrice
		d.ModelProb = homeCover
		d.ModelProbOpposite = awayCover
		d.MarketImpliedProb = impliedHome
		d.WinProb = run.HomeWinProb
		d.Pick = &models.Pick{TeamID: event.HomeTeamID, TeamName: event.HomeTeamName, Side: models.SideHome, Line: snap.SpreadHome}
	} else {
		d.SelectionID = awaySel
		d.OppositeSelectionID = homeSel
		d.TeamKey = TeamKey(event.League, event.AwayTeamID)
		d.Line = snap.SpreadAway
		d.AmericanOdds = snap.SpreadAwayPrice
		d.ModelProb = awayCover
		d.ModelProbOpposite = homeCover
		d.MarketImpliedProb = impliedAway
		d.WinProb = 1.0 - run.HomeWinProb
		d.Pick = &models.Pick{TeamID: event.AwayTeamID, TeamName: event.AwayTeamName, Side: models.SideAway, Line: snap.SpreadAway}
	}

	points := roundPoints(edgePoints)
	d.Edge = &models.Edge{Points: &points, Grade: edgeGrade(classification, math.Abs(edgePoints), cfg.EdgeThresholdPoints)}
	d.Classification = classification
	d.ReleaseStatus = provisionalRelease(classification)
	d.Reasons = spreadReasons(d, classification, edgePoints, fairLine, run)

	return d, nil
}

// computeMoneyline prices the moneyline. edge_ev is signed from the home
// perspective: the EV of the home selection at the posted price.
func (c *Computer) computeMoneyline(event *models.Event, snap *models.MarketSnapshot, run *models.SimulationRun, cfg config.LeagueConfig, debug models.Debug) (*models.MarketDecision, error) {
	homeProb := run.HomeWinProb
	awayProb := 1.0 - homeProb

	edgeEV, err := oddsmath.MoneylineEV(boundProb(homeProb), snap.MLHome)
	if err != nil {
		return nil, fmt.Errorf("moneyline EV: %w", err)
	}

	homeSel := SelectionID(event.EventID, models.MarketMoneyline, models.SideHome, 0, snap.BookID)
	awaySel := SelectionID(event.EventID, models.MarketMoneyline, models.SideAway, 0, snap.BookID)

	impliedHome, impliedAway, err := oddsmath.FairProbabilities(snap.MLHome, snap.MLAway)
	if err != nil {
		return nil, fmt.Errorf("moneyline implied probabilities: %w", err)
	}

	d := &models.MarketDecision{
		League:          event.League,
		EventID:         event.EventID,
		ProviderEventID: event.ProviderMap.OddsAPIEventID,
		MarketType:      models.MarketMoneyline,
		BookID:          snap.BookID,
		Debug:           debug,
	}

	classification := classifyEV(edgeEV, cfg.MLEdgeThreshold, run.Converged)

	if edgeEV >= 0 {
		d.SelectionID = homeSel
		d.OppositeSelectionID = awaySel
		d.TeamKey = TeamKey(event.League, event.HomeTeamID)
		d.AmericanOdds = snap.MLHome
		d.ModelProb = homeProb
		d.ModelProbOpposite = awayProb
		d.MarketImpliedProb = impliedHome
		d.WinProb = homeProb
		d.Pick = &models.Pick{TeamID: event.HomeTeamID, TeamName: event.HomeTeamName, Side: models.SideHome}
	} else {
		d.SelectionID = awaySel
		d.OppositeSelectionID = homeSel
		d.TeamKey = TeamKey(event.League, event.AwayTeamID)
		d.AmericanOdds = snap.MLAway
		d.ModelProb = awayProb
		d.ModelProbOpposite = homeProb
		d.MarketImpliedProb = impliedAway
		d.WinProb = awayProb
		d.Pick = &models.Pick{TeamID: event.AwayTeamID, TeamName: event.AwayTeamName, Side: models.SideAway}
	}

	if fairOdds, err := oddsmath.ProbabilityToAmerican(boundProb(d.ModelProb)); err == nil {
		d.FairLine = float64(fairOdds)
	}

	ev := roundEV(edgeEV)
	d.Edge = &models.Edge{EV: &ev, Grade: edgeGrade(classification, math.Abs(edgeEV), cfg.MLEdgeThreshold)}
	d.Classification = classification
	d.ReleaseStatus = provisionalRelease(classification)
	d.Reasons = moneylineReasons(d, classification, edgeEV, run)

	return d, nil
}

// computeTotal prices the total. edge = fair_total - market_total: positive
// means the model expects more scoring than the market, so the over has the
// value.
func (c *Computer) computeTotal(event *models.Event, snap *models.MarketSnapshot, run *models.SimulationRun, cfg config.LeagueConfig, debug models.Debug) (*models.MarketDecision, error) {
	fairTotal := run.MeanTotal
	edgePoints := fairTotal - snap.Total

	overSel := SelectionID(event.EventID, models.MarketTotal, models.SideOver, snap.Total, snap.BookID)
	underSel := SelectionID(event.EventID, models.MarketTotal, models.SideUnder, snap.Total, snap.BookID)

	overRaw := run.TotalHist.ProbAbove(snap.Total)
	underRaw := 1.0 - overRaw
	overProb, underProb, err := normalizePair(overRaw, underRaw)
	if err != nil {
		return nil, err
	}

	impliedOver, impliedUnder, err := oddsmath.FairProbabilities(snap.OverPrice, snap.UnderPrice)
	if err != nil {
		return nil, fmt.Errorf("total implied probabilities: %w", err)
	}

	d := &models.MarketDecision{
		League:          event.League,
		EventID:         event.EventID,
		ProviderEventID: event.ProviderMap.OddsAPIEventID,
		MarketType:      models.MarketTotal,
		BookID:          snap.BookID,
		Line:            snap.Total,
		FairLine:        fairTotal,
		Debug:           debug,
	}

	classification := classifyPoints(edgePoints, cfg.EdgeThresholdPoints, run.Converged)

	if edgePoints >= 0 {
		d.SelectionID = overSel
		d.OppositeSelectionID = underSel
		d.AmericanOdds = snap.OverPrice
		d.ModelProb = overProb
		d.ModelProbOpposite = underProb
		d.MarketImpliedProb = impliedOver
		d.WinProb = overProb
		d.Pick = &models.Pick{Side: models.SideOver, Line: snap.Total}
	} else {
		d.SelectionID = underSel
		d.OppositeSelectionID = overSel
		d.AmericanOdds = snap.UnderPrice
		d.ModelProb = underProb
		d.ModelProbOpposite = overProb
		d.MarketImpliedProb = impliedUnder
		d.WinProb = underProb
		d.Pick = &models.Pick{Side: models.SideUnder, Line: snap.Total}
	}

	points := roundPoints(edgePoints)
	d.Edge = &models.Edge{Points: &points, Grade: edgeGrade(classification, math.Abs(edgePoints), cfg.EdgeThresholdPoints)}
	d.Classification = classification
	d.ReleaseStatus = provisionalRelease(classification)
	d.Reasons = totalReasons(d, classification, edgePoints, fairTotal, run)

	return d, nil
}

func classifyPoints(edge, threshold float64, converged bool) models.Classification {
	if !converged {
		return models.ClassMarketAligned
	}
	abs := math.Abs(edge)
	switch {
	case abs < alignedBandPoints:
		return models.ClassMarketAligned
	case abs < threshold:
		return models.ClassLean
	default:
		return models.ClassEdge
	}
}

func classifyEV(edge, threshold float64, converged bool) models.Classification {
	if !converged {
		return models.ClassMarketAligned
	}
	abs := math.Abs(edge)
	switch {
	case abs < alignedBandEV:
		return models.ClassMarketAligned
	case abs < threshold:
		return models.ClassLean
	default:
		return models.ClassEdge
	}
}

func provisionalRelease(c models.Classification) models.ReleaseStatus {
	if c == models.ClassEdge {
		return models.ReleaseOfficial
	}
	return models.ReleaseInfoOnly
}

func edgeGrade(c models.Classification, magnitude, threshold float64) string {
	switch c {
	case models.ClassEdge:
		if magnitude >= 2*threshold {
			return "A"
		}
		return "B"
	case models.ClassLean:
		return "C"
	default:
		return ""
	}
}

func spreadReasons(d *models.MarketDecision, c models.Classification, edge, fairLine float64, run *models.SimulationRun) []string {
	if !run.Converged {
		return []string{"simulation did not converge; holding at market"}
	}
	switch c {
	case models.ClassEdge:
		return []string{
			fmt.Sprintf("model fair line %.1f vs market %.1f: %.1f-point misprice toward %s", fairLine, d.Line, math.Abs(edge), d.Pick.TeamName),
			fmt.Sprintf("cover probability %.1f%% at the posted number", d.ModelProb*100),
		}
	case models.ClassLean:
		return []string{fmt.Sprintf("model leans %s by %.1f points, below the edge threshold", d.Pick.TeamName, math.Abs(edge))}
	default:
		return []string{fmt.Sprintf("model fair line %.1f is within the aligned band of the market", fairLine)}
	}
}

func moneylineReasons(d *models.MarketDecision, c models.Classification, edgeEV float64, run *models.SimulationRun) []string {
	if !run.Converged {
		return []string{"simulation did not converge; holding at market"}
	}
	switch c {
	case models.ClassEdge:
		return []string{
			fmt.Sprintf("model win probability %.1f%% vs implied %.1f%%: %.1f%% EV misprice", d.ModelProb*100, d.MarketImpliedProb*100, math.Abs(edgeEV)*100),
		}
	case models.ClassLean:
		return []string{fmt.Sprintf("model leans %s at %.1f%% EV, below the edge threshold", d.Pick.TeamName, math.Abs(edgeEV)*100)}
	default:
		return []string{"model win probability is within the aligned band of the implied price"}
	}
}

func totalReasons(d *models.MarketDecision, c models.Classification, edge, fairTotal float64, run *models.SimulationRun) []string {
	if !run.Converged {
		return []string{"simulation did not converge; holding at market"}
	}
	switch c {
	case models.ClassEdge:
		return []string{
			fmt.Sprintf("model total %.1f vs market %.1f: %.1f-point misprice toward the %s", fairTotal, d.Line, math.Abs(edge), d.Pick.Side),
		}
	case models.ClassLean:
		return []string{fmt.Sprintf("model leans %s by %.1f points, below the edge threshold", d.Pick.Side, math.Abs(edge))}
	default:
		return []string{fmt.Sprintf("model total %.1f is within the aligned band of the market", fairTotal)}
	}
}

// normalizePair scales a two-way probability pair to sum to one
func normalizePair(p1, p2 float64) (float64, float64, error) {
	total := p1 + p2
	if total <= 0 {
		return 0, 0, fmt.Errorf("degenerate probability pair: %f, %f", p1, p2)
	}
	return p1 / total, p2 / total, nil
}

func boundProb(p float64) float64 {
	if p < 0.001 {
		return 0.001
	}
	if p > 0.999 {
		return 0.999
	}
	return p
}

func roundPoints(v float64) float64 {
	return math.Round(v*10) / 10
}

func roundEV(v float64) float64 {
	return math.Round(v*10000) / 10000
}
