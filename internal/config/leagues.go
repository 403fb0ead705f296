package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// LeagueConfigVersion stamps the threshold set; it participates in the
// decision inputs hash so a threshold change forces new decisions.
const LeagueConfigVersion = "leagues-v3"

// SimStyle selects the simulation strategy for a league
type SimStyle string

const (
	SimStyleDrive    SimStyle = "drive"    // football: per-drive discrete outcomes
	SimStyleGaussian SimStyle = "gaussian" // basketball: CLT applies at 80+ possessions
	SimStylePoisson  SimStyle = "poisson"  // baseball innings / hockey periods
)

// SimParams are the league-tuned generator parameters
type SimParams struct {
	Style SimStyle `yaml:"style" json:"style"`

	// Gaussian leagues
	MeanTeamScore   float64 `yaml:"mean_team_score" json:"mean_team_score"`
	TeamScoreStdDev float64 `yaml:"team_score_std_dev" json:"team_score_std_dev"`

	// Drive leagues
	DrivesPerTeam int `yaml:"drives_per_team" json:"drives_per_team"`

	// Poisson leagues
	Segments    int     `yaml:"segments" json:"segments"`         // innings or periods
	SegmentRate float64 `yaml:"segment_rate" json:"segment_rate"` // per-team scoring rate per segment

	// Mean reversion applies when empirical team scoring drifts from the
	// league mean by more than this many points
	ReversionThreshold float64 `yaml:"reversion_threshold" json:"reversion_threshold"`
}

// Baseline per-drive scoring probabilities for football before strength
// scaling (roughly 60%+ of drives end scoreless)
const (
	BaseDriveTDProb = 0.22
	BaseDriveFGProb = 0.17
)

// LeagueMeanScore returns the expected per-team score under neutral
// conditions for this league's generator
func (p SimParams) LeagueMeanScore() float64 {
	switch p.Style {
	case SimStyleGaussian:
		return p.MeanTeamScore
	case SimStyleDrive:
		return float64(p.DrivesPerTeam) * (BaseDriveTDProb*7.0 + BaseDriveFGProb*3.0)
	case SimStylePoisson:
		return float64(p.Segments) * p.SegmentRate
	default:
		return p.MeanTeamScore
	}
}

// LeagueConfig carries the per-league decision thresholds and sim parameters
type LeagueConfig struct {
	League models.League `yaml:"league" json:"league"`

	EdgeThresholdPoints float64 `yaml:"edge_threshold_points" json:"edge_threshold_points"`
	MLEdgeThreshold     float64 `yaml:"ml_edge_threshold" json:"ml_edge_threshold"`

	StabilityTolerancePoints float64 `yaml:"stability_tolerance_points" json:"stability_tolerance_points"`
	StabilityToleranceEV     float64 `yaml:"stability_tolerance_ev" json:"stability_tolerance_ev"`
	OddsToleranceCents       int     `yaml:"odds_tolerance_cents" json:"odds_tolerance_cents"`

	// HighVolatility marks leagues whose legs count against the parlay
	// max_high_vol_legs cap
	HighVolatility bool `yaml:"high_volatility" json:"high_volatility"`

	Sim SimParams `yaml:"sim" json:"sim"`
}

// Leagues is the full versioned threshold set
type Leagues struct {
	Version string                         `yaml:"version" json:"version"`
	Configs map[models.League]LeagueConfig `yaml:"leagues" json:"leagues"`
}

// Get returns the config for a league
func (l *Leagues) Get(league models.League) (LeagueConfig, error) {
	cfg, ok := l.Configs[league]
	if !ok {
		return LeagueConfig{}, fmt.Errorf("no league config for %s", league)
	}
	return cfg, nil
}

// CanonicalMap flattens one league's config for input hashing
func (c LeagueConfig) CanonicalMap(version string) map[string]interface{} {
	return map[string]interface{}{
		"config_version":             version,
		"league":                     string(c.League),
		"edge_threshold_points":      c.EdgeThresholdPoints,
		"ml_edge_threshold":          c.MLEdgeThreshold,
		"stability_tolerance_points": c.StabilityTolerancePoints,
		"stability_tolerance_ev":     c.StabilityToleranceEV,
		"odds_tolerance_cents":       c.OddsToleranceCents,
		"sim_style":                  string(c.Sim.Style),
	}
}

// DefaultLeagues returns the embedded threshold set
func DefaultLeagues() *Leagues {
	return &Leagues{
		Version: LeagueConfigVersion,
		Configs: map[models.League]LeagueConfig{
			models.LeagueNBA: {
				League:                   models.LeagueNBA,
				EdgeThresholdPoints:      2.0,
				MLEdgeThreshold:          0.04,
				StabilityTolerancePoints: 1.0,
				StabilityToleranceEV:     0.025,
				OddsToleranceCents:       15,
				Sim: SimParams{
					Style:              SimStyleGaussian,
					MeanTeamScore:      113.0,
					TeamScoreStdDev:    12.0,
					ReversionThreshold: 6.0,
				},
			},
			models.LeagueNCAAB: {
				League:                   models.LeagueNCAAB,
				EdgeThresholdPoints:      2.5,
				MLEdgeThreshold:          0.05,
				StabilityTolerancePoints: 1.5,
				StabilityToleranceEV:     0.03,
				OddsToleranceCents:       20,
				HighVolatility:           true,
				Sim: SimParams{
					Style:              SimStyleGaussian,
					MeanTeamScore:      72.5,
					TeamScoreStdDev:    10.5,
					ReversionThreshold: 5.0,
				},
			},
			models.LeagueNFL: {
				League:                   models.LeagueNFL,
				EdgeThresholdPoints:      1.5,
				MLEdgeThreshold:          0.04,
				StabilityTolerancePoints: 1.0,
				StabilityToleranceEV:     0.025,
				OddsToleranceCents:       15,
				Sim: SimParams{
					Style:              SimStyleDrive,
					DrivesPerTeam:      11,
					ReversionThreshold: 4.0,
				},
			},
			models.LeagueNCAAF: {
				League:                   models.LeagueNCAAF,
				EdgeThresholdPoints:      2.5,
				MLEdgeThreshold:          0.05,
				StabilityTolerancePoints: 1.5,
				StabilityToleranceEV:     0.03,
				OddsToleranceCents:       20,
				HighVolatility:           true,
				Sim: SimParams{
					Style:              SimStyleDrive,
					DrivesPerTeam:      12,
					ReversionThreshold: 5.0,
				},
			},
			models.LeagueMLB: {
				League:                   models.LeagueMLB,
				EdgeThresholdPoints:      0.75,
				MLEdgeThreshold:          0.035,
				StabilityTolerancePoints: 0.5,
				StabilityToleranceEV:     0.02,
				OddsToleranceCents:       12,
				Sim: SimParams{
					Style:              SimStylePoisson,
					Segments:           9,
					SegmentRate:        0.51,
					ReversionThreshold: 1.5,
				},
			},
			models.LeagueNHL: {
				League:                   models.LeagueNHL,
				EdgeThresholdPoints:      0.5,
				MLEdgeThreshold:          0.035,
				StabilityTolerancePoints: 0.35,
				StabilityToleranceEV:     0.02,
				OddsToleranceCents:       12,
				Sim: SimParams{
					Style:              SimStylePoisson,
					Segments:           3,
					SegmentRate:        1.02,
					ReversionThreshold: 1.0,
				},
			},
		},
	}
}

// LoadLeagues loads the threshold set, starting from the embedded defaults
// and overlaying the YAML file at path if one is configured
func LoadLeagues(path string) (*Leagues, error) {
	leagues := DefaultLeagues()

	if path == "" {
		return leagues, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read league config: %w", err)
	}

	var overlay Leagues
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse league config: %w", err)
	}

	if overlay.Version != "" {
		leagues.Version = overlay.Version
	}
	for league, cfg := range overlay.Configs {
		if _, err := models.ParseLeague(string(league)); err != nil {
			return nil, fmt.Errorf("league config: %w", err)
		}
		leagues.Configs[league] = cfg
	}

	return leagues, nil
}

// ForbiddenPhrases are hard-blocked from reasons on non-official releases
// and from any rendered copy. Configurable via publisher config; these are
// the defaults.
var ForbiddenPhrases = []string{
	"take the dog",
	"fade the favorite",
	"misprice",
	"lock",
	"guaranteed",
	"can't lose",
}
