package parlay

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// ProfileRules is the rule set one profile constructs under
type ProfileRules struct {
	MinParlayWeight float64 `yaml:"min_parlay_weight"`
	MinEdges        int     `yaml:"min_edges"`
	MinPicks        int     `yaml:"min_picks"`
	AllowLean       bool    `yaml:"allow_lean"`
	MaxHighVolLegs  int     `yaml:"max_high_vol_legs"`
	MaxSameEvent    int     `yaml:"max_same_event"`
}

// Profiles maps profile names to rules
type Profiles map[models.ParlayProfile]ProfileRules

// DefaultProfiles returns the embedded rule sets
func DefaultProfiles() Profiles {
	return Profiles{
		models.ProfilePremium: {
			MinParlayWeight: 6.0,
			MinEdges:        2,
			MinPicks:        0,
			AllowLean:       false,
			MaxHighVolLegs:  1,
			MaxSameEvent:    1,
		},
		models.ProfileBalanced: {
			MinParlayWeight: 4.0,
			MinEdges:        1,
			MinPicks:        1,
			AllowLean:       true,
			MaxHighVolLegs:  2,
			MaxSameEvent:    1,
		},
		models.ProfileSpeculative: {
			MinParlayWeight: 2.5,
			MinEdges:        0,
			MinPicks:        0,
			AllowLean:       true,
			MaxHighVolLegs:  3,
			MaxSameEvent:    2,
		},
	}
}

// LoadProfiles overlays the YAML file at path onto the defaults
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parlay config: %w", err)
	}

	var overlay map[models.ParlayProfile]ProfileRules
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse parlay config: %w", err)
	}
	for name, rules := range overlay {
		profiles[name] = rules
	}

	return profiles, nil
}

// strongLeanShare is the fraction of the edge threshold at which a LEAN
// upgrades to the PICK tier
const strongLeanShare = 0.75

// tierFor derives a candidate leg's tier from its classification and edge
// magnitude relative to the sport threshold
func tierFor(d *models.MarketDecision, cfg config.LeagueConfig) models.Tier {
	if d.Classification == models.ClassEdge {
		return models.TierEdge
	}

	magnitude, threshold := edgeMagnitude(d, cfg)
	if threshold > 0 && magnitude >= strongLeanShare*threshold {
		return models.TierPick
	}
	return models.TierLean
}

// legWeight scores one leg: a tier base scaled up by how far the edge
// clears the sport threshold
func legWeight(d *models.MarketDecision, tier models.Tier, cfg config.LeagueConfig) float64 {
	base := map[models.Tier]float64{
		models.TierEdge: 3.0,
		models.TierPick: 2.0,
		models.TierLean: 1.0,
	}[tier]

	magnitude, threshold := edgeMagnitude(d, cfg)
	if threshold <= 0 {
		return base
	}
	ratio := math.Min(magnitude/threshold, 2.0)
	return base * (1.0 + 0.5*ratio)
}

func edgeMagnitude(d *models.MarketDecision, cfg config.LeagueConfig) (magnitude, threshold float64) {
	if d.Edge == nil {
		return 0, 0
	}
	if d.Edge.Points != nil {
		return math.Abs(*d.Edge.Points), cfg.EdgeThresholdPoints
	}
	if d.Edge.EV != nil {
		return math.Abs(*d.Edge.EV), cfg.MLEdgeThreshold
	}
	return 0, 0
}
