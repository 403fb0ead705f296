// Package parlay deterministically composes multi-leg selections from the
// pool of integrity-passed decisions. Every attempt, success or failure, is
// appended to the attempt log; the constructor never returns a silent empty
// result.
package parlay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"

	"github.com/XavierBriggs/pythia/internal/audit"
	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/metrics"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// maxCombinations bounds the search; the pool is weight-ordered so the best
// candidates are visited first
const maxCombinations = 20000

// Constructor builds parlays
type Constructor struct {
	stores   *store.Stores
	leagues  *config.Leagues
	profiles Profiles
	auditor  *audit.Service
	metrics  *metrics.Registry
}

// NewConstructor creates the constructor
func NewConstructor(stores *store.Stores, leagues *config.Leagues, profiles Profiles, auditor *audit.Service, reg *metrics.Registry) *Constructor {
	return &Constructor{stores: stores, leagues: leagues, profiles: profiles, auditor: auditor, metrics: reg}
}

// candidate is one pool entry with derived tier and weight
type candidate struct {
	leg      models.ParlayLeg
	decision models.MarketDecision
}

// Construct runs one attempt. The outcome is exactly one of PARLAY or FAIL
// with a documented reason code; either way the attempt is logged.
func (c *Constructor) Construct(ctx context.Context, req *models.ParlayRequest) (*models.ParlayResult, error) {
	pool, err := c.stores.Decisions.LatestEligible(ctx, req.Sports)
	if err != nil {
		return nil, fmt.Errorf("load candidate pool: %w", err)
	}

	result := c.evaluate(pool, req)
	return c.record(ctx, req, result)
}

// evaluate runs the construction against a fixed pool
func (c *Constructor) evaluate(pool []models.MarketDecision, req *models.ParlayRequest) *models.ParlayResult {
	result := &models.ParlayResult{
		AttemptID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Audit: models.ParlayAudit{
			EligibleByTier: make(map[models.Tier]int),
			BlockedCounts:  make(map[string]int),
		},
	}

	rules, ok := c.profiles[req.Profile]
	if !ok {
		c.fail(result, models.FailInvalidProfile, map[string]any{"profile": string(req.Profile)})
		return result
	}
	if req.Legs < 2 || req.Legs > 8 {
		c.fail(result, models.FailInvalidProfile, map[string]any{"legs_requested": req.Legs})
		return result
	}

	candidates, leanBlocked := c.filterPool(pool, rules, result)

	if len(candidates) < req.Legs {
		// A pool starved purely by the lean gate is its own failure mode
		if leanBlocked > 0 && len(candidates)+leanBlocked >= req.Legs {
			c.fail(result, models.FailLeanNotAllowed, map[string]any{
				"eligible_pool_size": len(candidates),
				"lean_blocked":       leanBlocked,
				"legs_requested":     req.Legs,
			})
			return result
		}
		c.fail(result, models.FailInsufficientPool, map[string]any{
			"eligible_pool_size": len(candidates),
			"legs_requested":     req.Legs,
		})
		return result
	}

	// Seeded ordering: shuffle for seed-dependent tie-breaks, then a stable
	// sort by weight so the bounded search visits strong combinations first
	rng := rand.New(rand.NewSource(req.Seed))
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].leg.Weight > candidates[j].leg.Weight
	})

	best, evaluated := c.search(candidates, req, rules)
	result.Audit.Combinations = evaluated

	if best == nil {
		c.fail(result, models.FailConstraintBlocked, map[string]any{
			"eligible_pool_size":   len(candidates),
			"combinations_checked": evaluated,
			"legs_requested":       req.Legs,
		})
		return result
	}

	weight := totalWeight(best)
	floor := rules.MinParlayWeight
	if weight < floor {
		// Bounded fallback ladder: pre-declared relaxations of
		// non-integrity rules only
		best, weight, floor = c.fallbackLadder(candidates, req, rules, result, best, weight)
		if weight < floor {
			c.fail(result, models.FailWeightTooLow, map[string]any{
				"best_weight": weight,
				"min_weight":  floor,
			})
			return result
		}
	}

	result.Status = "PARLAY"
	result.TotalWeight = weight
	for _, cand := range best {
		result.Legs = append(result.Legs, cand.leg)
		if cand.leg.TeamKey == "" {
			result.Audit.MissingTeamKeys = append(result.Audit.MissingTeamKeys, cand.leg.SelectionID)
		}
	}

	return result
}

// filterPool applies the hard gates: integrity pass and model-view pass are
// never relaxed. Returns the candidates and how many legs only the lean
// gate removed.
func (c *Constructor) filterPool(pool []models.MarketDecision, rules ProfileRules, result *models.ParlayResult) ([]candidate, int) {
	var candidates []candidate
	leanBlocked := 0

	for i := range pool {
		d := pool[i]

		if d.ReleaseStatus.Blocked() {
			result.Audit.BlockedCounts["integrity"]++
			continue
		}
		if d.Pick == nil || d.SelectionID == "" {
			result.Audit.BlockedCounts["model_view"]++
			continue
		}
		if d.Classification != models.ClassEdge && d.Classification != models.ClassLean {
			result.Audit.BlockedCounts["no_action"]++
			continue
		}

		cfg, err := c.leagues.Get(d.League)
		if err != nil {
			result.Audit.BlockedCounts["unknown_league"]++
			continue
		}

		tier := tierFor(&d, cfg)
		if tier == models.TierLean && !rules.AllowLean {
			leanBlocked++
			result.Audit.BlockedCounts["lean_not_allowed"]++
			continue
		}

		candidates = append(candidates, candidate{
			leg: models.ParlayLeg{
				SelectionID: d.SelectionID,
				EventID:     d.EventID,
				League:      d.League,
				MarketType:  d.MarketType,
				TeamKey:     d.TeamKey,
				Tier:        tier,
				Weight:      legWeight(&d, tier, cfg),
				HighVol:     cfg.HighVolatility,
			},
			decision: d,
		})
		result.Audit.EligibleByTier[tier]++
	}

	return candidates, leanBlocked
}

// search enumerates leg combinations in weight order under the constraint
// set, bounded by maxCombinations, and returns the max-weight feasible one
func (c *Constructor) search(candidates []candidate, req *models.ParlayRequest, rules ProfileRules) ([]candidate, int) {
	evaluated := 0
	var best []candidate
	bestWeight := -1.0

	var combo []candidate
	var recurse func(start int)
	recurse = func(start int) {
		if evaluated >= maxCombinations {
			return
		}
		if len(combo) == req.Legs {
			evaluated++
			if c.feasible(combo, req, rules) {
				w := totalWeight(combo)
				if w > bestWeight {
					bestWeight = w
					best = append([]candidate(nil), combo...)
				}
			}
			return
		}
		remaining := req.Legs - len(combo)
		for i := start; i <= len(candidates)-remaining; i++ {
			combo = append(combo, candidates[i])
			recurse(i + 1)
			combo = combo[:len(combo)-1]
			if evaluated >= maxCombinations {
				return
			}
		}
	}
	recurse(0)

	return best, evaluated
}

// feasible checks one combination against the profile constraints
func (c *Constructor) feasible(combo []candidate, req *models.ParlayRequest, rules ProfileRules) bool {
	edges, picks, highVol := 0, 0, 0
	perEvent := make(map[string]int)
	teamKeys := make(map[string]bool)

	for _, cand := range combo {
		switch cand.leg.Tier {
		case models.TierEdge:
			edges++
		case models.TierPick:
			picks++
		}
		if cand.leg.HighVol {
			highVol++
		}
		perEvent[cand.leg.EventID]++
		if perEvent[cand.leg.EventID] > rules.MaxSameEvent {
			return false
		}
		if highVol > rules.MaxHighVolLegs {
			return false
		}
		if !req.AllowSameTeam && cand.leg.TeamKey != "" {
			// A missing team key is flagged in audit, never blocking
			if teamKeys[cand.leg.TeamKey] {
				return false
			}
			teamKeys[cand.leg.TeamKey] = true
		}
	}

	return edges >= rules.MinEdges && picks+edges >= rules.MinPicks+rules.MinEdges
}

// fallbackLadder relaxes pre-declared non-integrity rules step by step
// until the weight floor is met or the ladder is exhausted. DI/MV gates are
// never relaxed.
func (c *Constructor) fallbackLadder(candidates []candidate, req *models.ParlayRequest, rules ProfileRules, result *models.ParlayResult, best []candidate, bestWeight float64) ([]candidate, float64, float64) {
	steps := []struct {
		name  string
		relax func(r ProfileRules) ProfileRules
	}{
		{"relax_tier_minimums", func(r ProfileRules) ProfileRules {
			if r.MinEdges > 0 {
				r.MinEdges--
			}
			return r
		}},
		{"relax_high_vol_cap", func(r ProfileRules) ProfileRules {
			r.MaxHighVolLegs++
			return r
		}},
		{"lower_weight_floor", func(r ProfileRules) ProfileRules {
			r.MinParlayWeight *= 0.85
			return r
		}},
	}

	relaxed := rules
	for _, step := range steps {
		relaxed = step.relax(relaxed)
		result.Audit.LadderSteps = append(result.Audit.LadderSteps, step.name)

		candidateSet, _ := c.search(candidates, req, relaxed)
		if candidateSet != nil {
			w := totalWeight(candidateSet)
			if w > bestWeight {
				best, bestWeight = candidateSet, w
			}
		}
		if bestWeight >= relaxed.MinParlayWeight {
			return best, bestWeight, relaxed.MinParlayWeight
		}
	}

	return best, bestWeight, relaxed.MinParlayWeight
}

func (c *Constructor) fail(result *models.ParlayResult, reason models.ParlayFailReason, detail map[string]any) {
	result.Status = "FAIL"
	result.ReasonCode = reason
	result.ReasonDetail = detail
}

// record appends the attempt log row and audit entry
func (c *Constructor) record(ctx context.Context, req *models.ParlayRequest, result *models.ParlayResult) (*models.ParlayResult, error) {
	if c.metrics != nil {
		c.metrics.ParlayAttempts.Inc()
	}
	if err := c.stores.Parlay.AppendAttempt(ctx, store.CallerParlayConstructor, req, result); err != nil {
		return nil, fmt.Errorf("append parlay attempt: %w", err)
	}
	if c.auditor != nil {
		c.auditor.RecordParlayAttempt(ctx, result)
	}
	return result, nil
}

func totalWeight(combo []candidate) float64 {
	var w float64
	for _, cand := range combo {
		w += cand.leg.Weight
	}
	return w
}
