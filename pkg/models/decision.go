package models

import "time"

// MarketType identifies one of the three per-game markets
type MarketType string

const (
	MarketSpread    MarketType = "spread"
	MarketMoneyline MarketType = "moneyline"
	MarketTotal     MarketType = "total"
)

// AllMarkets lists the markets computed for every game
var AllMarkets = []MarketType{MarketSpread, MarketMoneyline, MarketTotal}

// Side identifies one side of a two-way market
type Side string

const (
	SideHome  Side = "home"
	SideAway  Side = "away"
	SideOver  Side = "over"
	SideUnder Side = "under"
)

// Classification grades the strength of a decision
type Classification string

const (
	ClassEdge          Classification = "EDGE"
	ClassLean          Classification = "LEAN"
	ClassMarketAligned Classification = "MARKET_ALIGNED"
	ClassNoAction      Classification = "NO_ACTION"
)

// ReleaseStatus controls how a decision may be surfaced
type ReleaseStatus string

const (
	ReleaseOfficial           ReleaseStatus = "OFFICIAL"
	ReleaseInfoOnly           ReleaseStatus = "INFO_ONLY"
	ReleaseBlockedByRisk      ReleaseStatus = "BLOCKED_BY_RISK"
	ReleaseBlockedByIntegrity ReleaseStatus = "BLOCKED_BY_INTEGRITY"
)

// Blocked reports whether the status is one of the blocked states
func (s ReleaseStatus) Blocked() bool {
	return s == ReleaseBlockedByRisk || s == ReleaseBlockedByIntegrity
}

// Pick is the selected side of a market. The pick's team and line are the
// only source of truth for rendering; consumers never recompute them.
type Pick struct {
	TeamID   string  `json:"team_id,omitempty"`
	TeamName string  `json:"team_name,omitempty"`
	Side     Side    `json:"side"`
	Line     float64 `json:"line"`
}

// Edge carries the signed edge in the unit native to the market
type Edge struct {
	Points *float64 `json:"points,omitempty"` // spread/total
	EV     *float64 `json:"ev,omitempty"`     // moneyline
	Grade  string   `json:"grade"`
}

// Debug is the provenance block stamped on every decision
type Debug struct {
	InputsHash      string    `json:"inputs_hash"`
	DecisionVersion int64     `json:"decision_version"`
	TraceID         string    `json:"trace_id"`
	ComputedAt      time.Time `json:"computed_at"`
	OddsTimestamp   time.Time `json:"odds_timestamp"`
	SimRunID        string    `json:"sim_run_id"`
}

// MarketDecision is the canonical per-(event, market) decision object.
// All fields are populated by the backend; consumers render verbatim.
type MarketDecision struct {
	League          League     `json:"league"`
	EventID         string     `json:"event_id"`
	ProviderEventID string     `json:"provider_event_id,omitempty"`
	MarketType      MarketType `json:"market_type"`

	SelectionID         string `json:"selection_id"`
	OppositeSelectionID string `json:"opposite_selection_id"`
	TeamKey             string `json:"team_key,omitempty"`
	BookID              string `json:"book_id"`

	Pick *Pick `json:"pick"`

	Line         float64 `json:"line"`
	AmericanOdds int     `json:"american_odds"`

	FairLine float64 `json:"fair_line"`
	WinProb  float64 `json:"win_prob"`

	ModelProb         float64 `json:"model_prob"`
	ModelProbOpposite float64 `json:"model_prob_opposite"`
	MarketImpliedProb float64 `json:"market_implied_prob"`

	Edge *Edge `json:"edge"`

	Classification Classification `json:"classification"`
	ReleaseStatus  ReleaseStatus  `json:"release_status"`

	Reasons           []string `json:"reasons"`
	ValidatorFailures []string `json:"validator_failures,omitempty"`

	Debug Debug `json:"debug"`
}

// GameDecisionsMeta stamps a served triple with its shared provenance
type GameDecisionsMeta struct {
	InputsHash      string    `json:"inputs_hash"`
	DecisionVersion int64     `json:"decision_version"`
	ComputedAt      time.Time `json:"computed_at"`
	League          League    `json:"league"`
	EventID         string    `json:"event_id"`
}

// GameDecisions is the single payload served to the UI. Every non-nil
// child's debug.inputs_hash equals meta.inputs_hash; there is no partial
// refresh.
type GameDecisions struct {
	Spread    *MarketDecision   `json:"spread"`
	Moneyline *MarketDecision   `json:"moneyline"`
	Total     *MarketDecision   `json:"total"`
	Meta      GameDecisionsMeta `json:"meta"`
}

// Children returns the non-nil market decisions
func (g *GameDecisions) Children() []*MarketDecision {
	out := make([]*MarketDecision, 0, 3)
	for _, d := range []*MarketDecision{g.Spread, g.Moneyline, g.Total} {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}
