package models

import "time"

// Wave labels the scheduled evaluation points in an event's lead-up
type Wave string

const (
	WavePoll       Wave = "poll"       // background odds polling
	WaveDiscovery  Wave = "discovery"  // ~T-6h
	WaveValidation Wave = "validation" // ~T-120m
	WavePublish    Wave = "publish"    // ~T-60m
)

// MarketSnapshot is one immutable odds observation for an event.
// Spread lines are bookmaker-signed from the home perspective
// (home favored by 5.5 -> SpreadHome = -5.5, SpreadAway = +5.5).
type MarketSnapshot struct {
	EventID         string    `json:"event_id"`
	Wave            Wave      `json:"wave"`
	ObservedAt      time.Time `json:"observed_at"`
	BookID          string    `json:"book_id"`
	SpreadHome      float64   `json:"spread_home"`
	SpreadAway      float64   `json:"spread_away"`
	SpreadHomePrice int       `json:"spread_home_price"`
	SpreadAwayPrice int       `json:"spread_away_price"`
	Total           float64   `json:"total"`
	OverPrice       int       `json:"over_price"`
	UnderPrice      int       `json:"under_price"`
	MLHome          int       `json:"ml_home"`
	MLAway          int       `json:"ml_away"`
}
