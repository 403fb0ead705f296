package models

import "time"

// SignalStatus is the lifecycle state of a signal
type SignalStatus string

const (
	SignalNew        SignalStatus = "new"
	SignalDiscovered SignalStatus = "discovered"
	SignalValidated  SignalStatus = "validated"
	SignalPublished  SignalStatus = "published"
	SignalLocked     SignalStatus = "locked"
	SignalUnstable   SignalStatus = "unstable"
	SignalVoided     SignalStatus = "voided"
	SignalSettled    SignalStatus = "settled"
)

// Terminal reports whether no further wave may advance the signal
func (s SignalStatus) Terminal() bool {
	return s == SignalUnstable || s == SignalVoided || s == SignalSettled
}

// SignalIntent describes why a signal pipeline is running
type SignalIntent string

const (
	IntentTruthMode SignalIntent = "TRUTH_MODE"
)

// Entry is the frozen bet terms captured when a signal publishes.
// Once set it is immutable.
type Entry struct {
	SelectionID         string     `json:"selection_id"`
	MarketType          MarketType `json:"market_type"`
	EntryLine           float64    `json:"entry_line"`
	EntryOdds           int        `json:"entry_odds"`
	WorstAcceptableOdds int        `json:"worst_acceptable_odds"`
	LockedAt            time.Time  `json:"locked_at"`
}

// WaveRecord captures what one wave observed and decided
type WaveRecord struct {
	Wave            Wave           `json:"wave"`
	ObservedAt      time.Time      `json:"observed_at"`
	SimRunID        string         `json:"sim_run_id"`
	SelectionID     string         `json:"selection_id"`
	Side            Side           `json:"side"`
	Classification  Classification `json:"classification"`
	EdgePoints      *float64       `json:"edge_points,omitempty"`
	EdgeEV          *float64       `json:"edge_ev,omitempty"`
	DecisionVersion int64          `json:"decision_version"`
}

// EdgeValue returns the wave's edge in the market's native unit
func (w WaveRecord) EdgeValue() float64 {
	if w.EdgePoints != nil {
		return *w.EdgePoints
	}
	if w.EdgeEV != nil {
		return *w.EdgeEV
	}
	return 0
}

// Signal tracks one (event, market) pick through the three-wave pipeline
type Signal struct {
	SignalID  string       `json:"signal_id"`
	EventID   string       `json:"event_id"`
	Sport     League       `json:"sport"`
	TeamA     string       `json:"team_a"`
	TeamB     string       `json:"team_b"`
	StartTime time.Time    `json:"start_time"`
	Intent    SignalIntent `json:"intent"`
	Market    MarketType   `json:"market_type"`

	Status SignalStatus `json:"status"`
	Waves  []WaveRecord `json:"waves"`
	Entry  *Entry       `json:"entry,omitempty"`

	PickID    string    `json:"pick_id,omitempty"` // set when published
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WaveResult returns the stored record for a wave, if that wave already ran
func (s *Signal) WaveResult(w Wave) *WaveRecord {
	for i := range s.Waves {
		if s.Waves[i].Wave == w {
			return &s.Waves[i]
		}
	}
	return nil
}
