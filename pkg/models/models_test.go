package models

import (
	"math"
	"testing"
)

func TestHistogramProbAbove(t *testing.T) {
	h := NewHistogram(-10, 0.5, 40)
	for _, v := range []float64{-5, -2, 0, 1, 3, 3, 4, 7} {
		h.Add(v)
	}

	if h.Total != 8 {
		t.Fatalf("total = %d, want 8", h.Total)
	}

	// 4 of 8 samples are strictly above 2.5
	got := h.ProbAbove(2.5)
	if math.Abs(got-0.5) > 0.001 {
		t.Errorf("ProbAbove(2.5) = %f, want 0.5", got)
	}

	if got := h.ProbAbove(-100); got != 1.0 {
		t.Errorf("ProbAbove below range = %f, want 1", got)
	}
	if got := h.ProbAbove(100); got != 0.0 {
		t.Errorf("ProbAbove above range = %f, want 0", got)
	}

	if above, below := h.ProbAbove(1.7), h.ProbBelow(1.7); math.Abs(above+below-1.0) > 1e-9 {
		t.Errorf("ProbAbove + ProbBelow = %f, want 1", above+below)
	}
}

func TestHistogramClampsOutliers(t *testing.T) {
	h := NewHistogram(0, 0.5, 10)
	h.Add(-50)
	h.Add(500)

	if h.Counts[0] != 1 || h.Counts[len(h.Counts)-1] != 1 {
		t.Errorf("outliers should land in edge bins: %v", h.Counts)
	}
}

func TestGradingIdempotencyKey(t *testing.T) {
	key1 := GradingIdempotencyKey("pick_1", "oddsapi", "settle-v1", "clv-v1")
	key2 := GradingIdempotencyKey("pick_1", "oddsapi", "settle-v1", "clv-v1")
	if key1 != key2 {
		t.Error("same inputs must produce the same idempotency key")
	}

	key3 := GradingIdempotencyKey("pick_1", "oddsapi", "settle-v2", "clv-v1")
	if key1 == key3 {
		t.Error("a rules version change must change the key")
	}
}

func TestParseLeague(t *testing.T) {
	if league, err := ParseLeague("nba"); err != nil || league != LeagueNBA {
		t.Errorf("ParseLeague(nba) = %v, %v", league, err)
	}
	if _, err := ParseLeague("cricket"); err == nil {
		t.Error("unknown league should error")
	}
}

func TestSignalStatusTerminal(t *testing.T) {
	for _, status := range []SignalStatus{SignalUnstable, SignalVoided, SignalSettled} {
		if !status.Terminal() {
			t.Errorf("%s should be terminal", status)
		}
	}
	for _, status := range []SignalStatus{SignalNew, SignalDiscovered, SignalValidated, SignalPublished, SignalLocked} {
		if status.Terminal() {
			t.Errorf("%s should not be terminal", status)
		}
	}
}

func TestGameDecisionsChildren(t *testing.T) {
	gd := &GameDecisions{Spread: &MarketDecision{}, Total: &MarketDecision{}}
	if got := len(gd.Children()); got != 2 {
		t.Errorf("Children() = %d, want 2", got)
	}
}
