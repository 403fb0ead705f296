package models

import (
	"math"
	"time"
)

// Histogram is a coarse fixed-width empirical distribution over margins or
// totals. Bin width of 0.5 points is enough to price spread cover and
// over/under probabilities against any posted line.
type Histogram struct {
	Min      float64 `json:"min"`
	BinWidth float64 `json:"bin_width"`
	Counts   []int64 `json:"counts"`
	Total    int64   `json:"total"`
}

// NewHistogram creates a histogram covering [min, min+width*bins)
func NewHistogram(min, binWidth float64, bins int) *Histogram {
	return &Histogram{
		Min:      min,
		BinWidth: binWidth,
		Counts:   make([]int64, bins),
	}
}

// Add records one sample, clamping outliers into the edge bins
func (h *Histogram) Add(v float64) {
	idx := int(math.Floor((v - h.Min) / h.BinWidth))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(h.Counts) {
		idx = len(h.Counts) - 1
	}
	h.Counts[idx]++
	h.Total++
}

// ProbAbove returns P(X > x) from the empirical distribution.
// The bin containing x contributes a linearly interpolated share.
func (h *Histogram) ProbAbove(x float64) float64 {
	if h.Total == 0 {
		return 0
	}
	idx := int(math.Floor((x - h.Min) / h.BinWidth))
	if idx < 0 {
		return 1
	}
	if idx >= len(h.Counts) {
		return 0
	}
	var above int64
	for i := idx + 1; i < len(h.Counts); i++ {
		above += h.Counts[i]
	}
	// Interpolate within the boundary bin
	binLow := h.Min + float64(idx)*h.BinWidth
	frac := 1.0 - (x-binLow)/h.BinWidth
	partial := frac * float64(h.Counts[idx])
	return (float64(above) + partial) / float64(h.Total)
}

// ProbBelow returns P(X < x)
func (h *Histogram) ProbBelow(x float64) float64 {
	return 1.0 - h.ProbAbove(x)
}

// Mean returns the bin-midpoint weighted mean
func (h *Histogram) Mean() float64 {
	if h.Total == 0 {
		return 0
	}
	var sum float64
	for i, c := range h.Counts {
		mid := h.Min + (float64(i)+0.5)*h.BinWidth
		sum += mid * float64(c)
	}
	return sum / float64(h.Total)
}

// SimConfigRef identifies the configuration a run was produced under
type SimConfigRef struct {
	ModelVersion      string   `json:"model_version"`
	ConfigVersion     string   `json:"config_version"`
	CompressionFactor float64  `json:"compression_factor"`
	RegimeAdjustments []string `json:"regime_adjustments,omitempty"`
}

// SimulationRun is the immutable aggregate of one Monte Carlo run.
// Raw per-iteration samples are not retained; the histograms carry the
// empirical distributions needed downstream.
type SimulationRun struct {
	SimRunID       string       `json:"sim_run_id"`
	EventID        string       `json:"event_id"`
	League         League       `json:"league"`
	Wave           Wave         `json:"wave"`
	Iterations     int          `json:"iterations"`
	Seed           uint64       `json:"seed"`
	Config         SimConfigRef `json:"config"`
	HomeWinProb    float64      `json:"home_win_prob"`
	MeanMargin     float64      `json:"mean_margin"` // home minus away
	MarginVariance float64      `json:"margin_variance"`
	MeanTotal      float64      `json:"mean_total"`
	TotalVariance  float64      `json:"total_variance"`
	MarginHist     *Histogram   `json:"margin_hist"`
	TotalHist      *Histogram   `json:"total_hist"`
	Converged      bool         `json:"converged"`
	TimedOut       bool         `json:"timed_out"`
	ComputedAt     time.Time    `json:"computed_at"`
}

// Stats returns the scalar statistics block used for input hashing.
// Histograms are excluded: they are derived from the same samples and
// would only bloat the canonical payload.
func (r *SimulationRun) Stats() map[string]interface{} {
	return map[string]interface{}{
		"sim_run_id":      r.SimRunID,
		"iterations":      r.Iterations,
		"seed":            r.Seed,
		"home_win_prob":   r.HomeWinProb,
		"mean_margin":     r.MeanMargin,
		"margin_variance": r.MarginVariance,
		"mean_total":      r.MeanTotal,
		"total_variance":  r.TotalVariance,
		"converged":       r.Converged,
		"model_version":   r.Config.ModelVersion,
		"config_version":  r.Config.ConfigVersion,
	}
}
