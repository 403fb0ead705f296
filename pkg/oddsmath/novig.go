package oddsmath

import "fmt"

// RemoveVig strips the bookmaker margin from a two-way market using
// equal-margin normalization.
//
// Formula:
// 1. Convert both sides to implied probabilities
// 2. Calculate overround: totalProb = prob1 + prob2 (typically > 1.0)
// 3. Normalize: fair1 = prob1 / totalProb, fair2 = prob2 / totalProb
//
// Example:
// Side A: -110 (52.38% implied) | Side B: -110 (52.38% implied)
// Overround: 104.76% | Fair: 50% / 50%
//
// Unlike a sharp-consensus pipeline, a market with no overround is accepted
// here: the decision computer must always produce an implied probability.
func RemoveVig(prob1, prob2 float64) (fair1, fair2 float64, err error) {
	if prob1 <= 0 || prob1 >= 1 || prob2 <= 0 || prob2 >= 1 {
		return 0, 0, fmt.Errorf("probabilities must be between 0 and 1")
	}

	totalProb := prob1 + prob2
	fair1 = prob1 / totalProb
	fair2 = prob2 / totalProb

	return fair1, fair2, nil
}

// FairProbabilities converts a two-way market quoted in American odds
// straight to vig-free probabilities
func FairProbabilities(odds1, odds2 int) (fair1, fair2 float64, err error) {
	prob1, err := AmericanToImpliedProbability(odds1)
	if err != nil {
		return 0, 0, fmt.Errorf("side 1: %w", err)
	}

	prob2, err := AmericanToImpliedProbability(odds2)
	if err != nil {
		return 0, 0, fmt.Errorf("side 2: %w", err)
	}

	return RemoveVig(prob1, prob2)
}

// VigPercentage returns the overround of a two-way market in percent
func VigPercentage(prob1, prob2 float64) float64 {
	total := prob1 + prob2
	if total <= 1.0 {
		return 0
	}
	return (total - 1.0) * 100.0
}
