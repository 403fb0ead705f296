package oddsmath

import "fmt"

// MoneylineEV computes the expected value of a moneyline bet per unit staked
// EV = model_prob · decimal_odds − 1
//
// Example:
// Model probability: 55% | Offered: +100 (decimal 2.00)
// EV = 0.55 · 2.00 − 1 = +0.10 (10% edge)
func MoneylineEV(modelProb float64, americanOdds int) (float64, error) {
	if modelProb <= 0 || modelProb >= 1 {
		return 0, fmt.Errorf("model probability must be between 0 and 1")
	}

	decimal, err := AmericanToDecimal(americanOdds)
	if err != nil {
		return 0, err
	}

	return modelProb*decimal - 1.0, nil
}

// CLVCents computes closing line value in cents per dollar of implied
// probability: the gap between the closing price and the entry price.
// Positive CLV means the market moved toward the pick after entry.
func CLVCents(entryOdds, closingOdds int) (float64, error) {
	entryDecimal, err := AmericanToDecimal(entryOdds)
	if err != nil {
		return 0, fmt.Errorf("entry odds: %w", err)
	}

	closeDecimal, err := AmericanToDecimal(closingOdds)
	if err != nil {
		return 0, fmt.Errorf("closing odds: %w", err)
	}

	entryProb := 1.0 / entryDecimal
	closeProb := 1.0 / closeDecimal

	return (closeProb - entryProb) * 100.0, nil
}
