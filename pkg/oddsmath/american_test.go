package oddsmath

import (
	"math"
	"testing"
)

func TestAmericanToDecimal(t *testing.T) {
	tests := []struct {
		name       string
		american   int
		want       float64
		shouldFail bool
	}{
		{name: "Even money +100", american: 100, want: 2.00},
		{name: "Favorite -110", american: -110, want: 1.909},
		{name: "Big favorite -200", american: -200, want: 1.50},
		{name: "Underdog +150", american: 150, want: 2.50},
		{name: "Zero odds invalid", american: 0, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decimal, err := AmericanToDecimal(tt.american)

			if tt.shouldFail {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(decimal-tt.want) > 0.001 {
				t.Errorf("decimal = %f, want %f", decimal, tt.want)
			}
		})
	}
}

func TestDecimalToAmerican(t *testing.T) {
	tests := []struct {
		name       string
		decimal    float64
		want       int
		shouldFail bool
	}{
		{name: "Decimal 2.50 to +150", decimal: 2.50, want: 150},
		{name: "Decimal 1.50 to -200", decimal: 1.50, want: -200},
		{name: "Decimal 2.00 to +100", decimal: 2.00, want: 100},
		{name: "Decimal below 1.0 invalid", decimal: 0.9, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			american, err := DecimalToAmerican(tt.decimal)

			if tt.shouldFail {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if american != tt.want {
				t.Errorf("american = %d, want %d", american, tt.want)
			}
		})
	}
}

func TestAmericanToImpliedProbability(t *testing.T) {
	prob, err := AmericanToImpliedProbability(-110)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(prob-0.5238) > 0.001 {
		t.Errorf("implied probability = %f, want 0.5238", prob)
	}
}

func TestProbabilityToAmericanRoundTrip(t *testing.T) {
	for _, prob := range []float64{0.25, 0.45, 0.55, 0.75} {
		american, err := ProbabilityToAmerican(prob)
		if err != nil {
			t.Fatalf("prob %f: %v", prob, err)
		}
		back, err := AmericanToImpliedProbability(american)
		if err != nil {
			t.Fatalf("odds %d: %v", american, err)
		}
		if math.Abs(back-prob) > 0.01 {
			t.Errorf("round trip %f -> %d -> %f drifted", prob, american, back)
		}
	}
}

func TestShiftAmerican(t *testing.T) {
	tests := []struct {
		name     string
		american int
		cents    int
		want     int
	}{
		{name: "Favorite worsens", american: -110, cents: 15, want: -125},
		{name: "Underdog worsens", american: 150, cents: 15, want: 135},
		{name: "Crosses the 100 boundary", american: 105, cents: 15, want: -110},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShiftAmerican(tt.american, tt.cents)
			if got != tt.want {
				t.Errorf("ShiftAmerican(%d, %d) = %d, want %d", tt.american, tt.cents, got, tt.want)
			}
		})
	}
}
