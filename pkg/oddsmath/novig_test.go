package oddsmath

import (
	"math"
	"testing"
)

func TestRemoveVig(t *testing.T) {
	tests := []struct {
		name       string
		prob1      float64
		prob2      float64
		wantFair1  float64
		wantFair2  float64
		shouldFail bool
	}{
		{
			name:      "Standard -110/-110 (4.76% vig)",
			prob1:     0.5238,
			prob2:     0.5238,
			wantFair1: 0.50,
			wantFair2: 0.50,
		},
		{
			name:      "Asymmetric -120/-110",
			prob1:     0.5455,
			prob2:     0.5238,
			wantFair1: 0.5099,
			wantFair2: 0.4901,
		},
		{
			name:      "Heavy favorite -200/+170",
			prob1:     0.6667,
			prob2:     0.3704,
			wantFair1: 0.6429,
			wantFair2: 0.3571,
		},
		{
			name:      "Vig-free market is accepted",
			prob1:     0.50,
			prob2:     0.50,
			wantFair1: 0.50,
			wantFair2: 0.50,
		},
		{
			name:       "Invalid probability > 1",
			prob1:      1.5,
			prob2:      0.5,
			shouldFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fair1, fair2, err := RemoveVig(tt.prob1, tt.prob2)

			if tt.shouldFail {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(fair1-tt.wantFair1) > 0.01 {
				t.Errorf("fair1 = %f, want %f", fair1, tt.wantFair1)
			}
			if math.Abs(fair2-tt.wantFair2) > 0.01 {
				t.Errorf("fair2 = %f, want %f", fair2, tt.wantFair2)
			}

			sum := fair1 + fair2
			if math.Abs(sum-1.0) > 0.0001 {
				t.Errorf("fair probabilities don't sum to 1.0: %f + %f = %f", fair1, fair2, sum)
			}
		})
	}
}

func TestFairProbabilities(t *testing.T) {
	fair1, fair2, err := FairProbabilities(-110, -110)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(fair1-0.5) > 0.001 || math.Abs(fair2-0.5) > 0.001 {
		t.Errorf("symmetric market should split evenly: %f / %f", fair1, fair2)
	}
}

func TestMoneylineEV(t *testing.T) {
	tests := []struct {
		name      string
		modelProb float64
		odds      int
		wantEV    float64
	}{
		{name: "Positive EV underdog", modelProb: 0.55, odds: 100, wantEV: 0.10},
		{name: "Fair price", modelProb: 0.50, odds: 100, wantEV: 0.0},
		{name: "Negative EV favorite", modelProb: 0.60, odds: -200, wantEV: -0.10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := MoneylineEV(tt.modelProb, tt.odds)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(ev-tt.wantEV) > 0.001 {
				t.Errorf("EV = %f, want %f", ev, tt.wantEV)
			}
		})
	}
}

func TestCLVCents(t *testing.T) {
	// Entry at -110, market closes -125: implied prob moved toward the pick
	clv, err := CLVCents(-110, -125)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clv <= 0 {
		t.Errorf("closing steam should yield positive CLV, got %f", clv)
	}

	// Entry at -125, closes -110: negative CLV
	clv, err = CLVCents(-125, -110)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clv >= 0 {
		t.Errorf("line moving against the pick should yield negative CLV, got %f", clv)
	}
}
