package settlement

import (
	"errors"
	"testing"

	"github.com/XavierBriggs/pythia/pkg/models"
)

func TestSettleSpread(t *testing.T) {
	tests := []struct {
		name      string
		side      models.Side
		line      float64
		homeScore int
		awayScore int
		want      models.Settlement
	}{
		{name: "Home favorite covers", side: models.SideHome, line: -5.5, homeScore: 110, awayScore: 100, want: models.SettlementWin},
		{name: "Home favorite fails to cover", side: models.SideHome, line: -5.5, homeScore: 104, awayScore: 100, want: models.SettlementLoss},
		{name: "Whole-number push", side: models.SideHome, line: -5.0, homeScore: 105, awayScore: 100, want: models.SettlementPush},
		{name: "Away dog covers on loss", side: models.SideAway, line: 5.5, homeScore: 103, awayScore: 100, want: models.SettlementWin},
		{name: "Away dog outright win covers", side: models.SideAway, line: 5.5, homeScore: 100, awayScore: 104, want: models.SettlementWin},
		{name: "Half-point line cannot push", side: models.SideHome, line: -5.5, homeScore: 105, awayScore: 100, want: models.SettlementLoss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SettleSpread(tt.side, tt.line, tt.homeScore, tt.awayScore)
			if got != tt.want {
				t.Errorf("SettleSpread(%s, %.1f, %d, %d) = %s, want %s",
					tt.side, tt.line, tt.homeScore, tt.awayScore, got, tt.want)
			}
		})
	}
}

func TestSettleTotal(t *testing.T) {
	tests := []struct {
		name      string
		side      models.Side
		line      float64
		homeScore int
		awayScore int
		want      models.Settlement
	}{
		{name: "Over hits", side: models.SideOver, line: 224.5, homeScore: 115, awayScore: 112, want: models.SettlementWin},
		{name: "Over misses", side: models.SideOver, line: 224.5, homeScore: 110, awayScore: 112, want: models.SettlementLoss},
		{name: "Under hits", side: models.SideUnder, line: 224.5, homeScore: 110, awayScore: 112, want: models.SettlementWin},
		{name: "Whole-number push", side: models.SideOver, line: 224.0, homeScore: 112, awayScore: 112, want: models.SettlementPush},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SettleTotal(tt.side, tt.line, tt.homeScore, tt.awayScore)
			if got != tt.want {
				t.Errorf("SettleTotal(%s, %.1f, %d, %d) = %s, want %s",
					tt.side, tt.line, tt.homeScore, tt.awayScore, got, tt.want)
			}
		})
	}
}

func TestSettleMoneylineTieSemantics(t *testing.T) {
	// NFL regulation ties push
	if got := SettleMoneyline(models.LeagueNFL, models.SideHome, 20, 20); got != models.SettlementPush {
		t.Errorf("NFL tie = %s, want PUSH", got)
	}
	// Leagues with unbounded overtime void a tie
	if got := SettleMoneyline(models.LeagueNBA, models.SideHome, 100, 100); got != models.SettlementVoid {
		t.Errorf("NBA tie = %s, want VOID", got)
	}
	if got := SettleMoneyline(models.LeagueMLB, models.SideAway, 4, 4); got != models.SettlementVoid {
		t.Errorf("MLB tie = %s, want VOID", got)
	}

	if got := SettleMoneyline(models.LeagueNBA, models.SideHome, 110, 100); got != models.SettlementWin {
		t.Errorf("home winner = %s, want WIN", got)
	}
	if got := SettleMoneyline(models.LeagueNBA, models.SideAway, 110, 100); got != models.SettlementLoss {
		t.Errorf("away on home win = %s, want LOSS", got)
	}
}

func TestCheckMarketContract(t *testing.T) {
	// FULL_GAME is valid everywhere
	for _, league := range models.AllLeagues {
		if err := CheckMarketContract(league, models.MarketSpread, models.SettleFullGame); err != nil {
			t.Errorf("%s FULL_GAME should be valid: %v", league, err)
		}
	}

	// REGULATION only where regulation results are bounded
	for _, league := range []models.League{models.LeagueNFL, models.LeagueNHL} {
		if err := CheckMarketContract(league, models.MarketMoneyline, models.SettleRegulation); err != nil {
			t.Errorf("%s REGULATION should be valid: %v", league, err)
		}
	}
	for _, league := range []models.League{models.LeagueNBA, models.LeagueNCAAB, models.LeagueNCAAF, models.LeagueMLB} {
		err := CheckMarketContract(league, models.MarketMoneyline, models.SettleRegulation)
		if err == nil {
			t.Errorf("%s REGULATION should be rejected", league)
			continue
		}
		var mismatch *ErrMarketContractMismatch
		if !errors.As(err, &mismatch) {
			t.Errorf("%s: error type = %T, want ErrMarketContractMismatch", league, err)
		}
	}
}

func TestGradingKeyDeterministic(t *testing.T) {
	key := models.GradingIdempotencyKey("pick_9", GradeSource, RulesVersion, CLVRulesVersion)
	again := models.GradingIdempotencyKey("pick_9", GradeSource, RulesVersion, CLVRulesVersion)
	if key != again {
		t.Error("grading idempotency key must be deterministic")
	}
}
