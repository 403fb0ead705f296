package settlement

import (
	"fmt"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// RulesVersion addresses the settlement rule set below. Grading records
// carry it so historical grades stay interpretable when rules change.
const RulesVersion = "settle-v1"

// CLVRulesVersion addresses the closing-line-value computation
const CLVRulesVersion = "clv-v1"

// GradeSource identifies the score provider grades are computed from
const GradeSource = "oddsapi"

// ErrMarketContractMismatch rejects an invalid (sport, market, settlement
// mode) combination at the boundary; it never reaches the engine.
type ErrMarketContractMismatch struct {
	Sport      models.League
	MarketType models.MarketType
	Mode       models.SettlementMode
}

func (e *ErrMarketContractMismatch) Error() string {
	return fmt.Sprintf("market contract mismatch: %s %s does not support %s settlement", e.Sport, e.MarketType, e.Mode)
}

// regulationSupported lists leagues whose markets can settle on regulation
// time. Unbounded overtime (NBA, NCAAB, NCAAF) and extra innings (MLB) rule
// the others out.
var regulationSupported = map[models.League]bool{
	models.LeagueNFL: true,
	models.LeagueNHL: true,
}

// CheckMarketContract validates a (sport, market, settlement mode) request
func CheckMarketContract(sport models.League, market models.MarketType, mode models.SettlementMode) error {
	switch mode {
	case models.SettleFullGame:
		return nil
	case models.SettleRegulation:
		if regulationSupported[sport] {
			return nil
		}
		return &ErrMarketContractMismatch{Sport: sport, MarketType: market, Mode: mode}
	default:
		return &ErrMarketContractMismatch{Sport: sport, MarketType: market, Mode: mode}
	}
}

// moneylineTiePushes encodes per-sport moneyline tie semantics: two-way
// moneylines push on a tie where a tie is a listed outcome-free result
// (NFL regulation ties); leagues that cannot tie void instead, the safe
// terminal for a malformed feed.
var moneylineTiePushes = map[models.League]bool{
	models.LeagueNFL: true,
	models.LeagueNHL: true,
}

// SettleSpread grades a spread pick. The pick line is the line attached to
// the picked side (bookmaker-signed), so the adjusted score comparison is
// side-independent: picked team score + line vs opponent score.
func SettleSpread(side models.Side, line float64, homeScore, awayScore int) models.Settlement {
	var picked, opponent float64
	switch side {
	case models.SideHome:
		picked, opponent = float64(homeScore), float64(awayScore)
	case models.SideAway:
		picked, opponent = float64(awayScore), float64(homeScore)
	default:
		return models.SettlementVoid
	}

	adjusted := picked + line
	switch {
	case adjusted > opponent:
		return models.SettlementWin
	case adjusted == opponent:
		return models.SettlementPush
	default:
		return models.SettlementLoss
	}
}

// SettleTotal grades an over/under pick. Half-point lines cannot push.
func SettleTotal(side models.Side, line float64, homeScore, awayScore int) models.Settlement {
	total := float64(homeScore + awayScore)

	if total == line {
		return models.SettlementPush
	}

	switch side {
	case models.SideOver:
		if total > line {
			return models.SettlementWin
		}
		return models.SettlementLoss
	case models.SideUnder:
		if total < line {
			return models.SettlementWin
		}
		return models.SettlementLoss
	default:
		return models.SettlementVoid
	}
}

// SettleMoneyline grades a moneyline pick with per-sport tie semantics
func SettleMoneyline(league models.League, side models.Side, homeScore, awayScore int) models.Settlement {
	if homeScore == awayScore {
		if moneylineTiePushes[league] {
			return models.SettlementPush
		}
		return models.SettlementVoid
	}

	homeWon := homeScore > awayScore
	switch side {
	case models.SideHome:
		if homeWon {
			return models.SettlementWin
		}
		return models.SettlementLoss
	case models.SideAway:
		if !homeWon {
			return models.SettlementWin
		}
		return models.SettlementLoss
	default:
		return models.SettlementVoid
	}
}
