package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// SelectionID is the stable hash identifying one side of one market on one
// event at one line and book. It is the only identifier the UI or publisher
// may use.
func SelectionID(eventID string, market models.MarketType, side models.Side, line float64, bookID string) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s", eventID, market, side, normalizeLine(market, line), bookID)
	sum := sha256.Sum256([]byte(payload))
	return "sel_" + hex.EncodeToString(sum[:12])
}

// normalizeLine renders a line canonically for hashing. Moneylines have no
// line; spreads keep their sign; totals are unsigned.
func normalizeLine(market models.MarketType, line float64) string {
	if market == models.MarketMoneyline {
		return "0"
	}
	return fmt.Sprintf("%+.1f", line)
}

// Opposite resolves the paired selection id from the two canonical ids
// stored on a decision. Table lookup only; no string or team-name matching.
func Opposite(d *models.MarketDecision, selectionID string) (string, error) {
	switch selectionID {
	case d.SelectionID:
		return d.OppositeSelectionID, nil
	case d.OppositeSelectionID:
		return d.SelectionID, nil
	}
	return "", fmt.Errorf("selection %s is not a side of this market", selectionID)
}

// TeamKey builds the correlation key the parlay constructor groups legs by.
// Totals have no team; callers flag the missing key in audit but do not
// block on it.
func TeamKey(league models.League, teamID string) string {
	if teamID == "" {
		return ""
	}
	return string(league) + ":" + teamID
}
