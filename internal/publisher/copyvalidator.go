package publisher

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// Numeric tolerances for token matching
const (
	probTolerancePct = 0.1  // probabilities render as percent; ±0.001 prob
	lineTolerance    = 0.05 // spreads and totals
)

var numberPattern = regexp.MustCompile(`[+-]?\d+(?:\.\d+)?`)

// allowedValue is one canonical number a rendered token may match
type allowedValue struct {
	value     float64
	tolerance float64
}

// CopyValidator hard-blocks any rendering that disagrees with the
// canonical payload. Contradictions in outbound text are impossible by
// construction: a failing rendering is never posted.
type CopyValidator struct {
	forbidden []string
}

// NewCopyValidator creates the validator with the configured phrase list
func NewCopyValidator(forbidden []string) *CopyValidator {
	return &CopyValidator{forbidden: forbidden}
}

// Validate checks a rendered text against its payload. The error names the
// first violation; callers record it and never retry the same rendering.
func (v *CopyValidator) Validate(text string, p Payload) error {
	if err := v.checkRequired(p); err != nil {
		return err
	}

	if phrase := v.findForbidden(text); phrase != "" {
		return fmt.Errorf("forbidden phrase in rendering: %q", phrase)
	}

	if p.MarketType == models.MarketSpread || p.MarketType == models.MarketMoneyline {
		if !strings.Contains(text, p.PickTeam) {
			return fmt.Errorf("rendering does not name the canonical pick team %q", p.PickTeam)
		}
		opponent := p.HomeTeam
		if p.PickTeam == p.HomeTeam {
			opponent = p.AwayTeam
		}
		// The opponent may appear in the matchup header but never as the
		// picked side
		if strings.Contains(text, "Pick: "+opponent) || strings.Contains(text, "Watching: "+opponent) {
			return fmt.Errorf("rendering picks %q but canonical pick is %q", opponent, p.PickTeam)
		}
	}

	// Team names may legitimately carry digits (76ers, 49ers); strip them
	// before scanning so only payload numerics remain
	scanned := text
	for _, name := range []string{p.HomeTeam, p.AwayTeam, p.PickTeam} {
		if name != "" {
			scanned = strings.ReplaceAll(scanned, name, "")
		}
	}

	allowed := v.allowedValues(p)
	for _, token := range numberPattern.FindAllString(scanned, -1) {
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			continue
		}
		if !matchesAllowed(value, allowed) {
			return fmt.Errorf("numeric token %s does not match any canonical payload value", token)
		}
	}

	return nil
}

func (v *CopyValidator) checkRequired(p Payload) error {
	if p.MarketType == "" {
		return fmt.Errorf("payload missing market type")
	}
	if p.HomeTeam == "" || p.AwayTeam == "" {
		return fmt.Errorf("payload missing team names")
	}
	if (p.MarketType == models.MarketSpread || p.MarketType == models.MarketMoneyline) && p.PickTeam == "" {
		return fmt.Errorf("payload missing pick team")
	}
	if p.ModelProb <= 0 || p.ModelProb >= 1 {
		return fmt.Errorf("payload model probability out of range")
	}
	if p.AmericanOdds == 0 {
		return fmt.Errorf("payload missing odds")
	}
	return nil
}

func (v *CopyValidator) findForbidden(text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range v.forbidden {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	return ""
}

// allowedValues builds the set of numbers the payload authorizes.
// Odds are exact; lines ±0.05; probabilities (as percent) ±0.1.
func (v *CopyValidator) allowedValues(p Payload) []allowedValue {
	allowed := []allowedValue{
		{float64(p.AmericanOdds), 0},
		{float64(p.EntryOdds), 0},
		{float64(p.WorstOdds), 0},
		{p.ModelProb * 100, probTolerancePct},
		{p.ImpliedProb * 100, probTolerancePct},
	}
	if p.MarketType != models.MarketMoneyline {
		allowed = append(allowed, allowedValue{p.Line, lineTolerance})
	}
	return allowed
}

func matchesAllowed(value float64, allowed []allowedValue) bool {
	for _, a := range allowed {
		if math.Abs(value-a.value) <= a.tolerance {
			return true
		}
	}
	return false
}
