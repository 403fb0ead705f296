package publisher

import (
	"fmt"
	"strings"

	"github.com/XavierBriggs/pythia/pkg/models"
)

// Payload is the canonical data a template may render. Every numeric in
// the rendered text must trace back to one of these fields; the copy
// validator enforces that.
type Payload struct {
	League        models.League
	HomeTeam      string
	AwayTeam      string
	PickTeam      string
	PickSide      models.Side
	MarketType    models.MarketType
	Line          float64
	AmericanOdds  int
	ModelProb     float64
	ImpliedProb   float64
	EntryOdds     int
	WorstOdds     int
	EdgeGrade     string
}

// Template renders a payload deterministically. Templates are registered
// once at startup and never change; the tier decides which one a signal
// gets.
type Template struct {
	ID     string
	Render func(p Payload) string
}

// registry is the immutable template set, keyed by tier
var registry = map[models.Tier]Template{
	models.TierEdge: {
		ID:     "edge-v1",
		Render: renderEdge,
	},
	models.TierPick: {
		ID:     "pick-v1",
		Render: renderPick,
	},
	models.TierLean: {
		ID:     "lean-v1",
		Render: renderPick,
	},
}

// TemplateFor selects the pre-registered template for a tier
func TemplateFor(tier models.Tier) (Template, error) {
	tmpl, ok := registry[tier]
	if !ok {
		return Template{}, fmt.Errorf("no template registered for tier %s", tier)
	}
	return tmpl, nil
}

func renderEdge(p Payload) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s | %s @ %s\n", p.League, p.AwayTeam, p.HomeTeam))
	sb.WriteString(fmt.Sprintf("Pick: %s\n", pickLabel(p)))
	sb.WriteString(fmt.Sprintf("Model %.1f%% vs implied %.1f%%\n", p.ModelProb*100, p.ImpliedProb*100))
	sb.WriteString(fmt.Sprintf("Entry %s | floor %s", formatOdds(p.EntryOdds), formatOdds(p.WorstOdds)))

	return sb.String()
}

func renderPick(p Payload) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s | %s @ %s\n", p.League, p.AwayTeam, p.HomeTeam))
	sb.WriteString(fmt.Sprintf("Watching: %s\n", pickLabel(p)))
	sb.WriteString(fmt.Sprintf("Model %.1f%% vs implied %.1f%%", p.ModelProb*100, p.ImpliedProb*100))

	return sb.String()
}

// pickLabel names the selection from canonical pick fields only
func pickLabel(p Payload) string {
	switch p.MarketType {
	case models.MarketSpread:
		return fmt.Sprintf("%s %+.1f (%s)", p.PickTeam, p.Line, formatOdds(p.AmericanOdds))
	case models.MarketMoneyline:
		return fmt.Sprintf("%s ML (%s)", p.PickTeam, formatOdds(p.AmericanOdds))
	case models.MarketTotal:
		side := "Over"
		if p.PickSide == models.SideUnder {
			side = "Under"
		}
		return fmt.Sprintf("%s %.1f (%s)", side, p.Line, formatOdds(p.AmericanOdds))
	}
	return ""
}

func formatOdds(odds int) string {
	if odds > 0 {
		return fmt.Sprintf("+%d", odds)
	}
	return fmt.Sprintf("%d", odds)
}
