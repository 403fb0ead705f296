package publisher

import (
	"strings"
	"testing"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

func edgePayload() Payload {
	return Payload{
		League:       models.LeagueNBA,
		HomeTeam:     "Home Club",
		AwayTeam:     "Away Club",
		PickTeam:     "Home Club",
		PickSide:     models.SideHome,
		MarketType:   models.MarketSpread,
		Line:         -5.5,
		AmericanOdds: -110,
		ModelProb:    0.84,
		ImpliedProb:  0.5,
		EntryOdds:    -110,
		WorstOdds:    -125,
	}
}

func newValidator() *CopyValidator {
	return NewCopyValidator(config.ForbiddenPhrases)
}

func TestRenderedTemplateValidates(t *testing.T) {
	p := edgePayload()
	tmpl, err := TemplateFor(models.TierEdge)
	if err != nil {
		t.Fatalf("template: %v", err)
	}

	text := tmpl.Render(p)
	if err := newValidator().Validate(text, p); err != nil {
		t.Errorf("canonical rendering should validate: %v\n%s", err, text)
	}
}

func TestRenderDeterministic(t *testing.T) {
	p := edgePayload()
	tmpl, _ := TemplateFor(models.TierEdge)

	if tmpl.Render(p) != tmpl.Render(p) {
		t.Error("same payload must render byte-identically")
	}
}

func TestForeignNumberBlocked(t *testing.T) {
	p := edgePayload()
	tmpl, _ := TemplateFor(models.TierEdge)
	text := tmpl.Render(p) + "\nParlay it to 500"

	if err := newValidator().Validate(text, p); err == nil {
		t.Error("a numeric token outside the canonical payload must block")
	}
}

func TestForbiddenPhraseBlocked(t *testing.T) {
	p := edgePayload()
	tmpl, _ := TemplateFor(models.TierEdge)
	text := tmpl.Render(p) + "\nfade the favorite tonight"

	err := newValidator().Validate(text, p)
	if err == nil || !strings.Contains(err.Error(), "forbidden phrase") {
		t.Errorf("forbidden phrase should block, got %v", err)
	}
}

func TestWrongTeamBlocked(t *testing.T) {
	p := edgePayload()
	text := "NBA | Away Club @ Home Club\nPick: Away Club -5.5 (-110)\nModel 84.0% vs implied 50.0%\nEntry -110 | floor -125"

	err := newValidator().Validate(text, p)
	if err == nil {
		t.Error("rendering naming the opposite team as the pick must block")
	}
}

func TestMissingRequiredFieldsBlocked(t *testing.T) {
	p := edgePayload()
	p.PickTeam = ""

	if err := newValidator().Validate("anything", p); err == nil {
		t.Error("missing pick team must block")
	}

	p = edgePayload()
	p.ModelProb = 0
	if err := newValidator().Validate("anything", p); err == nil {
		t.Error("missing model probability must block")
	}
}

func TestProbabilityToleranceExact(t *testing.T) {
	p := edgePayload()
	v := newValidator()

	// Within ±0.1 percentage points of 84.0
	textOK := "NBA | Away Club @ Home Club\nPick: Home Club -5.5 (-110)\nModel 84.05% vs implied 50.0%\nEntry -110 | floor -125"
	if err := v.Validate(textOK, p); err != nil {
		t.Errorf("probability within tolerance should pass: %v", err)
	}

	textBad := "NBA | Away Club @ Home Club\nPick: Home Club -5.5 (-110)\nModel 85.5% vs implied 50.0%\nEntry -110 | floor -125"
	if err := v.Validate(textBad, p); err == nil {
		t.Error("probability outside tolerance must block")
	}
}

func TestTemplateLock(t *testing.T) {
	// Tier selection is fixed at registration; unknown tiers have no
	// template at all
	if _, err := TemplateFor(models.Tier("mystery")); err == nil {
		t.Error("unknown tier should have no template")
	}

	tmplA, _ := TemplateFor(models.TierEdge)
	tmplB, _ := TemplateFor(models.TierEdge)
	if tmplA.ID != tmplB.ID {
		t.Error("template id for a tier must be stable")
	}
}
