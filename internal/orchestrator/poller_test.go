package orchestrator

import (
	"testing"
	"time"

	"github.com/XavierBriggs/pythia/internal/providers/oddsapi"
	"github.com/XavierBriggs/pythia/pkg/models"
)

func floatPtr(v float64) *float64 { return &v }

func providerEvent() *oddsapi.OddsEvent {
	return &oddsapi.OddsEvent{
		ID:           "prov_123",
		SportKey:     "basketball_nba",
		CommenceTime: time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC),
		HomeTeam:     "Home Club",
		AwayTeam:     "Away Club",
		Bookmakers: []oddsapi.Bookmaker{
			{
				Key:        "draftkings",
				LastUpdate: time.Date(2025, 11, 1, 18, 0, 0, 0, time.UTC),
				Markets: []oddsapi.Market{
					{Key: "h2h", Outcomes: []oddsapi.Outcome{
						{Name: "Home Club", Price: -180},
						{Name: "Away Club", Price: 155},
					}},
					{Key: "spreads", Outcomes: []oddsapi.Outcome{
						{Name: "Home Club", Price: -110, Point: floatPtr(-4.5)},
						{Name: "Away Club", Price: -110, Point: floatPtr(4.5)},
					}},
					{Key: "totals", Outcomes: []oddsapi.Outcome{
						{Name: "Over", Price: -108, Point: floatPtr(226.5)},
						{Name: "Under", Price: -112, Point: floatPtr(226.5)},
					}},
				},
			},
			{
				Key: "pinnacle",
				Markets: []oddsapi.Market{
					{Key: "h2h", Outcomes: []oddsapi.Outcome{
						{Name: "Home Club", Price: -175},
						{Name: "Away Club", Price: 150},
					}},
					{Key: "spreads", Outcomes: []oddsapi.Outcome{
						{Name: "Home Club", Price: -108, Point: floatPtr(-4.5)},
						{Name: "Away Club", Price: -112, Point: floatPtr(4.5)},
					}},
					{Key: "totals", Outcomes: []oddsapi.Outcome{
						{Name: "Over", Price: -110, Point: floatPtr(227.0)},
						{Name: "Under", Price: -110, Point: floatPtr(227.0)},
					}},
				},
			},
		},
	}
}

func TestSnapshotFromPrefersSharpBook(t *testing.T) {
	snap, err := snapshotFrom("evt_x", providerEvent())
	if err != nil {
		t.Fatalf("snapshotFrom: %v", err)
	}

	if snap.BookID != "pinnacle" {
		t.Errorf("book = %s, want pinnacle preferred", snap.BookID)
	}
	if snap.SpreadHome != -4.5 || snap.SpreadAway != 4.5 {
		t.Errorf("spreads = %f/%f, want -4.5/4.5", snap.SpreadHome, snap.SpreadAway)
	}
	if snap.Total != 227.0 {
		t.Errorf("total = %f, want 227.0", snap.Total)
	}
	if snap.MLHome != -175 || snap.MLAway != 150 {
		t.Errorf("moneylines = %d/%d, want -175/150", snap.MLHome, snap.MLAway)
	}
	if snap.Wave != models.WavePoll {
		t.Errorf("wave = %s, want poll", snap.Wave)
	}
}

func TestSnapshotFromIncompleteMarkets(t *testing.T) {
	oe := providerEvent()
	oe.Bookmakers = oe.Bookmakers[:1]
	oe.Bookmakers[0].Markets = oe.Bookmakers[0].Markets[:1] // h2h only

	if _, err := snapshotFrom("evt_x", oe); err == nil {
		t.Error("incomplete markets should be rejected")
	}
}

func TestEventIDIndependentOfProviderID(t *testing.T) {
	commence := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	id1 := EventIDFor(models.LeagueNBA, "Home Club", "Away Club", commence)
	id2 := EventIDFor(models.LeagueNBA, "Home Club", "Away Club", commence)
	if id1 != id2 {
		t.Error("internal event ids must be deterministic")
	}

	oe := providerEvent()
	event := eventFrom(models.LeagueNBA, oe)
	if event.EventID == oe.ID {
		t.Error("internal id must not be the provider id")
	}
	if event.ProviderMap.OddsAPIEventID != oe.ID {
		t.Errorf("provider map = %s, want %s", event.ProviderMap.OddsAPIEventID, oe.ID)
	}
}

func TestNextBackoffBounds(t *testing.T) {
	base := 60 * time.Second

	// First failure drops to the backoff floor
	d := nextBackoff(base, base)
	if d != backoffMin {
		t.Errorf("first backoff = %v, want %v", d, backoffMin)
	}

	// Repeated failures double, capped at the ceiling
	for i := 0; i < 12; i++ {
		d = nextBackoff(d, base)
	}
	if d != backoffMax {
		t.Errorf("backoff cap = %v, want %v", d, backoffMax)
	}
}
